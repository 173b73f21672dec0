package mcp

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/keysmith/internal/config"
)

// Policy decides which tools the MCP server exposes. It is read from
// mcp-policy.yaml in the keysmith base directory.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// SensitiveTools derive output from secret material. They are only
// exposed when allowed_tools names them (or a pattern covering them).
func SensitiveTools() []string {
	return []string{
		"entry_get_masked",
		"totp_code",
	}
}

// DefaultPolicy is used when no policy file exists: every tool that does
// not touch secret material is allowed.
func DefaultPolicy() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow}
}

// LoadPolicy loads the MCP policy from dir. The file must be a regular
// file private to the current user.
func LoadPolicy(dir string) (*Policy, error) {
	content, err := config.ReadPrivateFile(filepath.Join(dir, PolicyFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to load policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	// Default to deny if not specified
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// IsToolAllowed checks if a tool may be registered.
// Evaluation order:
// 1. denied_tools → deny
// 2. allowed_tools → allow
// 3. sensitive tools → deny
// 4. default_action
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	for _, denied := range p.DeniedTools {
		if matchTool(tool, denied) {
			return false, fmt.Sprintf("tool '%s' matches denied pattern '%s'", tool, denied)
		}
	}

	for _, allowed := range p.AllowedTools {
		if matchTool(tool, allowed) {
			return true, ""
		}
	}

	for _, sensitive := range SensitiveTools() {
		if tool == sensitive {
			return false, fmt.Sprintf("tool '%s' must be listed in allowed_tools", tool)
		}
	}

	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// matchTool matches a tool name against an exact name or a glob such as
// "entry_*". Malformed patterns match nothing.
func matchTool(tool, pattern string) bool {
	ok, err := path.Match(pattern, tool)
	return err == nil && ok
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}

	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}

	for _, pattern := range append(append([]string(nil), p.DeniedTools...), p.AllowedTools...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid tool pattern '%s': %w", pattern, err)
		}
	}
	return nil
}
