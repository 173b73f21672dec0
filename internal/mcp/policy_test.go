package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/forest6511/keysmith/internal/config"
)

// createTestPolicy writes a policy file into dir.
func createTestPolicy(t *testing.T, dir string, content string) {
	t.Helper()
	policyPath := filepath.Join(dir, PolicyFileName)
	if err := os.WriteFile(policyPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create policy file: %v", err)
	}
}

func TestLoadPolicy_NotFound(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := LoadPolicy(tmpDir)
	if err != ErrPolicyNotFound {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestLoadPolicy_Success(t *testing.T) {
	tmpDir := t.TempDir()
	createTestPolicy(t, tmpDir, `version: 1
default_action: deny
allowed_tools:
  - entry_*
  - security_audit
denied_tools:
  - entry_get_masked
`)

	policy, err := LoadPolicy(tmpDir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	if policy.Version != 1 {
		t.Errorf("expected version 1, got %d", policy.Version)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("expected default_action 'deny', got '%s'", policy.DefaultAction)
	}
	if len(policy.AllowedTools) != 2 {
		t.Errorf("expected 2 allowed tools, got %d", len(policy.AllowedTools))
	}
	if len(policy.DeniedTools) != 1 {
		t.Errorf("expected 1 denied tool, got %d", len(policy.DeniedTools))
	}
}

func TestLoadPolicy_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}
	tmpDir := t.TempDir()
	policyPath := filepath.Join(tmpDir, PolicyFileName)

	if err := os.WriteFile(policyPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	if err := os.Chmod(policyPath, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := LoadPolicy(tmpDir)
	if !errors.Is(err, config.ErrInsecure) {
		t.Errorf("expected ErrInsecure, got %v", err)
	}
}

func TestLoadPolicy_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on Windows")
	}
	tmpDir := t.TempDir()
	realPath := filepath.Join(tmpDir, "real-policy.yaml")
	if err := os.WriteFile(realPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("failed to write real policy file: %v", err)
	}
	if err := os.Symlink(realPath, filepath.Join(tmpDir, PolicyFileName)); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	_, err := LoadPolicy(tmpDir)
	if !errors.Is(err, config.ErrSymlink) {
		t.Errorf("expected ErrSymlink, got %v", err)
	}
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", `invalid: yaml: content: [[[`},
		{"unsupported version", "version: 99\ndefault_action: deny\n"},
		{"bad default action", "version: 1\ndefault_action: maybe\n"},
		{"bad pattern", "version: 1\nallowed_tools:\n  - \"entry_[\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			createTestPolicy(t, tmpDir, tt.content)
			if _, err := LoadPolicy(tmpDir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadPolicy_DefaultActionFallback(t *testing.T) {
	tmpDir := t.TempDir()
	createTestPolicy(t, tmpDir, "version: 1\nallowed_tools:\n  - entry_list\n")

	policy, err := LoadPolicy(tmpDir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("expected default_action 'deny', got '%s'", policy.DefaultAction)
	}
}

func TestIsToolAllowed(t *testing.T) {
	tests := []struct {
		name   string
		policy *Policy
		tool   string
		want   bool
	}{
		{"default allows metadata", DefaultPolicy(), "entry_list", true},
		{"default blocks masked values", DefaultPolicy(), "entry_get_masked", false},
		{"default blocks totp codes", DefaultPolicy(), "totp_code", false},
		{
			"explicit allow unlocks sensitive tool",
			&Policy{Version: 1, DefaultAction: ActionAllow, AllowedTools: []string{"totp_code"}},
			"totp_code", true,
		},
		{
			"glob allow",
			&Policy{Version: 1, DefaultAction: ActionDeny, AllowedTools: []string{"entry_*"}},
			"entry_get_masked", true,
		},
		{
			"deny wins over allow",
			&Policy{Version: 1, DefaultAction: ActionDeny, AllowedTools: []string{"entry_*"}, DeniedTools: []string{"entry_get_masked"}},
			"entry_get_masked", false,
		},
		{
			"default deny",
			&Policy{Version: 1, DefaultAction: ActionDeny, AllowedTools: []string{"entry_list"}},
			"password_generate", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := tt.policy.IsToolAllowed(tt.tool)
			if got != tt.want {
				t.Errorf("IsToolAllowed(%q) = %v (%s), want %v", tt.tool, got, reason, tt.want)
			}
			if !got && reason == "" {
				t.Error("denied tool should carry a reason")
			}
		})
	}
}
