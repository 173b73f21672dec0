// Package mcp implements the MCP (Model Context Protocol) server for keysmith.
// AI agents see entry metadata and audit results; plaintext secrets never
// leave the process.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/exp/slog"

	"github.com/forest6511/keysmith/internal/logging"
	"github.com/forest6511/keysmith/pkg/security"
	"github.com/forest6511/keysmith/pkg/vault"
)

// PasswordEnv is read when ServerOptions.Password is empty.
const PasswordEnv = "KEYSMITH_PASSWORD"

// Server represents the MCP server for keysmith.
type Server struct {
	server  *mcp.Server
	manager *vault.Manager
	policy  *Policy
	calc    *security.Calculator
	logger  *slog.Logger
	now     func() time.Time
	tools   []string
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Manager owns the vault store. Required.
	Manager *vault.Manager

	// Vault is a vault ID or name. Empty selects the only vault.
	Vault string

	// Password is the master password for the vault.
	// If empty, the server reads KEYSMITH_PASSWORD and unsets it.
	Password string

	// PolicyDir holds mcp-policy.yaml. Empty uses DefaultPolicy.
	PolicyDir string

	// Thresholds drive security_audit and security_score.
	Thresholds security.Thresholds

	Logger  *slog.Logger
	Version string
}

// NewServer unlocks the selected vault and registers the tools the policy
// allows.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.Manager == nil {
		return nil, errors.New("mcp: a vault manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	policy := DefaultPolicy()
	if opts.PolicyDir != "" {
		p, err := LoadPolicy(opts.PolicyDir)
		switch {
		case errors.Is(err, ErrPolicyNotFound):
		case err != nil:
			return nil, err
		default:
			policy = p
		}
	}

	// Get password from options or environment
	password := opts.Password
	if password == "" {
		password = os.Getenv(PasswordEnv)
		os.Unsetenv(PasswordEnv)
	}
	if password == "" {
		return nil, fmt.Errorf("no password provided: set %s environment variable", PasswordEnv)
	}

	sum, err := opts.Manager.FindVault(ctx, opts.Vault)
	if err != nil {
		return nil, fmt.Errorf("failed to select vault: %w", err)
	}
	if _, err := opts.Manager.Unlock(ctx, sum.ID, password); err != nil {
		return nil, fmt.Errorf("failed to unlock vault: %w", err)
	}

	th := opts.Thresholds
	if th == (security.Thresholds{}) {
		th = security.DefaultThresholds()
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		server:  mcp.NewServer(&mcp.Implementation{Name: "keysmith", Version: version}, nil),
		manager: opts.Manager,
		policy:  policy,
		calc:    security.NewCalculator(th),
		logger:  logger,
		now:     time.Now,
	}
	s.registerTools()
	logger.Info("mcp server ready", "vault", sum.ID, "tools", len(s.tools))
	return s, nil
}

// addTool registers a tool when the policy allows it.
func addTool[In, Out any](s *Server, tool *mcp.Tool, h mcp.ToolHandlerFor[In, Out]) {
	if allowed, reason := s.policy.IsToolAllowed(tool.Name); !allowed {
		s.logger.Debug("mcp tool disabled", "tool", tool.Name, "reason", reason)
		return
	}
	mcp.AddTool(s.server, tool, h)
	s.tools = append(s.tools, tool.Name)
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "entry_list",
		Description: "List vault entries with metadata. Returns names, types, tags and flags for password/TOTP/URL presence. Does NOT return field values.",
	}, s.handleEntryList)

	addTool(s, &mcp.Tool{
		Name:        "entry_exists",
		Description: "Check whether an entry (by ID, name or glob) exists and return its metadata. Does NOT return field values.",
	}, s.handleEntryExists)

	addTool(s, &mcp.Tool{
		Name:        "entry_get_masked",
		Description: "Get a masked version of one entry field (e.g. '****WXYZ'). Useful for verifying a value's shape without exposing it.",
	}, s.handleEntryGetMasked)

	addTool(s, &mcp.Tool{
		Name:        "totp_code",
		Description: "Get the current TOTP code of a login entry and the seconds until it rolls over.",
	}, s.handleTOTPCode)

	addTool(s, &mcp.Tool{
		Name:        "security_audit",
		Description: "Report weak, reused, old and denylisted passwords. Entry names are included only when include_names is true.",
	}, s.handleSecurityAudit)

	addTool(s, &mcp.Tool{
		Name:        "security_score",
		Description: "Compute the 0-100 vault security score with its four components and suggestions.",
	}, s.handleSecurityScore)

	addTool(s, &mcp.Tool{
		Name:        "password_generate",
		Description: "Generate a random password or passphrase. The value is returned to the caller and never stored.",
	}, s.handlePasswordGenerate)

	addTool(s, &mcp.Tool{
		Name:        "password_strength",
		Description: "Estimate the entropy and strength bucket of a candidate password.",
	}, s.handlePasswordStrength)
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.manager.Lock()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close closes the server and locks the vault.
func (s *Server) Close() error {
	s.manager.Lock()
	return nil
}
