package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/internal/mcp"
	"github.com/forest6511/keysmith/pkg/activity"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:         "mcp-server",
	Short:       "Start the MCP server for AI coding assistant integration",
	Annotations: map[string]string{sourceAnnotation: activity.SourceMCP},
	Long: `Start the MCP server that gives AI coding assistants read-only,
zero-plaintext access to the selected vault.

The server implements the Model Context Protocol (MCP) over stdio transport.
Agents never receive plaintext secrets.

Available tools:
  - entry_list:        List entries with metadata (no values)
  - entry_exists:      Check if an entry exists with metadata
  - entry_get_masked:  Get a masked field value (e.g., "****WXYZ")
  - totp_code:         Current TOTP code of a login
  - security_audit:    Weak, reused, old and common password counts
  - security_score:    Vault security score with components
  - password_generate: Generate a password or passphrase
  - password_strength: Estimate the strength of a candidate password

Authentication:
  Set KEYSMITH_PASSWORD environment variable before starting the server.
  The password is read once and immediately cleared from the environment.

  SECURITY NOTE: On Linux, the environment variable may briefly be visible
  via /proc/<pid>/environ before it is cleared.

Policy:
  Create ~/.keysmith/mcp-policy.yaml to allow or deny tools. Without a
  policy file every tool except entry_get_masked and totp_code is enabled;
  those two must be allowed explicitly.

  version: 1
  default_action: allow
  allowed_tools: [entry_get_masked]
  denied_tools: [password_*]

Example MCP configuration (~/.claude.json):
  {
    "mcpServers": {
      "keysmith": {
        "type": "stdio",
        "command": "/path/to/keysmith",
        "args": ["mcp-server", "--vault", "Work"],
        "env": {
          "KEYSMITH_PASSWORD": "your-master-password"
        }
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd)
	},
}

func runMCPServer(cmd *cobra.Command) error {
	ctx := cmd.Context()

	ref := vaultRef
	if ref == "" {
		ref = cfg.DefaultVault
	}
	// The server cannot prompt for the password again after an idle lock.
	mgr.SetIdleTimeout(0)

	server, err := mcp.NewServer(ctx, &mcp.ServerOptions{
		Manager:    mgr,
		Vault:      ref,
		PolicyDir:  baseDir,
		Thresholds: prefs.Thresholds(),
		Logger:     logger,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer server.Close()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
