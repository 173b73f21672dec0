// Package main provides the keysmith CLI commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
	"golang.org/x/term"

	"github.com/forest6511/keysmith/internal/clipboard"
	"github.com/forest6511/keysmith/internal/config"
	"github.com/forest6511/keysmith/internal/logging"
	"github.com/forest6511/keysmith/pkg/activity"
	"github.com/forest6511/keysmith/pkg/settings"
	"github.com/forest6511/keysmith/pkg/store"
	"github.com/forest6511/keysmith/pkg/vault"
)

// ActivityDirName is the activity log directory inside the data directory.
const ActivityDirName = "activity"

// Process-wide state built by setup.
var (
	baseDir  string
	vaultRef string

	cfg         *config.Config
	logger      *slog.Logger
	db          store.Store
	prefs       settings.Settings
	activityLog *activity.Logger
	mgr         *vault.Manager
)

// Command annotations read by PersistentPreRunE.
const (
	// skipSetupAnnotation marks commands that never touch the data directory.
	skipSetupAnnotation = "keysmith/skip-setup"
	// sourceAnnotation overrides the activity log source of a command.
	sourceAnnotation = "keysmith/source"
)

var rootCmd = &cobra.Command{
	Use:   "keysmith",
	Short: "keysmith is a local, zero-knowledge password vault",
	Long: `keysmith keeps credentials in vaults encrypted under a master password.
Nothing is stored in plaintext; the key is derived on unlock and wiped on lock.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before the root command and all subcommands.
	// This loads the config and opens the store.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		source := activity.SourceCLI
		for c := cmd; c != nil; c = c.Parent() {
			if c.Annotations[skipSetupAnnotation] == "true" {
				return nil
			}
			if s := c.Annotations[sourceAnnotation]; s != "" {
				source = s
			}
		}
		return setup(cmd.Context(), source)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "Base directory (default: $KEYSMITH_DIR or ~/.keysmith)")
	rootCmd.PersistentFlags().StringVarP(&vaultRef, "vault", "V", "", "Vault ID or name (default: config default_vault, or the only vault)")
}

// setup loads configuration and builds the vault manager. source tags
// activity log records.
func setup(ctx context.Context, source string) error {
	if mgr != nil {
		return nil
	}

	base := baseDir
	if base == "" {
		var err error
		if base, err = config.BaseDir(); err != nil {
			return err
		}
	}
	c, err := config.Load(base)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	l, err := logging.New(os.Stderr, c.LogLevel, c.LogFormat)
	if err != nil {
		return err
	}

	s, err := store.OpenSQLite(c.DataDir, l)
	if err != nil {
		return err
	}
	p, err := settings.Load(ctx, s)
	if err != nil {
		l.Warn("using default settings", "error", err)
		p = settings.Defaults()
	}

	act := activity.New(filepath.Join(c.DataDir, ActivityDirName), source, l)
	m := vault.New(s,
		vault.WithLogger(l),
		vault.WithActivity(act),
		vault.WithClipboard(clipboard.New()),
		vault.WithIdleTimeout(p.IdleTimeout()),
		vault.WithClipboardClearDelay(p.ClipboardDelay()),
		vault.WithLockNotifier(notifyLock(os.Stderr, p.IdleTimeout())),
	)

	baseDir, cfg, logger, db, prefs, activityLog, mgr = base, c, l, s, p, act, m
	return nil
}

// notifyLock reports a session that ended on inactivity rather than on
// request.
func notifyLock(w io.Writer, idle time.Duration) func(vault.LockReason) {
	return func(r vault.LockReason) {
		if r == vault.LockIdle {
			fmt.Fprintf(w, "🔒 Vault locked after %s of inactivity\n", idle)
		}
	}
}

// teardown locks the vault and closes the store. Safe to call twice.
func teardown() {
	if mgr != nil {
		mgr.Lock()
		mgr = nil
	}
	if db != nil {
		if err := db.Close(); err != nil && logger != nil {
			logger.Warn("failed to close store", "error", err)
		}
		db = nil
	}
}

// resolveVault selects the vault named by --vault, then default_vault.
func resolveVault(ctx context.Context) (vault.Summary, error) {
	ref := vaultRef
	if ref == "" && cfg != nil {
		ref = cfg.DefaultVault
	}
	sum, err := mgr.FindVault(ctx, ref)
	switch {
	case errors.Is(err, vault.ErrNotFound) && ref == "":
		return vault.Summary{}, errors.New("no vault yet: run 'keysmith vault create <name>'")
	case errors.Is(err, vault.ErrAmbiguousVault) && ref == "":
		return vault.Summary{}, errors.New("several vaults exist: pass --vault or run 'keysmith vault use <name>'")
	case err != nil:
		return vault.Summary{}, fmt.Errorf("vault '%s': %w", ref, err)
	}
	return sum, nil
}

// ensureUnlocked ensures the selected vault is unlocked.
// If locked, prompts for password and attempts to unlock.
func ensureUnlocked(ctx context.Context) (vault.Summary, error) {
	if cur, err := mgr.Current(); err == nil {
		return cur, nil
	}
	sum, err := resolveVault(ctx)
	if err != nil {
		return vault.Summary{}, err
	}
	if wait := mgr.RemainingCooldown(ctx, sum.ID); wait > 0 {
		return vault.Summary{}, fmt.Errorf("too many failed attempts: try again in %s", wait.Round(time.Second))
	}

	password, err := readPassword(fmt.Sprintf("Enter master password for '%s': ", sum.Name))
	if err != nil {
		return vault.Summary{}, err
	}
	sum, err = mgr.Unlock(ctx, sum.ID, password)
	if err != nil {
		return vault.Summary{}, fmt.Errorf("failed to unlock vault: %w", err)
	}
	return sum, nil
}

// readPassword reads a secret without echo. KEYSMITH_PASSWORD, when set,
// is used once and cleared.
func readPassword(prompt string) (string, error) {
	if pw := os.Getenv("KEYSMITH_PASSWORD"); pw != "" {
		os.Unsetenv("KEYSMITH_PASSWORD")
		return pw, nil
	}
	return readSecret(prompt)
}

// readSecret prompts for a value without echo.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// readNewPassword prompts twice and requires both to match.
func readNewPassword(what string) (string, error) {
	if pw := os.Getenv("KEYSMITH_PASSWORD"); pw != "" {
		os.Unsetenv("KEYSMITH_PASSWORD")
		return pw, nil
	}
	p1, err := readSecret(fmt.Sprintf("Enter %s: ", what))
	if err != nil {
		return "", err
	}
	p2, err := readSecret(fmt.Sprintf("Confirm %s: ", what))
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", fmt.Errorf("passwords do not match")
	}
	return p1, nil
}

var stdinReader = bufio.NewReader(os.Stdin)

// readLine prompts for one visible line.
func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y/yes is no.
func confirm(prompt string) bool {
	answer, err := readLine(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// saveSettings persists prefs.
func saveSettings(ctx context.Context) error {
	if err := settings.Save(ctx, db, prefs); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		// Try standard time.ParseDuration
		return time.ParseDuration(s)
	}
}

// formatMillis renders a stored millisecond timestamp in local time.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
