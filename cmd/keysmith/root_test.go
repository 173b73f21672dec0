package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forest6511/keysmith/pkg/vault"
)

func TestNotifyLock(t *testing.T) {
	var buf bytes.Buffer
	notify := notifyLock(&buf, 5*time.Minute)

	notify(vault.LockManual)
	notify(vault.LockReplace)
	if buf.Len() != 0 {
		t.Errorf("requested locks should be silent, got %q", buf.String())
	}

	notify(vault.LockIdle)
	if !strings.Contains(buf.String(), "Vault locked after 5m0s of inactivity") {
		t.Errorf("idle lock message = %q", buf.String())
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "24h", want: 24 * time.Hour},
		{input: "30d", want: 30 * 24 * time.Hour},
		{input: "2w", want: 14 * 24 * time.Hour},
		{input: "12m", want: 360 * 24 * time.Hour},
		{input: "1y", want: 365 * 24 * time.Hour},
		{input: "90s", want: 90 * time.Second},
		{input: "d", wantErr: true},
		{input: "xd", wantErr: true},
		{input: "10q", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatMillis(t *testing.T) {
	if got := formatMillis(0); got != "-" {
		t.Errorf("formatMillis(0) = %q, want -", got)
	}
	ms := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local).UnixMilli()
	if got := formatMillis(ms); got != "2024-03-01 12:30" {
		t.Errorf("formatMillis = %q", got)
	}
}

func TestReadInputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	if err := os.WriteFile(path, []byte(`{"id":"x"}`), 0600); err != nil {
		t.Fatal(err)
	}

	data, err := readInputFile(path)
	if err != nil {
		t.Fatalf("readInputFile failed: %v", err)
	}
	if string(data) != `{"id":"x"}` {
		t.Errorf("data = %q", data)
	}

	if _, err := readInputFile(filepath.Join(dir, "missing.json")); err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("missing file: got %v", err)
	}

	link := filepath.Join(dir, "link.json")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := readInputFile(link); err == nil || !strings.Contains(err.Error(), "symlink") {
		t.Errorf("symlink: got %v", err)
	}
}

func TestWriteExportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	if err := writeExportFile(path, []byte("one"), false); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	if err := writeExportFile(path, []byte("two"), false); err == nil {
		t.Error("expected error when the file exists without force")
	}
	if err := writeExportFile(path, []byte("two"), true); err != nil {
		t.Fatalf("forced write failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("content = %q, want two", data)
	}
}

// resetFlags restores every flag in the command tree to its default, since
// cobra keeps parsed values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command in dir and returns its output.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// newCLI prepares an empty data directory and tears the process state
// down after the test.
func newCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("KEYSMITH_LOG_LEVEL", "error")
	dir := t.TempDir()
	t.Cleanup(func() {
		teardown()
		cfg, activityLog, baseDir, vaultRef = nil, nil, "", ""
	})
	return dir
}
