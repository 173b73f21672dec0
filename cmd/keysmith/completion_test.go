package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompletionScripts(t *testing.T) {
	dir := filepath.Join(newCLI(t), "never-created")

	for _, shell := range completionShells() {
		t.Run(shell, func(t *testing.T) {
			out := mustRun(t, dir, "completion", shell)
			if !strings.Contains(out, "keysmith") {
				t.Errorf("%s script does not mention keysmith:\n%.200s", shell, out)
			}
		})
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("completion should not create the data directory")
	}

	if _, err := runCLI(t, dir, "completion", "tcsh"); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestFilterPrefix(t *testing.T) {
	got := filterPrefix([]string{"GitHub", "gitlab", "Bank"}, "Git")
	if len(got) != 2 || got[0] != "GitHub" || got[1] != "gitlab" {
		t.Errorf("filterPrefix() = %v", got)
	}
	if got := filterPrefix([]string{"Bank"}, "x"); len(got) != 0 {
		t.Errorf("filterPrefix() = %v, want none", got)
	}
}

func TestFirstArgOnly(t *testing.T) {
	fn := firstArgOnly(fixedCompletion([]string{"alpha", "beta"}))

	got, _ := fn(&cobra.Command{}, nil, "a")
	if len(got) != 1 || got[0] != "alpha" {
		t.Errorf("first arg = %v, want [alpha]", got)
	}
	got, directive := fn(&cobra.Command{}, []string{"alpha"}, "")
	if len(got) != 0 || directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("second arg = %v (%v), want none", got, directive)
	}
}
