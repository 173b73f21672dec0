package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/forest6511/keysmith/pkg/vault"
)

func TestValidateImportFlags(t *testing.T) {
	t.Cleanup(func() { importFrom, importConflict = "", conflictKeep })

	tests := []struct {
		from     string
		conflict string
		wantErr  string
	}{
		{from: "bitwarden", conflict: conflictKeep},
		{from: "LastPass", conflict: conflictSkip},
		{from: "1password", conflict: conflictKeep},
		{from: "keepass", conflict: conflictKeep, wantErr: "invalid --from value"},
		{from: "bitwarden", conflict: "merge", wantErr: "invalid --on-conflict value"},
	}

	for _, tt := range tests {
		t.Run(tt.from+"/"+tt.conflict, func(t *testing.T) {
			importFrom, importConflict = tt.from, tt.conflict
			parser, err := validateImportFlags()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parser == nil {
				t.Error("expected a parser")
			}
		})
	}
}

func TestResolveConflicts(t *testing.T) {
	existing := []vault.Entry{{Name: "GitHub"}, {Name: "Bank"}}
	drafts := []vault.Entry{{Name: "github"}, {Name: "Mail"}, {Name: "Bank"}}

	keep, conflicts := resolveConflicts(drafts, existing, conflictKeep)
	if len(keep) != 3 {
		t.Errorf("keep mode kept %d drafts, want 3", len(keep))
	}
	if len(conflicts) != 2 || conflicts[0] != "github" || conflicts[1] != "Bank" {
		t.Errorf("conflicts = %v", conflicts)
	}

	keep, conflicts = resolveConflicts(drafts, existing, conflictSkip)
	if len(keep) != 1 || keep[0].Name != "Mail" {
		t.Errorf("skip mode kept %+v, want only Mail", keep)
	}
	if len(conflicts) != 2 {
		t.Errorf("conflicts = %v", conflicts)
	}

	keep, conflicts = resolveConflicts(drafts, nil, conflictSkip)
	if len(keep) != 3 || len(conflicts) != 0 {
		t.Errorf("empty vault: keep=%d conflicts=%v", len(keep), conflicts)
	}
}

func TestPrintCompetitorImportSummary(t *testing.T) {
	var buf bytes.Buffer
	printCompetitorImportSummary(&buf, 5, 0, 0)
	if !strings.Contains(buf.String(), "Imported:  5") || strings.Contains(buf.String(), "Skipped") {
		t.Errorf("summary = %q", buf.String())
	}

	buf.Reset()
	printCompetitorImportSummary(&buf, 3, 2, 1)
	for _, want := range []string{"Imported:  3", "Skipped:   2", "Unusable:  1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary missing %q: %q", want, buf.String())
		}
	}
}
