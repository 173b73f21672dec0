package cli

import (
	"errors"
	"testing"

	"github.com/forest6511/keysmith/pkg/vault"
)

var testEntries = []vault.Entry{
	{ID: "id-aws-prod", Name: "AWS prod"},
	{ID: "id-aws-dev", Name: "AWS dev"},
	{ID: "id-db", Name: "Database"},
	{ID: "id-gh", Name: "GitHub"},
	{ID: "id-gh2", Name: "github"},
}

func ids(entries []vault.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		expected []string
		wantErr  error
	}{
		{name: "by id", ref: "id-db", expected: []string{"id-db"}},
		{name: "exact name any case", ref: "database", expected: []string{"id-db"}},
		{name: "same name twice", ref: "GITHUB", expected: []string{"id-gh", "id-gh2"}},
		{name: "wildcard prefix", ref: "aws*", expected: []string{"id-aws-prod", "id-aws-dev"}},
		{name: "wildcard suffix", ref: "* dev", expected: []string{"id-aws-dev"}},
		{name: "single char", ref: "AWS d?v", expected: []string{"id-aws-dev"}},
		{name: "no match", ref: "Slack", wantErr: ErrNoMatch},
		{name: "no glob match", ref: "x*", wantErr: ErrNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.ref, testEntries)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Match(%q) error = %v, want %v", tt.ref, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Match(%q) error = %v", tt.ref, err)
			}
			if !equal(ids(got), tt.expected) {
				t.Errorf("Match(%q) = %v, want %v", tt.ref, ids(got), tt.expected)
			}
		})
	}
}

func TestMatchInvalidPattern(t *testing.T) {
	if _, err := Match("[", testEntries); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestMatchAll(t *testing.T) {
	got, err := MatchAll([]string{"AWS prod", "aws*", "id-db"}, testEntries)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id-aws-prod", "id-aws-dev", "id-db"}
	if !equal(ids(got), want) {
		t.Errorf("MatchAll() = %v, want %v", ids(got), want)
	}

	if _, err := MatchAll([]string{"aws*", "missing"}, testEntries); !errors.Is(err, ErrNoMatch) {
		t.Errorf("MatchAll() error = %v, want ErrNoMatch", err)
	}
}

func TestMatchOne(t *testing.T) {
	e, err := MatchOne("id-gh2", testEntries)
	if err != nil || e.Name != "github" {
		t.Errorf("MatchOne(id) = %+v, %v", e, err)
	}
	if _, err := MatchOne("github", testEntries); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("MatchOne(github) error = %v, want ErrAmbiguous", err)
	}
}
