// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forest6511/keysmith/pkg/vault"
)

var (
	// ErrNoMatch is returned when a reference matches no entry.
	ErrNoMatch = errors.New("no matching entry")
	// ErrAmbiguous is returned when a single entry was required but
	// several matched.
	ErrAmbiguous = errors.New("reference matches more than one entry")
)

// Match resolves a reference against entries. A reference is, in order:
// an entry ID, an exact name (case-insensitive), or a glob pattern over
// names (*?[). Matches keep the order of entries.
func Match(ref string, entries []vault.Entry) ([]vault.Entry, error) {
	// Validate pattern syntax
	if _, err := filepath.Match(ref, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", ref, err)
	}

	for _, e := range entries {
		if e.ID == ref {
			return []vault.Entry{e}, nil
		}
	}

	var matches []vault.Entry
	if !strings.ContainsAny(ref, "*?[") {
		for _, e := range entries {
			if strings.EqualFold(e.Name, ref) {
				matches = append(matches, e)
			}
		}
	} else {
		pattern := strings.ToLower(ref)
		for _, e := range entries {
			// Pattern was validated above.
			if ok, _ := filepath.Match(pattern, strings.ToLower(e.Name)); ok {
				matches = append(matches, e)
			}
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrNoMatch, ref)
	}
	return matches, nil
}

// MatchAll resolves several references. Results are unique, in order of
// first match.
func MatchAll(refs []string, entries []vault.Entry) ([]vault.Entry, error) {
	seen := make(map[string]bool)
	var result []vault.Entry

	for _, ref := range refs {
		matches, err := Match(ref, entries)
		if err != nil {
			return nil, err
		}
		for _, e := range matches {
			if !seen[e.ID] {
				seen[e.ID] = true
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// MatchOne resolves ref to exactly one entry.
func MatchOne(ref string, entries []vault.Entry) (vault.Entry, error) {
	matches, err := Match(ref, entries)
	if err != nil {
		return vault.Entry{}, err
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, e := range matches {
			names[i] = fmt.Sprintf("%s (%s)", e.Name, e.ID)
		}
		return vault.Entry{}, fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(names, ", "))
	}
	return matches[0], nil
}
