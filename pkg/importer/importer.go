// Package importer converts exports from other password managers into
// vault entry drafts. Supported formats: 1Password CSV, Bitwarden JSON and
// LastPass CSV.
//
// Parsers never touch a vault; the caller adds the drafts to the open
// vault with vault.Manager.AddEntries.
package importer

import (
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/keysmith/pkg/totp"
	"github.com/forest6511/keysmith/pkg/vault"
)

// Source represents the source password manager format.
type Source string

const (
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// ImportResult contains the results of an import operation.
type ImportResult struct {
	// Entries are drafts ready for vault.Manager.AddEntries. IDs and
	// timestamps are assigned when they are added.
	Entries []vault.Entry

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser is the interface for competitor format parsers.
type Parser interface {
	// Parse parses the input data and returns entry drafts.
	Parse(data []byte, opts ParseOptions) (*ImportResult, error)

	// Source returns the source type for this parser.
	Source() Source
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// Tag is added to every imported entry when set.
	Tag string

	// KeepDuplicateNames disables the " (2)" suffixing of repeated names.
	KeepDuplicateNames bool
}

func newResult() *ImportResult {
	return &ImportResult{
		Entries:  make([]vault.Entry, 0),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}
}

// finish applies options shared by every parser.
func (r *ImportResult) finish(opts ParseOptions) {
	if tag := strings.TrimSpace(opts.Tag); tag != "" {
		for i := range r.Entries {
			r.Entries[i].Tags = append(r.Entries[i].Tags, tag)
		}
	}
	if !opts.KeepDuplicateNames {
		DeduplicateNames(r.Entries)
	}
}

// SanitizeName turns an exported title into an entry name:
// 1. Normalize Unicode (NFC)
// 2. Drop control characters and collapse whitespace runs
// 3. Truncate to vault.MaxNameLength runes
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")

	if utf8.RuneCountInString(name) > vault.MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:vault.MaxNameLength]))
	}
	return name
}

// DeduplicateNames makes names unique by appending " (2)", " (3)", etc.
// Comparison is case-insensitive.
func DeduplicateNames(entries []vault.Entry) {
	seen := make(map[string]int)
	for i := range entries {
		base := entries[i].Name
		count := seen[strings.ToLower(base)]
		if count > 0 {
			entries[i].Name = fmt.Sprintf("%s (%d)", base, count+1)
		}
		seen[strings.ToLower(base)] = count + 1
	}
}

// FallbackName names an item whose title is empty:
// 1. Use the URL hostname
// 2. If no URL, use "Imported item N"
func FallbackName(url string, counter int) string {
	if url != "" {
		if hostname := extractHostname(url); hostname != "" {
			return hostname
		}
	}
	return fmt.Sprintf("Imported item %d", counter)
}

// extractHostname extracts the hostname from a URL.
func extractHostname(urlStr string) string {
	// Remove protocol
	if idx := strings.Index(urlStr, "://"); idx != -1 {
		urlStr = urlStr[idx+3:]
	}

	// Remove path
	if idx := strings.IndexAny(urlStr, "/?#"); idx != -1 {
		urlStr = urlStr[:idx]
	}

	// Remove credentials and port
	if idx := strings.LastIndex(urlStr, "@"); idx != -1 {
		urlStr = urlStr[idx+1:]
	}
	if idx := strings.Index(urlStr, ":"); idx != -1 {
		urlStr = urlStr[:idx]
	}

	return strings.TrimPrefix(urlStr, "www.")
}

// DecodeHTMLEntities decodes HTML entities found in LastPass exports.
func DecodeHTMLEntities(s string) string {
	return html.UnescapeString(s)
}

// NormalizeValue trims whitespace and normalizes Unicode.
func NormalizeValue(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	return s
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// parseTOTP extracts a base32 secret from a bare secret or otpauth URI.
// Unparseable values are kept as a custom field so nothing is lost.
func parseTOTP(raw string, e *vault.Entry) (string, string) {
	if raw == "" {
		return "", ""
	}
	secret, err := totp.ParseSecret(raw)
	if err != nil {
		e.CustomFields = append(e.CustomFields, vault.CustomField{Label: "TOTP", Value: raw})
		return "", "unrecognized TOTP secret kept as custom field"
	}
	return secret, ""
}

// nameFor returns the sanitized title or a fallback, advancing counter
// when the fallback is used.
func nameFor(title, url string, counter *int) string {
	name := SanitizeName(title)
	if name == "" {
		name = SanitizeName(FallbackName(url, *counter))
		*counter++
	}
	return name
}

// splitTags splits a comma-separated tag list, dropping blanks.
func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}
