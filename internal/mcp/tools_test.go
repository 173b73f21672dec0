package mcp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/forest6511/keysmith/internal/cli"
	"github.com/forest6511/keysmith/pkg/generator"
	"github.com/forest6511/keysmith/pkg/security"
	"github.com/forest6511/keysmith/pkg/vault"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{"empty value", "", ""},
		// Length 1-4: all asterisks
		{"1 character", "a", "*"},
		{"4 characters", "abcd", "****"},
		// Length 5-8: show last 2
		{"5 characters", "abcde", "***de"},
		{"8 characters", "abcdefgh", "******gh"},
		// Length 9+: show last 4
		{"9 characters", "abcdefghi", "*****fghi"},
		{"long value", "sk-proj-1234567890abcdef", "********************cdef"},
		{"counts runes", "pässwörter", "******rter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskValue(tt.value)
			if result != tt.expected {
				t.Errorf("maskValue(%q) = %q, want %q", tt.value, result, tt.expected)
			}
		})
	}
}

func TestHandleEntryList(t *testing.T) {
	s := testServer(t, "")
	addTestEntry(t, s, vault.Entry{
		Name:     "GitHub",
		Tags:     []string{"work"},
		Favorite: true,
		Fields: vault.LoginFields{
			Username: "octo",
			Password: "hunter2hunter2",
			URL:      "https://github.com",
			TOTP:     "JBSWY3DPEHPK3PXP",
		},
	})
	addTestEntry(t, s, vault.Entry{Name: "Groceries", Fields: vault.NoteFields{Content: "milk"}})

	_, out, err := s.handleEntryList(context.Background(), nil, EntryListInput{})
	if err != nil {
		t.Fatalf("handleEntryList: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out.Entries))
	}

	_, out, err = s.handleEntryList(context.Background(), nil, EntryListInput{Tag: "work"})
	if err != nil {
		t.Fatalf("handleEntryList: %v", err)
	}
	if len(out.Entries) != 1 {
		t.Fatalf("expected 1 entry for tag, got %d", len(out.Entries))
	}
	info := out.Entries[0]
	if info.Name != "GitHub" || info.Type != "login" || !info.Favorite {
		t.Errorf("unexpected info: %+v", info)
	}
	if !info.HasPassword || !info.HasTOTP || !info.HasURL {
		t.Errorf("flags not set: %+v", info)
	}
	if _, err := time.Parse(time.RFC3339, info.CreatedAt); err != nil {
		t.Errorf("CreatedAt %q is not RFC3339: %v", info.CreatedAt, err)
	}

	_, out, _ = s.handleEntryList(context.Background(), nil, EntryListInput{Type: "note"})
	if len(out.Entries) != 1 || out.Entries[0].Name != "Groceries" {
		t.Errorf("type filter: %+v", out.Entries)
	}
}

func TestHandleEntryList_Locked(t *testing.T) {
	s := testServer(t, "")
	s.manager.Lock()

	if _, _, err := s.handleEntryList(context.Background(), nil, EntryListInput{}); !errors.Is(err, vault.ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestHandleEntryExists(t *testing.T) {
	s := testServer(t, "")
	e := addTestEntry(t, s, vault.Entry{Name: "Mail", Fields: vault.LoginFields{Password: "x"}})

	_, out, err := s.handleEntryExists(context.Background(), nil, EntryRefInput{Ref: "mail"})
	if err != nil {
		t.Fatalf("handleEntryExists: %v", err)
	}
	if !out.Exists || out.Entry == nil || out.Entry.ID != e.ID {
		t.Errorf("unexpected output: %+v", out)
	}

	_, out, err = s.handleEntryExists(context.Background(), nil, EntryRefInput{Ref: "nope"})
	if err != nil {
		t.Fatalf("handleEntryExists: %v", err)
	}
	if out.Exists || out.Entry != nil {
		t.Errorf("expected not found, got %+v", out)
	}

	if _, _, err := s.handleEntryExists(context.Background(), nil, EntryRefInput{}); err == nil {
		t.Error("expected error for empty ref")
	}
}

func TestHandleEntryGetMasked(t *testing.T) {
	s := testServer(t, "")
	addTestEntry(t, s, vault.Entry{Name: "Bank", Fields: vault.LoginFields{Username: "me", Password: "correcthorse"}})
	addTestEntry(t, s, vault.Entry{Name: "Visa", Fields: vault.CardFields{CardNumber: "4111111111111111"}})

	_, out, err := s.handleEntryGetMasked(context.Background(), nil, EntryGetMaskedInput{Ref: "Bank"})
	if err != nil {
		t.Fatalf("handleEntryGetMasked: %v", err)
	}
	if out.MaskedValue != "********orse" || out.ValueLength != 12 || out.Field != "password" {
		t.Errorf("unexpected output: %+v", out)
	}

	_, out, err = s.handleEntryGetMasked(context.Background(), nil, EntryGetMaskedInput{Ref: "Visa", Field: "cardNumber"})
	if err != nil {
		t.Fatalf("handleEntryGetMasked: %v", err)
	}
	if out.MaskedValue != "************1111" {
		t.Errorf("MaskedValue = %q", out.MaskedValue)
	}

	if _, _, err := s.handleEntryGetMasked(context.Background(), nil, EntryGetMaskedInput{Ref: "Visa"}); err == nil {
		t.Error("expected error for a card without a password")
	}
	if _, _, err := s.handleEntryGetMasked(context.Background(), nil, EntryGetMaskedInput{Ref: "missing"}); !errors.Is(err, cli.ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestHandleEntryGetMasked_Ambiguous(t *testing.T) {
	s := testServer(t, "")
	addTestEntry(t, s, vault.Entry{Name: "AWS prod", Fields: vault.LoginFields{Password: "a"}})
	addTestEntry(t, s, vault.Entry{Name: "AWS dev", Fields: vault.LoginFields{Password: "b"}})

	if _, _, err := s.handleEntryGetMasked(context.Background(), nil, EntryGetMaskedInput{Ref: "aws*"}); !errors.Is(err, cli.ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
}

func TestHandleTOTPCode(t *testing.T) {
	s := testServer(t, "")
	// RFC 6238 test key "12345678901234567890"
	addTestEntry(t, s, vault.Entry{Name: "2FA", Fields: vault.LoginFields{TOTP: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"}})
	addTestEntry(t, s, vault.Entry{Name: "Plain", Fields: vault.LoginFields{Password: "p"}})
	s.now = func() time.Time { return time.Unix(59, 0) }

	_, out, err := s.handleTOTPCode(context.Background(), nil, EntryRefInput{Ref: "2FA"})
	if err != nil {
		t.Fatalf("handleTOTPCode: %v", err)
	}
	if out.Code != "287082" || out.SecondsRemaining != 1 {
		t.Errorf("unexpected output: %+v", out)
	}

	if _, _, err := s.handleTOTPCode(context.Background(), nil, EntryRefInput{Ref: "Plain"}); !errors.Is(err, vault.ErrNoTOTP) {
		t.Errorf("expected ErrNoTOTP, got %v", err)
	}
}

func TestHandleSecurityAudit(t *testing.T) {
	s := testServer(t, "")
	addTestEntry(t, s, vault.Entry{Name: "A", Fields: vault.LoginFields{Password: "password"}})
	addTestEntry(t, s, vault.Entry{Name: "B", Fields: vault.LoginFields{Password: "password"}})
	addTestEntry(t, s, vault.Entry{Name: "C", Fields: vault.LoginFields{Password: "kT9#vR2!mQ7$wX4&zL8^"}})

	_, out, err := s.handleSecurityAudit(context.Background(), nil, SecurityAuditInput{})
	if err != nil {
		t.Fatalf("handleSecurityAudit: %v", err)
	}
	if out.Checked != 3 {
		t.Errorf("Checked = %d, want 3", out.Checked)
	}
	if len(out.Weak) != 2 || len(out.Reused) != 2 || len(out.Denylisted) != 2 {
		t.Errorf("unexpected findings: %+v", out)
	}
	for _, f := range out.Reused {
		if f.Name != "" {
			t.Errorf("names should be omitted: %+v", f)
		}
	}
	if len(out.Duplicates) != 1 || out.Duplicates[0].Count != 2 || out.Duplicates[0].Names != nil {
		t.Errorf("Duplicates = %+v", out.Duplicates)
	}

	_, out, err = s.handleSecurityAudit(context.Background(), nil, SecurityAuditInput{IncludeNames: true})
	if err != nil {
		t.Fatalf("handleSecurityAudit: %v", err)
	}
	if out.Reused[0].Name == "" {
		t.Error("names should be included")
	}
}

func TestHandleSecurityScore(t *testing.T) {
	s := testServer(t, "")

	_, score, err := s.handleSecurityScore(context.Background(), nil, SecurityScoreInput{})
	if err != nil {
		t.Fatalf("handleSecurityScore: %v", err)
	}
	if score.Overall != 100 {
		t.Errorf("empty vault score = %d, want 100", score.Overall)
	}

	addTestEntry(t, s, vault.Entry{Name: "A", Fields: vault.LoginFields{Password: "123456"}})
	_, score, err = s.handleSecurityScore(context.Background(), nil, SecurityScoreInput{})
	if err != nil {
		t.Fatalf("handleSecurityScore: %v", err)
	}
	if score.Overall >= 100 || len(score.Issues) == 0 {
		t.Errorf("weak vault scored %+v", score)
	}
}

func TestHandlePasswordGenerate(t *testing.T) {
	s := testServer(t, "")
	no := false

	_, out, err := s.handlePasswordGenerate(context.Background(), nil, PasswordGenerateInput{Length: 32, Symbols: &no})
	if err != nil {
		t.Fatalf("handlePasswordGenerate: %v", err)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9]{32}$`).MatchString(out.Value) {
		t.Errorf("Value = %q", out.Value)
	}
	if out.Mode != "password" || out.Strength != security.StrengthForBits(out.Bits).String() {
		t.Errorf("unexpected output: %+v", out)
	}

	_, out, err = s.handlePasswordGenerate(context.Background(), nil, PasswordGenerateInput{Mode: "passphrase", WordCount: 5, Separator: "."})
	if err != nil {
		t.Fatalf("handlePasswordGenerate: %v", err)
	}
	if !regexp.MustCompile(`^([A-Z][a-z]+\.){5}[0-9]{2,3}$`).MatchString(out.Value) {
		t.Errorf("passphrase = %q", out.Value)
	}

	if _, _, err := s.handlePasswordGenerate(context.Background(), nil, PasswordGenerateInput{Mode: "pin"}); !errors.Is(err, generator.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestHandlePasswordStrength(t *testing.T) {
	s := testServer(t, "")

	_, out, err := s.handlePasswordStrength(context.Background(), nil, PasswordStrengthInput{Password: "password"})
	if err != nil {
		t.Fatalf("handlePasswordStrength: %v", err)
	}
	if out.Length != 8 || out.Pool != 26 || !out.Denylisted || out.Strength != security.PasswordWeak.String() {
		t.Errorf("unexpected output: %+v", out)
	}

	if _, _, err := s.handlePasswordStrength(context.Background(), nil, PasswordStrengthInput{}); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestGeneratorConfig(t *testing.T) {
	yes := true
	c := generatorConfig(PasswordGenerateInput{Mode: "passphrase", AppendNumber: new(bool), AppendSymbol: yes, Case: "lower"})
	if c.Mode != generator.ModePassphrase || c.AppendNumber || !c.AppendSymbol || c.Case != generator.CaseLower {
		t.Errorf("unexpected config: %+v", c)
	}
	if c.WordCount != generator.DefaultPassphraseConfig().WordCount {
		t.Errorf("WordCount = %d, want default", c.WordCount)
	}

	c = generatorConfig(PasswordGenerateInput{Upper: &yes})
	if c != generator.DefaultConfig() {
		t.Errorf("setting a default value changed the config: %+v", c)
	}
}
