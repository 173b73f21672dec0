package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/keysmith/internal/cli"
	"github.com/forest6511/keysmith/pkg/generator"
	"github.com/forest6511/keysmith/pkg/security"
	"github.com/forest6511/keysmith/pkg/totp"
	"github.com/forest6511/keysmith/pkg/vault"
)

// EntryListInput represents input for entry_list tool.
type EntryListInput struct {
	Tag           string `json:"tag,omitempty"`
	Query         string `json:"query,omitempty"`
	FavoritesOnly bool   `json:"favorites_only,omitempty"`
	Type          string `json:"type,omitempty"`
}

// EntryListOutput represents output for entry_list tool.
type EntryListOutput struct {
	Entries []EntryInfo `json:"entries"`
}

// EntryInfo represents metadata for an entry (no values).
type EntryInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags,omitempty"`
	Favorite    bool     `json:"favorite"`
	Pinned      bool     `json:"pinned"`
	HasPassword bool     `json:"has_password"`
	HasTOTP     bool     `json:"has_totp"`
	HasURL      bool     `json:"has_url"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// EntryRefInput names one entry by ID, name or glob.
type EntryRefInput struct {
	Ref string `json:"ref"`
}

// EntryExistsOutput represents output for entry_exists tool.
type EntryExistsOutput struct {
	Exists bool       `json:"exists"`
	Ref    string     `json:"ref"`
	Entry  *EntryInfo `json:"entry,omitempty"`
}

// EntryGetMaskedInput represents input for entry_get_masked tool.
type EntryGetMaskedInput struct {
	Ref string `json:"ref"`
	// Field is a template field name such as "password" or "cardNumber".
	// Empty selects the password.
	Field string `json:"field,omitempty"`
}

// EntryGetMaskedOutput represents output for entry_get_masked tool.
type EntryGetMaskedOutput struct {
	ID          string `json:"id"`
	Field       string `json:"field"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

// TOTPCodeOutput represents output for totp_code tool.
type TOTPCodeOutput struct {
	ID               string `json:"id"`
	Code             string `json:"code"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// SecurityAuditInput represents input for security_audit tool.
type SecurityAuditInput struct {
	IncludeNames bool `json:"include_names,omitempty"`
}

// SecurityAuditOutput represents output for security_audit tool.
type SecurityAuditOutput struct {
	Checked    int             `json:"checked"`
	Total      int             `json:"total"`
	Weak       []AuditFinding  `json:"weak"`
	Reused     []AuditFinding  `json:"reused"`
	Old        []AuditFinding  `json:"old"`
	Denylisted []AuditFinding  `json:"denylisted"`
	Duplicates []DuplicateInfo `json:"duplicates,omitempty"`
}

// AuditFinding is one flagged entry.
type AuditFinding struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// DuplicateInfo is a group of entries sharing one password.
type DuplicateInfo struct {
	EntryIDs []string `json:"entry_ids"`
	Names    []string `json:"names,omitempty"`
	Count    int      `json:"count"`
}

// SecurityScoreInput represents input for security_score tool.
type SecurityScoreInput struct {
	IncludeNames bool `json:"include_names,omitempty"`
}

// PasswordGenerateInput represents input for password_generate tool.
// Unset fields keep the defaults of the chosen mode.
type PasswordGenerateInput struct {
	Mode           string `json:"mode,omitempty"`
	Length         int    `json:"length,omitempty"`
	Upper          *bool  `json:"upper,omitempty"`
	Lower          *bool  `json:"lower,omitempty"`
	Digits         *bool  `json:"digits,omitempty"`
	Symbols        *bool  `json:"symbols,omitempty"`
	AvoidAmbiguous bool   `json:"avoid_ambiguous,omitempty"`
	WordCount      int    `json:"word_count,omitempty"`
	Separator      string `json:"separator,omitempty"`
	Case           string `json:"case,omitempty"`
	AppendNumber   *bool  `json:"append_number,omitempty"`
	AppendSymbol   bool   `json:"append_symbol,omitempty"`
}

// PasswordGenerateOutput represents output for password_generate tool.
type PasswordGenerateOutput struct {
	Value    string  `json:"value"`
	Mode     string  `json:"mode"`
	Bits     float64 `json:"bits"`
	Strength string  `json:"strength"`
}

// PasswordStrengthInput represents input for password_strength tool.
type PasswordStrengthInput struct {
	Password string `json:"password"`
}

// PasswordStrengthOutput represents output for password_strength tool.
type PasswordStrengthOutput struct {
	Length     int     `json:"length"`
	Pool       int     `json:"pool"`
	Bits       float64 `json:"bits"`
	Strength   string  `json:"strength"`
	Denylisted bool    `json:"denylisted"`
}

// handleEntryList handles the entry_list tool call.
func (s *Server) handleEntryList(_ context.Context, _ *mcp.CallToolRequest, input EntryListInput) (*mcp.CallToolResult, EntryListOutput, error) {
	f := vault.Filter{
		Query:         input.Query,
		FavoritesOnly: input.FavoritesOnly,
		Type:          vault.EntryType(input.Type),
	}
	if input.Tag != "" {
		f.Tags = []string{input.Tag}
	}
	entries, err := s.manager.List(f)
	if err != nil {
		return nil, EntryListOutput{}, fmt.Errorf("failed to list entries: %w", err)
	}

	// Convert to output format (no values!)
	output := EntryListOutput{Entries: make([]EntryInfo, 0, len(entries))}
	for i := range entries {
		output.Entries = append(output.Entries, entryInfo(&entries[i]))
	}
	return nil, output, nil
}

// handleEntryExists handles the entry_exists tool call.
func (s *Server) handleEntryExists(_ context.Context, _ *mcp.CallToolRequest, input EntryRefInput) (*mcp.CallToolResult, EntryExistsOutput, error) {
	e, err := s.resolve(input.Ref)
	if errors.Is(err, cli.ErrNoMatch) {
		return nil, EntryExistsOutput{Exists: false, Ref: input.Ref}, nil
	}
	if err != nil {
		return nil, EntryExistsOutput{}, err
	}
	info := entryInfo(&e)
	return nil, EntryExistsOutput{Exists: true, Ref: input.Ref, Entry: &info}, nil
}

// handleEntryGetMasked handles the entry_get_masked tool call.
func (s *Server) handleEntryGetMasked(_ context.Context, _ *mcp.CallToolRequest, input EntryGetMaskedInput) (*mcp.CallToolResult, EntryGetMaskedOutput, error) {
	e, err := s.resolve(input.Ref)
	if err != nil {
		return nil, EntryGetMaskedOutput{}, err
	}

	field := input.Field
	if field == "" {
		field = "password"
	}
	value, ok := e.Fields.Values()[field]
	if !ok {
		return nil, EntryGetMaskedOutput{}, fmt.Errorf("entry '%s' has no %s", e.Name, field)
	}

	return nil, EntryGetMaskedOutput{
		ID:          e.ID,
		Field:       field,
		MaskedValue: maskValue(value),
		ValueLength: utf8.RuneCountInString(value),
	}, nil
}

// handleTOTPCode handles the totp_code tool call.
func (s *Server) handleTOTPCode(_ context.Context, _ *mcp.CallToolRequest, input EntryRefInput) (*mcp.CallToolResult, TOTPCodeOutput, error) {
	e, err := s.resolve(input.Ref)
	if err != nil {
		return nil, TOTPCodeOutput{}, err
	}
	secret := e.TOTPSecret()
	if secret == "" {
		return nil, TOTPCodeOutput{}, vault.ErrNoTOTP
	}
	now := s.now().Unix()
	code, ok := totp.Generate(secret, now)
	if !ok {
		return nil, TOTPCodeOutput{}, fmt.Errorf("entry '%s' has a malformed TOTP secret", e.Name)
	}
	return nil, TOTPCodeOutput{ID: e.ID, Code: code, SecondsRemaining: totp.SecondsRemaining(now)}, nil
}

// handleSecurityAudit handles the security_audit tool call.
func (s *Server) handleSecurityAudit(_ context.Context, _ *mcp.CallToolRequest, input SecurityAuditInput) (*mcp.CallToolResult, SecurityAuditOutput, error) {
	entries, err := s.manager.Entries()
	if err != nil {
		return nil, SecurityAuditOutput{}, err
	}
	report, err := s.calc.Audit(entries, s.now())
	if err != nil {
		return nil, SecurityAuditOutput{}, fmt.Errorf("failed to audit vault: %w", err)
	}
	groups, err := s.calc.FindDuplicates(entries, input.IncludeNames, 0)
	if err != nil {
		return nil, SecurityAuditOutput{}, fmt.Errorf("failed to audit vault: %w", err)
	}

	output := SecurityAuditOutput{
		Checked:    report.Checked,
		Total:      report.Total(),
		Weak:       auditFindings(report.Weak, input.IncludeNames),
		Reused:     auditFindings(report.Reused, input.IncludeNames),
		Old:        auditFindings(report.Old, input.IncludeNames),
		Denylisted: auditFindings(report.Denylisted, input.IncludeNames),
	}
	for _, g := range groups {
		output.Duplicates = append(output.Duplicates, DuplicateInfo{EntryIDs: g.EntryIDs, Names: g.Names, Count: g.Count})
	}
	return nil, output, nil
}

// handleSecurityScore handles the security_score tool call.
func (s *Server) handleSecurityScore(_ context.Context, _ *mcp.CallToolRequest, input SecurityScoreInput) (*mcp.CallToolResult, security.SecurityScore, error) {
	entries, err := s.manager.Entries()
	if err != nil {
		return nil, security.SecurityScore{}, err
	}
	score, err := s.calc.CalculateScore(entries, s.now(), input.IncludeNames)
	if err != nil {
		return nil, security.SecurityScore{}, fmt.Errorf("failed to score vault: %w", err)
	}
	return nil, *score, nil
}

// handlePasswordGenerate handles the password_generate tool call.
func (s *Server) handlePasswordGenerate(_ context.Context, _ *mcp.CallToolRequest, input PasswordGenerateInput) (*mcp.CallToolResult, PasswordGenerateOutput, error) {
	c := generatorConfig(input)
	res, err := generator.Generate(c)
	if err != nil {
		return nil, PasswordGenerateOutput{}, err
	}
	return nil, PasswordGenerateOutput{
		Value:    res.Value,
		Mode:     string(res.Mode),
		Bits:     res.Bits,
		Strength: res.Strength.String(),
	}, nil
}

// handlePasswordStrength handles the password_strength tool call.
func (s *Server) handlePasswordStrength(_ context.Context, _ *mcp.CallToolRequest, input PasswordStrengthInput) (*mcp.CallToolResult, PasswordStrengthOutput, error) {
	if input.Password == "" {
		return nil, PasswordStrengthOutput{}, errors.New("password is required")
	}
	in := security.Inspect(input.Password)
	return nil, PasswordStrengthOutput{
		Length:     in.Length,
		Pool:       in.Pool,
		Bits:       in.Bits,
		Strength:   in.Strength.String(),
		Denylisted: security.IsDenylisted(input.Password),
	}, nil
}

// resolve finds exactly one entry for ref.
func (s *Server) resolve(ref string) (vault.Entry, error) {
	if strings.TrimSpace(ref) == "" {
		return vault.Entry{}, errors.New("ref is required")
	}
	entries, err := s.manager.Entries()
	if err != nil {
		return vault.Entry{}, err
	}
	return cli.MatchOne(ref, entries)
}

func entryInfo(e *vault.Entry) EntryInfo {
	return EntryInfo{
		ID:          e.ID,
		Name:        e.Name,
		Type:        string(e.Type()),
		Tags:        e.Tags,
		Favorite:    e.Favorite,
		Pinned:      e.Pinned,
		HasPassword: e.Password() != "",
		HasTOTP:     e.TOTPSecret() != "",
		HasURL:      e.URL() != "",
		CreatedAt:   time.UnixMilli(e.Created).UTC().Format(time.RFC3339),
		UpdatedAt:   time.UnixMilli(e.Modified).UTC().Format(time.RFC3339),
	}
}

func auditFindings(fs []security.Finding, includeNames bool) []AuditFinding {
	out := make([]AuditFinding, 0, len(fs))
	for _, f := range fs {
		af := AuditFinding{ID: f.ID, Reason: f.Reason}
		if includeNames {
			af.Name = f.Name
		}
		out = append(out, af)
	}
	return out
}

func generatorConfig(in PasswordGenerateInput) generator.Config {
	c := generator.DefaultConfig()
	if generator.Mode(in.Mode) == generator.ModePassphrase {
		c = generator.DefaultPassphraseConfig()
	} else if in.Mode != "" {
		// Let Validate reject it.
		c.Mode = generator.Mode(in.Mode)
	}
	if in.Length != 0 {
		c.Length = in.Length
	}
	setBool(&c.Upper, in.Upper)
	setBool(&c.Lower, in.Lower)
	setBool(&c.Digits, in.Digits)
	setBool(&c.Symbols, in.Symbols)
	setBool(&c.AppendNumber, in.AppendNumber)
	c.AvoidAmbiguous = in.AvoidAmbiguous
	c.AppendSymbol = in.AppendSymbol
	if in.WordCount != 0 {
		c.WordCount = in.WordCount
	}
	if in.Separator != "" {
		c.Separator = in.Separator
	}
	if in.Case != "" {
		c.Case = generator.Case(in.Case)
	}
	return c
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// maskValue masks a value, counting runes:
// | Length  | Format          | Example   |
// |---------|-----------------|-----------|
// | 1-4     | All *           | ****      |
// | 5-8     | Show last 2     | ******XY  |
// | 9+      | Show last 4     | ****WXYZ  |
func maskValue(value string) string {
	r := []rune(value)
	length := len(r)
	if length == 0 {
		return ""
	}

	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(r[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(r[length-4:])
	}
}
