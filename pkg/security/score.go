package security

import (
	"strconv"
	"time"

	"github.com/forest6511/keysmith/pkg/vault"
)

// SecurityScore represents the overall security assessment of a vault.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []SecurityIssue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
}

// ScoreComponents breaks down the security score into categories.
// Each component contributes up to 25 points (total: 100).
type ScoreComponents struct {
	// StrengthScore is based on average password strength (0-25).
	StrengthScore int `json:"strength"`
	// UniquenessScore is based on percentage of unique passwords (0-25).
	UniquenessScore int `json:"uniqueness"`
	// FreshnessScore is based on percentage of recently changed passwords (0-25).
	FreshnessScore int `json:"freshness"`
	// DenylistScore is based on percentage of uncommon passwords (0-25).
	DenylistScore int `json:"denylist"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueWeakPassword indicates a password with insufficient entropy.
	IssueWeakPassword IssueType = "weak"
	// IssueDuplicatePassword indicates passwords reused across entries.
	IssueDuplicatePassword IssueType = "duplicate"
	// IssueOldPassword indicates a password not changed within the age limit.
	IssueOldPassword IssueType = "old"
	// IssueDenylisted indicates a well-known common password.
	IssueDenylisted IssueType = "denylisted"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// EntryName is the affected entry (empty unless names were requested).
	EntryName string `json:"entry_name,omitempty"`
	// EntryNames is used for duplicate issues (multiple entries).
	EntryNames  []string `json:"entry_names,omitempty"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// CalculateScore audits entries and turns the report into a 0-100 score.
// With includeNames false, issues carry no entry names.
func (c *Calculator) CalculateScore(entries []vault.Entry, now time.Time, includeNames bool) (*SecurityScore, error) {
	report, err := c.Audit(entries, now)
	if err != nil {
		return nil, err
	}

	// No passwords: perfect score
	if report.Checked == 0 {
		return &SecurityScore{
			Overall: 100,
			Components: ScoreComponents{
				StrengthScore:   25,
				UniquenessScore: 25,
				FreshnessScore:  25,
				DenylistScore:   25,
			},
			Issues:      []SecurityIssue{},
			Suggestions: []string{},
		}, nil
	}

	duplicates, err := c.FindDuplicates(entries, includeNames, 0)
	if err != nil {
		return nil, err
	}

	components := ScoreComponents{
		StrengthScore:   c.strengthScore(entries),
		UniquenessScore: ratioScore(report.Checked-len(report.Reused)+len(duplicates), report.Checked),
		FreshnessScore:  ratioScore(report.Checked-len(report.Old), report.Checked),
		DenylistScore:   ratioScore(report.Checked-len(report.Denylisted), report.Checked),
	}

	issues := make([]SecurityIssue, 0, report.Total())
	for _, f := range report.Weak {
		issues = append(issues, newIssue(IssueWeakPassword, SeverityWarning, f, includeNames,
			"Password entropy is low: "+f.Reason,
			"Use a generated password of 20+ characters"))
	}
	for _, dup := range duplicates {
		issues = append(issues, SecurityIssue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			EntryNames:  dup.Names,
			Description: strconv.Itoa(dup.Count) + " entries share the same password",
			Suggestion:  "Use unique passwords for each entry",
		})
	}
	for _, f := range report.Old {
		issues = append(issues, newIssue(IssueOldPassword, SeverityInfo, f, includeNames,
			"Password not changed in "+f.Reason,
			"Rotate passwords older than "+formatDays(c.thresholds.MaxAgeDays)))
	}
	for _, f := range report.Denylisted {
		issues = append(issues, newIssue(IssueDenylisted, SeverityCritical, f, includeNames,
			"Password is on the common password list",
			"Replace it immediately"))
	}

	return &SecurityScore{
		Overall:     components.StrengthScore + components.UniquenessScore + components.FreshnessScore + components.DenylistScore,
		Components:  components,
		Issues:      issues,
		Suggestions: generateSuggestions(issues),
	}, nil
}

// strengthScore averages strength points over entries with a password.
func (c *Calculator) strengthScore(entries []vault.Entry) int {
	total, n := 0, 0
	for i := range entries {
		pw := entries[i].Password()
		if pw == "" {
			continue
		}
		n++
		total += Strength(pw).Points()
	}
	if n == 0 {
		return 25
	}
	score := total / n
	if score > 25 {
		score = 25
	}
	return score
}

// ratioScore scales good/total to 0-25.
func ratioScore(good, total int) int {
	if total == 0 {
		return 25
	}
	if good < 0 {
		good = 0
	}
	return int(float64(good) / float64(total) * 25)
}

func newIssue(t IssueType, sev Severity, f Finding, includeNames bool, desc, suggestion string) SecurityIssue {
	issue := SecurityIssue{Type: t, Severity: sev, Description: desc, Suggestion: suggestion}
	if includeNames {
		issue.EntryName = f.Name
	}
	return issue
}

// generateSuggestions creates actionable recommendations based on issues.
func generateSuggestions(issues []SecurityIssue) []string {
	suggestions := []string{}
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}

	if seen[IssueDenylisted] {
		suggestions = append(suggestions, "Replace common passwords immediately; they are tried first by attackers")
	}
	if seen[IssueWeakPassword] {
		suggestions = append(suggestions, "Update weak passwords with generated ones (keysmith generate)")
	}
	if seen[IssueDuplicatePassword] {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if seen[IssueOldPassword] {
		suggestions = append(suggestions, "Rotate passwords that have not changed in a long time")
	}
	return suggestions
}

// formatDays returns a human-readable day count.
func formatDays(days int) string {
	if days == 0 {
		return "today"
	}
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}
