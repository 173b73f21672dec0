package security

import (
	"testing"

	"github.com/forest6511/keysmith/pkg/vault"
)

func TestCalculateScore_Empty(t *testing.T) {
	c := NewCalculator(DefaultThresholds())
	score, err := c.CalculateScore(nil, auditNow, true)
	if err != nil {
		t.Fatal(err)
	}
	if score.Overall != 100 {
		t.Errorf("Overall = %d, want 100", score.Overall)
	}
	if len(score.Issues) != 0 || len(score.Suggestions) != 0 {
		t.Errorf("expected no issues, got %+v", score)
	}
}

func TestCalculateScore_AllGood(t *testing.T) {
	entries := []vault.Entry{
		login("a", "K8#pq!Lz02@xMv7$Rw1^", daysAgo(1)),
		login("b", "Zq9!wE3$rT6^yU1&iO4*", daysAgo(1)),
	}
	score, err := NewCalculator(DefaultThresholds()).CalculateScore(entries, auditNow, true)
	if err != nil {
		t.Fatal(err)
	}
	if score.Overall != 100 {
		t.Errorf("Overall = %d, want 100 (components %+v)", score.Overall, score.Components)
	}
}

func TestCalculateScore_Components(t *testing.T) {
	entries := []vault.Entry{
		login("a", "password", daysAgo(500)),
		login("b", "password", daysAgo(1)),
		login("c", "K8#pq!Lz02@xMv7$Rw1^", daysAgo(1)),
		login("d", "Zq9!wE3$rT6^yU1&iO4*", daysAgo(1)),
		{ID: "n", Name: "note", Fields: vault.NoteFields{Content: "x"}},
	}
	score, err := NewCalculator(DefaultThresholds()).CalculateScore(entries, auditNow, false)
	if err != nil {
		t.Fatal(err)
	}

	want := ScoreComponents{
		StrengthScore:   12, // (0+0+25+25)/4
		UniquenessScore: 18, // 3 distinct of 4
		FreshnessScore:  18, // 3 recent of 4
		DenylistScore:   12, // 2 clean of 4
	}
	if score.Components != want {
		t.Errorf("Components = %+v, want %+v", score.Components, want)
	}
	if score.Overall != 60 {
		t.Errorf("Overall = %d, want 60", score.Overall)
	}

	counts := make(map[IssueType]int)
	for _, is := range score.Issues {
		counts[is.Type]++
		if is.EntryName != "" || is.EntryNames != nil {
			t.Errorf("issue %+v carries names with includeNames=false", is)
		}
	}
	wantCounts := map[IssueType]int{
		IssueWeakPassword:      2,
		IssueDuplicatePassword: 1,
		IssueOldPassword:       1,
		IssueDenylisted:        2,
	}
	for k, v := range wantCounts {
		if counts[k] != v {
			t.Errorf("%s issues = %d, want %d", k, counts[k], v)
		}
	}
	if len(score.Suggestions) != 4 {
		t.Errorf("Suggestions = %v, want 4", score.Suggestions)
	}
}

func TestFormatDays(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, "today"},
		{1, "1 day"},
		{365, "365 days"},
	}
	for _, tt := range tests {
		if got := formatDays(tt.days); got != tt.want {
			t.Errorf("formatDays(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}
