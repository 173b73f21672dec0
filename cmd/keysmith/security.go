package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/pkg/security"
)

// Security command flags
var (
	securityVerbose bool
	securityJSON    bool
	securityNames   bool
	securityLimit   int
)

// securityCmd is the root security command.
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the security health of your vault and get recommendations.

The security score is calculated from:
  - Password Strength (0-25): Share of passwords above the entropy threshold
  - Uniqueness (0-25): Percentage of unique passwords
  - Freshness (0-25): Percentage of passwords changed within the age limit
  - Denylist (0-25): Percentage of passwords not on the common list

Thresholds come from the audit_entropy and audit_age settings.

Example:
  keysmith security              # Show security score and top issues
  keysmith security --verbose    # Show all components and suggestions
  keysmith security --json       # Output in JSON format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		entries, err := mgr.Entries()
		if err != nil {
			return err
		}

		calc := security.NewCalculator(prefs.Thresholds())
		score, err := calc.CalculateScore(entries, time.Now(), true)
		if err != nil {
			return fmt.Errorf("failed to calculate security score: %w", err)
		}

		if securityJSON {
			return outputJSON(cmd.OutOrStdout(), score)
		}
		return outputSecurityText(cmd.OutOrStdout(), score, securityVerbose)
	},
}

// securityAuditCmd lists every flagged entry by category.
var securityAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List weak, reused, old and common passwords",
	Long: `Show every entry whose password is weak, reused, older than the
age limit, or on the common password list. An entry may appear in more
than one group.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		entries, err := mgr.Entries()
		if err != nil {
			return err
		}

		report, err := security.NewCalculator(prefs.Thresholds()).Audit(entries, time.Now())
		if err != nil {
			return fmt.Errorf("failed to audit vault: %w", err)
		}
		if securityJSON {
			return outputJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		if report.Total() == 0 {
			fmt.Fprintf(out, "✅ No issues found in %d passwords!\n", report.Checked)
			return nil
		}
		fmt.Fprintf(out, "Audited %d passwords, %d findings\n\n", report.Checked, report.Total())
		printFindings(out, "💪 Weak", report.Weak)
		printFindings(out, "🔁 Reused", report.Reused)
		printFindings(out, "⏰ Old", report.Old)
		printFindings(out, "🚫 Common", report.Denylisted)
		return nil
	},
}

// securityDuplicatesCmd lists duplicate passwords.
var securityDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List duplicate passwords",
	Long: `Show entries that share the same password.

Passwords are compared by keyed hash; no plaintext is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		entries, err := mgr.Entries()
		if err != nil {
			return err
		}

		calc := security.NewCalculator(prefs.Thresholds())
		groups, err := calc.FindDuplicates(entries, !securityJSON || securityNames, securityLimit)
		if err != nil {
			return fmt.Errorf("failed to find duplicates: %w", err)
		}
		if securityJSON {
			return outputJSON(cmd.OutOrStdout(), groups)
		}

		out := cmd.OutOrStdout()
		if len(groups) == 0 {
			fmt.Fprintln(out, "No duplicate passwords found!")
			return nil
		}

		fmt.Fprintf(out, "Duplicate Passwords (%d groups found)\n\n", len(groups))
		for i, group := range groups {
			fmt.Fprintf(out, "%d. %d entries share the same password:\n", i+1, group.Count)
			for _, name := range group.Names {
				fmt.Fprintf(out, "   - %s\n", name)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func printFindings(w io.Writer, title string, findings []security.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d)\n", title, len(findings))
	for i, f := range findings {
		fmt.Fprintf(w, "  %d. %s: %s\n", i+1, f.Name, f.Reason)
	}
	fmt.Fprintln(w)
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// outputSecurityText outputs the security score as formatted text.
func outputSecurityText(w io.Writer, score *security.SecurityScore, verbose bool) error { //nolint:unparam // error return for future use
	// Score header
	emoji := "🔒"
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		emoji = "⚠️"
		rating = "Fair"
	default:
		emoji = "🚨"
		rating = "Needs Attention"
	}

	fmt.Fprintf(w, "%s Security Score: %d/100 (%s)\n\n", emoji, score.Overall, rating)

	// Components
	fmt.Fprintln(w, "Components:")
	fmt.Fprintf(w, "  Password Strength: %d/25 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 25))
	fmt.Fprintf(w, "  Uniqueness:        %d/25 %s\n", score.Components.UniquenessScore, progressBar(score.Components.UniquenessScore, 25))
	fmt.Fprintf(w, "  Freshness:         %d/25 %s\n", score.Components.FreshnessScore, progressBar(score.Components.FreshnessScore, 25))
	fmt.Fprintf(w, "  Uncommon:          %d/25 %s\n", score.Components.DenylistScore, progressBar(score.Components.DenylistScore, 25))
	fmt.Fprintln(w)

	// Issues
	if len(score.Issues) > 0 {
		fmt.Fprintf(w, "⚠️  Top Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			typeLabel := strings.ToUpper(string(issue.Type))
			nameInfo := ""
			if issue.EntryName != "" {
				nameInfo = fmt.Sprintf(" %q", issue.EntryName)
			} else if len(issue.EntryNames) > 0 {
				nameInfo = fmt.Sprintf(" %s", strings.Join(issue.EntryNames, ", "))
			}
			fmt.Fprintf(w, "  %d. [%s]%s: %s\n", i+1, typeLabel, nameInfo, issue.Description)
		}
		fmt.Fprintln(w)
	}

	// Suggestions
	if len(score.Suggestions) > 0 && verbose {
		fmt.Fprintln(w, "💡 Suggestions:")
		for _, suggestion := range score.Suggestions {
			fmt.Fprintf(w, "  - %s\n", suggestion)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string { //nolint:unparam // maxVal kept for flexibility
	width := 20
	filled := value * width / maxVal
	empty := width - filled
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}

func init() {
	// Add security command to root
	rootCmd.AddCommand(securityCmd)

	// Add subcommands
	securityCmd.AddCommand(securityAuditCmd)
	securityCmd.AddCommand(securityDuplicatesCmd)

	// Add flags
	securityCmd.Flags().BoolVarP(&securityVerbose, "verbose", "v", false, "Show all details including suggestions")
	securityCmd.PersistentFlags().BoolVar(&securityJSON, "json", false, "Output in JSON format")

	securityDuplicatesCmd.Flags().BoolVar(&securityNames, "names", false, "Include entry names in JSON output")
	securityDuplicatesCmd.Flags().IntVar(&securityLimit, "limit", 0, "Maximum number of groups (0 = all)")
}
