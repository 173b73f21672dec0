package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/internal/cli"
	"github.com/forest6511/keysmith/pkg/importer"
	"github.com/forest6511/keysmith/pkg/vault"
)

// Conflict handling for names that already exist in the vault.
const (
	conflictKeep = "keep"
	conflictSkip = "skip"
)

// Competitor import flags.
var (
	importFrom           string
	importTag            string
	importDryRun         bool
	importKeepDuplicates bool
	importOnly           []string
	importConflict       string
)

func init() {
	entryCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFrom, "from", "", "Import source: "+strings.Join(importer.ValidSources(), ", ")+" (required)")
	importCmd.Flags().StringVar(&importTag, "tag", "", "Add tag to all imported entries")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without changing the vault")
	importCmd.Flags().BoolVar(&importKeepDuplicates, "keep-duplicate-names", false, "Do not add ' (2)' suffixes to repeated names")
	importCmd.Flags().StringSliceVar(&importOnly, "only", nil, "Import only entries whose names match these patterns")
	importCmd.Flags().StringVar(&importConflict, "on-conflict", conflictKeep, "When a name already exists: keep (add anyway) or skip")
	_ = importCmd.MarkFlagRequired("from")
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import entries from another password manager",
	Long: `Import entries from a 1Password CSV, Bitwarden JSON or LastPass CSV
export. All entries are added in a single save.

Examples:
  keysmith entry import --from bitwarden bitwarden_export.json
  keysmith entry import --from lastpass lastpass.csv --tag imported --dry-run
  keysmith entry import --from 1password export.csv --only 'git*'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeCompetitorImport(cmd, args[0])
	},
}

// validateImportFlags checks the flag combination before any file is read.
func validateImportFlags() (importer.Parser, error) {
	source := importer.Source(strings.ToLower(importFrom))
	parser, err := importer.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("invalid --from value '%s': must be one of %v", importFrom, importer.ValidSources())
	}
	switch importConflict {
	case conflictKeep, conflictSkip:
	default:
		return nil, fmt.Errorf("invalid --on-conflict value '%s': must be keep or skip", importConflict)
	}
	return parser, nil
}

// executeCompetitorImport handles import from competitor password managers.
func executeCompetitorImport(cmd *cobra.Command, filePath string) error {
	parser, err := validateImportFlags()
	if err != nil {
		return err
	}

	// Read and validate file
	data, err := readInputFile(filePath)
	if err != nil {
		return err
	}

	result, err := parser.Parse(data, importer.ParseOptions{
		Tag:                importTag,
		KeepDuplicateNames: importKeepDuplicates,
	})
	if err != nil {
		return fmt.Errorf("failed to parse %s file: %w", importFrom, err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(os.Stderr, "Skipped: %s (%s)\n", skipped.OriginalName, skipped.Reason)
	}

	out := cmd.OutOrStdout()
	entries := result.Entries
	if len(importOnly) > 0 && len(entries) > 0 {
		if entries, err = cli.MatchAll(importOnly, entries); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries found in file")
		return nil
	}
	fmt.Fprintf(out, "Found %d entries to import\n", len(entries))

	if importDryRun {
		for i := range entries {
			e := &entries[i]
			n := len(e.CustomFields)
			if e.Fields != nil {
				n += len(e.Fields.Values())
			}
			fmt.Fprintf(out, "[dry-run] Would import: %s (%s, %d fields)\n", e.Name, e.Type(), n)
		}
		return nil
	}

	if _, err := ensureUnlocked(cmd.Context()); err != nil {
		return err
	}
	existing, err := mgr.Entries()
	if err != nil {
		return err
	}
	toAdd, conflicts := resolveConflicts(entries, existing, importConflict)
	for _, name := range conflicts {
		if importConflict == conflictSkip {
			fmt.Fprintf(out, "Skipped (exists): %s\n", name)
		} else {
			fmt.Fprintf(out, "Added alongside existing: %s\n", name)
		}
	}

	added := 0
	if len(toAdd) > 0 {
		if added, err = mgr.AddEntries(cmd.Context(), toAdd); err != nil {
			return fmt.Errorf("failed to import entries: %w", err)
		}
	}

	printCompetitorImportSummary(out, added, len(entries)-len(toAdd), len(result.Skipped))
	return nil
}

// resolveConflicts splits drafts by whether their name already exists
// (case-insensitive). With mode skip, conflicting drafts are dropped.
func resolveConflicts(drafts, existing []vault.Entry, mode string) (keep []vault.Entry, conflicts []string) {
	names := make(map[string]bool, len(existing))
	for _, e := range existing {
		names[strings.ToLower(e.Name)] = true
	}
	for _, d := range drafts {
		if names[strings.ToLower(d.Name)] {
			conflicts = append(conflicts, d.Name)
			if mode == conflictSkip {
				continue
			}
		}
		keep = append(keep, d)
	}
	return keep, conflicts
}

// printCompetitorImportSummary prints the import summary.
func printCompetitorImportSummary(w io.Writer, imported, skipped, unparsable int) {
	fmt.Fprintf(w, "\nImport summary:\n")
	fmt.Fprintf(w, "  Imported:  %d\n", imported)
	if skipped > 0 {
		fmt.Fprintf(w, "  Skipped:   %d\n", skipped)
	}
	if unparsable > 0 {
		fmt.Fprintf(w, "  Unusable:  %d\n", unparsable)
	}
}
