package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/pkg/activity"
)

// Activity command flags
var (
	activityLimit int
	activitySince string

	activityExportFormat string
	activityExportSince  string
	activityExportUntil  string
	activityExportOutput string

	activityPruneOlderThan string
	activityPruneDryRun    bool
	activityPruneForce     bool
)

func init() {
	rootCmd.AddCommand(activityCmd)

	activityCmd.AddCommand(activityListCmd)
	activityCmd.AddCommand(activityVerifyCmd)
	activityCmd.AddCommand(activityExportCmd)
	activityCmd.AddCommand(activityPruneCmd)

	activityListCmd.Flags().IntVar(&activityLimit, "limit", 100, "Maximum number of events to show")
	activityListCmd.Flags().StringVar(&activitySince, "since", "", "Show events since duration (e.g., 24h)")

	activityExportCmd.Flags().StringVar(&activityExportFormat, "format", "json", "Output format: json, csv")
	activityExportCmd.Flags().StringVar(&activityExportSince, "since", "", "Export events since duration (e.g., 30d)")
	activityExportCmd.Flags().StringVar(&activityExportUntil, "until", "", "Export events until date (RFC 3339)")
	activityExportCmd.Flags().StringVarP(&activityExportOutput, "output", "o", "", "Output file path (default: stdout)")

	activityPruneCmd.Flags().StringVar(&activityPruneOlderThan, "older-than", "", "Delete events older than duration (e.g., 12m for 12 months)")
	activityPruneCmd.Flags().BoolVar(&activityPruneDryRun, "dry-run", false, "Show what would be deleted without deleting")
	activityPruneCmd.Flags().BoolVarP(&activityPruneForce, "force", "f", false, "Skip confirmation prompt")
}

// activityCmd is the parent command for activity log operations
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Activity log operations",
	Long: `Every vault keeps a tamper-evident activity log. Records are chained
with an HMAC keyed from the vault key, so the log can only be read and
verified while the vault is unlocked.`,
}

// activityListCmd lists activity log events
var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List activity log events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		since, err := sinceFlag(activitySince)
		if err != nil {
			return err
		}
		events, err := activityLog.Events(activityLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list activity events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No activity events found")
			return nil
		}

		for _, event := range events {
			// Format: TIMESTAMP OPERATION RESULT SOURCE [ENTRY]
			line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Operation, event.Result, event.Source)
			if event.Entry != "" {
				// Show truncated entry hash
				entryDisplay := event.Entry
				if len(entryDisplay) > 16 {
					entryDisplay = entryDisplay[:16] + "..."
				}
				line += fmt.Sprintf(" entry:%s", entryDisplay)
			}
			if event.Error != "" {
				line += fmt.Sprintf(" error:%s", event.Error)
			}
			fmt.Fprintln(out, line)
		}

		fmt.Fprintf(out, "\nTotal: %d events\n", len(events))
		return nil
	},
}

// activityVerifyCmd verifies activity log integrity
var activityVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify activity log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Verifying activity log integrity...")

		result, err := activityLog.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify activity log: %w", err)
		}

		if result.Valid {
			fmt.Fprintf(out, "✓ Activity log verified: %d records, chain intact\n", result.RecordsTotal)
		} else {
			fmt.Fprintf(out, "✗ Activity log verification FAILED\n")
			fmt.Fprintf(out, "  Records total: %d\n", result.RecordsTotal)
			fmt.Fprintf(out, "  Records verified: %d\n", result.RecordsVerified)
			fmt.Fprintln(out, "  Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
			return fmt.Errorf("activity log integrity check failed")
		}

		// Also output as JSON for machine parsing
		jsonResult, _ := json.Marshal(result)
		fmt.Fprintf(out, "\nJSON: %s\n", string(jsonResult))
		return nil
	},
}

// activityExportCmd exports activity logs
var activityExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export activity logs to JSON or CSV format",
	RunE: func(cmd *cobra.Command, args []string) error {
		if activityExportFormat != "json" && activityExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", activityExportFormat)
		}
		since, err := sinceFlag(activityExportSince)
		if err != nil {
			return err
		}
		var until time.Time
		if activityExportUntil != "" {
			if until, err = time.Parse(time.RFC3339, activityExportUntil); err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}

		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		data, err := activityLog.Export(activityExportFormat, since, until)
		if err != nil {
			return fmt.Errorf("failed to export activity logs: %w", err)
		}

		if activityExportOutput == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := writeExportFile(activityExportOutput, data, true); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Warning: Exported activity logs contain entry hashes and operation metadata.\n")
		fmt.Fprintf(os.Stderr, "Activity logs exported to %s\n", activityExportOutput)
		return nil
	},
}

// activityPruneCmd deletes old activity events
var activityPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old activity log events",
	Long: `Delete activity log events older than the given duration.

A pruned log no longer verifies from its first record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if activityPruneOlderThan == "" {
			return fmt.Errorf("--older-than flag is required")
		}
		duration, err := parseDuration(activityPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if activityPruneDryRun || !activityPruneForce {
			count, err := countOlderThan(activityLog, time.Now().Add(-duration))
			if err != nil {
				return fmt.Errorf("failed to preview prune: %w", err)
			}
			if activityPruneDryRun {
				fmt.Fprintf(out, "Would delete %d events older than %s\n", count, activityPruneOlderThan)
				return nil
			}
			if count == 0 {
				fmt.Fprintln(out, "No events to delete")
				return nil
			}
			if !confirm(fmt.Sprintf("Delete %d events older than %s?", count, activityPruneOlderThan)) {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}

		deleted, err := activityLog.Prune(duration)
		if err != nil {
			return fmt.Errorf("failed to prune activity logs: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d events\n", deleted)
		return nil
	},
}

// sinceFlag converts a --since duration to a start time; empty means no bound.
func sinceFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	duration, err := parseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since format: %w", err)
	}
	return time.Now().Add(-duration), nil
}

// countOlderThan counts the events Prune would remove for cutoff.
func countOlderThan(l *activity.Logger, cutoff time.Time) (int, error) {
	events, err := l.Events(0, time.Time{})
	if err != nil {
		return 0, err
	}
	// Prune removes only the leading run of old events.
	n := 0
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil || !ts.Before(cutoff) {
			break
		}
		n++
	}
	return n, nil
}
