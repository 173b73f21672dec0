package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/pkg/importer"
	"github.com/forest6511/keysmith/pkg/settings"
	"github.com/forest6511/keysmith/pkg/vault"
)

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
// Dynamic completion is disabled by default to prevent vault unlock prompts
// during tab completion.
func isDynamicCompletionEnabled() bool {
	return os.Getenv("KEYSMITH_COMPLETION_ENABLED") == "1"
}

// completeEntryNames provides entry name completion (opt-in only).
// Returns empty list if:
// - Dynamic completion is disabled (default)
// - Vault cannot be unlocked without prompting
func completeEntryNames(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() || !unlockForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	entries, err := mgr.Entries()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeTags provides tag completion (opt-in only).
func completeTags(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() || !unlockForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	tags, err := mgr.Tags()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return filterPrefix(tags, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeVaultNames lists vault names. Vault summaries are stored
// unencrypted, so no unlock is needed.
func completeVaultNames(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if mgr == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	vaults, err := mgr.Vaults(completionContext(cmd))
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names := make([]string, 0, len(vaults))
	for _, v := range vaults {
		names = append(names, v.Name)
	}
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// unlockForCompletion unlocks only when KEYSMITH_PASSWORD is set, so
// completion never prompts.
func unlockForCompletion(cmd *cobra.Command) bool {
	if mgr == nil {
		return false
	}
	if !mgr.IsLocked() {
		return true
	}
	if os.Getenv("KEYSMITH_PASSWORD") == "" {
		return false
	}
	_, err := ensureUnlocked(completionContext(cmd))
	return err == nil
}

func completionContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// filterPrefix keeps values starting with prefix, case-insensitively.
func filterPrefix(values []string, prefix string) []string {
	var filtered []string
	lowerPrefix := strings.ToLower(prefix)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lowerPrefix) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// fixedCompletion completes from a static list.
func fixedCompletion(values []string) cobra.CompletionFunc {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return filterPrefix(values, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// firstArgOnly limits a completion to the first positional argument.
func firstArgOnly(fn cobra.CompletionFunc) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return fn(cmd, args, toComplete)
	}
}

// registerCompletionFunctions registers ValidArgsFunction for commands that support
// dynamic completion.
func registerCompletionFunctions() {
	types := make([]string, 0, len(vault.Templates))
	for _, t := range vault.Templates {
		types = append(types, string(t.Type))
	}

	// Commands taking one entry reference
	for _, c := range []*cobra.Command{entryEditCmd, entryShowCmd, entryCopyCmd, entryFavCmd, entryPinCmd, entryHistoryCmd, totpCmd} {
		c.ValidArgsFunction = firstArgOnly(completeEntryNames)
	}
	entryRmCmd.ValidArgsFunction = completeEntryNames
	tagRmCmd.ValidArgsFunction = firstArgOnly(completeTags)

	vaultUseCmd.ValidArgsFunction = firstArgOnly(completeVaultNames)
	vaultDeleteCmd.ValidArgsFunction = firstArgOnly(completeVaultNames)
	settingsSetCmd.ValidArgsFunction = firstArgOnly(fixedCompletion(settings.Names()))

	// Register flag completion
	_ = rootCmd.RegisterFlagCompletionFunc("vault", completeVaultNames)
	_ = entryListCmd.RegisterFlagCompletionFunc("tag", completeTags)
	_ = entryAddCmd.RegisterFlagCompletionFunc("tag", completeTags)
	_ = entryAddCmd.RegisterFlagCompletionFunc("type", fixedCompletion(types))
	_ = entryListCmd.RegisterFlagCompletionFunc("type", fixedCompletion(types))
	_ = importCmd.RegisterFlagCompletionFunc("from", fixedCompletion(importer.ValidSources()))
}
