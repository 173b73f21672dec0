package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/internal/cli"
	"github.com/forest6511/keysmith/pkg/generator"
	"github.com/forest6511/keysmith/pkg/totp"
	"github.com/forest6511/keysmith/pkg/vault"
)

const maskedValue = "********"

// Entry command flags
var (
	entryType      string
	entryListType  string
	entryFields    []string
	entryCustom    []string
	entryTags      []string
	entryUntags    []string
	entryFavorite  bool
	entryGenerate  bool
	entryNewName   string
	entryForce     bool
	entryQuery     string
	entryFavOnly   bool
	entryJSON      bool
	entryReveal    bool
	entryCopyField string
)

func init() {
	rootCmd.AddCommand(entryCmd)

	entryCmd.AddCommand(entryAddCmd)
	entryCmd.AddCommand(entryEditCmd)
	entryCmd.AddCommand(entryRmCmd)
	entryCmd.AddCommand(entryListCmd)
	entryCmd.AddCommand(entryShowCmd)
	entryCmd.AddCommand(entryCopyCmd)
	entryCmd.AddCommand(entryFavCmd)
	entryCmd.AddCommand(entryPinCmd)
	entryCmd.AddCommand(entryHistoryCmd)

	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagRmCmd)

	entryAddCmd.Flags().StringVarP(&entryType, "type", "t", string(vault.TypeLogin), "Entry type (see 'keysmith template list')")
	entryAddCmd.Flags().StringArrayVarP(&entryFields, "field", "f", nil, "Field value as name=value (repeatable)")
	entryAddCmd.Flags().StringArrayVar(&entryCustom, "custom", nil, "Custom field as label=value (repeatable)")
	entryAddCmd.Flags().StringSliceVar(&entryTags, "tag", nil, "Tags (comma-separated or repeated)")
	entryAddCmd.Flags().BoolVar(&entryFavorite, "favorite", false, "Mark as favorite")
	entryAddCmd.Flags().BoolVarP(&entryGenerate, "generate", "g", false, "Generate the password")

	entryEditCmd.Flags().StringArrayVarP(&entryFields, "field", "f", nil, "Field value as name=value; empty value clears (repeatable)")
	entryEditCmd.Flags().StringArrayVar(&entryCustom, "custom", nil, "Custom field as label=value; empty value removes (repeatable)")
	entryEditCmd.Flags().StringVar(&entryNewName, "name", "", "New entry name")
	entryEditCmd.Flags().StringSliceVar(&entryTags, "tag", nil, "Tags to add")
	entryEditCmd.Flags().StringSliceVar(&entryUntags, "untag", nil, "Tags to remove")
	entryEditCmd.Flags().BoolVarP(&entryGenerate, "generate", "g", false, "Replace the password with a generated one")

	entryRmCmd.Flags().BoolVarP(&entryForce, "force", "f", false, "Skip confirmation prompt")

	entryListCmd.Flags().StringVarP(&entryQuery, "query", "q", "", "Search name, username, url and tags")
	entryListCmd.Flags().StringSliceVar(&entryTags, "tag", nil, "Only entries with any of these tags")
	entryListCmd.Flags().StringVarP(&entryListType, "type", "t", "", "Only entries of this type")
	entryListCmd.Flags().BoolVar(&entryFavOnly, "favorites", false, "Only favorites")
	entryListCmd.Flags().BoolVar(&entryJSON, "json", false, "Output in JSON format (no secret values)")

	entryShowCmd.Flags().BoolVarP(&entryReveal, "reveal", "r", false, "Show sensitive values")
	entryHistoryCmd.Flags().BoolVarP(&entryReveal, "reveal", "r", false, "Show previous passwords")

	entryCopyCmd.Flags().StringVarP(&entryCopyField, "field", "f", "password", "Field or custom label to copy (totp copies the current code)")
}

var entryCmd = &cobra.Command{
	Use:     "entry",
	Aliases: []string{"e"},
	Short:   "Manage entries in the selected vault",
	Long: `Manage entries in the selected vault.

Entries are referenced by ID, by exact name (case-insensitive), or by a
glob pattern over names such as 'git*'.`,
}

var entryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an entry",
	Long: `Add an entry. Required fields not given with --field are prompted for;
sensitive fields are read without echo.

Examples:
  keysmith entry add GitHub -f username=octo -f url=https://github.com --generate
  keysmith entry add "Home Wi-Fi" -t wifi -f ssid=home -f security=WPA2
  keysmith entry add Passport -t note --tag travel`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := vault.EntryType(entryType)
		tpl, ok := vault.TemplateFor(t)
		if !ok {
			return fmt.Errorf("unknown entry type '%s'", entryType)
		}
		values, err := parseAssignments(entryFields)
		if err != nil {
			return err
		}
		custom, err := parseCustomFields(entryCustom)
		if err != nil {
			return err
		}
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		if entryGenerate {
			if !hasField(tpl, "password") {
				return fmt.Errorf("%s entries have no password to generate", t)
			}
			pw, err := generateDefault()
			if err != nil {
				return err
			}
			values["password"] = pw
		}
		if err := promptMissing(tpl, values); err != nil {
			return err
		}
		if err := normalizeTOTP(values); err != nil {
			return err
		}

		fields, err := vault.NewFields(t, values)
		if err != nil {
			return err
		}
		added, err := mgr.AddEntry(cmd.Context(), vault.Entry{
			Name:         args[0],
			Fields:       fields,
			CustomFields: custom,
			Tags:         entryTags,
			Favorite:     entryFavorite,
		})
		if err != nil {
			return fmt.Errorf("failed to add entry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry '%s' added (%s)\n", added.Name, added.ID)
		return nil
	},
}

var entryEditCmd = &cobra.Command{
	Use:   "edit <entry>",
	Short: "Change an entry",
	Long: `Change fields, name or tags of an entry. A changed password is kept
in the entry's password history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseAssignments(entryFields)
		if err != nil {
			return err
		}
		custom, err := parseCustomFields(entryCustom)
		if err != nil {
			return err
		}
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}

		if entryGenerate {
			tpl, _ := vault.TemplateFor(e.Type())
			if !hasField(tpl, "password") {
				return fmt.Errorf("%s entries have no password to generate", e.Type())
			}
			pw, err := generateDefault()
			if err != nil {
				return err
			}
			values["password"] = pw
		}
		if err := normalizeTOTP(values); err != nil {
			return err
		}

		if len(values) > 0 {
			if e.Fields, err = vault.MergeFields(e.Fields, values); err != nil {
				return err
			}
		}
		if entryNewName != "" {
			e.Name = entryNewName
		}
		e.CustomFields = mergeCustomFields(e.CustomFields, custom)
		e.Tags = append(e.Tags, entryTags...)
		for _, t := range entryUntags {
			e.Tags = removeTag(e.Tags, t)
		}

		updated, err := mgr.UpdateEntry(cmd.Context(), e)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry '%s' updated\n", updated.Name)
		return nil
	},
}

var entryRmCmd = &cobra.Command{
	Use:     "rm <entry>...",
	Aliases: []string{"delete"},
	Short:   "Delete entries",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		entries, err := mgr.Entries()
		if err != nil {
			return err
		}
		matches, err := cli.MatchAll(args, entries)
		if err != nil {
			return err
		}

		if !entryForce {
			fmt.Fprintf(os.Stderr, "This will delete %d entries:\n", len(matches))
			for _, e := range matches {
				fmt.Fprintf(os.Stderr, "  - %s\n", e.Name)
			}
			if !confirm("Are you sure?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}

		for _, e := range matches {
			if err := mgr.DeleteEntry(cmd.Context(), e.ID); err != nil {
				return fmt.Errorf("failed to delete '%s': %w", e.Name, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", len(matches))
		return nil
	},
}

// entryListItem is the JSON form of a listed entry. It never carries
// field values.
type entryListItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Username string   `json:"username,omitempty"`
	URL      string   `json:"url,omitempty"`
	Tags     []string `json:"tags"`
	Favorite bool     `json:"favorite"`
	Pinned   bool     `json:"pinned"`
	Modified int64    `json:"modified"`
}

var entryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List entries",
	Long: `List entries, pinned first, then favorites, then most recently changed.

Examples:
  keysmith entry list
  keysmith entry list -q git --tag work
  keysmith entry list --type wifi --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		entries, err := mgr.List(vault.Filter{
			Query:         entryQuery,
			Tags:          entryTags,
			FavoritesOnly: entryFavOnly,
			Type:          vault.EntryType(entryListType),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if entryJSON {
			items := make([]entryListItem, 0, len(entries))
			for i := range entries {
				e := &entries[i]
				items = append(items, entryListItem{
					ID: e.ID, Name: e.Name, Type: string(e.Type()),
					Username: e.Username(), URL: e.URL(), Tags: e.Tags,
					Favorite: e.Favorite, Pinned: e.Pinned, Modified: e.Modified,
				})
			}
			return outputJSON(out, items)
		}

		if len(entries) == 0 {
			fmt.Fprintln(out, "No entries found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tUSERNAME\tTAGS\t")
		for i := range entries {
			e := &entries[i]
			fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\t%s\t\n",
				e.ID, entryMarks(e), e.Name, e.Type(), e.Username(), strings.Join(e.Tags, ","))
		}
		return w.Flush()
	},
}

var entryShowCmd = &cobra.Command{
	Use:   "show <entry>",
	Short: "Show an entry",
	Long: `Show an entry's fields. Sensitive values are masked unless --reveal
is given. A login with a TOTP secret shows its current code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}
		printEntry(cmd.OutOrStdout(), &e, entryReveal, time.Now())
		return nil
	},
}

var entryCopyCmd = &cobra.Command{
	Use:   "copy <entry>",
	Short: "Copy a field to the clipboard",
	Long: `Copy a field to the clipboard. The clipboard is cleared after the
clipboard_clear_delay setting; the command waits until then, and
interrupting it clears the clipboard at once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}
		if err := mgr.Copy(cmd.Context(), e.ID, entryCopyField); err != nil {
			return err
		}

		delay := prefs.ClipboardDelay()
		if delay <= 0 {
			fmt.Fprintf(os.Stderr, "Copied %s of '%s' to clipboard\n", entryCopyField, e.Name)
			return nil
		}
		fmt.Fprintf(os.Stderr, "Copied %s of '%s' to clipboard, clearing in %s\n", entryCopyField, e.Name, delay)
		select {
		case <-time.After(delay):
		case <-cmd.Context().Done():
		}
		// Locking clears a clipboard write that has not expired yet.
		mgr.Lock()
		return nil
	},
}

var entryFavCmd = &cobra.Command{
	Use:   "fav <entry>",
	Short: "Toggle the favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}
		on, err := mgr.ToggleFavorite(cmd.Context(), e.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "'%s' favorite: %t\n", e.Name, on)
		return nil
	},
}

var entryPinCmd = &cobra.Command{
	Use:   "pin <entry>",
	Short: "Toggle the pinned flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}
		on, err := mgr.TogglePinned(cmd.Context(), e.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "'%s' pinned: %t\n", e.Name, on)
		return nil
	},
}

var entryHistoryCmd = &cobra.Command{
	Use:   "history <entry>",
	Short: "Show previous passwords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(e.PasswordHistory) == 0 {
			fmt.Fprintf(out, "'%s' has no password history\n", e.Name)
			return nil
		}
		fmt.Fprintf(out, "Password history for '%s' (newest first):\n", e.Name)
		for i, h := range e.PasswordHistory {
			value := maskedValue
			if entryReveal {
				value = h.Password
			}
			fmt.Fprintf(out, "  %d. %s  %s\n", i+1, formatMillis(h.Date), value)
		}
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage the vault's tag set",
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		tags, err := mgr.Tags()
		if err != nil {
			return err
		}
		entries, err := mgr.Entries()
		if err != nil {
			return err
		}
		counts := make(map[string]int)
		for _, e := range entries {
			for _, t := range e.Tags {
				counts[t]++
			}
		}

		out := cmd.OutOrStdout()
		if len(tags) == 0 {
			fmt.Fprintln(out, "No tags")
			return nil
		}
		for _, t := range tags {
			fmt.Fprintf(out, "%s (%d)\n", t, counts[t])
		}
		return nil
	},
}

var tagAddCmd = &cobra.Command{
	Use:   "add <tag>",
	Short: "Add a tag to the tag set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		if err := mgr.AddTag(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tag '%s' added\n", args[0])
		return nil
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <tag>",
	Short: "Remove a tag from the tag set and every entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		if err := mgr.RemoveTag(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tag '%s' removed\n", args[0])
		return nil
	},
}

// findEntry unlocks the vault and resolves ref to exactly one entry.
func findEntry(cmd *cobra.Command, ref string) (vault.Entry, error) {
	if _, err := ensureUnlocked(cmd.Context()); err != nil {
		return vault.Entry{}, err
	}
	entries, err := mgr.Entries()
	if err != nil {
		return vault.Entry{}, err
	}
	e, err := cli.MatchOne(ref, entries)
	if errors.Is(err, cli.ErrAmbiguous) {
		return vault.Entry{}, fmt.Errorf("%w: use the entry ID", err)
	}
	return e, err
}

// parseAssignments parses name=value pairs. The value may be empty.
func parseAssignments(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field '%s': expected name=value", p)
		}
		values[name] = value
	}
	return values, nil
}

// parseCustomFields parses label=value pairs in order.
func parseCustomFields(pairs []string) ([]vault.CustomField, error) {
	var out []vault.CustomField
	for _, p := range pairs {
		label, value, ok := strings.Cut(p, "=")
		label = strings.TrimSpace(label)
		if !ok || label == "" {
			return nil, fmt.Errorf("invalid custom field '%s': expected label=value", p)
		}
		out = append(out, vault.CustomField{Label: label, Value: value})
	}
	return out, nil
}

// mergeCustomFields sets or removes custom fields by label. An empty value
// removes the field; unknown labels are appended.
func mergeCustomFields(have, changes []vault.CustomField) []vault.CustomField {
	out := append([]vault.CustomField{}, have...)
	for _, c := range changes {
		i := -1
		for j := range out {
			if out[j].Label == c.Label {
				i = j
				break
			}
		}
		switch {
		case i >= 0 && c.Value == "":
			out = append(out[:i], out[i+1:]...)
		case i >= 0:
			out[i].Value = c.Value
		case c.Value != "":
			out = append(out, c)
		}
	}
	return out
}

func removeTag(tags []string, tag string) []string {
	out := tags[:0:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

func hasField(tpl vault.Template, name string) bool {
	for _, f := range tpl.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// normalizeTOTP reduces an otpauth:// URI to its base32 secret.
func normalizeTOTP(values map[string]string) error {
	raw, ok := values["totp"]
	if !ok || raw == "" {
		return nil
	}
	secret, err := totp.ParseSecret(raw)
	if err != nil {
		return fmt.Errorf("invalid TOTP secret: %w", err)
	}
	values["totp"] = secret
	return nil
}

// generateDefault generates a password with the default configuration.
func generateDefault() (string, error) {
	r, err := generator.Generate(generator.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return r.Value, nil
}

// promptMissing asks for required template fields not yet in values.
func promptMissing(tpl vault.Template, values map[string]string) error {
	for _, f := range tpl.Fields {
		if !f.Required || strings.TrimSpace(values[f.Name]) != "" {
			continue
		}
		prompt := f.Prompt
		if len(f.Options) > 0 {
			prompt += " (" + strings.Join(f.Options, "/") + ")"
		}
		prompt += ": "

		var (
			v   string
			err error
		)
		if f.Sensitive {
			v, err = readSecret(prompt)
		} else {
			v, err = readLine(prompt)
		}
		if err != nil {
			return err
		}
		values[f.Name] = v
	}
	return nil
}

func entryMarks(e *vault.Entry) string {
	marks := ""
	if e.Pinned {
		marks += "📌"
	}
	if e.Favorite {
		marks += "★ "
	}
	return marks
}

// printEntry writes an entry's fields in template order, then custom fields.
func printEntry(w io.Writer, e *vault.Entry, reveal bool, now time.Time) {
	fmt.Fprintf(w, "Name:     %s%s\n", entryMarks(e), e.Name)
	fmt.Fprintf(w, "ID:       %s\n", e.ID)
	fmt.Fprintf(w, "Type:     %s\n", e.Type())
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "Tags:     %s\n", strings.Join(e.Tags, ", "))
	}
	fmt.Fprintf(w, "Created:  %s\n", formatMillis(e.Created))
	fmt.Fprintf(w, "Modified: %s\n", formatMillis(e.Modified))
	fmt.Fprintln(w)

	values := map[string]string{}
	if e.Fields != nil {
		values = e.Fields.Values()
	}
	tpl, _ := vault.TemplateFor(e.Type())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range tpl.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if f.Sensitive && !reveal {
			v = maskedValue
		}
		fmt.Fprintf(tw, "  %s:\t%s\n", f.Prompt, strings.ReplaceAll(v, "\n", "\n\t"))
	}
	if secret := e.TOTPSecret(); secret != "" {
		t := now.Unix()
		fmt.Fprintf(tw, "  TOTP code:\t%s (%ds)\n", totp.Display(secret, t), totp.SecondsRemaining(t))
	}

	custom := append([]vault.CustomField{}, e.CustomFields...)
	sort.SliceStable(custom, func(i, j int) bool { return custom[i].Label < custom[j].Label })
	for _, cf := range custom {
		v := cf.Value
		if !reveal {
			v = maskedValue
		}
		fmt.Fprintf(tw, "  %s:\t%s\n", cf.Label, v)
	}
	tw.Flush()

	if n := len(e.PasswordHistory); n > 0 {
		fmt.Fprintf(w, "\n%d previous passwords (see 'keysmith entry history')\n", n)
	}
}
