package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change preferences",
	Long: `Preferences are stored next to the vaults and apply to every vault.

Settings:
  inactivity_timeout     Seconds of inactivity before the vault locks (0 = never)
  clear_clipboard        Clear copied values after a delay (true/false)
  clipboard_clear_delay  Seconds before the clipboard is cleared
  audit_entropy          Passwords below this many bits are weak
  audit_age              Passwords older than this many days are old
  audit_words            Default passphrase word count`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(prefs)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prefs.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := saveSettings(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}
