package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/pkg/totp"
	"github.com/forest6511/keysmith/pkg/vault"
)

var totpWatch bool

func init() {
	rootCmd.AddCommand(totpCmd)
	totpCmd.Flags().BoolVarP(&totpWatch, "watch", "w", false, "Keep printing the code as it changes (Ctrl+C to stop)")
}

var totpCmd = &cobra.Command{
	Use:   "totp <entry>",
	Short: "Show the current TOTP code of a login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := findEntry(cmd, args[0])
		if err != nil {
			return err
		}
		secret := e.TOTPSecret()
		if secret == "" {
			return fmt.Errorf("'%s': %w", e.Name, vault.ErrNoTOTP)
		}

		out := cmd.OutOrStdout()
		if !totpWatch {
			now := time.Now().Unix()
			code, ok := totp.Generate(secret, now)
			if !ok {
				return fmt.Errorf("'%s': %w", e.Name, totp.ErrMalformedSecret)
			}
			fmt.Fprintln(out, code)
			fmt.Fprintf(os.Stderr, "Valid for %ds\n", totp.SecondsRemaining(now))
			return nil
		}

		last := ""
		stop, err := mgr.WatchTOTP(e.ID, func(code string, remaining int) {
			if code != last {
				last = code
				fmt.Fprintf(out, "%s (%ds)\n", code, remaining)
			}
		})
		if err != nil {
			return err
		}
		defer stop()

		// The watcher ends with the session, e.g. on the idle timeout.
		ticker := time.NewTicker(vault.TOTPRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case <-ticker.C:
				if mgr.IsLocked() {
					fmt.Fprintln(os.Stderr, "Vault locked")
					return nil
				}
			}
		}
	},
}
