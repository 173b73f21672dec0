package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/pkg/security"
)

var (
	vaultCreateDefault bool
	vaultDeleteForce   bool
	vaultExportOutput  string
	vaultExportForce   bool
)

func init() {
	rootCmd.AddCommand(vaultCmd)

	vaultCmd.AddCommand(vaultCreateCmd)
	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultUseCmd)
	vaultCmd.AddCommand(vaultRenameCmd)
	vaultCmd.AddCommand(vaultDeleteCmd)
	vaultCmd.AddCommand(vaultExportCmd)
	vaultCmd.AddCommand(vaultImportCmd)

	vaultCreateCmd.Flags().BoolVar(&vaultCreateDefault, "default", false, "Make the new vault the default")
	vaultDeleteCmd.Flags().BoolVarP(&vaultDeleteForce, "force", "f", false, "Skip confirmation prompt")
	vaultExportCmd.Flags().StringVarP(&vaultExportOutput, "output", "o", "", "Output file path (default: stdout)")
	vaultExportCmd.Flags().BoolVar(&vaultExportForce, "force", false, "Overwrite existing file")
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Create, select and back up vaults",
}

var vaultCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readNewPassword("master password")
		if err != nil {
			return err
		}

		// Advisory only: the master password is never rejected for strength.
		in := security.Inspect(password)
		fmt.Fprintf(os.Stderr, "Password strength: %s (%d bits)\n", in.Strength, int(in.Bits))
		if in.Strength == security.PasswordWeak || security.IsDenylisted(password) {
			fmt.Fprintln(os.Stderr, "Warning: this master password is easy to guess")
		}

		sum, err := mgr.Create(cmd.Context(), args[0], password)
		if err != nil {
			return fmt.Errorf("failed to create vault: %w", err)
		}

		if vaultCreateDefault {
			cfg.DefaultVault = sum.ID
			if err := cfg.Save(baseDir); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault '%s' created (%s)\n", sum.Name, sum.ID)
		return nil
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaults, err := mgr.Vaults(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(vaults) == 0 {
			fmt.Fprintln(out, "No vaults found")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tENTRIES\tMODIFIED\t")
		for _, v := range vaults {
			marker := ""
			if v.ID == cfg.DefaultVault {
				marker = " (default)"
			}
			fmt.Fprintf(w, "%s\t%s%s\t%d\t%s\t\n", v.ID, v.Name, marker, v.EntryCount, formatMillis(v.Modified))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if prefs.BackupDue(time.Now()) {
			fmt.Fprintln(out, "\nNo backup in the last 30 days: run 'keysmith vault export -o <file>'")
		}
		return nil
	},
}

var vaultUseCmd = &cobra.Command{
	Use:   "use <vault>",
	Short: "Set the default vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := mgr.FindVault(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cfg.DefaultVault = sum.ID
		if err := cfg.Save(baseDir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Default vault is now '%s'\n", sum.Name)
		return nil
	},
}

var vaultRenameCmd = &cobra.Command{
	Use:   "rename <new-name>",
	Short: "Rename the selected vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		if err := mgr.Rename(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to rename vault: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault renamed to '%s'\n", args[0])
		return nil
	},
}

var vaultDeleteCmd = &cobra.Command{
	Use:   "delete <vault>",
	Short: "Delete a vault and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := mgr.FindVault(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !vaultDeleteForce {
			fmt.Fprintf(os.Stderr, "This will permanently delete vault '%s' with %d entries.\n", sum.Name, sum.EntryCount)
			if !confirm("Are you sure?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}
		if err := mgr.Delete(cmd.Context(), sum.ID); err != nil {
			return fmt.Errorf("failed to delete vault: %w", err)
		}
		if cfg.DefaultVault == sum.ID {
			cfg.DefaultVault = ""
			if err := cfg.Save(baseDir); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault '%s' deleted\n", sum.Name)
		return nil
	},
}

var vaultExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the selected vault, still encrypted",
	Long: `Export writes the stored vault record as JSON. The entries stay
encrypted under the master password; the file can be imported on any
machine and unlocked with the same password.

Examples:
  keysmith vault export -o personal.json
  keysmith vault export --vault Work > work.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sum, err := resolveVault(ctx)
		if err != nil {
			return err
		}
		data, err := mgr.Export(ctx, sum.ID)
		if err != nil {
			return fmt.Errorf("failed to export vault: %w", err)
		}

		if vaultExportOutput == "" {
			if _, err := cmd.OutOrStdout().Write(append(data, '\n')); err != nil {
				return err
			}
		} else {
			if err := writeExportFile(vaultExportOutput, data, vaultExportForce); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Vault '%s' exported to %s\n", sum.Name, vaultExportOutput)
		}

		prefs.MarkBackup(time.Now())
		return saveSettings(ctx)
	},
}

var vaultImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a vault exported with 'vault export'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInputFile(args[0])
		if err != nil {
			return err
		}
		sum, err := mgr.Import(cmd.Context(), data)
		if err != nil {
			return fmt.Errorf("failed to import vault: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault '%s' imported as %s\n", sum.Name, sum.ID)
		return nil
	},
}

// writeExportFile writes data with owner-only permissions, refusing to
// replace an existing file unless force is set.
func writeExportFile(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", path)
		}
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}

// readInputFile reads an import file, refusing symlinks.
func readInputFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to access file: %w", err)
	}

	// Security check: reject symlinks
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("security: refusing to read symlink: %s", absPath)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
