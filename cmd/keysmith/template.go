package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/pkg/vault"
)

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd)
}

var templateCmd = &cobra.Command{
	Use:         "template",
	Short:       "Entry templates",
	Annotations: map[string]string{skipSetupAnnotation: "true"},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entry types and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, t := range vault.Templates {
			fmt.Fprintf(out, "%s: %s\n", t.Type, t.Description)
			for _, f := range t.Fields {
				fmt.Fprintf(out, "  %-12s %s\n", f.Name, fieldFlags(f))
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

// fieldFlags describes a template field's attributes.
func fieldFlags(f vault.TemplateField) string {
	var flags []string
	if f.Required {
		flags = append(flags, "required")
	}
	if f.Sensitive {
		flags = append(flags, "sensitive")
	}
	if len(f.Options) > 0 {
		flags = append(flags, "one of "+strings.Join(f.Options, "/"))
	}
	if len(flags) == 0 {
		return "optional"
	}
	return strings.Join(flags, ", ")
}
