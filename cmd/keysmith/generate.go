package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/keysmith/internal/clipboard"
	"github.com/forest6511/keysmith/pkg/generator"
)

const (
	minPasswordLength     = 8
	defaultPasswordLength = 20
	defaultPasswordCount  = 1
	maxPasswordCount      = 100
)

// Generate command flags
var (
	generateLength         int
	generateCount          int
	generateNoSymbols      bool
	generateNoNumbers      bool
	generateNoUppercase    bool
	generateNoLowercase    bool
	generateAvoidAmbiguous bool
	generatePassphrase     bool
	generateWords          int
	generateSeparator      string
	generateCase           string
	generateNoNumber       bool
	generateSymbol         bool
	generateCopy           bool
	generateJSON           bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.IntVarP(&generateLength, "length", "l", defaultPasswordLength, fmt.Sprintf("Password length (%d-%d)", minPasswordLength, generator.MaxLength))
	f.IntVarP(&generateCount, "count", "n", defaultPasswordCount, "Number of values to generate (1-100)")
	f.BoolVar(&generateNoSymbols, "no-symbols", false, "Exclude symbols")
	f.BoolVar(&generateNoNumbers, "no-numbers", false, "Exclude numbers")
	f.BoolVar(&generateNoUppercase, "no-uppercase", false, "Exclude uppercase letters")
	f.BoolVar(&generateNoLowercase, "no-lowercase", false, "Exclude lowercase letters")
	f.BoolVar(&generateAvoidAmbiguous, "avoid-ambiguous", false, "Exclude look-alike characters ("+generator.Ambiguous+")")
	f.BoolVarP(&generatePassphrase, "passphrase", "p", false, "Generate a passphrase of words")
	f.IntVarP(&generateWords, "words", "w", 0, "Passphrase word count (default: audit_words setting)")
	f.StringVar(&generateSeparator, "separator", "-", "Passphrase word separator")
	f.StringVar(&generateCase, "case", string(generator.CaseCapitalize), "Passphrase case: lower, capitalize or random")
	f.BoolVar(&generateNoNumber, "no-number", false, "Do not append a number to the passphrase")
	f.BoolVar(&generateSymbol, "symbol", false, "Append a symbol to the passphrase")
	f.BoolVarP(&generateCopy, "copy", "c", false, "Copy first value to clipboard (accessible to all processes)")
	f.BoolVar(&generateJSON, "json", false, "Output values with entropy in JSON format")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords and passphrases",
	Long: `Generate cryptographically secure random passwords or passphrases.

Every selected character category is guaranteed to appear at least once.

Examples:
  # Generate a 20-character password (default)
  keysmith generate

  # Generate a 32-character password without symbols
  keysmith generate -l 32 --no-symbols

  # Generate 5 passwords without look-alike characters
  keysmith generate -n 5 --avoid-ambiguous

  # Generate a six word passphrase
  keysmith generate --passphrase -w 6 --separator " "

  # Generate and copy to clipboard
  keysmith generate -c`,
	RunE: executeGenerate,
}

func executeGenerate(cmd *cobra.Command, args []string) error {
	if err := validateGenerateFlags(); err != nil {
		return err
	}
	c := generatorConfig()

	results := make([]*generator.Result, generateCount)
	for i := range results {
		r, err := generator.Generate(c)
		if err != nil {
			return fmt.Errorf("failed to generate: %w", err)
		}
		results[i] = r
	}

	out := cmd.OutOrStdout()
	if generateJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		for _, r := range results {
			fmt.Fprintln(out, r.Value)
		}
		fmt.Fprintf(os.Stderr, "Strength: %s (%.0f bits)\n", results[0].Strength, results[0].Bits)
	}

	if generateCopy {
		if err := clipboard.New().WriteText(results[0].Value); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "Copied to clipboard")
		}
	}
	return nil
}

// validateGenerateFlags validates the generate command flags
func validateGenerateFlags() error {
	if !generatePassphrase {
		if generateLength < minPasswordLength {
			return fmt.Errorf("password length must be at least %d characters", minPasswordLength)
		}
		if generateLength > generator.MaxLength {
			return fmt.Errorf("password length must be at most %d characters", generator.MaxLength)
		}
	}
	if generateWords < 0 || generateWords > generator.MaxWordCount {
		return fmt.Errorf("word count must be between 1 and %d", generator.MaxWordCount)
	}
	if generateCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if generateCount > maxPasswordCount {
		return fmt.Errorf("count must be at most %d", maxPasswordCount)
	}
	return nil
}

// generatorConfig builds the generator configuration from flags.
func generatorConfig() generator.Config {
	if generatePassphrase {
		c := generator.DefaultPassphraseConfig()
		c.WordCount = generateWords
		if c.WordCount == 0 {
			c.WordCount = prefs.AuditWords
		}
		c.Separator = generateSeparator
		c.Case = generator.Case(generateCase)
		c.AppendNumber = !generateNoNumber
		c.AppendSymbol = generateSymbol
		return c
	}

	c := generator.DefaultConfig()
	c.Length = generateLength
	c.Lower = !generateNoLowercase
	c.Upper = !generateNoUppercase
	c.Digits = !generateNoNumbers
	c.Symbols = !generateNoSymbols
	c.AvoidAmbiguous = generateAvoidAmbiguous
	return c
}
