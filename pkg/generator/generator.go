// Package generator produces random passwords and passphrases.
//
// All randomness comes from securerandom, so every character and word is an
// unbiased draw from crypto/rand. Configurations are validated before any
// random value is drawn.
package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forest6511/keysmith/pkg/securerandom"
	"github.com/forest6511/keysmith/pkg/security"
)

// Character sets.
const (
	Upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Lower   = "abcdefghijklmnopqrstuvwxyz"
	Digits  = "0123456789"
	Symbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	// Ambiguous characters removed when AvoidAmbiguous is set.
	Ambiguous = "O0Il1|S5B8Z2"

	// DefaultSymbolSet is used for a passphrase's appended symbol.
	DefaultSymbolSet = "!@#$%^&*"
)

// Limits
const (
	MaxLength    = 1024
	MaxWordCount = 64
)

// ErrInvalidConfig is returned for configurations that cannot produce a value.
var ErrInvalidConfig = errors.New("generator: invalid configuration")

// Mode selects characters or words.
type Mode string

const (
	ModePassword   Mode = "password"
	ModePassphrase Mode = "passphrase"
)

// Case is the passphrase capitalization.
type Case string

const (
	CaseLower      Case = "lower"
	CaseCapitalize Case = "capitalize"
	CaseRandom     Case = "random"
)

// Config describes what to generate.
type Config struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// Password mode
	Length         int  `json:"length" yaml:"length"`
	Upper          bool `json:"upper" yaml:"upper"`
	Lower          bool `json:"lower" yaml:"lower"`
	Digits         bool `json:"digits" yaml:"digits"`
	Symbols        bool `json:"symbols" yaml:"symbols"`
	AvoidAmbiguous bool `json:"avoidAmbiguous" yaml:"avoid_ambiguous"`

	// Passphrase mode
	WordCount    int    `json:"wordCount" yaml:"word_count"`
	Separator    string `json:"separator" yaml:"separator"`
	Case         Case   `json:"case" yaml:"case"` // empty capitalizes
	AppendNumber bool   `json:"appendNumber" yaml:"append_number"`
	AppendSymbol bool   `json:"appendSymbol" yaml:"append_symbol"`
	SymbolSet    string `json:"symbolSet,omitempty" yaml:"symbol_set,omitempty"`
}

// DefaultConfig returns a 20-character password using every category.
func DefaultConfig() Config {
	return Config{
		Mode:         ModePassword,
		Length:       20,
		Upper:        true,
		Lower:        true,
		Digits:       true,
		Symbols:      true,
		WordCount:    4,
		Separator:    "-",
		Case:         CaseCapitalize,
		AppendNumber: true,
		SymbolSet:    DefaultSymbolSet,
	}
}

// DefaultPassphraseConfig returns the default passphrase configuration.
func DefaultPassphraseConfig() Config {
	c := DefaultConfig()
	c.Mode = ModePassphrase
	return c
}

// Result is a generated value with its configuration-derived entropy.
type Result struct {
	Value    string                    `json:"value"`
	Mode     Mode                      `json:"mode"`
	Bits     float64                   `json:"bits"`
	Strength security.PasswordStrength `json:"strength"`
}

// categories returns the enabled character sets, with ambiguous
// characters removed when requested.
func (c Config) categories() []string {
	var sets []string
	for _, cat := range []struct {
		on  bool
		set string
	}{
		{c.Lower, Lower},
		{c.Upper, Upper},
		{c.Digits, Digits},
		{c.Symbols, Symbols},
	} {
		if !cat.on {
			continue
		}
		set := cat.set
		if c.AvoidAmbiguous {
			set = stripAmbiguous(set)
		}
		sets = append(sets, set)
	}
	return sets
}

func stripAmbiguous(set string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(Ambiguous, r) {
			return -1
		}
		return r
	}, set)
}

func (c Config) symbolSet() string {
	if c.SymbolSet == "" {
		return DefaultSymbolSet
	}
	return c.SymbolSet
}

// Validate reports why c cannot be generated from.
func (c Config) Validate() error {
	switch c.Mode {
	case ModePassword, "":
		cats := c.categories()
		if len(cats) == 0 {
			return fmt.Errorf("%w: select at least one character category", ErrInvalidConfig)
		}
		pool := 0
		for _, set := range cats {
			if set == "" {
				return fmt.Errorf("%w: a selected category is empty", ErrInvalidConfig)
			}
			pool += len(set)
		}
		if pool == 0 {
			return fmt.Errorf("%w: character pool is empty", ErrInvalidConfig)
		}
		if c.Length < len(cats) {
			return fmt.Errorf("%w: length %d is shorter than the %d selected categories", ErrInvalidConfig, c.Length, len(cats))
		}
		if c.Length > MaxLength {
			return fmt.Errorf("%w: length exceeds %d", ErrInvalidConfig, MaxLength)
		}
	case ModePassphrase:
		if c.WordCount < 1 {
			return fmt.Errorf("%w: word count must be at least 1", ErrInvalidConfig)
		}
		if c.WordCount > MaxWordCount {
			return fmt.Errorf("%w: word count exceeds %d", ErrInvalidConfig, MaxWordCount)
		}
		switch c.Case {
		case CaseLower, CaseCapitalize, CaseRandom, "":
		default:
			return fmt.Errorf("%w: unknown case %q", ErrInvalidConfig, c.Case)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	return nil
}

// Generate produces a value for c.
func Generate(c Config) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Mode == ModePassphrase {
		return generatePassphrase(c)
	}
	return generatePassword(c)
}

// generatePassword picks one character per category, fills the rest from
// the combined pool and shuffles the result.
func generatePassword(c Config) (*Result, error) {
	cats := c.categories()
	var pool []rune
	for _, set := range cats {
		pool = append(pool, []rune(set)...)
	}

	out := make([]rune, 0, c.Length)
	for _, set := range cats {
		r, err := securerandom.Choice([]rune(set))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	for len(out) < c.Length {
		r, err := securerandom.Choice(pool)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := securerandom.Shuffle(out); err != nil {
		return nil, err
	}

	bits := security.Bits(c.Length, len(pool))
	return &Result{
		Value:    string(out),
		Mode:     ModePassword,
		Bits:     bits,
		Strength: security.StrengthForBits(bits),
	}, nil
}

func generatePassphrase(c Config) (*Result, error) {
	words := make([]string, c.WordCount)
	for i := range words {
		w, err := securerandom.Choice(Wordlist)
		if err != nil {
			return nil, err
		}
		if words[i], err = applyCase(w, c.Case); err != nil {
			return nil, err
		}
	}

	if c.AppendNumber {
		n, err := randomDigits()
		if err != nil {
			return nil, err
		}
		words = append(words, n)
	}
	value := strings.Join(words, c.Separator)

	symbols := 0
	if c.AppendSymbol {
		set := []rune(c.symbolSet())
		r, err := securerandom.Choice(set)
		if err != nil {
			return nil, err
		}
		value += string(r)
		symbols = len(set)
	}

	bits := security.PassphraseBits(c.WordCount, len(Wordlist), c.AppendNumber, symbols)
	return &Result{
		Value:    value,
		Mode:     ModePassphrase,
		Bits:     bits,
		Strength: security.StrengthForBits(bits),
	}, nil
}

func applyCase(w string, c Case) (string, error) {
	switch c {
	case CaseCapitalize, "":
		return strings.ToUpper(w[:1]) + w[1:], nil
	case CaseRandom:
		b := []byte(w)
		for i := range b {
			flip, err := securerandom.Int(2)
			if err != nil {
				return "", err
			}
			if flip == 1 {
				b[i] = strings.ToUpper(string(b[i]))[0]
			}
		}
		return string(b), nil
	default:
		return w, nil
	}
}

// randomDigits returns 2 or 3 random decimal digits.
func randomDigits() (string, error) {
	extra, err := securerandom.Int(2)
	if err != nil {
		return "", err
	}
	digits := make([]byte, 2+extra)
	for i := range digits {
		d, err := securerandom.Int(10)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d)
	}
	return string(digits), nil
}

// Strength estimates s by inspection; use it for strings whose generation
// parameters are unknown.
func Strength(s string) security.Inspection {
	return security.Inspect(s)
}
