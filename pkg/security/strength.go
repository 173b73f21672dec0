// Package security provides the entropy model, password audit and security
// scoring for vault entries.
package security

import (
	"math"
	"unicode/utf8"
)

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak is below 50 bits.
	PasswordWeak PasswordStrength = iota
	// PasswordFair is below 80 bits.
	PasswordFair
	// PasswordGood is below 110 bits.
	PasswordGood
	// PasswordStrong is 110 bits or more.
	PasswordStrong
)

// Bucket boundaries in bits, shared by generated and inspected strings.
const (
	FairBits   = 50
	GoodBits   = 80
	StrongBits = 110
)

// Inspection pool sizes per character class.
const (
	PoolLower = 26
	PoolUpper = 26
	PoolDigit = 10
	PoolOther = 32
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level.
// Used in StrengthScore calculation: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordWeak:
		return 0
	case PasswordFair:
		return 8
	case PasswordGood:
		return 17
	case PasswordStrong:
		return 25
	default:
		return 0
	}
}

// MarshalText encodes the strength as its label.
func (s PasswordStrength) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StrengthForBits maps an entropy estimate to its bucket.
func StrengthForBits(bits float64) PasswordStrength {
	switch {
	case bits < FairBits:
		return PasswordWeak
	case bits < GoodBits:
		return PasswordFair
	case bits < StrongBits:
		return PasswordGood
	default:
		return PasswordStrong
	}
}

// Bits is the entropy of length independent draws from a pool of poolSize.
func Bits(length, poolSize int) float64 {
	if length <= 0 || poolSize <= 1 {
		return 0
	}
	return float64(length) * math.Log2(float64(poolSize))
}

// PassphraseBits is the entropy of wordCount independent words from a
// list of listSize, plus log2(100) for an appended number and
// log2(symbolSetSize) for an appended symbol (0 when none).
func PassphraseBits(wordCount, listSize int, number bool, symbolSetSize int) float64 {
	bits := Bits(wordCount, listSize)
	if number {
		bits += math.Log2(100)
	}
	if symbolSetSize > 1 {
		bits += math.Log2(float64(symbolSetSize))
	}
	return bits
}

// Inspection is the entropy estimate of a string whose generation
// parameters are unknown.
type Inspection struct {
	Length   int              `json:"length"`
	Pool     int              `json:"pool"`
	Bits     float64          `json:"bits"`
	Strength PasswordStrength `json:"strength"`
}

// Inspect infers a pool size from the character classes present in s
// (lowercase 26, uppercase 26, digit 10, anything else 32) and computes
// length * log2(pool). Length counts runes.
func Inspect(s string) Inspection {
	var lower, upper, digit, other bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}

	pool := 0
	if lower {
		pool += PoolLower
	}
	if upper {
		pool += PoolUpper
	}
	if digit {
		pool += PoolDigit
	}
	if other {
		pool += PoolOther
	}

	n := utf8.RuneCountInString(s)
	bits := Bits(n, pool)
	return Inspection{Length: n, Pool: pool, Bits: bits, Strength: StrengthForBits(bits)}
}

// Strength buckets s by inspection entropy.
func Strength(s string) PasswordStrength {
	return Inspect(s).Strength
}
