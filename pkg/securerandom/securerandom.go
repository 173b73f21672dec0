// Package securerandom draws unbiased integers, choices and permutations
// from the platform cryptographic random source.
//
// Every bounded draw uses rejection sampling over 32-bit values so that
// no residue class of the bound is favoured, including small bounds.
package securerandom

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// IDLength is the number of random bytes behind an identifier.
const IDLength = 16

const space = uint64(1) << 32

// Sentinel errors returned by securerandom functions.
var (
	// ErrInvalidBound indicates a bound outside (0, 2^32].
	ErrInvalidBound = errors.New("securerandom: bound must be in (0, 2^32]")

	// ErrEmptySequence indicates Choice was called with nothing to choose from.
	ErrEmptySequence = errors.New("securerandom: empty sequence")
)

// Reader is the entropy source. Tests may replace it to force specific draws.
var Reader io.Reader = rand.Reader

func uint32n() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(Reader, buf[:]); err != nil {
		return 0, fmt.Errorf("securerandom: failed to read random bytes: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Int returns a uniform integer in [0, max).
func Int(max int) (int, error) {
	if max <= 0 || uint64(max) > space {
		return 0, ErrInvalidBound
	}
	bound := uint64(max)
	limit := (space / bound) * bound
	for {
		raw, err := uint32n()
		if err != nil {
			return 0, err
		}
		if uint64(raw) < limit {
			return int(uint64(raw) % bound), nil
		}
	}
}

// Choice returns one element of seq picked uniformly.
func Choice[T any](seq []T) (T, error) {
	var zero T
	if len(seq) == 0 {
		return zero, ErrEmptySequence
	}
	i, err := Int(len(seq))
	if err != nil {
		return zero, err
	}
	return seq[i], nil
}

// Shuffle permutes seq in place (Fisher-Yates, last index down to 1).
func Shuffle[T any](seq []T) error {
	for i := len(seq) - 1; i > 0; i-- {
		j, err := Int(i + 1)
		if err != nil {
			return err
		}
		seq[i], seq[j] = seq[j], seq[i]
	}
	return nil
}

// Bytes returns n random bytes.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, fmt.Errorf("securerandom: failed to read random bytes: %w", err)
	}
	return b, nil
}

// ID returns a fresh hex identifier built from IDLength random bytes.
func ID() (string, error) {
	b, err := Bytes(IDLength)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
