// Package totp computes RFC 6238 time-based one-time passwords
// (HMAC-SHA1, 30-second step, 6 digits) from base32 shared secrets.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
)

const (
	// Period is the time step in seconds.
	Period = 30

	// Digits is the length of generated codes.
	Digits = 6

	// Placeholder is displayed when no code can be computed.
	Placeholder = "------"

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

// ErrMalformedSecret indicates a secret that decodes to no key bytes.
var ErrMalformedSecret = errors.New("totp: malformed secret")

// DecodeBase32 decodes an RFC 4648 base32 secret leniently: input is
// upper-cased, characters outside A-Z2-7 (spaces, dashes, padding) are
// dropped and a trailing partial byte is discarded.
func DecodeBase32(secret string) ([]byte, error) {
	var (
		out    []byte
		buffer uint32
		bits   uint
	)
	for _, r := range strings.ToUpper(secret) {
		v := strings.IndexRune(alphabet, r)
		if v < 0 {
			continue
		}
		buffer = buffer<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>bits))
			buffer &= 1<<bits - 1
		}
	}
	if len(out) == 0 {
		return nil, ErrMalformedSecret
	}
	return out, nil
}

// ParseSecret accepts either a bare base32 secret or an otpauth:// URI
// and returns the base32 secret it carries.
func ParseSecret(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), "otpauth://") {
		if err := ValidateSecret(s); err != nil {
			return "", err
		}
		return s, nil
	}
	key, err := otp.NewKeyFromURL(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	secret := key.Secret()
	if err := ValidateSecret(secret); err != nil {
		return "", err
	}
	return secret, nil
}

// ValidateSecret checks a secret before it is stored. Unlike DecodeBase32
// it rejects any character outside the base32 alphabet other than spaces,
// dashes and '=' padding.
func ValidateSecret(secret string) error {
	for _, r := range strings.ToUpper(secret) {
		if strings.ContainsRune(alphabet, r) {
			continue
		}
		switch r {
		case ' ', '-', '=':
			continue
		}
		return fmt.Errorf("%w: invalid character %q", ErrMalformedSecret, r)
	}
	_, err := DecodeBase32(secret)
	return err
}

// HOTP computes the RFC 4226 code for key and counter.
func HOTP(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%0*d", Digits, value%1_000_000)
}

// Generate returns the code for secret at unix time t. ok is false when
// the secret is malformed or t is before the epoch; callers show
// Placeholder in that case.
func Generate(secret string, t int64) (code string, ok bool) {
	if t < 0 {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(secret)), "otpauth://") {
		s, err := ParseSecret(secret)
		if err != nil {
			return "", false
		}
		secret = s
	}
	key, err := DecodeBase32(secret)
	if err != nil {
		return "", false
	}
	return HOTP(key, uint64(t)/Period), true
}

// SecondsRemaining is the number of seconds until the code for t rolls over.
func SecondsRemaining(t int64) int {
	return Period - int(((t%Period)+Period)%Period)
}

// Display returns the code or Placeholder.
func Display(secret string, t int64) string {
	if code, ok := Generate(secret, t); ok {
		return code
	}
	return Placeholder
}
