// Package crypto provides the key derivation and envelope encryption used
// by keysmith vaults.
//
// This package implements PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM
// authenticated encryption. Derived keys are held inside a memguard enclave
// and cannot be read, printed or serialized by callers.
//
// # Security Features
//
//   - PBKDF2-HMAC-SHA256 key derivation (600,000 iterations)
//   - AES-256-GCM authenticated encryption with a fresh 96-bit IV per call
//   - A single generic error for every decryption failure
//   - Keys sealed in memguard enclaves and wiped on Destroy
//
// # Example Usage
//
//	salt, _ := securerandom.Bytes(crypto.SaltLength)
//	key, err := crypto.DeriveKey(ctx, []byte("password"), salt)
//	defer key.Destroy()
//
//	env, err := crypto.EncryptJSON(key, payload)
//	err = crypto.DecryptJSON(key, env, &payload)
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/forest6511/keysmith/pkg/securerandom"
)

// Key derivation and cipher parameters.
const (
	// PBKDF2Iterations is the PBKDF2-HMAC-SHA256 work factor.
	PBKDF2Iterations = 600_000

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of per-vault salts in bytes.
	SaltLength = 32
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates raw key material is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrEmptySalt indicates DeriveKey was called without a salt.
	ErrEmptySalt = errors.New("crypto: salt must not be empty")

	// ErrDecryptionFailed is returned for every decryption failure: wrong key,
	// tampered or truncated ciphertext, malformed IV or undecodable payload.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")

	// ErrKeyDestroyed indicates the key was used after Destroy.
	ErrKeyDestroyed = errors.New("crypto: key destroyed")

	// ErrKeyNotExportable is returned when something tries to serialize a Key.
	ErrKeyNotExportable = errors.New("crypto: key is not exportable")
)

// Key is a 256-bit symmetric key sealed in a memguard enclave.
type Key struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// NewKey seals raw key material. raw is wiped before NewKey returns.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeyLength {
		SecureWipe(raw)
		return nil, ErrInvalidKeyLength
	}
	return &Key{enclave: memguard.NewEnclave(raw)}, nil
}

// DeriveKey derives a vault key from a password and salt using PBKDF2.
//
// The derivation is CPU bound and not interruptible; ctx is checked before
// and after it so a cancelled caller does not receive a key.
func DeriveKey(ctx context.Context, password, salt []byte) (*Key, error) {
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := pbkdf2.Key(password, salt, PBKDF2Iterations, KeyLength, sha256.New)
	if err := ctx.Err(); err != nil {
		SecureWipe(raw)
		return nil, err
	}
	return NewKey(raw)
}

// Destroy releases the enclave. Destroy is idempotent.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.enclave = nil
	k.mu.Unlock()
}

// Destroyed reports whether Destroy has been called.
func (k *Key) Destroyed() bool {
	if k == nil {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enclave == nil
}

// String never reveals key material.
func (k *Key) String() string { return "crypto.Key(redacted)" }

// MarshalJSON refuses to serialize key material.
func (k *Key) MarshalJSON() ([]byte, error) { return nil, ErrKeyNotExportable }

// MarshalText refuses to serialize key material.
func (k *Key) MarshalText() ([]byte, error) { return nil, ErrKeyNotExportable }

// use opens the enclave for the duration of fn.
func (k *Key) use(fn func(raw []byte) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return ErrKeyDestroyed
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("crypto: failed to open key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func newGCM(raw []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Envelope is the persisted form of an encrypted payload. Both fields are
// base64 in JSON; Data carries the GCM tag appended to the ciphertext.
type Envelope struct {
	IV   []byte `json:"iv"`
	Data []byte `json:"data"`
}

// Valid reports whether the envelope has the shape Open expects.
func (e *Envelope) Valid() bool {
	return e != nil && len(e.IV) == NonceLength && len(e.Data) > 0
}

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(key *Key, plaintext []byte) (*Envelope, error) {
	var env *Envelope
	err := key.use(func(raw []byte) error {
		gcm, err := newGCM(raw)
		if err != nil {
			return err
		}
		iv, err := securerandom.Bytes(NonceLength)
		if err != nil {
			return fmt.Errorf("crypto: failed to generate nonce: %w", err)
		}
		env = &Envelope{IV: iv, Data: gcm.Seal(nil, iv, plaintext, nil)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Open authenticates and decrypts env. Every failure to recover the
// plaintext is reported as ErrDecryptionFailed.
func Open(key *Key, env *Envelope) ([]byte, error) {
	var plaintext []byte
	err := key.use(func(raw []byte) error {
		gcm, err := newGCM(raw)
		if err != nil {
			return err
		}
		if env == nil || len(env.IV) != NonceLength || len(env.Data) < gcm.Overhead() {
			return ErrDecryptionFailed
		}
		plaintext, err = gcm.Open(nil, env.IV, env.Data, nil)
		if err != nil {
			return ErrDecryptionFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptJSON serializes v and seals it under key.
func EncryptJSON(key *Key, v any) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to encode payload: %w", err)
	}
	defer SecureWipe(plaintext)
	return Seal(key, plaintext)
}

// DecryptJSON opens env and decodes the plaintext into v.
func DecryptJSON(key *Key, env *Envelope, v any) error {
	plaintext, err := Open(key, env)
	if err != nil {
		return err
	}
	defer SecureWipe(plaintext)
	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrDecryptionFailed
	}
	return nil
}

// Subkey derives an independent 32-byte key for info using HKDF-SHA256.
// The caller owns the returned slice and should wipe it when done.
func Subkey(key *Key, info string) ([]byte, error) {
	out := make([]byte, KeyLength)
	err := key.use(func(raw []byte) error {
		r := hkdf.New(sha256.New, raw, nil, []byte(info))
		if _, err := io.ReadFull(r, out); err != nil {
			return fmt.Errorf("crypto: failed to derive subkey: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SecureWipe overwrites b with zeros.
func SecureWipe(b []byte) {
	memguard.WipeBytes(b)
}
