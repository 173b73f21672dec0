package crypto_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/forest6511/keysmith/pkg/crypto"
)

// BenchmarkDeriveKey measures PBKDF2 key derivation at the production work factor.
func BenchmarkDeriveKey(b *testing.B) {
	password := []byte("testpassword123!")
	salt := make([]byte, crypto.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key, err := crypto.DeriveKey(context.Background(), password, salt)
		if err != nil {
			b.Fatal(err)
		}
		key.Destroy()
	}
}

func newBenchKey(b *testing.B) *crypto.Key {
	b.Helper()
	raw := make([]byte, crypto.KeyLength)
	if _, err := rand.Read(raw); err != nil {
		b.Fatal(err)
	}
	key, err := crypto.NewKey(raw)
	if err != nil {
		b.Fatal(err)
	}
	return key
}

// BenchmarkSeal measures AES-256-GCM encryption with a 1KB payload.
func BenchmarkSeal(b *testing.B) {
	key := newBenchKey(b)
	data := make([]byte, 1024)

	b.ReportAllocs()
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.Seal(key, data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkOpen measures AES-256-GCM decryption with a 1KB payload.
func BenchmarkOpen(b *testing.B) {
	key := newBenchKey(b)
	env, err := crypto.Seal(key, make([]byte, 1024))
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.Open(key, env); err != nil {
			b.Fatal(err)
		}
	}
}
