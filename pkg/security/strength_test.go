package security

import (
	"math"
	"strings"
	"testing"
)

func TestPasswordStrength_String(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     string
	}{
		{PasswordWeak, "Weak"},
		{PasswordFair, "Fair"},
		{PasswordGood, "Good"},
		{PasswordStrong, "Strong"},
		{PasswordStrength(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.strength.String(); got != tt.want {
				t.Errorf("PasswordStrength.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPasswordStrength_Points(t *testing.T) {
	tests := []struct {
		strength PasswordStrength
		want     int
	}{
		{PasswordWeak, 0},
		{PasswordFair, 8},
		{PasswordGood, 17},
		{PasswordStrong, 25},
		{PasswordStrength(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.strength.String(), func(t *testing.T) {
			if got := tt.strength.Points(); got != tt.want {
				t.Errorf("PasswordStrength.Points() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrengthForBits(t *testing.T) {
	tests := []struct {
		bits float64
		want PasswordStrength
	}{
		{0, PasswordWeak},
		{49.99, PasswordWeak},
		{50, PasswordFair},
		{79.9, PasswordFair},
		{80, PasswordGood},
		{109.9, PasswordGood},
		{110, PasswordStrong},
		{300, PasswordStrong},
	}
	for _, tt := range tests {
		if got := StrengthForBits(tt.bits); got != tt.want {
			t.Errorf("StrengthForBits(%v) = %v, want %v", tt.bits, got, tt.want)
		}
	}
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantPool int
		wantLen  int
	}{
		{"empty", "", 0, 0},
		{"lower", "abcdef", 26, 6},
		{"upper", "ABC", 26, 3},
		{"digits", "12345678", 10, 8},
		{"lower+upper", "abcDEF", 52, 6},
		{"alnum", "abcDEF123", 62, 9},
		{"all classes", "aB3!", 94, 4},
		{"unicode counts runes as other", "héllo", 58, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Inspect(tt.value)
			if got.Pool != tt.wantPool || got.Length != tt.wantLen {
				t.Errorf("Inspect(%q) pool/len = %d/%d, want %d/%d", tt.value, got.Pool, got.Length, tt.wantPool, tt.wantLen)
			}
			want := Bits(tt.wantLen, tt.wantPool)
			if math.Abs(got.Bits-want) > 1e-9 {
				t.Errorf("Inspect(%q).Bits = %v, want %v", tt.value, got.Bits, want)
			}
		})
	}
}

func TestStrength(t *testing.T) {
	tests := []struct {
		value string
		want  PasswordStrength
	}{
		{"password", PasswordWeak},                    // 8*log2(26) ≈ 37.6
		{"Tr0ub4dor&3", PasswordFair},                 // 11*log2(94) ≈ 72.1
		{"abcdefghijklmnopqr", PasswordGood},          // 18*log2(26) ≈ 84.6
		{"correcthorsebatterystaple", PasswordStrong}, // 25*log2(26) ≈ 117.5
		{strings.Repeat("aB3!", 5), PasswordStrong},   // 20*log2(94) ≈ 131.1
	}

	for _, tt := range tests {
		if got := Strength(tt.value); got != tt.want {
			t.Errorf("Strength(%q) = %v (%.1f bits), want %v", tt.value, got, Inspect(tt.value).Bits, tt.want)
		}
	}
}

func TestEntropyMonotonic(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 40; n++ {
		bits := Inspect(strings.Repeat("a", n)).Bits
		if bits < prev {
			t.Fatalf("Inspect bits decreased at length %d: %v < %v", n, bits, prev)
		}
		prev = bits
	}

	// Same length, one more character class each step.
	prev = 0
	for _, s := range []string{"abcd", "abcD", "abD1", "aD1!"} {
		bits := Inspect(s).Bits
		if bits < prev {
			t.Errorf("Inspect(%q) = %v bits, fewer than previous %v", s, bits, prev)
		}
		prev = bits
	}

	if PassphraseBits(5, 256, false, 0) <= PassphraseBits(4, 256, false, 0) {
		t.Error("PassphraseBits must grow with word count")
	}
	if PassphraseBits(4, 256, true, 8) <= PassphraseBits(4, 256, true, 0) {
		t.Error("appended symbol must add entropy")
	}
}

func TestPassphraseBits(t *testing.T) {
	got := PassphraseBits(4, 256, true, 8)
	want := 4*8 + math.Log2(100) + 3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("PassphraseBits(4, 256, true, 8) = %v, want %v", got, want)
	}
	if got := Bits(10, 1); got != 0 {
		t.Errorf("Bits(10, 1) = %v, want 0", got)
	}
}
