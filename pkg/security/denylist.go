package security

import "strings"

// denylist holds passwords that appear at the top of every breach corpus.
var denylist = func() map[string]struct{} {
	m := make(map[string]struct{}, len(commonPasswords))
	for _, p := range commonPasswords {
		m[p] = struct{}{}
	}
	return m
}()

var commonPasswords = []string{
	"password", "123456", "12345678", "qwerty", "abc123", "monkey", "1234567",
	"letmein", "trustno1", "dragon", "baseball", "iloveyou", "master",
	"sunshine", "ashley", "bailey", "passw0rd", "shadow", "123123", "654321",
	"superman", "qazwsx", "michael", "football", "password1", "password123",
	"welcome", "welcome1", "p@ssw0rd", "admin", "login", "princess",
	"starwars", "solo", "qwerty123", "!@#$%^&*", "admin123", "root", "toor",
	"pass", "test", "guest", "changeme", "123456789", "12345", "1234", "123",
	"1", "password!", "winter", "summer", "spring", "autumn", "fall", "hello",
	"charlie", "donald", "jordan", "thomas", "aaaaaa", "0000", "00000",
	"696969", "assword", "fuckoff", "fuckyou", "fuck", "shit", "secret",
	"private", "access",
}

// IsDenylisted reports whether the lowercased password is a known common
// password. Matching is exact.
func IsDenylisted(password string) bool {
	_, ok := denylist[strings.ToLower(password)]
	return ok
}
