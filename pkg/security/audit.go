package security

import (
	"fmt"
	"math"
	"time"

	"github.com/forest6511/keysmith/pkg/vault"
)

// Default audit thresholds.
const (
	DefaultEntropyBits = 50
	DefaultMaxAgeDays  = 365
)

// Thresholds tune the audit.
type Thresholds struct {
	EntropyBits float64 `json:"entropy_bits"` // weak below this
	MaxAgeDays  int     `json:"max_age_days"` // old above this
}

// DefaultThresholds returns the audit defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{EntropyBits: DefaultEntropyBits, MaxAgeDays: DefaultMaxAgeDays}
}

// Finding is one entry flagged by the audit.
type Finding struct {
	Entry  vault.Entry `json:"-"`
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Reason string      `json:"reason"`
}

// Report groups audit findings. An entry may appear in several groups.
type Report struct {
	Weak       []Finding `json:"weak"`
	Reused     []Finding `json:"reused"`
	Old        []Finding `json:"old"`
	Denylisted []Finding `json:"denylisted"`
	Checked    int       `json:"checked"` // entries with a password
}

// Total is the number of findings across all groups.
func (r *Report) Total() int {
	return len(r.Weak) + len(r.Reused) + len(r.Old) + len(r.Denylisted)
}

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Calculator audits and scores entry sets.
type Calculator struct {
	thresholds Thresholds
	hmacKey    []byte // session-local key for reuse detection
}

// NewCalculator returns a calculator using th.
func NewCalculator(th Thresholds) *Calculator {
	return &Calculator{thresholds: th}
}

// Audit checks entries for weak, reused, old and denylisted passwords.
// Entries without a password are skipped; entries are not modified.
func Audit(entries []vault.Entry, th Thresholds, now time.Time) (*Report, error) {
	return NewCalculator(th).Audit(entries, now)
}

// Audit runs the audit at time now.
func (c *Calculator) Audit(entries []vault.Entry, now time.Time) (*Report, error) {
	if err := c.ensureKey(); err != nil {
		return nil, err
	}

	r := &Report{
		Weak:       []Finding{},
		Reused:     []Finding{},
		Old:        []Finding{},
		Denylisted: []Finding{},
	}
	nowMs := now.UnixMilli()
	maxAge := int64(c.thresholds.MaxAgeDays) * dayMillis

	lastSeen := make(map[string]int) // password digest -> index of latest entry
	inReused := make(map[int]bool)

	for i := range entries {
		e := &entries[i]
		pw := e.Password()
		if pw == "" {
			continue
		}
		r.Checked++

		if in := Inspect(pw); in.Bits < c.thresholds.EntropyBits {
			r.Weak = append(r.Weak, finding(e, fmt.Sprintf("%s (%d bits)", in.Strength, int(math.Floor(in.Bits)))))
		}

		h := computeValueHash(pw, c.hmacKey)
		if prev, ok := lastSeen[h]; ok {
			if !inReused[prev] {
				inReused[prev] = true
				r.Reused = append(r.Reused, finding(&entries[prev], "Reused password"))
			}
			inReused[i] = true
			r.Reused = append(r.Reused, finding(e, "Reused password"))
		}
		lastSeen[h] = i

		changed := e.Modified
		if e.Created > changed {
			changed = e.Created
		}
		if age := nowMs - changed; age > maxAge {
			r.Old = append(r.Old, finding(e, fmt.Sprintf("%d days old", age/dayMillis)))
		}

		if IsDenylisted(pw) {
			r.Denylisted = append(r.Denylisted, finding(e, "Common password"))
		}
	}
	return r, nil
}

func finding(e *vault.Entry, reason string) Finding {
	return Finding{Entry: e.Clone(), ID: e.ID, Name: e.Name, Reason: reason}
}
