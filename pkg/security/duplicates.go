package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/forest6511/keysmith/pkg/securerandom"
	"github.com/forest6511/keysmith/pkg/vault"
)

// DuplicateGroup is a set of entries sharing one password.
type DuplicateGroup struct {
	EntryIDs []string `json:"entry_ids,omitempty"`
	Names    []string `json:"names,omitempty"`
	Count    int      `json:"count"`
}

// ensureKey creates the per-calculator HMAC key on first use.
func (c *Calculator) ensureKey() error {
	if c.hmacKey != nil {
		return nil
	}
	key, err := securerandom.Bytes(32)
	if err != nil {
		return err
	}
	c.hmacKey = key
	return nil
}

// FindDuplicates groups entries whose passwords are exactly equal.
// Passwords are compared by HMAC-SHA256 under a calculator-local key, so
// plaintext never becomes a map key and digests are useless outside this
// run. Groups are sorted by size, largest first.
func (c *Calculator) FindDuplicates(entries []vault.Entry, includeNames bool, limit int) ([]DuplicateGroup, error) {
	if err := c.ensureKey(); err != nil {
		return nil, err
	}

	byHash := make(map[string][]int)
	var order []string
	for i := range entries {
		pw := entries[i].Password()
		if pw == "" {
			continue
		}
		h := computeValueHash(pw, c.hmacKey)
		if _, seen := byHash[h]; !seen {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], i)
	}

	var groups []DuplicateGroup
	for _, h := range order {
		idx := byHash[h]
		if len(idx) <= 1 {
			continue
		}
		g := DuplicateGroup{Count: len(idx)}
		if includeNames {
			for _, i := range idx {
				g.EntryIDs = append(g.EntryIDs, entries[i].ID)
				g.Names = append(g.Names, entries[i].Name)
			}
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

// computeValueHash computes HMAC-SHA256 of a value with the session key.
func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
