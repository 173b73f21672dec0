package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/keysmith/pkg/activity"
	"github.com/forest6511/keysmith/pkg/securerandom"
)

// Filter selects entries in List.
type Filter struct {
	Query         string    // matched against name, username, url and tags
	Tags          []string  // entry must carry at least one
	FavoritesOnly bool
	Type          EntryType // empty matches all
}

// Entries returns copies of all entries in stored order.
func (m *Manager) Entries() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrLocked
	}
	out := make([]Entry, len(m.session.payload.Entries))
	for i, e := range m.session.payload.Entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// Entry returns a copy of entry id.
func (m *Manager) Entry(id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Entry{}, ErrLocked
	}
	i := indexOf(m.session.payload.Entries, id)
	if i < 0 {
		return Entry{}, ErrEntryNotFound
	}
	return m.session.payload.Entries[i].Clone(), nil
}

// Tags returns the vault's tag set.
func (m *Manager) Tags() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrLocked
	}
	return append([]string{}, m.session.payload.Tags...), nil
}

// List returns the entries matching f, pinned first, then favorites, then
// most recently modified.
func (m *Manager) List(f Filter) ([]Entry, error) {
	all, err := m.Entries()
	if err != nil {
		return nil, err
	}
	m.Touch()
	return FilterEntries(all, f), nil
}

// FilterEntries applies f to entries and sorts the result.
func FilterEntries(entries []Entry, f Filter) []Entry {
	query := foldString(strings.TrimSpace(f.Query))
	var out []Entry
	for _, e := range entries {
		if f.FavoritesOnly && !e.Favorite {
			continue
		}
		if f.Type != "" && e.Type() != f.Type {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(e.Tags, f.Tags) {
			continue
		}
		if query != "" && !strings.Contains(searchText(&e), query) {
			continue
		}
		out = append(out, e)
	}
	SortEntries(out)
	return out
}

// SortEntries orders pinned, then favorite, then most recently changed.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.Favorite != b.Favorite {
			return a.Favorite
		}
		return lastChanged(a) > lastChanged(b)
	})
}

func lastChanged(e Entry) int64 {
	if e.Modified != 0 {
		return e.Modified
	}
	return e.Created
}

var folder = cases.Fold()

// foldString normalizes s for case- and width-insensitive matching.
func foldString(s string) string {
	return folder.String(norm.NFKC.String(s))
}

func searchText(e *Entry) string {
	parts := []string{e.Name, e.Username(), e.URL()}
	parts = append(parts, e.Tags...)
	return foldString(strings.Join(parts, " "))
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func indexOf(entries []Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

// normalizeEntry trims the name, drops incomplete custom fields and
// de-duplicates tags.
func normalizeEntry(e *Entry) {
	e.Name = strings.TrimSpace(e.Name)

	custom := e.CustomFields[:0:0]
	for _, cf := range e.CustomFields {
		if cf.Label != "" && cf.Value != "" {
			custom = append(custom, cf)
		}
	}
	e.CustomFields = custom

	seen := make(map[string]bool, len(e.Tags))
	tags := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	e.Tags = tags
}

// collectTags is the sorted union of the payload's tag set and every
// entry's tags.
func collectTags(p Payload) []string {
	seen := make(map[string]bool)
	tags := []string{}
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, t := range p.Tags {
		add(t)
	}
	for _, e := range p.Entries {
		for _, t := range e.Tags {
			add(t)
		}
	}
	sort.Strings(tags)
	return tags
}

func newEntryID(existing []Entry) (string, error) {
	for {
		id, err := securerandom.ID()
		if err != nil {
			return "", fmt.Errorf("vault: failed to generate entry id: %w", err)
		}
		if indexOf(existing, id) < 0 {
			return id, nil
		}
	}
}

// AddEntry stores a new entry built from draft. ID, timestamps and
// history are assigned here; Favorite and Pinned are taken from draft.
func (m *Manager) AddEntry(ctx context.Context, draft Entry) (Entry, error) {
	e := draft.Clone()
	normalizeEntry(&e)
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}

	var added Entry
	err := m.mutate(ctx, activity.OpEntryAdd, "", func(p *Payload) error {
		id, err := newEntryID(p.Entries)
		if err != nil {
			return err
		}
		now := m.nowMillis()
		e.ID = id
		e.Created = now
		e.Modified = now
		e.PasswordHistory = nil
		p.Entries = append(p.Entries, e)
		added = e.Clone()
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return added, nil
}

// AddEntries stores several drafts in one save, as an import does.
func (m *Manager) AddEntries(ctx context.Context, drafts []Entry) (int, error) {
	prepared := make([]Entry, 0, len(drafts))
	for _, d := range drafts {
		e := d.Clone()
		normalizeEntry(&e)
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("%q: %w", d.Name, err)
		}
		prepared = append(prepared, e)
	}

	err := m.mutate(ctx, activity.OpVaultImport, "", func(p *Payload) error {
		now := m.nowMillis()
		for _, e := range prepared {
			id, err := newEntryID(p.Entries)
			if err != nil {
				return err
			}
			e.ID = id
			if e.Created == 0 {
				e.Created = now
			}
			if e.Modified < e.Created {
				e.Modified = e.Created
			}
			p.Entries = append(p.Entries, e)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(prepared), nil
}

// UpdateEntry replaces entry updated.ID with updated. When the password
// changes, the previous one is pushed onto the password history.
func (m *Manager) UpdateEntry(ctx context.Context, updated Entry) (Entry, error) {
	e := updated.Clone()
	normalizeEntry(&e)
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}

	var out Entry
	err := m.mutate(ctx, activity.OpEntryUpdate, e.ID, func(p *Payload) error {
		i := indexOf(p.Entries, e.ID)
		if i < 0 {
			return ErrEntryNotFound
		}
		prev := p.Entries[i]

		e.Created = prev.Created
		e.PasswordHistory = prev.PasswordHistory
		if old, cur := prev.Password(), e.Password(); old != "" && cur != "" && old != cur {
			e.pushHistory(old, lastChanged(prev))
		}
		e.Modified = m.nowMillis()
		if e.Modified < prev.Modified {
			e.Modified = prev.Modified
		}
		p.Entries[i] = e
		out = e.Clone()
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

// SetPassword changes only the password of entry id.
func (m *Manager) SetPassword(ctx context.Context, id, password string) (Entry, error) {
	e, err := m.Entry(id)
	if err != nil {
		return Entry{}, err
	}
	if t := e.Type(); t != TypeLogin && t != TypeWifi {
		return Entry{}, fmt.Errorf("%w: %s entries have no password", ErrInvalidEntry, e.Type())
	}
	e.Fields = withPassword(e.Fields, password)
	return m.UpdateEntry(ctx, e)
}

// DeleteEntry removes entry id.
func (m *Manager) DeleteEntry(ctx context.Context, id string) error {
	return m.mutate(ctx, activity.OpEntryDelete, id, func(p *Payload) error {
		i := indexOf(p.Entries, id)
		if i < 0 {
			return ErrEntryNotFound
		}
		p.Entries = append(p.Entries[:i], p.Entries[i+1:]...)
		return nil
	})
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (m *Manager) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	return m.toggle(ctx, id, func(e *Entry) *bool { return &e.Favorite })
}

// TogglePinned flips the pinned flag and returns the new value.
func (m *Manager) TogglePinned(ctx context.Context, id string) (bool, error) {
	return m.toggle(ctx, id, func(e *Entry) *bool { return &e.Pinned })
}

func (m *Manager) toggle(ctx context.Context, id string, field func(*Entry) *bool) (bool, error) {
	var value bool
	err := m.mutate(ctx, activity.OpEntryUpdate, id, func(p *Payload) error {
		i := indexOf(p.Entries, id)
		if i < 0 {
			return ErrEntryNotFound
		}
		b := field(&p.Entries[i])
		*b = !*b
		value = *b
		return nil
	})
	return value, err
}

// AddTag adds tag to the vault tag set.
func (m *Manager) AddTag(ctx context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidEntry)
	}
	return m.mutate(ctx, activity.OpVaultSave, "", func(p *Payload) error {
		p.Tags = append(p.Tags, tag)
		return nil
	})
}

// RemoveTag removes tag from the vault tag set and from every entry.
func (m *Manager) RemoveTag(ctx context.Context, tag string) error {
	return m.mutate(ctx, activity.OpVaultSave, "", func(p *Payload) error {
		p.Tags = removeString(p.Tags, tag)
		for i := range p.Entries {
			p.Entries[i].Tags = removeString(p.Entries[i].Tags, tag)
		}
		return nil
	})
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
