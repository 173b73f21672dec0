// Package settings stores non-secret application preferences as a single
// record in the generic store.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forest6511/keysmith/pkg/security"
	"github.com/forest6511/keysmith/pkg/store"
)

// Key is the record key under store.BucketSettings.
const Key = "app"

// BackupInterval is how long an export stays current.
const BackupInterval = 30 * 24 * time.Hour

var (
	ErrUnknownSetting = errors.New("settings: unknown setting")
	ErrInvalidValue   = errors.New("settings: invalid value")
)

// Settings holds user preferences. Durations are in seconds.
type Settings struct {
	InactivityTimeout   int    `json:"inactivityTimeout" yaml:"inactivity_timeout"`
	ClearClipboard      bool   `json:"clearClipboard" yaml:"clear_clipboard"`
	ClipboardClearDelay int    `json:"clipboardClearDelay" yaml:"clipboard_clear_delay"`
	AuditEntropy        int    `json:"auditEntropy" yaml:"audit_entropy"`
	AuditAge            int    `json:"auditAge" yaml:"audit_age"`
	AuditWords          int    `json:"auditWords" yaml:"audit_words"`
	LastBackup          *int64 `json:"lastBackup,omitempty" yaml:"last_backup,omitempty"`

	// extra holds data keys keysmith does not use (display preferences of
	// other clients sharing the store). Save writes them back unchanged.
	extra map[string]json.RawMessage
}

// record is the persisted {key, data} envelope.
type record struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// knownFields are the data keys decoded into Settings.
var knownFields = func() map[string]bool {
	var ms int64
	data, _ := json.Marshal(Settings{LastBackup: &ms})
	var m map[string]json.RawMessage
	_ = json.Unmarshal(data, &m)
	known := make(map[string]bool, len(m))
	for k := range m {
		known[k] = true
	}
	return known
}()

// Defaults returns the settings used when nothing has been saved.
func Defaults() Settings {
	return Settings{
		ClearClipboard:      true,
		ClipboardClearDelay: 30,
		AuditEntropy:        security.DefaultEntropyBits,
		AuditAge:            security.DefaultMaxAgeDays,
		AuditWords:          4,
	}
}

// Load reads the settings record. Missing fields keep their defaults.
func Load(ctx context.Context, s store.Store) (Settings, error) {
	st := Defaults()
	data, err := s.Get(ctx, store.BucketSettings, Key)
	if errors.Is(err, store.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}
	if len(rec.Data) == 0 || string(rec.Data) == "null" {
		return st, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec.Data, &fields); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}
	if err := json.Unmarshal(rec.Data, &st); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}
	for k, v := range fields {
		if knownFields[k] {
			continue
		}
		if st.extra == nil {
			st.extra = make(map[string]json.RawMessage)
		}
		st.extra[k] = v
	}
	return st, nil
}

// Save writes st after validating it.
func Save(ctx context.Context, s store.Store, st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	data, err := st.encode()
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.Put(ctx, store.BucketSettings, Key, data); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

func (st Settings) encode() ([]byte, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	if len(st.extra) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		for k, v := range st.extra {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
		if body, err = json.Marshal(fields); err != nil {
			return nil, err
		}
	}
	return json.Marshal(record{Key: Key, Data: body})
}

// Validate rejects values no consumer can use.
func (st Settings) Validate() error {
	switch {
	case st.InactivityTimeout < 0:
		return fmt.Errorf("%w: inactivity_timeout must not be negative", ErrInvalidValue)
	case st.ClipboardClearDelay < 0:
		return fmt.Errorf("%w: clipboard_clear_delay must not be negative", ErrInvalidValue)
	case st.AuditEntropy < 1:
		return fmt.Errorf("%w: audit_entropy must be positive", ErrInvalidValue)
	case st.AuditAge < 1:
		return fmt.Errorf("%w: audit_age must be positive", ErrInvalidValue)
	case st.AuditWords < 1:
		return fmt.Errorf("%w: audit_words must be positive", ErrInvalidValue)
	}
	return nil
}

// Thresholds returns the audit thresholds.
func (st Settings) Thresholds() security.Thresholds {
	return security.Thresholds{
		EntropyBits: float64(st.AuditEntropy),
		MaxAgeDays:  st.AuditAge,
	}
}

// IdleTimeout is the inactivity lock delay; zero disables it.
func (st Settings) IdleTimeout() time.Duration {
	return time.Duration(st.InactivityTimeout) * time.Second
}

// ClipboardDelay is the clipboard clear delay, zero when clearing is off.
func (st Settings) ClipboardDelay() time.Duration {
	if !st.ClearClipboard {
		return 0
	}
	return time.Duration(st.ClipboardClearDelay) * time.Second
}

// MarkBackup records an export at now.
func (st *Settings) MarkBackup(now time.Time) {
	ms := now.UnixMilli()
	st.LastBackup = &ms
}

// BackupDue reports whether no export has happened in BackupInterval.
func (st Settings) BackupDue(now time.Time) bool {
	if st.LastBackup == nil {
		return true
	}
	return now.Sub(time.UnixMilli(*st.LastBackup)) > BackupInterval
}

// Names lists the setting names accepted by Set.
func Names() []string {
	return []string{
		"inactivity_timeout",
		"clear_clipboard", "clipboard_clear_delay",
		"audit_entropy", "audit_age", "audit_words",
	}
}

// Set assigns a setting by its YAML name from a string value.
func (st *Settings) Set(name, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch name {
	case "inactivity_timeout":
		st.InactivityTimeout, err = parseInt(value)
	case "clear_clipboard":
		st.ClearClipboard, err = parseBool(value)
	case "clipboard_clear_delay":
		st.ClipboardClearDelay, err = parseInt(value)
	case "audit_entropy":
		st.AuditEntropy, err = parseInt(value)
	case "audit_age":
		st.AuditAge, err = parseInt(value)
	case "audit_words":
		st.AuditWords, err = parseInt(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	return st.Validate()
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(s)
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
