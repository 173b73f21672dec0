// Package vault implements the vault lifecycle: creating, unlocking,
// mutating, saving and locking encrypted vaults held in a store.
//
// A Manager owns at most one Session. The store only ever receives the
// VaultRecord (salt plus AES-256-GCM envelope); the derived key and the
// decrypted payload live in process memory while the vault is unlocked.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/forest6511/keysmith/pkg/activity"
	"github.com/forest6511/keysmith/pkg/crypto"
	"github.com/forest6511/keysmith/pkg/securerandom"
	"github.com/forest6511/keysmith/pkg/store"
)

// Constants
const (
	MaxNameLength = 128

	// DefaultClipboardClearDelay is how long copied values stay on the clipboard.
	DefaultClipboardClearDelay = 30 * time.Second

	// TOTPRefreshInterval is the period of TOTP watcher callbacks.
	TOTPRefreshInterval = time.Second
)

// Errors
var (
	ErrNotFound          = errors.New("vault: vault not found")
	ErrIncorrectPassword = errors.New("vault: incorrect password")
	ErrLocked            = errors.New("vault: vault is locked")
	ErrBusy              = errors.New("vault: another vault operation is in progress")
	ErrInvalidImport     = errors.New("vault: invalid import file")
	ErrInvalidEntry      = errors.New("vault: invalid entry")
	ErrEntryNotFound     = errors.New("vault: entry not found")
	ErrEmptyName         = errors.New("vault: name is required")
	ErrNameTooLong       = errors.New("vault: name too long")
	ErrEmptyPassword     = errors.New("vault: master password is required")
	ErrCorrupted         = errors.New("vault: vault record is corrupted")
	ErrNoTOTP            = errors.New("vault: entry has no TOTP secret")
	ErrNoClipboard       = errors.New("vault: no clipboard available")
	ErrAmbiguousVault    = errors.New("vault: more than one vault matches")
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateLocked State = iota
	StateUnlocking
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateUnlocking:
		return "unlocking"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Record is the persisted, encrypted form of a vault.
type Record struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Salt       []byte           `json:"salt"`
	Encrypted  *crypto.Envelope `json:"encrypted"`
	Created    int64            `json:"created"`
	Modified   int64            `json:"modified"`
	EntryCount int              `json:"entryCount"`
}

// Payload is the decrypted content of a vault.
type Payload struct {
	Entries []Entry  `json:"entries"`
	Tags    []string `json:"tags"`
}

func (p Payload) clone() Payload {
	c := Payload{
		Entries: make([]Entry, len(p.Entries)),
		Tags:    append([]string{}, p.Tags...),
	}
	for i, e := range p.Entries {
		c.Entries[i] = e.Clone()
	}
	return c
}

// Summary describes a stored vault without decrypting it.
type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Created    int64  `json:"created"`
	Modified   int64  `json:"modified"`
	EntryCount int    `json:"entryCount"`
}

// Session is the unlocked state of one vault.
type Session struct {
	record  Record
	key     *crypto.Key
	payload Payload
}

// Clipboard receives copied values. Writing "" clears it.
type Clipboard interface {
	WriteText(text string) error
}

// LockReason says why a session ended.
type LockReason string

const (
	LockManual  LockReason = "manual"
	LockIdle    LockReason = "idle"
	LockReplace LockReason = "replaced"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithClipboard sets the clipboard used by Copy.
func WithClipboard(c Clipboard) Option { return func(m *Manager) { m.clipboard = c } }

// WithActivity enables the activity log.
func WithActivity(l *activity.Logger) Option { return func(m *Manager) { m.activity = l } }

// WithIdleTimeout locks the vault after d without activity. Zero disables.
func WithIdleTimeout(d time.Duration) Option { return func(m *Manager) { m.idleTimeout = d } }

// WithClipboardClearDelay sets how long copied values remain. Zero disables clearing.
func WithClipboardClearDelay(d time.Duration) Option {
	return func(m *Manager) { m.clipboardDelay = d }
}

// WithLockNotifier is called after every session teardown.
func WithLockNotifier(fn func(LockReason)) Option { return func(m *Manager) { m.onLock = fn } }

// Manager is the vault lifecycle controller.
type Manager struct {
	store          store.Store
	logger         *slog.Logger
	activity       *activity.Logger
	clipboard      Clipboard
	now            func() time.Time
	idleTimeout    time.Duration
	clipboardDelay time.Duration
	onLock         func(LockReason)

	// op serializes create/unlock/save/mutations/lock.
	op sync.Mutex

	// mu guards everything below.
	mu        sync.Mutex
	state     State
	session   *Session
	idleTimer *time.Timer
	idleGen   uint64
	clipTimer *time.Timer
	totpStop  context.CancelFunc
}

// New returns a locked Manager over s.
func New(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:          s,
		logger:         slog.Default(),
		now:            time.Now,
		clipboardDelay: DefaultClipboardClearDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsLocked reports whether no session is open.
func (m *Manager) IsLocked() bool { return m.State() != StateUnlocked }

// Current returns the summary of the open vault.
func (m *Manager) Current() (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Summary{}, ErrLocked
	}
	return summarize(m.session.record), nil
}

// SetIdleTimeout changes the idle timeout; zero disables it.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	m.mu.Lock()
	m.idleTimeout = d
	m.mu.Unlock()
	m.Touch()
}

// SetClipboardClearDelay changes the clipboard clear delay; zero disables it.
func (m *Manager) SetClipboardClearDelay(d time.Duration) {
	m.mu.Lock()
	m.clipboardDelay = d
	m.mu.Unlock()
}

func (m *Manager) nowMillis() int64 { return m.now().UnixMilli() }

// begin claims the single-flight slot.
func (m *Manager) begin() error {
	if !m.op.TryLock() {
		return ErrBusy
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len([]rune(name)) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Create makes a new empty vault and opens it.
func (m *Manager) Create(ctx context.Context, name, password string) (Summary, error) {
	name, err := validateName(name)
	if err != nil {
		return Summary{}, err
	}
	if password == "" {
		return Summary{}, ErrEmptyPassword
	}
	if err := m.begin(); err != nil {
		return Summary{}, err
	}
	defer m.op.Unlock()

	m.teardown(LockReplace)

	// 1. Salt and id
	salt, err := securerandom.Bytes(crypto.SaltLength)
	if err != nil {
		return Summary{}, fmt.Errorf("vault: failed to generate salt: %w", err)
	}
	id, err := securerandom.ID()
	if err != nil {
		return Summary{}, fmt.Errorf("vault: failed to generate id: %w", err)
	}

	// 2. Derive key
	key, err := crypto.DeriveKey(ctx, []byte(password), salt)
	if err != nil {
		return Summary{}, fmt.Errorf("vault: failed to derive key: %w", err)
	}

	// 3. Encrypt empty payload and persist
	now := m.nowMillis()
	sess := &Session{
		record:  Record{ID: id, Name: name, Salt: salt, Created: now, Modified: now},
		key:     key,
		payload: Payload{Entries: []Entry{}, Tags: []string{}},
	}
	rec, err := m.persist(ctx, sess, sess.payload, name)
	if err != nil {
		key.Destroy()
		return Summary{}, err
	}
	sess.record = rec

	m.open(sess)
	m.beginActivity(sess)
	m.record(activity.OpVaultCreate, "", nil, nil)
	m.logger.Info("vault created", "vault", id)
	return summarize(rec), nil
}

// Unlock opens vault id with password.
func (m *Manager) Unlock(ctx context.Context, id, password string) (Summary, error) {
	if err := m.begin(); err != nil {
		return Summary{}, err
	}
	defer m.op.Unlock()

	m.teardown(LockReplace)
	m.setState(StateUnlocking)

	sess, failed, err := m.unlock(ctx, id, password)
	if err != nil {
		m.setState(StateLocked)
		return Summary{}, err
	}

	m.open(sess)
	m.beginActivity(sess)
	if failed > 0 {
		m.record(activity.OpVaultUnlockFailed, "", nil, map[string]string{"attempts": fmt.Sprint(failed)})
	}
	m.record(activity.OpVaultUnlock, "", nil, nil)
	m.logger.Info("vault unlocked", "vault", id, "entries", len(sess.payload.Entries))
	return summarize(sess.record), nil
}

func (m *Manager) unlock(ctx context.Context, id, password string) (*Session, int, error) {
	if remaining, err := m.checkCooldown(ctx, id); err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return nil, 0, fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
		}
		return nil, 0, err
	}

	// 1. Load record
	rec, err := m.loadRecord(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	// 2. Derive key from stored salt
	key, err := crypto.DeriveKey(ctx, []byte(password), rec.Salt)
	if err != nil {
		return nil, 0, fmt.Errorf("vault: failed to derive key: %w", err)
	}

	// 3. Decrypt payload
	var payload Payload
	if err := crypto.DecryptJSON(key, rec.Encrypted, &payload); err != nil {
		key.Destroy()
		if !errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, 0, fmt.Errorf("vault: failed to decrypt: %w", err)
		}
		if _, recErr := m.recordFailedAttempt(ctx, id); recErr != nil {
			m.logger.Warn("failed to record unlock attempt", "vault", id, "error", recErr)
		}
		m.logger.Debug("unlock failed", "vault", id)
		return nil, 0, fmt.Errorf("%w: %w", ErrIncorrectPassword, crypto.ErrDecryptionFailed)
	}
	if payload.Entries == nil {
		payload.Entries = []Entry{}
	}
	if payload.Tags == nil {
		payload.Tags = []string{}
	}

	failed, err := m.clearLockState(ctx, id)
	if err != nil {
		m.logger.Warn("failed to clear lock state", "vault", id, "error", err)
	}
	return &Session{record: *rec, key: key, payload: payload}, failed, nil
}

func (m *Manager) loadRecord(ctx context.Context, id string) (*Record, error) {
	data, err := m.store.Get(ctx, store.BucketVaults, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vault: failed to load vault: %w", err)
	}
	// The envelope is decoded on its own: a malformed one must fail at
	// decryption, after key derivation, exactly like a wrong password.
	var raw struct {
		Record
		Encrypted json.RawMessage `json:"encrypted"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if len(raw.Salt) == 0 {
		return nil, ErrCorrupted
	}
	rec := raw.Record
	var env crypto.Envelope
	if err := json.Unmarshal(raw.Encrypted, &env); err == nil {
		rec.Encrypted = &env
	}
	return &rec, nil
}

// Save re-encrypts and persists the open vault. It is a no-op when locked.
func (m *Manager) Save(ctx context.Context) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.op.Unlock()

	sess := m.currentSession()
	if sess == nil {
		return nil
	}
	return m.commit(ctx, sess, sess.payload.clone(), sess.record.Name, activity.OpVaultSave, "")
}

// persist encrypts payload and writes the resulting record in a single Put.
// It does not modify sess.
func (m *Manager) persist(ctx context.Context, sess *Session, payload Payload, name string) (Record, error) {
	payload.Tags = collectTags(payload)

	env, err := crypto.EncryptJSON(sess.key, payload)
	if err != nil {
		return Record{}, fmt.Errorf("vault: failed to encrypt vault: %w", err)
	}

	rec := sess.record
	rec.Name = name
	rec.Encrypted = env
	rec.EntryCount = len(payload.Entries)
	if now := m.nowMillis(); now > rec.Modified {
		rec.Modified = now
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("vault: failed to encode record: %w", err)
	}
	if err := m.store.Put(ctx, store.BucketVaults, rec.ID, data); err != nil {
		return Record{}, fmt.Errorf("vault: failed to save vault: %w", err)
	}
	return rec, nil
}

// commit persists payload and, only on success, installs it in the session.
func (m *Manager) commit(ctx context.Context, sess *Session, payload Payload, name, op, entryID string) error {
	rec, err := m.persist(ctx, sess, payload, name)
	if err != nil {
		m.record(op, entryID, err, nil)
		return err
	}
	payload.Tags = collectTags(payload)

	m.mu.Lock()
	sess.record = rec
	sess.payload = payload
	m.mu.Unlock()

	m.Touch()
	m.record(op, entryID, nil, nil)
	return nil
}

// mutate runs fn on a copy of the open payload and commits the result.
func (m *Manager) mutate(ctx context.Context, op, entryID string, fn func(p *Payload) error) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.op.Unlock()

	sess := m.currentSession()
	if sess == nil {
		return ErrLocked
	}
	p := sess.payload.clone()
	if err := fn(&p); err != nil {
		return err
	}
	return m.commit(ctx, sess, p, sess.record.Name, op, entryID)
}

// Rename changes the open vault's name.
func (m *Manager) Rename(ctx context.Context, name string) error {
	name, err := validateName(name)
	if err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.op.Unlock()

	sess := m.currentSession()
	if sess == nil {
		return ErrLocked
	}
	return m.commit(ctx, sess, sess.payload.clone(), name, activity.OpVaultRename, "")
}

// Lock ends the session. It is safe in any state and idempotent; it waits
// for an in-flight operation to finish first.
func (m *Manager) Lock() {
	m.op.Lock()
	defer m.op.Unlock()
	m.teardown(LockManual)
}

// teardown destroys the session and cancels every timer. Callers hold op.
func (m *Manager) teardown(reason LockReason) {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.state = StateLocked
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	if m.totpStop != nil {
		m.totpStop()
		m.totpStop = nil
	}
	clip := m.clipTimer
	m.clipTimer = nil
	m.mu.Unlock()

	if clip != nil {
		clip.Stop()
		m.clearClipboard()
	}
	if sess == nil {
		return
	}

	m.record(activity.OpVaultLock, "", nil, map[string]string{"reason": string(reason)})
	if m.activity != nil {
		m.activity.End()
	}
	sess.key.Destroy()
	sess.payload = Payload{}
	m.logger.Info("vault locked", "vault", sess.record.ID, "reason", string(reason))
	if m.onLock != nil {
		m.onLock(reason)
	}
}

func (m *Manager) open(sess *Session) {
	m.mu.Lock()
	m.session = sess
	m.state = StateUnlocked
	m.mu.Unlock()
	m.Touch()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) currentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) beginActivity(sess *Session) {
	if m.activity == nil {
		return
	}
	sub, err := crypto.Subkey(sess.key, activity.HMACInfo)
	if err != nil {
		m.logger.Warn("failed to derive activity key", "error", err)
		return
	}
	defer crypto.SecureWipe(sub)
	if err := m.activity.Begin(sess.record.ID, sub); err != nil {
		m.logger.Warn("failed to start activity log", "error", err)
	}
}

func (m *Manager) record(op, entryID string, opErr error, ctx map[string]string) {
	if m.activity == nil {
		return
	}
	if err := m.activity.Record(op, entryID, opErr, ctx); err != nil && !errors.Is(err, activity.ErrNoSession) {
		m.logger.Warn("failed to write activity log", "op", op, "error", err)
	}
}

// Vaults lists stored vaults without decrypting them.
func (m *Manager) Vaults(ctx context.Context) ([]Summary, error) {
	items, err := m.store.GetAll(ctx, store.BucketVaults)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to list vaults: %w", err)
	}
	out := make([]Summary, 0, len(items))
	for _, it := range items {
		var rec Record
		if err := json.Unmarshal(it.Value, &rec); err != nil {
			m.logger.Warn("skipping unreadable vault record", "key", it.Key, "error", err)
			continue
		}
		out = append(out, summarize(rec))
	}
	return out, nil
}

// FindVault resolves ref to a stored vault by id or case-insensitive name.
// An empty ref selects the only vault when exactly one exists.
func (m *Manager) FindVault(ctx context.Context, ref string) (Summary, error) {
	vaults, err := m.Vaults(ctx)
	if err != nil {
		return Summary{}, err
	}
	if ref == "" {
		if len(vaults) == 1 {
			return vaults[0], nil
		}
		if len(vaults) == 0 {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("%w: %d vaults exist, choose one", ErrAmbiguousVault, len(vaults))
	}

	var matches []Summary
	for _, v := range vaults {
		if v.ID == ref {
			return v, nil
		}
		if strings.EqualFold(v.Name, ref) {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return Summary{}, ErrNotFound
	case 1:
		return matches[0], nil
	}
	return Summary{}, fmt.Errorf("%w: %d vaults are named %q, use the id", ErrAmbiguousVault, len(matches), ref)
}

// Delete removes vault id from the store, locking it first if it is open.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.op.Unlock()

	if _, err := m.store.Get(ctx, store.BucketVaults, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("vault: failed to load vault: %w", err)
	}
	if sess := m.currentSession(); sess != nil && sess.record.ID == id {
		m.teardown(LockManual)
	}
	if err := m.store.Delete(ctx, store.BucketVaults, id); err != nil {
		return fmt.Errorf("vault: failed to delete vault: %w", err)
	}
	if err := m.store.Delete(ctx, store.BucketLockState, id); err != nil {
		m.logger.Warn("failed to delete lock state", "vault", id, "error", err)
	}
	m.logger.Info("vault deleted", "vault", id)
	return nil
}

// Export returns the stored record of vault id, still encrypted, as
// indented JSON.
func (m *Manager) Export(ctx context.Context, id string) ([]byte, error) {
	rec, err := m.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Encrypted.Valid() {
		return nil, ErrCorrupted
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encode export: %w", err)
	}
	if sess := m.currentSession(); sess != nil && sess.record.ID == id {
		m.record(activity.OpVaultExport, "", nil, nil)
	}
	return data, nil
}

// Import stores an exported record under a fresh id. The ciphertext and
// salt are kept as-is; the vault must be unlocked with its own password.
func (m *Manager) Import(ctx context.Context, data []byte) (Summary, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	for _, k := range []string{"id", "encrypted", "salt"} {
		if v, ok := raw[k]; !ok || string(v) == "null" {
			return Summary{}, fmt.Errorf("%w: missing %q", ErrInvalidImport, k)
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if len(rec.Salt) == 0 {
		return Summary{}, fmt.Errorf("%w: empty salt", ErrInvalidImport)
	}
	if !rec.Encrypted.Valid() {
		return Summary{}, fmt.Errorf("%w: malformed encrypted payload", ErrInvalidImport)
	}

	id, err := securerandom.ID()
	if err != nil {
		return Summary{}, fmt.Errorf("vault: failed to generate id: %w", err)
	}
	rec.ID = id
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = "Imported vault"
	}
	now := m.nowMillis()
	if rec.Created == 0 {
		rec.Created = now
	}
	if rec.Modified < rec.Created {
		rec.Modified = rec.Created
	}

	out, err := json.Marshal(rec)
	if err != nil {
		return Summary{}, fmt.Errorf("vault: failed to encode record: %w", err)
	}
	if err := m.store.Put(ctx, store.BucketVaults, id, out); err != nil {
		return Summary{}, fmt.Errorf("vault: failed to save vault: %w", err)
	}
	m.logger.Info("vault imported", "vault", id)
	return summarize(rec), nil
}

func summarize(rec Record) Summary {
	return Summary{
		ID:         rec.ID,
		Name:       rec.Name,
		Created:    rec.Created,
		Modified:   rec.Modified,
		EntryCount: rec.EntryCount,
	}
}
