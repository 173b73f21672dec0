// Package activity records vault lifecycle events in an append-only JSONL
// log whose records are linked by an HMAC chain, so that edits, deletions
// and reordering are detectable by anyone holding the vault key.
//
// Each vault has its own directory under the log root. Records carry
// operation names and HMACs of entry ids; they never carry entry names,
// field values or passwords.
package activity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/forest6511/keysmith/pkg/store"
)

// HMACInfo is the HKDF info string for the chain key.
const HMACInfo = "keysmith-activity-v1"

// MinDiskSpace is the free space required before appending a record.
const MinDiskSpace = 1024 * 1024

const (
	genesis      = "genesis"
	metaFileName = "activity.meta"
)

// Operation types
const (
	OpVaultCreate       = "vault.create"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultSave         = "vault.save"
	OpVaultRename       = "vault.rename"
	OpVaultExport       = "vault.export"
	OpVaultImport       = "vault.import"

	OpEntryAdd    = "entry.add"
	OpEntryUpdate = "entry.update"
	OpEntryDelete = "entry.delete"
	OpEntryCopy   = "entry.copy"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// ErrNoSession indicates the logger has no vault key yet.
	ErrNoSession = errors.New("activity: no active session")

	// ErrUnsupportedFormat indicates an unknown export format.
	ErrUnsupportedFormat = errors.New("activity: unsupported format")
)

// Event is one log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339, nanosecond precision
	Operation string `json:"op"`
	Vault     string `json:"vault"`
	Entry     string `json:"entry,omitempty"` // HMAC of the entry id
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	Error     string `json:"error,omitempty"`

	Context map[string]string `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger writes events for one vault at a time.
type Logger struct {
	root      string
	source    string
	sessionID string
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	vaultID    string
	dir        string
	hmacKey    []byte
	sequence   int64
	prevHash   string
	checkpoint checkpoint
}

// checkpoint is where verification starts once older records are pruned.
type checkpoint struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// New returns a logger rooted at dir. Nothing is written until Begin.
func New(dir, source string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		root:      dir,
		source:    source,
		sessionID: uuid.NewString(),
		logger:    logger,
		now:       time.Now,
		prevHash:  genesis,
	}
}

// SetClock overrides the time source.
func (l *Logger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Begin binds the logger to vaultID with the given chain key and loads the
// chain state. key is copied.
func (l *Logger) Begin(vaultID string, key []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.wipeKey()
	l.vaultID = vaultID
	l.dir = filepath.Join(l.root, vaultID)
	l.hmacKey = append([]byte(nil), key...)
	l.sequence = 0
	l.prevHash = genesis
	l.checkpoint = checkpoint{}

	if err := l.loadChainState(); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("activity chain state unreadable, starting from genesis", "vault", vaultID, "error", err)
	}
	return nil
}

// End forgets the chain key.
func (l *Logger) End() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wipeKey()
	l.vaultID = ""
	l.dir = ""
}

func (l *Logger) wipeKey() {
	for i := range l.hmacKey {
		l.hmacKey[i] = 0
	}
	l.hmacKey = nil
}

// Dir returns the directory of the active vault's log.
func (l *Logger) Dir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

// Record appends an event. entryID may be empty; a non-nil opErr marks the
// event as an error.
func (l *Logger) Record(op, entryID string, opErr error, ctx map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrNoSession
	}
	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return fmt.Errorf("activity: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	now := l.now().UTC()
	event := Event{
		Version:   1,
		ID:        newEventID(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Vault:     l.vaultID,
		Source:    l.source,
		SessionID: l.sessionID,
		Result:    ResultSuccess,
		Context:   ctx,
	}
	if entryID != "" {
		event.Entry = l.mac([]byte(entryID))
	}
	if opErr != nil {
		event.Result = ResultError
		event.Error = opErr.Error()
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.mac(recordData(&event))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event, now); err != nil {
		return err
	}
	return l.saveChainState()
}

func (l *Logger) mac(data []byte) string {
	h := hmac.New(sha256.New, l.hmacKey)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// recordData is the HMAC input: every field except the HMAC itself, with
// context keys in sorted order.
func recordData(e *Event) []byte {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var ctx strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&ctx, "%s=%s|", k, e.Context[k])
	}

	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		e.Version, e.ID, e.Timestamp, e.Operation, e.Vault, e.Entry,
		e.Source, e.SessionID, e.Result, e.Error, ctx.String(),
		e.Chain.Sequence, e.Chain.PrevHash))
}

// writeEvent appends to the month file (YYYY-MM.jsonl).
func (l *Logger) writeEvent(event *Event, now time.Time) error {
	path := filepath.Join(l.dir, now.Format("2006-01")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("activity: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("activity: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("activity: failed to write event: %w", err)
	}
	return nil
}

type chainState struct {
	Sequence   int64       `json:"seq"`
	PrevHash   string      `json:"prev"`
	Checkpoint *checkpoint `json:"checkpoint,omitempty"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.dir, metaFileName))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	if state.Checkpoint != nil {
		l.checkpoint = *state.Checkpoint
	}
	return nil
}

func (l *Logger) saveChainState() error {
	state := chainState{Sequence: l.sequence, PrevHash: l.prevHash}
	if l.checkpoint.Sequence > 0 {
		cp := l.checkpoint
		state.Checkpoint = &cp
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("activity: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, metaFileName), data, 0600); err != nil {
		return fmt.Errorf("activity: failed to save chain state: %w", err)
	}
	return nil
}

func (l *Logger) checkDiskSpace() error {
	info, err := store.DiskSpace(l.dir)
	if err != nil {
		l.logger.Warn("failed to check disk space for activity log", "error", err)
		return nil
	}
	if info.Available < MinDiskSpace {
		return fmt.Errorf("activity: insufficient disk space: only %d bytes available, need at least %d",
			info.Available, MinDiskSpace)
	}
	return nil
}

// newEventID returns a time-ordered UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify walks every record of the active vault's log and checks sequence,
// chain links and HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrNoSession
	}
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesis
	var expectedSeq int64 = 1
	if cp := l.checkpoint; cp.Sequence > 0 {
		if !hmac.Equal([]byte(cp.HMAC), []byte(l.checkpointMAC(cp))) {
			result.Valid = false
			result.Errors = append(result.Errors, "prune checkpoint HMAC mismatch: possible tampering")
		}
		expectedPrev = cp.PrevHash
		expectedSeq = cp.Sequence
	}

	for _, event := range events {
		result.RecordsTotal++
		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d", event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}
		want := l.mac(recordData(&event))
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(want)) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		} else {
			result.RecordsVerified++
		}
		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}
	return result, nil
}

// Events returns the most recent limit events (0 = all) newer than since.
func (l *Logger) Events(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dir == "" {
		return nil, ErrNoSession
	}
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	events = filterEvents(events, since, time.Time{})
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Export renders events between since and until as "json" or "csv".
func (l *Logger) Export(format string, since, until time.Time) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dir == "" {
		return nil, ErrNoSession
	}
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	events = filterEvents(events, since, until)

	switch format {
	case "json":
		if events == nil {
			events = []Event{}
		}
		return json.MarshalIndent(events, "", "  ")
	case "csv":
		return formatCSV(events)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func formatCSV(events []Event) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"timestamp", "operation", "result", "entry"}); err != nil {
		return nil, err
	}
	for _, e := range events {
		entry := e.Entry
		if len(entry) > 16 {
			entry = entry[:16] + "..."
		}
		row := []string{csvSafe(e.Timestamp), csvSafe(e.Operation), csvSafe(e.Result), csvSafe(entry)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("activity: failed to write csv: %w", err)
	}
	return []byte(b.String()), nil
}

// csvSafe neutralizes spreadsheet formula prefixes.
func csvSafe(field string) string {
	if field != "" && strings.ContainsRune("=+-@", rune(field[0])) {
		return "'" + field
	}
	return field
}

// Prune removes the leading run of events older than olderThan and returns
// how many were removed. A signed checkpoint records where the remaining
// chain starts, so Verify keeps working.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return 0, ErrNoSession
	}
	cutoff := l.now().Add(-olderThan)
	files, err := l.logFiles()
	if err != nil {
		return 0, err
	}

	// Only a prefix is removed; the chain stays contiguous.
	deleted := 0
	var last *Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return deleted, fmt.Errorf("activity: failed to read %s: %w", file, err)
		}
		n := 0
		for n < len(events) {
			ts, err := time.Parse(time.RFC3339Nano, events[n].Timestamp)
			if err != nil || !ts.Before(cutoff) {
				break
			}
			n++
		}
		if n == 0 {
			break
		}
		last = &events[n-1]
		deleted += n

		if n == len(events) {
			if err := os.Remove(file); err != nil {
				return deleted, fmt.Errorf("activity: failed to delete %s: %w", file, err)
			}
			continue
		}
		if err := rewriteLogFile(file, events[n:]); err != nil {
			return deleted, fmt.Errorf("activity: failed to rewrite %s: %w", file, err)
		}
		break
	}
	if last == nil {
		return 0, nil
	}

	cp := checkpoint{Sequence: last.Chain.Sequence + 1, PrevHash: last.Chain.HMAC}
	cp.HMAC = l.checkpointMAC(cp)
	l.checkpoint = cp
	if err := l.saveChainState(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (l *Logger) checkpointMAC(cp checkpoint) string {
	return l.mac([]byte(fmt.Sprintf("checkpoint|%s|%d|%s", l.vaultID, cp.Sequence, cp.PrevHash)))
}

func filterEvents(events []Event, since, until time.Time) []Event {
	if since.IsZero() && until.IsZero() {
		return events
	}
	var out []Event
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			continue
		}
		if !since.IsZero() && !ts.After(since) {
			continue
		}
		if !until.IsZero() && ts.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// logFiles lists month files oldest first (YYYY-MM names sort chronologically).
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("activity: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("activity: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// rewriteLogFile replaces path with events via a temp file and rename.
func rewriteLogFile(path string, events []Event) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
