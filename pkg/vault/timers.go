package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/forest6511/keysmith/pkg/activity"
	"github.com/forest6511/keysmith/pkg/totp"
)

// Touch records user activity and restarts the idle timer. It does
// nothing while locked or when the idle timeout is zero.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	m.idleGen++
	if m.session == nil || m.idleTimeout <= 0 {
		return
	}
	gen := m.idleGen
	m.idleTimer = time.AfterFunc(m.idleTimeout, func() { m.lockIdle(gen) })
}

// lockIdle locks unless activity happened after the timer for gen was
// armed.
func (m *Manager) lockIdle(gen uint64) {
	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	stale := gen != m.idleGen
	m.mu.Unlock()
	if stale {
		return
	}
	m.teardown(LockIdle)
}

// Copy writes field of entry id to the clipboard and schedules it to be
// cleared. field is a template field name (e.g. "password", "username")
// or the label of a custom field. A new copy replaces the pending clear.
func (m *Manager) Copy(ctx context.Context, id, field string) error {
	if m.clipboard == nil {
		return ErrNoClipboard
	}
	e, err := m.Entry(id)
	if err != nil {
		return err
	}
	value, ok := fieldValue(&e, field)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrInvalidEntry, e.Name, field)
	}
	if field == "totp" {
		code, ok := totp.Generate(value, m.now().Unix())
		if !ok {
			return fmt.Errorf("%w: %v", ErrNoTOTP, totp.ErrMalformedSecret)
		}
		value = code
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// The write and the rearm happen under mu so a clear timer from an
	// earlier copy cannot wipe this value.
	m.mu.Lock()
	if m.clipTimer != nil {
		m.clipTimer.Stop()
		m.clipTimer = nil
	}
	if err := m.clipboard.WriteText(value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("vault: failed to write clipboard: %w", err)
	}
	if m.clipboardDelay > 0 {
		var t *time.Timer
		t = time.AfterFunc(m.clipboardDelay, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.expireClipboard(t)
		})
		m.clipTimer = t
	}
	m.mu.Unlock()

	m.Touch()
	m.record(activity.OpEntryCopy, id, nil, map[string]string{"field": field})
	return nil
}

func fieldValue(e *Entry, field string) (string, bool) {
	if e.Fields != nil {
		if v, ok := e.Fields.Values()[field]; ok {
			return v, true
		}
	}
	for _, cf := range e.CustomFields {
		if cf.Label == field {
			return cf.Value, true
		}
	}
	return "", false
}

// expireClipboard clears the clipboard if t is still the pending clear.
// Callers hold mu.
func (m *Manager) expireClipboard(t *time.Timer) {
	if m.clipTimer != t {
		return
	}
	m.clipTimer = nil
	m.clearClipboard()
}

func (m *Manager) clearClipboard() {
	if m.clipboard == nil {
		return
	}
	if err := m.clipboard.WriteText(""); err != nil {
		m.logger.Warn("failed to clear clipboard", "error", err)
	}
}

// WatchTOTP calls fn immediately and then once per TOTPRefreshInterval
// with the current code of entry id and the seconds left in its step.
// Starting a watcher replaces the previous one. The returned stop func
// and Lock both end it.
func (m *Manager) WatchTOTP(id string, fn func(code string, remaining int)) (stop func(), err error) {
	e, err := m.Entry(id)
	if err != nil {
		return nil, err
	}
	secret := e.TOTPSecret()
	if secret == "" {
		return nil, ErrNoTOTP
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		cancel()
		return nil, ErrLocked
	}
	if m.totpStop != nil {
		m.totpStop()
	}
	m.totpStop = cancel
	m.mu.Unlock()

	emit := func() {
		now := m.now().Unix()
		code, ok := totp.Generate(secret, now)
		if !ok {
			code = totp.Placeholder
		}
		fn(code, totp.SecondsRemaining(now))
	}
	emit()

	go func() {
		ticker := time.NewTicker(TOTPRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() == nil {
					emit()
				}
			}
		}
	}()
	return cancel, nil
}
