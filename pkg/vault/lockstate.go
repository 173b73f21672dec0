package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forest6511/keysmith/pkg/store"
)

// Unlock attempt limits: 5 failures -> 30s, 10 -> 5min, 20 -> 30min.
const (
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

var (
	ErrCooldownActive = errors.New("vault: cooldown period active")
)

// LockState tracks failed unlock attempts for one vault. It holds no
// secret material and is stored in plaintext.
type LockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

func (m *Manager) loadLockState(ctx context.Context, id string) (*LockState, error) {
	data, err := m.store.Get(ctx, store.BucketLockState, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &LockState{}, nil
		}
		return nil, fmt.Errorf("vault: failed to read lock state: %w", err)
	}
	var state LockState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted lock state - reset
		return &LockState{}, nil
	}
	return &state, nil
}

func (m *Manager) saveLockState(ctx context.Context, id string, state *LockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal lock state: %w", err)
	}
	if err := m.store.Put(ctx, store.BucketLockState, id, data); err != nil {
		return fmt.Errorf("vault: failed to write lock state: %w", err)
	}
	return nil
}

// clearLockState resets the failure counter and returns how many failed
// attempts preceded this unlock.
func (m *Manager) clearLockState(ctx context.Context, id string) (int, error) {
	state, err := m.loadLockState(ctx, id)
	if err != nil {
		return 0, err
	}
	if state.FailedAttempts == 0 {
		return 0, nil
	}
	if err := m.store.Delete(ctx, store.BucketLockState, id); err != nil {
		return state.FailedAttempts, fmt.Errorf("vault: failed to clear lock state: %w", err)
	}
	return state.FailedAttempts, nil
}

// checkCooldown reports the remaining cooldown for vault id.
func (m *Manager) checkCooldown(ctx context.Context, id string) (time.Duration, error) {
	state, err := m.loadLockState(ctx, id)
	if err != nil {
		return 0, err
	}
	now := m.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), ErrCooldownActive
	}
	return 0, nil
}

// recordFailedAttempt increments the failure counter and starts a cooldown
// when a threshold is reached.
func (m *Manager) recordFailedAttempt(ctx context.Context, id string) (time.Duration, error) {
	state, err := m.loadLockState(ctx, id)
	if err != nil {
		return 0, err
	}

	now := m.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
	}

	if err := m.saveLockState(ctx, id, state); err != nil {
		return cooldown, err
	}
	return cooldown, nil
}

// RemainingCooldown returns the remaining cooldown for vault id, or 0.
func (m *Manager) RemainingCooldown(ctx context.Context, id string) time.Duration {
	remaining, err := m.checkCooldown(ctx, id)
	if err != nil && !errors.Is(err, ErrCooldownActive) {
		return 0
	}
	return remaining
}
