package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	mu     sync.Mutex
	text   string
	writes []string
}

func (c *fakeClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.writes = append(c.writes, text)
	return nil
}

func (c *fakeClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *fakeClipboard) Clears() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if w == "" {
			n++
		}
	}
	return n
}

func TestIdleTimeoutLocks(t *testing.T) {
	reasons := make(chan LockReason, 4)
	m, _, _ := newTestManager(t,
		WithIdleTimeout(50*time.Millisecond),
		WithLockNotifier(func(r LockReason) { reasons <- r }),
	)
	createTestVault(t, m)
	drain(reasons)

	require.Eventually(t, m.IsLocked, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, LockIdle, <-reasons)
}

func TestTouchDefersIdleLock(t *testing.T) {
	m, _, _ := newTestManager(t, WithIdleTimeout(150*time.Millisecond))
	createTestVault(t, m)

	for i := 0; i < 5; i++ {
		time.Sleep(50 * time.Millisecond)
		m.Touch()
	}
	assert.False(t, m.IsLocked(), "activity must keep the vault open")
	require.Eventually(t, m.IsLocked, 2*time.Second, 10*time.Millisecond)
}

func TestIdleTimeoutZeroDisables(t *testing.T) {
	m, _, _ := newTestManager(t, WithIdleTimeout(time.Hour))
	createTestVault(t, m)
	m.SetIdleTimeout(0)

	m.mu.Lock()
	armed := m.idleTimer != nil
	m.mu.Unlock()
	assert.False(t, armed, "no idle timer when the timeout is zero")

	m.Touch()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.IsLocked())
}

func TestCopyClearsClipboard(t *testing.T) {
	ctx := context.Background()
	clip := &fakeClipboard{}
	m, _, _ := newTestManager(t, WithClipboard(clip), WithClipboardClearDelay(40*time.Millisecond))
	createTestVault(t, m)

	e := loginEntry("site", "octo", "pa55")
	e.CustomFields = []CustomField{{Label: "pin", Value: "0000"}}
	e, err := m.AddEntry(ctx, e)
	require.NoError(t, err)

	require.NoError(t, m.Copy(ctx, e.ID, "password"))
	assert.Equal(t, "pa55", clip.Text())
	require.Eventually(t, func() bool { return clip.Text() == "" }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Copy(ctx, e.ID, "pin"))
	assert.Equal(t, "0000", clip.Text())

	err = m.Copy(ctx, e.ID, "missing")
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestCopyResetsPendingClear(t *testing.T) {
	ctx := context.Background()
	clip := &fakeClipboard{}
	m, _, _ := newTestManager(t, WithClipboard(clip), WithClipboardClearDelay(100*time.Millisecond))
	createTestVault(t, m)
	e, err := m.AddEntry(ctx, loginEntry("site", "octo", "pa55"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Copy(ctx, e.ID, "username"))
		time.Sleep(40 * time.Millisecond)
	}
	assert.Equal(t, "octo", clip.Text(), "earlier copies must not clear the latest one")

	require.Eventually(t, func() bool { return clip.Text() == "" }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, clip.Clears(), "clears must not stack")
}

func TestStaleClearTimerKeepsNewCopy(t *testing.T) {
	ctx := context.Background()
	clip := &fakeClipboard{}
	m, _, _ := newTestManager(t, WithClipboard(clip), WithClipboardClearDelay(time.Hour))
	createTestVault(t, m)
	e, err := m.AddEntry(ctx, loginEntry("site", "octo", "pa55"))
	require.NoError(t, err)

	require.NoError(t, m.Copy(ctx, e.ID, "username"))
	m.mu.Lock()
	stale := m.clipTimer
	m.mu.Unlock()
	require.NotNil(t, stale)

	require.NoError(t, m.Copy(ctx, e.ID, "password"))

	// The first timer fires after it was replaced.
	m.mu.Lock()
	m.expireClipboard(stale)
	current := m.clipTimer
	m.mu.Unlock()
	assert.Equal(t, "pa55", clip.Text())
	assert.Equal(t, 0, clip.Clears())
	assert.NotNil(t, current)
	assert.NotSame(t, stale, current)

	m.mu.Lock()
	m.expireClipboard(current)
	m.mu.Unlock()
	assert.Equal(t, "", clip.Text())
}

func TestLockClearsPendingClipboard(t *testing.T) {
	ctx := context.Background()
	clip := &fakeClipboard{}
	m, _, _ := newTestManager(t, WithClipboard(clip), WithClipboardClearDelay(time.Hour))
	createTestVault(t, m)
	e, err := m.AddEntry(ctx, loginEntry("site", "octo", "pa55"))
	require.NoError(t, err)

	require.NoError(t, m.Copy(ctx, e.ID, "password"))
	m.Lock()
	assert.Equal(t, "", clip.Text())
}

func TestCopyWithoutClipboard(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Copy(context.Background(), "x", "password"), ErrNoClipboard)
}

func TestCopyTOTPCode(t *testing.T) {
	ctx := context.Background()
	clip := &fakeClipboard{}
	m, _, clock := newTestManager(t, WithClipboard(clip))
	createTestVault(t, m)
	clock.Set(time.Unix(59, 0))

	e := loginEntry("site", "octo", "pa55")
	e.Fields = LoginFields{Username: "octo", Password: "pa55", TOTP: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"}
	e, err := m.AddEntry(ctx, e)
	require.NoError(t, err)

	require.NoError(t, m.Copy(ctx, e.ID, "totp"))
	assert.Equal(t, "287082", clip.Text())
}

func TestWatchTOTP(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)
	createTestVault(t, m)
	clock.Set(time.Unix(1111111109, 0))

	e := loginEntry("site", "octo", "pa55")
	e.Fields = LoginFields{Username: "octo", Password: "pa55", TOTP: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"}
	e, err := m.AddEntry(ctx, e)
	require.NoError(t, err)

	type tick struct {
		code      string
		remaining int
	}
	ticks := make(chan tick, 16)
	stop, err := m.WatchTOTP(e.ID, func(code string, remaining int) {
		select {
		case ticks <- tick{code, remaining}:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	first := <-ticks
	assert.Equal(t, tick{"081804", 1}, first, "first code is emitted immediately")

	m.Lock()
	drain(ticks)
	time.Sleep(2 * TOTPRefreshInterval)
	assert.Empty(t, ticks, "Lock must stop the watcher")
}

func TestWatchTOTPErrors(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.WatchTOTP("x", func(string, int) {})
	assert.ErrorIs(t, err, ErrLocked)

	createTestVault(t, m)
	e, err := m.AddEntry(ctx, loginEntry("site", "octo", "pa55"))
	require.NoError(t, err)
	_, err = m.WatchTOTP(e.ID, func(string, int) {})
	assert.ErrorIs(t, err, ErrNoTOTP)

	_, err = m.WatchTOTP("missing", func(string, int) {})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestWatchTOTPMalformedShowsPlaceholder(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	createTestVault(t, m)

	e, err := m.AddEntry(ctx, loginEntry("site", "octo", "pa55"))
	require.NoError(t, err)

	// Saving rejects such a secret; older records may still carry one.
	m.mu.Lock()
	i := indexOf(m.session.payload.Entries, e.ID)
	m.session.payload.Entries[i].Fields = LoginFields{Username: "octo", Password: "pa55", TOTP: "!!!!"}
	m.mu.Unlock()

	got := make(chan string, 1)
	stop, err := m.WatchTOTP(e.ID, func(code string, _ int) {
		select {
		case got <- code:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()
	assert.Equal(t, "------", <-got)
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
