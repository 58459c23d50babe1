package quota

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestLedger(start time.Time) (*Ledger, *fakeClock) {
	clock := &fakeClock{now: start}
	return NewLedger(WithClock(clock.Now), WithLocation(time.UTC)), clock
}

func TestLedger_ConcurrentConsumeNeverExceedsDailyLimit(t *testing.T) {
	l, _ := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 25, Monthly: 1000}, 0, 0)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryConsume(tenant, 1).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), allowed.Load())
	s := l.Status(tenant)
	assert.Equal(t, int64(25), s.TodaySent)
	assert.Equal(t, int64(0), s.DailyRemaining)
}

func TestLedger_ThreeRepliesWithDailyLimitTwo(t *testing.T) {
	l, _ := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 2, Monthly: 100}, 0, 0)

	first := l.TryConsume(tenant, 1)
	second := l.TryConsume(tenant, 1)
	third := l.TryConsume(tenant, 1)

	assert.True(t, first.Allowed)
	assert.Equal(t, int64(1), first.RemainingDaily)
	assert.True(t, second.Allowed)
	assert.False(t, third.Allowed)
	assert.Equal(t, int64(0), third.RemainingDaily)
	assert.Equal(t, int64(98), third.RemainingMonthly)
	assert.Equal(t, int64(2), l.Status(tenant).TodaySent)
}

func TestLedger_ResetsOnFirstConsumeAfterDayBoundary(t *testing.T) {
	l, clock := newTestLedger(time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 2, Monthly: 100}, 0, 0)

	require.True(t, l.TryConsume(tenant, 1).Allowed)
	require.True(t, l.TryConsume(tenant, 1).Allowed)
	require.False(t, l.TryConsume(tenant, 1).Allowed)

	// Still the same day: nothing resets.
	clock.Set(time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC))
	require.False(t, l.TryConsume(tenant, 1).Allowed)

	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	d := l.TryConsume(tenant, 1)
	assert.True(t, d.Allowed)
	s := l.Status(tenant)
	assert.Equal(t, int64(1), s.TodaySent)
	assert.Equal(t, int64(3), s.MonthSent)
}

func TestLedger_MonthBoundaryResetsMonthCounter(t *testing.T) {
	l, clock := newTestLedger(time.Date(2026, 3, 31, 22, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 0, Monthly: 3}, 0, 2)

	assert.True(t, l.TryConsume(tenant, 1).Allowed)
	assert.False(t, l.TryConsume(tenant, 1).Allowed)

	clock.Set(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	d := l.TryConsume(tenant, 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(-1), d.RemainingDaily)
	assert.Equal(t, int64(2), d.RemainingMonthly)
}

func TestLedger_StatusDoesNotMutate(t *testing.T) {
	l, clock := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 10, Monthly: 100}, 4, 40)

	clock.Set(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC))
	s := l.Status(tenant)
	assert.Equal(t, int64(0), s.TodaySent)
	assert.Equal(t, int64(40), s.MonthSent)

	// Moving back inside the original day shows the counters were never reset.
	clock.Set(time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, int64(4), l.Status(tenant).TodaySent)
}

func TestLedger_UnlimitedAndUnknownTenant(t *testing.T) {
	l, _ := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{}, 0, 0)

	for i := 0; i < 50; i++ {
		require.True(t, l.TryConsume(tenant, 1).Allowed)
	}
	s := l.Status(tenant)
	assert.Equal(t, int64(-1), s.DailyRemaining)
	assert.Equal(t, int64(0), s.DailyPercent)

	unknown := l.Status(uuid.New())
	assert.Equal(t, int64(0), unknown.TodaySent)
}

func TestLedger_RestoreDoesNotOverwriteLiveCounters(t *testing.T) {
	l, _ := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 10}, 0, 0)
	l.TryConsume(tenant, 3)

	l.Restore(tenant, domain.QuotaLimits{Daily: 10}, 0, 0)
	assert.Equal(t, int64(3), l.Status(tenant).TodaySent)
}

func TestLedger_SetLimitsAppliesImmediately(t *testing.T) {
	l, _ := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 1}, 0, 0)
	require.True(t, l.TryConsume(tenant, 1).Allowed)
	require.False(t, l.TryConsume(tenant, 1).Allowed)

	l.SetLimits(tenant, domain.QuotaLimits{Daily: 5})
	assert.True(t, l.TryConsume(tenant, 1).Allowed)
	assert.Equal(t, int64(5), l.Status(tenant).DailyLimit)
}

func TestLedger_Rollover(t *testing.T) {
	l, clock := newTestLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	a, b := uuid.New(), uuid.New()
	l.Restore(a, domain.QuotaLimits{Daily: 10}, 5, 5)
	l.Restore(b, domain.QuotaLimits{Daily: 10}, 1, 1)

	assert.Equal(t, 0, l.Rollover())

	clock.Set(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, l.Rollover())
	assert.Equal(t, int64(0), l.Status(a).TodaySent)
	assert.Equal(t, int64(5), l.Status(a).MonthSent)
}

// heldClock returns its current time; when armed, the next read blocks after
// capturing the time until release is closed.
type heldClock struct {
	mu      sync.Mutex
	now     time.Time
	entered chan struct{}
	release chan struct{}
}

func (c *heldClock) Now() time.Time {
	c.mu.Lock()
	t, entered, release := c.now, c.entered, c.release
	c.entered, c.release = nil, nil
	c.mu.Unlock()
	if release != nil {
		close(entered)
		<-release
	}
	return t
}

func (c *heldClock) arm() (entered, release chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entered, c.release = make(chan struct{}), make(chan struct{})
	return c.entered, c.release
}

func (c *heldClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestLedger_SlowClockReadAtMidnightCannotOverAdmit(t *testing.T) {
	clock := &heldClock{now: time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)}
	l := NewLedger(WithClock(clock.Now), WithLocation(time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 1}, 1, 1)

	entered, release := clock.arm()
	var lateDay1, day2 domain.QuotaDecision
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lateDay1 = l.TryConsume(tenant, 1)
	}()
	<-entered

	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	go func() {
		defer wg.Done()
		day2 = l.TryConsume(tenant, 1)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.False(t, lateDay1.Allowed, "day already at its limit")
	assert.True(t, day2.Allowed)
	assert.False(t, l.TryConsume(tenant, 1).Allowed, "new day already used once")
	assert.Equal(t, int64(1), l.Status(tenant).TodaySent)
}

func TestLedger_StaleClockNeverRewindsPeriod(t *testing.T) {
	l, clock := newTestLedger(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	tenant := uuid.New()
	l.Restore(tenant, domain.QuotaLimits{Daily: 1}, 0, 0)
	require.True(t, l.TryConsume(tenant, 1).Allowed)

	clock.Set(time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC))
	assert.False(t, l.TryConsume(tenant, 1).Allowed)
	assert.Equal(t, 0, l.Rollover())

	clock.Set(time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC))
	assert.False(t, l.TryConsume(tenant, 1).Allowed)
	assert.Equal(t, int64(1), l.Status(tenant).TodaySent)
}
