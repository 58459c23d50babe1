// Package quota implements per-tenant daily and monthly send accounting.
//
// The Ledger holds counters in memory. Each tenant has its own lock, so a
// check-and-increment for one tenant never contends with another. Reads go
// through an atomically published snapshot and never take the write lock.
package quota

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

type account struct {
	mu        sync.Mutex
	limits    domain.QuotaLimits
	day       string
	month     string
	todaySent int64
	monthSent int64

	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	limits    domain.QuotaLimits
	day       string
	month     string
	todaySent int64
	monthSent int64
}

// publish must be called with a.mu held.
func (a *account) publish() {
	a.snap.Store(&snapshot{
		limits:    a.limits,
		day:       a.day,
		month:     a.month,
		todaySent: a.todaySent,
		monthSent: a.monthSent,
	})
}

// rollover resets counters whose period has ended. Periods only move
// forward: a stale clock read never rewinds an account. Must hold a.mu.
func (a *account) rollover(day, month string) bool {
	rolled := false
	if day > a.day {
		a.day = day
		a.todaySent = 0
		rolled = true
	}
	if month > a.month {
		a.month = month
		a.monthSent = 0
		rolled = true
	}
	return rolled
}

// Ledger is safe for concurrent use.
type Ledger struct {
	loc *time.Location
	now func() time.Time

	mu       sync.RWMutex
	accounts map[uuid.UUID]*account
}

type Option func(*Ledger)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone that defines day and month boundaries.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		loc:      time.Local,
		now:      time.Now,
		accounts: make(map[uuid.UUID]*account),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) periods() (string, string) {
	t := l.now().In(l.loc)
	return t.Format(dayLayout), t.Format(monthLayout)
}

// Loaded reports whether the tenant's counters are held by the ledger.
func (l *Ledger) Loaded(tenantID uuid.UUID) bool {
	l.mu.RLock()
	_, ok := l.accounts[tenantID]
	l.mu.RUnlock()
	return ok
}

// Restore seeds a tenant's account from persisted counters. It is a no-op if
// the tenant is already loaded, so a racing loader never overwrites live counts.
func (l *Ledger) Restore(tenantID uuid.UUID, limits domain.QuotaLimits, todaySent, monthSent int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[tenantID]; ok {
		return
	}
	day, month := l.periods()
	a := &account{
		limits:    limits,
		day:       day,
		month:     month,
		todaySent: todaySent,
		monthSent: monthSent,
	}
	a.publish()
	l.accounts[tenantID] = a
}

func (l *Ledger) account(tenantID uuid.UUID) *account {
	l.mu.RLock()
	a, ok := l.accounts[tenantID]
	l.mu.RUnlock()
	if ok {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[tenantID]; ok {
		return a
	}
	day, month := l.periods()
	a = &account{day: day, month: month}
	a.publish()
	l.accounts[tenantID] = a
	return a
}

// TryConsume atomically applies any pending period reset, checks n more sends
// against both limits, and increments the counters only if both allow it.
func (l *Ledger) TryConsume(tenantID uuid.UUID, n int64) domain.QuotaDecision {
	if n <= 0 {
		n = 1
	}
	a := l.account(tenantID)

	a.mu.Lock()
	defer a.mu.Unlock()

	// The clock is read under the account lock so that reset, check and
	// increment observe one instant.
	a.rollover(l.periods())

	allowed := (a.limits.Daily <= 0 || a.todaySent+n <= a.limits.Daily) &&
		(a.limits.Monthly <= 0 || a.monthSent+n <= a.limits.Monthly)
	if allowed {
		a.todaySent += n
		a.monthSent += n
	}
	a.publish()

	status := domain.NewQuotaStatus(a.limits, a.todaySent, a.monthSent)
	return domain.QuotaDecision{
		Allowed:          allowed,
		RemainingDaily:   status.DailyRemaining,
		RemainingMonthly: status.MonthlyRemaining,
	}
}

// Status reports the tenant's counters without mutating them. A period that
// has ended but not yet been reset by TryConsume is reported as zero.
func (l *Ledger) Status(tenantID uuid.UUID) domain.QuotaStatus {
	l.mu.RLock()
	a, ok := l.accounts[tenantID]
	l.mu.RUnlock()
	if !ok {
		return domain.NewQuotaStatus(domain.QuotaLimits{}, 0, 0)
	}

	s := a.snap.Load()
	day, month := l.periods()
	today, monthSent := s.todaySent, s.monthSent
	if day > s.day {
		today = 0
	}
	if month > s.month {
		monthSent = 0
	}
	return domain.NewQuotaStatus(s.limits, today, monthSent)
}

// SetLimits replaces a tenant's limits. Counters are kept.
func (l *Ledger) SetLimits(tenantID uuid.UUID, limits domain.QuotaLimits) {
	a := l.account(tenantID)
	a.mu.Lock()
	a.rollover(l.periods())
	a.limits = limits
	a.publish()
	a.mu.Unlock()
}

// Rollover resets every loaded account whose day or month has ended and
// returns how many accounts were reset.
func (l *Ledger) Rollover() int {
	l.mu.RLock()
	accounts := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accounts = append(accounts, a)
	}
	l.mu.RUnlock()

	n := 0
	for _, a := range accounts {
		a.mu.Lock()
		if a.rollover(l.periods()) {
			a.publish()
			n++
		}
		a.mu.Unlock()
	}
	return n
}

// Forget drops a tenant's in-memory account so the next use reloads it.
func (l *Ledger) Forget(tenantID uuid.UUID) {
	l.mu.Lock()
	delete(l.accounts, tenantID)
	l.mu.Unlock()
}
