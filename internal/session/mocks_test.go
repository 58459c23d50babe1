package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// mockSessionStore implements domain.SessionStore for testing.
type mockSessionStore struct {
	mu   sync.Mutex
	recs map[key]domain.SessionRecord

	// onUpsert, when set, runs before each write.
	onUpsert func(rec *domain.SessionRecord)
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{recs: make(map[key]domain.SessionRecord)}
}

func (m *mockSessionStore) Upsert(ctx context.Context, rec *domain.SessionRecord) error {
	if m.onUpsert != nil {
		m.onUpsert(rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key{rec.TenantID, rec.Kind}] = *rec
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (*domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[key{tenantID, kind}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (m *mockSessionStore) ListByState(ctx context.Context, state domain.SessionState) ([]*domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SessionRecord
	for _, r := range m.recs {
		if r.State == state {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *mockSessionStore) ClearCredential(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{tenantID, kind}
	r, ok := m.recs[k]
	if !ok {
		return nil
	}
	r.Credential = ""
	m.recs[k] = r
	return nil
}

func (m *mockSessionStore) get(tenantID uuid.UUID, kind domain.ChannelKind) (domain.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[key{tenantID, kind}]
	return r, ok
}

// mockTenantStore implements domain.TenantStore for testing.
type mockTenantStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newMockTenantStore(ts ...*domain.Tenant) *mockTenantStore {
	m := &mockTenantStore{tenants: make(map[uuid.UUID]*domain.Tenant)}
	for _, t := range ts {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *mockTenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	return nil
}

func (m *mockTenantStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *mockTenantStore) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return nil, store.ErrNotFound
}

func (m *mockTenantStore) GetByAPIKeyHash(ctx context.Context, h string) (*domain.Tenant, error) {
	return nil, store.ErrNotFound
}

func (m *mockTenantStore) List(ctx context.Context) ([]*domain.Tenant, error) { return nil, nil }

func (m *mockTenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, active bool) error {
	return nil
}

func (m *mockTenantStore) UpdateWAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return nil
}

func (m *mockTenantStore) UpdateLimits(ctx context.Context, id uuid.UUID, limits domain.QuotaLimits) error {
	return nil
}

func (m *mockTenantStore) UpdateTelegramToken(ctx context.Context, id uuid.UUID, token string) error {
	return nil
}

// harness scripts fake adapters and records what the orchestrator did to them.
type harness struct {
	kind domain.ChannelKind

	// startErr, when set, is returned from Start for the nth attempt.
	startErr func(n int) error
	// onStart runs after a successful Start with the adapter's sink ready.
	onStart func(a *fakeAdapter, cred channel.Credential)
	// block keeps Start waiting until its context ends.
	block bool

	created   atomic.Int32
	live      atomic.Int32
	maxLive   atomic.Int32
	refreshes atomic.Int32

	mu       sync.Mutex
	adapters []*fakeAdapter
	logouts  []bool
	creds    []string
}

func (h *harness) factory() channel.Factory {
	return func(tenantID uuid.UUID) (channel.Adapter, error) {
		h.created.Add(1)
		a := &fakeAdapter{h: h}
		h.mu.Lock()
		h.adapters = append(h.adapters, a)
		h.mu.Unlock()
		return a, nil
	}
}

func (h *harness) last() *fakeAdapter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.adapters) == 0 {
		return nil
	}
	return h.adapters[len(h.adapters)-1]
}

func (h *harness) stopLogouts() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.logouts...)
}

type fakeAdapter struct {
	h *harness

	mu      sync.Mutex
	ctx     context.Context
	sink    chan<- channel.Event
	started bool
	stopped bool
	sent    []channel.OutboundMessage
}

func (a *fakeAdapter) Kind() domain.ChannelKind { return a.h.kind }

func (a *fakeAdapter) Start(ctx context.Context, cred channel.Credential, sink chan<- channel.Event) error {
	n := int(a.h.created.Load())
	a.h.mu.Lock()
	a.h.creds = append(a.h.creds, cred.Secret)
	a.h.mu.Unlock()

	a.mu.Lock()
	a.ctx, a.sink, a.started = ctx, sink, true
	a.mu.Unlock()

	live := a.h.live.Add(1)
	for {
		cur := a.h.maxLive.Load()
		if live <= cur || a.h.maxLive.CompareAndSwap(cur, live) {
			break
		}
	}

	if a.h.startErr != nil {
		if err := a.h.startErr(n); err != nil {
			return err
		}
	}
	if a.h.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if a.h.onStart != nil {
		a.h.onStart(a, cred)
	}
	return nil
}

func (a *fakeAdapter) emit(ev channel.Event) {
	a.mu.Lock()
	ctx, sink := a.ctx, a.sink
	a.mu.Unlock()
	channel.Emit(ctx, sink, ev)
}

func (a *fakeAdapter) RefreshPairing(ctx context.Context) error {
	n := a.h.refreshes.Add(1)
	go a.emit(channel.PairingCode{Code: fmt.Sprintf("code-%d", n)})
	return nil
}

func (a *fakeAdapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	return nil
}

func (a *fakeAdapter) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.sent))
	for _, m := range a.sent {
		out = append(out, m.Text)
	}
	return out
}

func (a *fakeAdapter) Stop(ctx context.Context, logout bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return errors.New("stopped twice")
	}
	a.stopped = true
	if a.started {
		a.h.live.Add(-1)
	}
	a.h.mu.Lock()
	a.h.logouts = append(a.h.logouts, logout)
	a.h.mu.Unlock()
	return nil
}

func (a *fakeAdapter) Validate(ctx context.Context, secret string) (string, error) {
	if secret != "good" {
		return "", errors.Mark(errors.New("rejected"), domain.ErrAuthFailed)
	}
	return "@shop_bot", nil
}

// echoHandler replies with the inbound text.
type echoHandler struct{}

func (echoHandler) Dispatch(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, msg channel.InboundMessage) (*channel.OutboundMessage, error) {
	return &channel.OutboundMessage{Text: "echo " + msg.Text}, nil
}
