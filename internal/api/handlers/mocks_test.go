package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/google/uuid"
)

type memTenants struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newMemTenants() *memTenants {
	return &memTenants{tenants: make(map[uuid.UUID]*domain.Tenant)}
}

func (m *memTenants) Create(ctx context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Name == t.Name {
			return store.ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Role == "" {
		t.Role = domain.RoleUser
	}
	t.CreatedAt = time.Now()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenants) find(fn func(*domain.Tenant) bool) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if fn(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memTenants) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.ID == id })
}

func (m *memTenants) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.Name == name })
}

func (m *memTenants) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.APIKeyHash == hash })
}

func (m *memTenants) List(ctx context.Context) ([]*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memTenants) update(id uuid.UUID, fn func(*domain.Tenant)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(t)
	return nil
}

func (m *memTenants) UpdateStatus(ctx context.Context, id uuid.UUID, active bool) error {
	return m.update(id, func(t *domain.Tenant) { t.IsActive = active })
}

func (m *memTenants) UpdateWAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return m.update(id, func(t *domain.Tenant) { t.WAEnabled = enabled })
}

func (m *memTenants) UpdateLimits(ctx context.Context, id uuid.UUID, limits domain.QuotaLimits) error {
	return m.update(id, func(t *domain.Tenant) {
		t.DailyLimit = limits.Daily
		t.MonthlyLimit = limits.Monthly
	})
}

func (m *memTenants) UpdateTelegramToken(ctx context.Context, id uuid.UUID, token string) error {
	return m.update(id, func(t *domain.Tenant) { t.TelegramToken = token })
}

type memMenus struct {
	mu    sync.Mutex
	menus map[string]*domain.Menu
}

func newMemMenus() *memMenus {
	return &memMenus{menus: make(map[string]*domain.Menu)}
}

func menuKey(tenantID uuid.UUID, slug string) string {
	return tenantID.String() + "/" + slug
}

func (m *memMenus) Create(ctx context.Context, menu *domain.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := menuKey(menu.TenantID, menu.Slug)
	if _, ok := m.menus[k]; ok {
		return store.ErrConflict
	}
	cp := *menu
	m.menus[k] = &cp
	return nil
}

func (m *memMenus) Replace(ctx context.Context, menu *domain.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := menuKey(menu.TenantID, menu.Slug)
	if _, ok := m.menus[k]; !ok {
		return store.ErrNotFound
	}
	cp := *menu
	m.menus[k] = &cp
	return nil
}

func (m *memMenus) Get(ctx context.Context, tenantID uuid.UUID, slug string) (*domain.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu, ok := m.menus[menuKey(tenantID, slug)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *menu
	return &cp, nil
}

func (m *memMenus) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Menu
	for _, menu := range m.menus {
		if menu.TenantID == tenantID {
			cp := *menu
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memMenus) Delete(ctx context.Context, tenantID uuid.UUID, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := menuKey(tenantID, slug)
	if _, ok := m.menus[k]; !ok {
		return store.ErrNotFound
	}
	delete(m.menus, k)
	return nil
}

func (m *memMenus) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.menus)), nil
}

type memConfigs struct {
	mu  sync.Mutex
	cfg map[uuid.UUID]domain.BotConfig
}

func newMemConfigs() *memConfigs {
	return &memConfigs{cfg: make(map[uuid.UUID]domain.BotConfig)}
}

func (m *memConfigs) GetAll(ctx context.Context, tenantID uuid.UUID) (domain.BotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := domain.BotConfig{}
	for k, v := range m.cfg[tenantID] {
		out[k] = v
	}
	return out, nil
}

func (m *memConfigs) Set(ctx context.Context, tenantID uuid.UUID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg[tenantID] == nil {
		m.cfg[tenantID] = domain.BotConfig{}
	}
	m.cfg[tenantID][key] = value
	return nil
}

type memDatasets struct {
	mu     sync.Mutex
	tables map[uuid.UUID]*domain.Dataset
	rows   map[uuid.UUID][]domain.Row
	nextID int64
}

func newMemDatasets() *memDatasets {
	return &memDatasets{
		tables: make(map[uuid.UUID]*domain.Dataset),
		rows:   make(map[uuid.UUID][]domain.Row),
	}
}

func (m *memDatasets) CreateTable(ctx context.Context, d *domain.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.TenantID == d.TenantID && t.Name == d.Name {
			return store.ErrConflict
		}
	}
	d.ID = uuid.New()
	cp := *d
	m.tables[d.ID] = &cp
	return nil
}

func (m *memDatasets) GetTable(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.tables[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	cp.RowCount = int64(len(m.rows[id]))
	return &cp, nil
}

func (m *memDatasets) GetTableByName(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.tables {
		if d.TenantID == tenantID && d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memDatasets) ListTables(ctx context.Context, tenantID uuid.UUID) ([]*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Dataset
	for _, d := range m.tables {
		if d.TenantID == tenantID {
			cp := *d
			cp.RowCount = int64(len(m.rows[d.ID]))
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDatasets) DeleteTable(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tables, id)
	delete(m.rows, id)
	return nil
}

func (m *memDatasets) InsertRows(ctx context.Context, tableID uuid.UUID, rows [][]string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.nextID++
		m.rows[tableID] = append(m.rows[tableID], domain.Row{ID: m.nextID, Values: append([]string(nil), r...)})
	}
	return int64(len(rows)), nil
}

func (m *memDatasets) ListRows(ctx context.Context, tableID uuid.UUID) ([]domain.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Row, len(m.rows[tableID]))
	copy(out, m.rows[tableID])
	return out, nil
}

func (m *memDatasets) UpdateRow(ctx context.Context, tableID uuid.UUID, rowID int64, values map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows[tableID] {
		if r.ID == rowID {
			vals := append([]string(nil), r.Values...)
			for pos, v := range values {
				vals[pos] = v
			}
			m.rows[tableID][i].Values = vals
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memDatasets) DeleteRow(ctx context.Context, tableID uuid.UUID, rowID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[tableID]
	for i, r := range rows {
		if r.ID == rowID {
			m.rows[tableID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memDatasets) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tables)), nil
}

type memUsage struct {
	mu   sync.Mutex
	days map[uuid.UUID]map[string]domain.DailyUsage
}

func newMemUsage() *memUsage {
	return &memUsage{days: make(map[uuid.UUID]map[string]domain.DailyUsage)}
}

func (m *memUsage) Increment(ctx context.Context, tenantID uuid.UUID, date time.Time, sent, received int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.days[tenantID] == nil {
		m.days[tenantID] = make(map[string]domain.DailyUsage)
	}
	k := date.Format(time.DateOnly)
	u := m.days[tenantID][k]
	u.Date, _ = time.Parse(time.DateOnly, k)
	u.MessagesSent += sent
	u.MessagesReceived += received
	m.days[tenantID][k] = u
	return nil
}

func (m *memUsage) Totals(ctx context.Context, tenantID uuid.UUID, day, monthStart time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := day.Format(time.DateOnly)
	from := monthStart.Format(time.DateOnly)
	var todaySent, monthSent int64
	for k, u := range m.days[tenantID] {
		if k == today {
			todaySent += u.MessagesSent
		}
		if k >= from && k <= today {
			monthSent += u.MessagesSent
		}
	}
	return todaySent, monthSent, nil
}

func (m *memUsage) History(ctx context.Context, tenantID uuid.UUID, from time.Time) ([]domain.DailyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DailyUsage
	for k, u := range m.days[tenantID] {
		if k >= from.Format(time.DateOnly) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsage) SentOn(ctx context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, days := range m.days {
		n += days[day.Format(time.DateOnly)].MessagesSent
	}
	return n, nil
}

type disconnectCall struct {
	tenantID uuid.UUID
	kind     domain.ChannelKind
	logout   bool
}

// fakeSessions stands in for the orchestrator.
type fakeSessions struct {
	mu          sync.Mutex
	sessions    map[domain.ChannelKind]domain.ChannelSession
	ready       bool
	validName   string
	validErr    error
	connectErr  error
	connects    []domain.ChannelKind
	disconnects []disconnectCall
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[domain.ChannelKind]domain.ChannelSession)}
}

func (f *fakeSessions) set(s domain.ChannelSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Kind] = s
}

func (f *fakeSessions) get(tenantID uuid.UUID, kind domain.ChannelKind) domain.ChannelSession {
	s, ok := f.sessions[kind]
	if !ok {
		return domain.ChannelSession{TenantID: tenantID, Kind: kind, State: domain.StateUninitialized}
	}
	return s
}

func (f *fakeSessions) Connect(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return domain.ChannelSession{}, f.connectErr
	}
	f.connects = append(f.connects, kind)
	s := f.get(tenantID, kind)
	if !s.State.IsLive() {
		s.State = domain.StateConnecting
		f.sessions[kind] = s
	}
	return s, nil
}

func (f *fakeSessions) Await(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	return f.Status(ctx, tenantID, kind)
}

func (f *fakeSessions) Status(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(tenantID, kind), nil
}

func (f *fakeSessions) Pairing(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.get(tenantID, kind)
	return s, f.ready && s.State == domain.StateAwaitingPairing, nil
}

func (f *fakeSessions) Disconnect(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, logout bool) (domain.ChannelSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, disconnectCall{tenantID: tenantID, kind: kind, logout: logout})
	s := f.get(tenantID, kind)
	s.State = domain.StateDisconnected
	f.sessions[kind] = s
	return s, nil
}

func (f *fakeSessions) Validate(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, secret string) (string, error) {
	if f.validErr != nil {
		return "", f.validErr
	}
	return f.validName, nil
}

func (f *fakeSessions) ConnectedCount(kind domain.ChannelKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[kind].State == domain.StateConnected {
		return 1
	}
	return 0
}
