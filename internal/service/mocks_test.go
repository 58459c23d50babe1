package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/google/uuid"
)

// mockTenantStore implements domain.TenantStore for testing.
type mockTenantStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newMockTenantStore() *mockTenantStore {
	return &mockTenantStore{tenants: make(map[uuid.UUID]*domain.Tenant)}
}

func (m *mockTenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Name == t.Name {
			return store.ErrConflict
		}
	}
	if t.Role == "" {
		t.Role = domain.RoleUser
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *mockTenantStore) find(fn func(*domain.Tenant) bool) (*domain.Tenant, error) {
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

func (m *mockTenantStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.ID == id })
}

func (m *mockTenantStore) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.Name == name })
}

func (m *mockTenantStore) GetByAPIKeyHash(ctx context.Context, h string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.APIKeyHash == h })
}

func (m *mockTenantStore) List(ctx context.Context) ([]*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Tenant
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockTenantStore) update(id uuid.UUID, fn func(*domain.Tenant)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(t)
	return nil
}

func (m *mockTenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, active bool) error {
	return m.update(id, func(t *domain.Tenant) { t.IsActive = active })
}

func (m *mockTenantStore) UpdateWAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return m.update(id, func(t *domain.Tenant) { t.WAEnabled = enabled })
}

func (m *mockTenantStore) UpdateLimits(ctx context.Context, id uuid.UUID, limits domain.QuotaLimits) error {
	return m.update(id, func(t *domain.Tenant) { t.DailyLimit, t.MonthlyLimit = limits.Daily, limits.Monthly })
}

func (m *mockTenantStore) UpdateTelegramToken(ctx context.Context, id uuid.UUID, token string) error {
	return m.update(id, func(t *domain.Tenant) { t.TelegramToken = token })
}

// mockDatasetStore implements domain.DatasetStore for testing.
type mockDatasetStore struct {
	mu        sync.Mutex
	tables    map[uuid.UUID]*domain.Dataset
	rows      map[uuid.UUID][]domain.Row
	nextRow   int64
	insertErr error
}

func newMockDatasetStore() *mockDatasetStore {
	return &mockDatasetStore{
		tables: make(map[uuid.UUID]*domain.Dataset),
		rows:   make(map[uuid.UUID][]domain.Row),
	}
}

func (m *mockDatasetStore) CreateTable(ctx context.Context, d *domain.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.TenantID == d.TenantID && t.Name == d.Name {
			return store.ErrConflict
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	cp := *d
	m.tables[d.ID] = &cp
	return nil
}

func (m *mockDatasetStore) GetTable(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	cp.RowCount = int64(len(m.rows[id]))
	return &cp, nil
}

func (m *mockDatasetStore) GetTableByName(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.TenantID == tenantID && t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockDatasetStore) ListTables(ctx context.Context, tenantID uuid.UUID) ([]*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Dataset
	for _, t := range m.tables {
		if t.TenantID == tenantID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockDatasetStore) DeleteTable(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tables, id)
	delete(m.rows, id)
	return nil
}

func (m *mockDatasetStore) InsertRows(ctx context.Context, tableID uuid.UUID, rows [][]string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	for _, r := range rows {
		m.nextRow++
		m.rows[tableID] = append(m.rows[tableID], domain.Row{ID: m.nextRow, Values: append([]string(nil), r...)})
	}
	return int64(len(rows)), nil
}

func (m *mockDatasetStore) ListRows(ctx context.Context, tableID uuid.UUID) ([]domain.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Row(nil), m.rows[tableID]...), nil
}

func (m *mockDatasetStore) UpdateRow(ctx context.Context, tableID uuid.UUID, rowID int64, values map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows[tableID] {
		if r.ID == rowID {
			vals := append([]string(nil), r.Values...)
			for idx, v := range values {
				vals[idx] = v
			}
			m.rows[tableID][i].Values = vals
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockDatasetStore) DeleteRow(ctx context.Context, tableID uuid.UUID, rowID int64) error {
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

func (m *mockDatasetStore) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tables)), nil
}

// mockMenuStore implements domain.MenuStore and counts reads.
type mockMenuStore struct {
	mu    sync.Mutex
	menus map[uuid.UUID]map[string]*domain.Menu
	lists int
}

func newMockMenuStore() *mockMenuStore {
	return &mockMenuStore{menus: make(map[uuid.UUID]map[string]*domain.Menu)}
}

func (m *mockMenuStore) Create(ctx context.Context, menu *domain.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byslug := m.menus[menu.TenantID]
	if byslug == nil {
		byslug = make(map[string]*domain.Menu)
		m.menus[menu.TenantID] = byslug
	}
	if _, ok := byslug[menu.Slug]; ok {
		return store.ErrConflict
	}
	menu.ID = uuid.New()
	cp := *menu
	byslug[menu.Slug] = &cp
	return nil
}

func (m *mockMenuStore) Replace(ctx context.Context, menu *domain.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.menus[menu.TenantID][menu.Slug]
	if !ok {
		return store.ErrNotFound
	}
	existing.Title, existing.Items = menu.Title, menu.Items
	return nil
}

func (m *mockMenuStore) Get(ctx context.Context, tenantID uuid.UUID, slug string) (*domain.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu, ok := m.menus[tenantID][slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *menu
	return &cp, nil
}

func (m *mockMenuStore) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []*domain.Menu
	for _, menu := range m.menus[tenantID] {
		cp := *menu
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *mockMenuStore) Delete(ctx context.Context, tenantID uuid.UUID, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menus[tenantID][slug]; !ok {
		return store.ErrNotFound
	}
	delete(m.menus[tenantID], slug)
	return nil
}

func (m *mockMenuStore) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, byslug := range m.menus {
		n += int64(len(byslug))
	}
	return n, nil
}

func (m *mockMenuStore) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// mockConfigStore implements domain.ConfigStore for testing.
type mockConfigStore struct {
	mu  sync.Mutex
	cfg map[uuid.UUID]domain.BotConfig
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{cfg: make(map[uuid.UUID]domain.BotConfig)}
}

func (m *mockConfigStore) GetAll(ctx context.Context, tenantID uuid.UUID) (domain.BotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := domain.BotConfig{}
	for k, v := range m.cfg[tenantID] {
		out[k] = v
	}
	return out, nil
}

func (m *mockConfigStore) Set(ctx context.Context, tenantID uuid.UUID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg[tenantID] == nil {
		m.cfg[tenantID] = domain.BotConfig{}
	}
	m.cfg[tenantID][key] = value
	return nil
}

// mockUsageStore implements domain.UsageStore keyed by calendar date.
type mockUsageStore struct {
	mu   sync.Mutex
	days map[uuid.UUID]map[string]*domain.DailyUsage
}

func newMockUsageStore() *mockUsageStore {
	return &mockUsageStore{days: make(map[uuid.UUID]map[string]*domain.DailyUsage)}
}

func (m *mockUsageStore) Increment(ctx context.Context, tenantID uuid.UUID, date time.Time, sent, received int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byday := m.days[tenantID]
	if byday == nil {
		byday = make(map[string]*domain.DailyUsage)
		m.days[tenantID] = byday
	}
	k := date.Format(time.DateOnly)
	u, ok := byday[k]
	if !ok {
		y, mo, d := date.Date()
		u = &domain.DailyUsage{Date: time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)}
		byday[k] = u
	}
	u.MessagesSent += sent
	u.MessagesReceived += received
	return nil
}

func (m *mockUsageStore) Totals(ctx context.Context, tenantID uuid.UUID, day, monthStart time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var today, month int64
	dk, mk := day.Format(time.DateOnly), monthStart.Format(time.DateOnly)
	for k, u := range m.days[tenantID] {
		if k == dk {
			today += u.MessagesSent
		}
		if k >= mk {
			month += u.MessagesSent
		}
	}
	return today, month, nil
}

func (m *mockUsageStore) History(ctx context.Context, tenantID uuid.UUID, from time.Time) ([]domain.DailyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fk := from.Format(time.DateOnly)
	var out []domain.DailyUsage
	for k, u := range m.days[tenantID] {
		if k >= fk {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *mockUsageStore) SentOn(ctx context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	dk := day.Format(time.DateOnly)
	for _, byday := range m.days {
		if u, ok := byday[dk]; ok {
			n += u.MessagesSent
		}
	}
	return n, nil
}

func (m *mockUsageStore) seed(tenantID uuid.UUID, date time.Time, sent int64) {
	_ = m.Increment(context.Background(), tenantID, date, sent, 0)
}

// fakeSessions implements SessionReader from a fixed table.
type fakeSessions struct {
	sessions map[uuid.UUID]map[domain.ChannelKind]domain.ChannelSession
}

func (f *fakeSessions) Status(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	if cs, ok := f.sessions[tenantID][kind]; ok {
		return cs, nil
	}
	return domain.ChannelSession{TenantID: tenantID, Kind: kind, State: domain.StateUninitialized}, nil
}

func (f *fakeSessions) ConnectedCount(kind domain.ChannelKind) int {
	n := 0
	for _, byKind := range f.sessions {
		if byKind[kind].State == domain.StateConnected {
			n++
		}
	}
	return n
}
