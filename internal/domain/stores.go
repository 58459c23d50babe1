package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, active bool) error
	UpdateWAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	UpdateLimits(ctx context.Context, id uuid.UUID, limits QuotaLimits) error
	UpdateTelegramToken(ctx context.Context, id uuid.UUID, token string) error
}

type SessionStore interface {
	Upsert(ctx context.Context, rec *SessionRecord) error
	Get(ctx context.Context, tenantID uuid.UUID, kind ChannelKind) (*SessionRecord, error)
	ListByState(ctx context.Context, state SessionState) ([]*SessionRecord, error)
	ClearCredential(ctx context.Context, tenantID uuid.UUID, kind ChannelKind) error
}

type MenuStore interface {
	Create(ctx context.Context, m *Menu) error
	Replace(ctx context.Context, m *Menu) error
	Get(ctx context.Context, tenantID uuid.UUID, slug string) (*Menu, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Menu, error)
	Delete(ctx context.Context, tenantID uuid.UUID, slug string) error
	CountAll(ctx context.Context) (int64, error)
}

type ConfigStore interface {
	GetAll(ctx context.Context, tenantID uuid.UUID) (BotConfig, error)
	Set(ctx context.Context, tenantID uuid.UUID, key, value string) error
}

// DatasetStore persists datasets. Lookups by id are not tenant-filtered;
// callers must compare Dataset.TenantID before acting.
type DatasetStore interface {
	CreateTable(ctx context.Context, d *Dataset) error
	GetTable(ctx context.Context, id uuid.UUID) (*Dataset, error)
	GetTableByName(ctx context.Context, tenantID uuid.UUID, name string) (*Dataset, error)
	ListTables(ctx context.Context, tenantID uuid.UUID) ([]*Dataset, error)
	DeleteTable(ctx context.Context, id uuid.UUID) error
	InsertRows(ctx context.Context, tableID uuid.UUID, rows [][]string) (int64, error)
	ListRows(ctx context.Context, tableID uuid.UUID) ([]Row, error)
	UpdateRow(ctx context.Context, tableID uuid.UUID, rowID int64, values map[int]string) error
	DeleteRow(ctx context.Context, tableID uuid.UUID, rowID int64) error
	CountAll(ctx context.Context) (int64, error)
}

type UsageStore interface {
	Increment(ctx context.Context, tenantID uuid.UUID, date time.Time, sent, received int64) error
	Totals(ctx context.Context, tenantID uuid.UUID, day, monthStart time.Time) (todaySent, monthSent int64, err error)
	History(ctx context.Context, tenantID uuid.UUID, from time.Time) ([]DailyUsage, error)
	SentOn(ctx context.Context, day time.Time) (int64, error)
}
