package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TenantStore struct {
	db *pgxpool.Pool
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{db: db}
}

const tenantColumns = `id, name, role, api_key_hash, password_hash, is_active, wa_enabled,
	daily_limit, monthly_limit, telegram_token, created_at, updated_at`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.Role, &t.APIKeyHash, &t.PasswordHash, &t.IsActive, &t.WAEnabled,
		&t.DailyLimit, &t.MonthlyLimit, &t.TelegramToken, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	if t.Role == "" {
		t.Role = domain.RoleUser
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants (name, role, api_key_hash, password_hash, is_active, wa_enabled, daily_limit, monthly_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		t.Name, t.Role, t.APIKeyHash, t.PasswordHash, t.IsActive, t.WAEnabled, t.DailyLimit, t.MonthlyLimit,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (s *TenantStore) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE name = $1`, name))
}

func (s *TenantStore) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*domain.Tenant, error) {
	return scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key_hash = $1`, apiKeyHash))
}

func (s *TenantStore) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TenantStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, active bool) error {
	return s.exec(ctx, `UPDATE tenants SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (s *TenantStore) UpdateWAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.exec(ctx, `UPDATE tenants SET wa_enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
}

func (s *TenantStore) UpdateLimits(ctx context.Context, id uuid.UUID, limits domain.QuotaLimits) error {
	return s.exec(ctx,
		`UPDATE tenants SET daily_limit = $2, monthly_limit = $3, updated_at = NOW() WHERE id = $1`,
		id, limits.Daily, limits.Monthly)
}

func (s *TenantStore) UpdateTelegramToken(ctx context.Context, id uuid.UUID, token string) error {
	return s.exec(ctx, `UPDATE tenants SET telegram_token = $2, updated_at = NOW() WHERE id = $1`, id, token)
}
