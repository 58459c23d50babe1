package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MenuStore struct {
	db *pgxpool.Pool
}

func NewMenuStore(db *pgxpool.Pool) *MenuStore {
	return &MenuStore{db: db}
}

func scanMenu(row pgx.Row) (*domain.Menu, error) {
	m := &domain.Menu{}
	var items []byte
	err := row.Scan(&m.ID, &m.TenantID, &m.Slug, &m.Title, &items, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &m.Items); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MenuStore) Create(ctx context.Context, m *domain.Menu) error {
	items, err := json.Marshal(m.Items)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO menus (tenant_id, slug, title, items) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		m.TenantID, m.Slug, m.Title, items,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Replace overwrites title and the full item list. Last writer wins.
func (s *MenuStore) Replace(ctx context.Context, m *domain.Menu) error {
	items, err := json.Marshal(m.Items)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`UPDATE menus SET title = $3, items = $4, updated_at = NOW()
		 WHERE tenant_id = $1 AND slug = $2
		 RETURNING id, created_at, updated_at`,
		m.TenantID, m.Slug, m.Title, items,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *MenuStore) Get(ctx context.Context, tenantID uuid.UUID, slug string) (*domain.Menu, error) {
	return scanMenu(s.db.QueryRow(ctx,
		`SELECT id, tenant_id, slug, title, items, created_at, updated_at
		 FROM menus WHERE tenant_id = $1 AND slug = $2`,
		tenantID, slug))
}

func (s *MenuStore) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Menu, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, slug, title, items, created_at, updated_at
		 FROM menus WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MenuStore) Delete(ctx context.Context, tenantID uuid.UUID, slug string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM menus WHERE tenant_id = $1 AND slug = $2`, tenantID, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MenuStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM menus`).Scan(&n)
	return n, err
}
