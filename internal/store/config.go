package store

import (
	"context"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConfigStore struct {
	db *pgxpool.Pool
}

func NewConfigStore(db *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{db: db}
}

func (s *ConfigStore) GetAll(ctx context.Context, tenantID uuid.UUID) (domain.BotConfig, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM bot_config WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cfg := domain.BotConfig{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

func (s *ConfigStore) Set(ctx context.Context, tenantID uuid.UUID, key, value string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO bot_config (tenant_id, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		tenantID, key, value)
	return err
}
