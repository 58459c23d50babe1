package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `tenant_id, kind, session_id, state, identity, display_name, credential,
	last_error, last_activity, updated_at`

func scanSession(row pgx.Row) (*domain.SessionRecord, error) {
	r := &domain.SessionRecord{}
	err := row.Scan(&r.TenantID, &r.Kind, &r.SessionID, &r.State, &r.Identity, &r.DisplayName, &r.Credential,
		&r.LastError, &r.LastActivity, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *SessionStore) Upsert(ctx context.Context, rec *domain.SessionRecord) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO channel_sessions (tenant_id, kind, session_id, state, identity, display_name, credential, last_error, last_activity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id, kind) DO UPDATE SET
		   session_id = EXCLUDED.session_id,
		   state = EXCLUDED.state,
		   identity = EXCLUDED.identity,
		   display_name = EXCLUDED.display_name,
		   credential = EXCLUDED.credential,
		   last_error = EXCLUDED.last_error,
		   last_activity = EXCLUDED.last_activity,
		   updated_at = NOW()
		 RETURNING updated_at`,
		rec.TenantID, rec.Kind, rec.SessionID, rec.State, rec.Identity, rec.DisplayName, rec.Credential,
		rec.LastError, rec.LastActivity,
	).Scan(&rec.UpdatedAt)
}

func (s *SessionStore) Get(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (*domain.SessionRecord, error) {
	return scanSession(s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM channel_sessions WHERE tenant_id = $1 AND kind = $2`,
		tenantID, kind))
}

func (s *SessionStore) ListByState(ctx context.Context, state domain.SessionState) ([]*domain.SessionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM channel_sessions WHERE state = $1 ORDER BY updated_at`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SessionStore) ClearCredential(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) error {
	_, err := s.db.Exec(ctx,
		`UPDATE channel_sessions SET credential = '', updated_at = NOW() WHERE tenant_id = $1 AND kind = $2`,
		tenantID, kind)
	return err
}
