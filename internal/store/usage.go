package store

import (
	"context"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageStore struct {
	db *pgxpool.Pool
}

func NewUsageStore(db *pgxpool.Pool) *UsageStore {
	return &UsageStore{db: db}
}

// Increment adds to the tenant's counters for the given calendar date.
func (s *UsageStore) Increment(ctx context.Context, tenantID uuid.UUID, date time.Time, sent, received int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO message_usage (tenant_id, date, messages_sent, messages_received)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, date) DO UPDATE SET
		   messages_sent = message_usage.messages_sent + EXCLUDED.messages_sent,
		   messages_received = message_usage.messages_received + EXCLUDED.messages_received`,
		tenantID, dateOnly(date), sent, received)
	return err
}

func (s *UsageStore) Totals(ctx context.Context, tenantID uuid.UUID, day, monthStart time.Time) (int64, int64, error) {
	var today, month int64
	err := s.db.QueryRow(ctx,
		`SELECT
		   COALESCE(SUM(messages_sent) FILTER (WHERE date = $2), 0),
		   COALESCE(SUM(messages_sent) FILTER (WHERE date >= $3), 0)
		 FROM message_usage WHERE tenant_id = $1 AND date >= $3`,
		tenantID, dateOnly(day), dateOnly(monthStart),
	).Scan(&today, &month)
	return today, month, err
}

func (s *UsageStore) History(ctx context.Context, tenantID uuid.UUID, from time.Time) ([]domain.DailyUsage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT date, messages_sent, messages_received FROM message_usage
		 WHERE tenant_id = $1 AND date >= $2 ORDER BY date`,
		tenantID, dateOnly(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyUsage
	for rows.Next() {
		var u domain.DailyUsage
		if err := rows.Scan(&u.Date, &u.MessagesSent, &u.MessagesReceived); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *UsageStore) SentOn(ctx context.Context, day time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(messages_sent), 0) FROM message_usage WHERE date = $1`, dateOnly(day),
	).Scan(&n)
	return n, err
}

// dateOnly keeps the caller's calendar date regardless of its time zone.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
