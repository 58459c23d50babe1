package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DatasetStore struct {
	db *pgxpool.Pool
}

func NewDatasetStore(db *pgxpool.Pool) *DatasetStore {
	return &DatasetStore{db: db}
}

const datasetSelect = `SELECT t.id, t.tenant_id, t.name, t.display_name, t.columns, t.created_at,
	(SELECT COUNT(*) FROM dataset_rows r WHERE r.table_id = t.id)
	FROM dataset_tables t`

func scanDataset(row pgx.Row) (*domain.Dataset, error) {
	d := &domain.Dataset{}
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.DisplayName, &d.Columns, &d.CreatedAt, &d.RowCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DatasetStore) CreateTable(ctx context.Context, d *domain.Dataset) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO dataset_tables (tenant_id, name, display_name, columns)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		d.TenantID, d.Name, d.DisplayName, d.Columns,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *DatasetStore) GetTable(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	return scanDataset(s.db.QueryRow(ctx, datasetSelect+` WHERE t.id = $1`, id))
}

func (s *DatasetStore) GetTableByName(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Dataset, error) {
	return scanDataset(s.db.QueryRow(ctx, datasetSelect+` WHERE t.tenant_id = $1 AND t.name = $2`, tenantID, name))
}

func (s *DatasetStore) ListTables(ctx context.Context, tenantID uuid.UUID) ([]*domain.Dataset, error) {
	rows, err := s.db.Query(ctx, datasetSelect+` WHERE t.tenant_id = $1 ORDER BY t.created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteTable removes the table; its rows go with it via ON DELETE CASCADE.
func (s *DatasetStore) DeleteTable(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM dataset_tables WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertRows copies all rows in one transaction; any failure leaves the
// table exactly as it was.
func (s *DatasetStore) InsertRows(ctx context.Context, tableID uuid.UUID, rows [][]string) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	src := make([][]any, len(rows))
	for i, r := range rows {
		src[i] = []any{tableID, r}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"dataset_rows"},
		[]string{"table_id", "values"},
		pgx.CopyFromRows(src),
	)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *DatasetStore) ListRows(ctx context.Context, tableID uuid.UUID) ([]domain.Row, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, "values" FROM dataset_rows WHERE table_id = $1 ORDER BY id`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		var r domain.Row
		if err := rows.Scan(&r.ID, &r.Values); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRow merges values (keyed by column position) into an existing row
// under a row lock.
func (s *DatasetStore) UpdateRow(ctx context.Context, tableID uuid.UUID, rowID int64, values map[int]string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current []string
	err = tx.QueryRow(ctx,
		`SELECT "values" FROM dataset_rows WHERE id = $1 AND table_id = $2 FOR UPDATE`,
		rowID, tableID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	for i, v := range values {
		for len(current) <= i {
			current = append(current, "")
		}
		current[i] = v
	}

	if _, err := tx.Exec(ctx,
		`UPDATE dataset_rows SET "values" = $3 WHERE id = $1 AND table_id = $2`,
		rowID, tableID, current,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *DatasetStore) DeleteRow(ctx context.Context, tableID uuid.UUID, rowID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM dataset_rows WHERE id = $1 AND table_id = $2`, rowID, tableID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatasetStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM dataset_tables`).Scan(&n)
	return n, err
}
