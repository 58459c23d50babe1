package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrDatasetNotFound = errors.Mark(errors.New("table not found"), domain.ErrNotFound)
	ErrRowNotFound     = errors.Mark(errors.New("row not found"), domain.ErrNotFound)
	ErrDatasetConflict = errors.Mark(errors.New("table with this name already exists"), domain.ErrConflict)
)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeIdentifier lowercases s and collapses anything outside
// [a-z0-9_] into single underscores.
func SanitizeIdentifier(s string) string {
	s = nonIdentChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	return strings.Trim(s, "_")
}

// NormalizeColumns sanitizes header names, names empty headers by position,
// and suffixes duplicates so every column name is unique.
func NormalizeColumns(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		name := SanitizeIdentifier(h)
		if name == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name]++
		out[i] = name
	}
	return out
}

type DatasetService struct {
	store  domain.DatasetStore
	logger *zap.Logger
	now    func() time.Time
}

func NewDatasetService(s domain.DatasetStore, logger *zap.Logger) *DatasetService {
	return &DatasetService{store: s, logger: logger, now: time.Now}
}

// owned loads a table and rejects it unless it belongs to tenantID.
func (s *DatasetService) owned(ctx context.Context, tenantID, tableID uuid.UUID) (*domain.Dataset, error) {
	d, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	if d.TenantID != tenantID {
		s.logger.Warn("cross-tenant dataset access rejected",
			zap.String("tenant_id", tenantID.String()),
			zap.String("table_id", tableID.String()))
		return nil, errors.WithStack(domain.ErrTenantMismatch)
	}
	return d, nil
}

func (s *DatasetService) CreateTable(ctx context.Context, tenantID uuid.UUID, displayName string, columns []string) (*domain.Dataset, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.Validationf("display name is required")
	}
	if len(displayName) > 256 {
		return nil, domain.Validationf("display name exceeds 256 characters")
	}
	if len(columns) == 0 {
		return nil, domain.Validationf("at least one column is required")
	}

	base := SanitizeIdentifier(displayName)
	if base == "" {
		base = "table"
	}
	d := &domain.Dataset{
		TenantID:    tenantID,
		Name:        fmt.Sprintf("dt_%s_%d", base, s.now().Unix()),
		DisplayName: displayName,
		Columns:     NormalizeColumns(columns),
	}
	if err := s.store.CreateTable(ctx, d); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrDatasetConflict
		}
		return nil, err
	}
	return d, nil
}

// ImportRows appends rows in one all-or-nothing batch. Every row must have
// exactly one value per column.
func (s *DatasetService) ImportRows(ctx context.Context, tenantID, tableID uuid.UUID, rows [][]string) (int64, error) {
	d, err := s.owned(ctx, tenantID, tableID)
	if err != nil {
		return 0, err
	}
	for i, r := range rows {
		if len(r) != len(d.Columns) {
			return 0, domain.Validationf("row %d has %d values, expected %d", i+1, len(r), len(d.Columns))
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return s.store.InsertRows(ctx, tableID, rows)
}

func (s *DatasetService) Get(ctx context.Context, tenantID, tableID uuid.UUID) (*domain.Dataset, error) {
	return s.owned(ctx, tenantID, tableID)
}

// Resolve finds a tenant's table by its internal name.
func (s *DatasetService) Resolve(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Dataset, error) {
	d, err := s.store.GetTableByName(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DatasetService) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Dataset, error) {
	return s.store.ListTables(ctx, tenantID)
}

// ListRows returns rows in insertion order.
func (s *DatasetService) ListRows(ctx context.Context, tenantID, tableID uuid.UUID) (*domain.Dataset, []domain.Row, error) {
	d, err := s.owned(ctx, tenantID, tableID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.store.ListRows(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	return d, rows, nil
}

// UpdateRow applies a partial update. Unknown column keys are ignored.
func (s *DatasetService) UpdateRow(ctx context.Context, tenantID, tableID uuid.UUID, rowID int64, values map[string]string) error {
	d, err := s.owned(ctx, tenantID, tableID)
	if err != nil {
		return err
	}
	positional := make(map[int]string, len(values))
	for k, v := range values {
		if i := d.ColumnIndex(k); i >= 0 {
			positional[i] = v
		}
	}
	if err := s.store.UpdateRow(ctx, tableID, rowID, positional); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRowNotFound
		}
		return err
	}
	return nil
}

func (s *DatasetService) DeleteRow(ctx context.Context, tenantID, tableID uuid.UUID, rowID int64) error {
	if _, err := s.owned(ctx, tenantID, tableID); err != nil {
		return err
	}
	if err := s.store.DeleteRow(ctx, tableID, rowID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRowNotFound
		}
		return err
	}
	return nil
}

// DeleteTable removes the table and all of its rows.
func (s *DatasetService) DeleteTable(ctx context.Context, tenantID, tableID uuid.UUID) error {
	if _, err := s.owned(ctx, tenantID, tableID); err != nil {
		return err
	}
	if err := s.store.DeleteTable(ctx, tableID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDatasetNotFound
		}
		return err
	}
	return nil
}

// Search returns up to limit rows, across all of the tenant's tables, that
// contain query as a case-insensitive substring.
func (s *DatasetService) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]domain.SearchHit, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil, nil
	}
	tables, err := s.store.ListTables(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var hits []domain.SearchHit
	for _, d := range tables {
		rows, err := s.store.ListRows(ctx, d.ID)
		if err != nil {
			s.logger.Warn("search skipped table", zap.String("table", d.Name), zap.Error(err))
			continue
		}
		for _, r := range rows {
			if lo.SomeBy(r.Values, func(v string) bool { return strings.Contains(strings.ToLower(v), query) }) {
				hits = append(hits, domain.SearchHit{Dataset: d, Row: r})
				if len(hits) >= limit {
					return hits, nil
				}
			}
		}
	}
	return hits, nil
}

func (s *DatasetService) CountAll(ctx context.Context) (int64, error) {
	return s.store.CountAll(ctx)
}
