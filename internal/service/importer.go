package service

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseCSV reads a header row followed by data rows. Rows are returned as-is
// so that width mismatches are rejected by ImportRows rather than here.
func ParseCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, domain.Validationf("file is empty")
		}
		return nil, nil, errors.Mark(errors.Wrap(err, "parse csv header"), domain.ErrValidation)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, errors.Mark(errors.Wrap(err, "parse csv"), domain.ErrValidation)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// Importer turns an uploaded CSV file into a new dataset.
type Importer struct {
	datasets *DatasetService
	logger   *zap.Logger
}

func NewImporter(datasets *DatasetService, logger *zap.Logger) *Importer {
	return &Importer{datasets: datasets, logger: logger}
}

// Import creates a table from the CSV header and loads all rows. If loading
// fails the new table is removed, so a failed import leaves nothing behind.
func (im *Importer) Import(ctx context.Context, tenantID uuid.UUID, displayName string, r io.Reader) (*domain.Dataset, int64, error) {
	header, rows, err := ParseCSV(r)
	if err != nil {
		return nil, 0, err
	}

	d, err := im.datasets.CreateTable(ctx, tenantID, displayName, header)
	if err != nil {
		return nil, 0, err
	}

	n, err := im.datasets.ImportRows(ctx, tenantID, d.ID, rows)
	if err != nil {
		if derr := im.datasets.DeleteTable(context.WithoutCancel(ctx), tenantID, d.ID); derr != nil {
			im.logger.Error("failed to remove table after import error",
				zap.String("table", d.Name), zap.Error(derr))
		}
		return nil, 0, err
	}
	d.RowCount = n

	im.logger.Info("dataset imported",
		zap.String("tenant_id", tenantID.String()),
		zap.String("table", d.Name),
		zap.Int64("rows", n))
	return d, n, nil
}
