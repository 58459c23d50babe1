package domain

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is a tenant-owned table whose column set is fixed at creation.
type Dataset struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"-"`
	Name        string    `json:"table_name"`
	DisplayName string    `json:"display_name"`
	Columns     []string  `json:"columns"`
	RowCount    int64     `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// ColumnIndex returns the position of a column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Row stores values positionally, aligned with the dataset's columns.
type Row struct {
	ID     int64    `json:"id"`
	Values []string `json:"values"`
}

// Value returns the cell at column position i, or "" when out of range.
func (r Row) Value(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Record maps column names to values for API responses.
func (r Row) Record(columns []string) map[string]string {
	rec := make(map[string]string, len(columns))
	for i, c := range columns {
		rec[c] = r.Value(i)
	}
	return rec
}

// SearchHit is one dataset row matched by a text search.
type SearchHit struct {
	Dataset *Dataset
	Row     Row
}
