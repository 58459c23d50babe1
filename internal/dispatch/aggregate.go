package dispatch

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	commaThousands = regexp.MustCompile(`^-?[1-9]\d{0,2}(,\d{3})+$`)
	dotThousands   = regexp.MustCompile(`^-?[1-9]\d{0,2}(\.\d{3})+$`)
)

var currencyMarkers = []string{"IDR", "Rp.", "Rp", "rp", "USD", "$", "€"}

// ParseNumber reads a human-entered amount such as "Rp 12.500", "$1,234.50"
// or "1.234,5". Groups of exactly three digits after a single kind of
// separator are read as thousands.
func ParseNumber(raw string) (decimal.Decimal, error) {
	s := raw
	for _, m := range currencyMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Decimal{}, errors.Newf("%q is empty", raw)
	}

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if commaThousands.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if dotThousands.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Newf("%q is not a number", raw)
	}
	return d, nil
}

// Result is the outcome of an aggregation over one column.
type Result struct {
	Aggregation domain.Aggregation
	Column      string
	Value       decimal.Decimal
	Rows        int
}

// Aggregate applies agg over column. Every row must hold a number in that
// column, so a blank or bad cell fails the whole calculation.
func Aggregate(ds *domain.Dataset, rows []domain.Row, column string, agg domain.Aggregation) (Result, error) {
	if column == "" {
		if len(ds.Columns) == 0 {
			return Result{}, domain.DataErrorf("table %q has no columns", ds.DisplayName)
		}
		column = ds.Columns[0]
	}
	idx := ds.ColumnIndex(column)
	if idx < 0 {
		return Result{}, domain.DataErrorf("column %q does not exist in table %q", column, ds.DisplayName)
	}
	if agg == "" {
		agg = domain.AggregationSum
	}
	if !agg.IsValid() {
		return Result{}, domain.DataErrorf("unknown aggregation %q", agg)
	}

	sum := decimal.Zero
	for _, r := range rows {
		v, err := ParseNumber(r.Value(idx))
		if err != nil {
			return Result{}, domain.DataErrorf("row %d: %s in column %q", r.ID, err.Error(), column)
		}
		sum = sum.Add(v)
	}

	res := Result{Aggregation: agg, Column: column, Rows: len(rows)}
	switch agg {
	case domain.AggregationSum:
		res.Value = sum
	case domain.AggregationAvg:
		if len(rows) == 0 {
			return Result{}, domain.DataErrorf("table %q has no rows to average", ds.DisplayName)
		}
		res.Value = sum.Div(decimal.NewFromInt(int64(len(rows)))).Round(2)
	case domain.AggregationCount:
		res.Value = decimal.NewFromInt(int64(len(rows)))
	}
	return res, nil
}
