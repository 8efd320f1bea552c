package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrTableBounds is returned when the requested cell is outside the table.
	ErrTableBounds = errors.New("table cell out of bounds")

	// ErrNotNumeric is returned when the requested cell is not a number.
	ErrNotNumeric = errors.New("table cell is not numeric")

	// ErrHeaderMismatch is returned when the column title does not match.
	ErrHeaderMismatch = errors.New("table header mismatch")
)

// TableSpec locates one value in a row-major table whose row 0 is the
// header. Negative rows count from the end, so -1 is the last row.
type TableSpec struct {
	Column int
	Row    int

	// HeaderContains, when set, must be a substring of the column title.
	HeaderContains string
}

// DefaultTableSpec reads the aggregate row's mass-averaged SAR.
var DefaultTableSpec = TableSpec{Column: 2, Row: -1}

// TableValue returns the numeric value at spec.
func TableValue(table [][]any, spec TableSpec) (float64, error) {
	if len(table) < 2 {
		return 0, fmt.Errorf("%w: table has %d rows, need a header and at least one data row", ErrTableBounds, len(table))
	}
	row := spec.Row
	if row < 0 {
		row += len(table)
	}
	if row < 1 || row >= len(table) {
		return 0, fmt.Errorf("%w: row %d of %d data rows", ErrTableBounds, spec.Row, len(table)-1)
	}
	if spec.Column < 0 || spec.Column >= len(table[row]) {
		return 0, fmt.Errorf("%w: column %d of %d", ErrTableBounds, spec.Column, len(table[row]))
	}

	if spec.HeaderContains != "" {
		header := table[0]
		if spec.Column >= len(header) {
			return 0, fmt.Errorf("%w: header has %d columns", ErrHeaderMismatch, len(header))
		}
		title := fmt.Sprint(header[spec.Column])
		if !strings.Contains(title, spec.HeaderContains) {
			return 0, fmt.Errorf("%w: column %d is %q, want %q", ErrHeaderMismatch, spec.Column, title, spec.HeaderContains)
		}
	}

	return toFloat(table[row][spec.Column])
}

// toFloat accepts numeric cells and numeric strings. NaN and infinities
// are rejected like any other non-value.
func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, x)
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, x)
		}
		f = n
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrNotNumeric, v)
	}
	return f, nil
}
