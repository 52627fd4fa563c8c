package domain

import (
	"fmt"
	"strconv"
)

// Row is a single result row addressable by column name. Values hold what the
// SQLite driver returned: int64, float64, string, []byte, time.Time or nil.
type Row map[string]any

// Has reports whether the row carries the named column.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// String returns the column as text. BLOBs are converted verbatim, numbers
// are formatted in base 10 and NULL yields "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an integer. Text columns holding a decimal
// number are parsed; anything else is an error.
func (r Row) Int64(col string) (int64, error) {
	switch v := r[col].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case nil:
		return 0, fmt.Errorf("column %q is NULL", col)
	default:
		return 0, fmt.Errorf("column %q: unsupported type %T", col, v)
	}
}

// Bytes returns the column as raw bytes; text is converted, NULL yields nil.
func (r Row) Bytes(col string) []byte {
	switch v := r[col].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
