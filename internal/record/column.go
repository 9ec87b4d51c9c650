package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the logical type of an imported column. Each engine maps it
// to a native type when creating tables.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

// Column is a caller-supplied column definition.
type Column struct {
	Name string
	Type ColumnType
}

// ParseColumnType resolves a user-supplied type name. Empty means text.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "string", "varchar":
		return TypeText, nil
	case "integer", "int", "bigint", "int64":
		return TypeInteger, nil
	case "float", "double", "real", "float64", "numeric", "decimal":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "timestamp", "datetime", "timestamptz":
		return TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unsupported column type %q", s)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parse converts a flat-file cell into a Value of the given type.
// Text cells are kept verbatim; an empty cell of any other type is Null.
func Parse(cell string, t ColumnType) (Value, error) {
	if t == TypeText || t == "" {
		return Text(cell), nil
	}

	s := strings.TrimSpace(cell)
	if s == "" {
		return Null(), nil
	}

	switch t {
	case TypeInteger:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid integer %q", cell)
		}
		return Int(i), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid float %q", cell)
		}
		return Float(f), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.ToLower(s))
		if err != nil {
			switch strings.ToLower(s) {
			case "yes", "y":
				return Bool(true), nil
			case "no", "n":
				return Bool(false), nil
			}
			return Null(), fmt.Errorf("invalid boolean %q", cell)
		}
		return Bool(b), nil
	case TypeDate:
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return Null(), fmt.Errorf("invalid date %q (want YYYY-MM-DD)", cell)
		}
		return Time(d), nil
	case TypeTimestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return Time(ts), nil
			}
		}
		return Null(), fmt.Errorf("invalid timestamp %q", cell)
	}
	return Null(), fmt.Errorf("unsupported column type %q", t)
}
