package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PropertyType is the semantic type of a resource property
type PropertyType int

const (
	TypeInt64 PropertyType = iota + 1
	TypeFloat64
	TypeString
	TypeBool
	TypeBlob
	TypeTimestamp
)

// String returns the name of the property type
func (pt PropertyType) String() string {
	switch pt {
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeBlob:
		return "blob"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// IsValid checks if the property type is one of the supported types
func (pt PropertyType) IsValid() bool {
	return pt >= TypeInt64 && pt <= TypeTimestamp
}

// Transform converts between the in-memory value of a property and the
// value bound to or read from its column
type Transform struct {
	ToColumn   func(value any) (any, error)
	FromColumn func(value any) (any, error)
}

// Reference describes a REFERENCES clause for a column
type Reference struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
}

// Property describes one mapped column of a resource type
type Property struct {
	Name         string       `json:"name"`
	Column       string       `json:"column"`
	Type         PropertyType `json:"type"`
	Nullable     bool         `json:"nullable"`
	Unique       bool         `json:"unique"`
	PrimaryKey   bool         `json:"primary_key"`
	DefaultVal   any          `json:"default_value,omitempty"`
	NewInVersion int          `json:"new_in_version,omitempty"`
	Reference    *Reference   `json:"reference,omitempty"`
	Transform    *Transform   `json:"-"`
}

// PropertyConfig holds optional configuration for a property
type PropertyConfig struct {
	Column       string
	NotNull      bool
	Unique       bool
	DefaultVal   any
	NewInVersion int
	Reference    *Reference
	Transform    *Transform
}

// Apply applies the configuration to a Property
func (pc *PropertyConfig) Apply(p *Property) {
	if pc.Column != "" {
		p.Column = pc.Column
	}
	p.Nullable = !pc.NotNull
	p.Unique = pc.Unique
	if pc.DefaultVal != nil {
		p.DefaultVal = pc.DefaultVal
	}
	if pc.NewInVersion > 0 {
		p.NewInVersion = pc.NewInVersion
	}
	if pc.Reference != nil {
		p.Reference = pc.Reference
	}
	if pc.Transform != nil {
		p.Transform = pc.Transform
	}
}

// PropertyBuilder provides fluent API for configuring properties
type PropertyBuilder struct {
	config *PropertyConfig
}

// NewPropertyBuilder creates a new PropertyBuilder
func NewPropertyBuilder() *PropertyBuilder {
	return &PropertyBuilder{
		config: &PropertyConfig{},
	}
}

// Column overrides the column name, which defaults to the property name
func (pb *PropertyBuilder) Column(name string) *PropertyBuilder {
	pb.config.Column = name
	return pb
}

// NotNull marks the column NOT NULL
func (pb *PropertyBuilder) NotNull(notNull bool) *PropertyBuilder {
	pb.config.NotNull = notNull
	return pb
}

// Unique marks the column UNIQUE
func (pb *PropertyBuilder) Unique(unique bool) *PropertyBuilder {
	pb.config.Unique = unique
	return pb
}

// Default sets the default value, used for new instances and in the DDL
func (pb *PropertyBuilder) Default(value any) *PropertyBuilder {
	pb.config.DefaultVal = value
	return pb
}

// NewInVersion sets the schema version in which the column is added
func (pb *PropertyBuilder) NewInVersion(version int) *PropertyBuilder {
	pb.config.NewInVersion = version
	return pb
}

// References adds a REFERENCES table(column) clause
func (pb *PropertyBuilder) References(table, column string) *PropertyBuilder {
	pb.config.Reference = &Reference{Table: table, Column: column}
	return pb
}

// Transform sets the conversion functions used when binding and reading the column
func (pb *PropertyBuilder) Transform(toColumn, fromColumn func(any) (any, error)) *PropertyBuilder {
	pb.config.Transform = &Transform{ToColumn: toColumn, FromColumn: fromColumn}
	return pb
}

// Build returns the final PropertyConfig
func (pb *PropertyBuilder) Build() *PropertyConfig {
	return pb.config
}

// toColumn converts an in-memory value into the value bound to the statement
func (p *Property) toColumn(value any) (any, error) {
	if p.Transform != nil && p.Transform.ToColumn != nil {
		return p.Transform.ToColumn(value)
	}
	if value == nil {
		return nil, nil
	}
	return coerce(p.Type, value)
}

// fromColumn converts a value scanned from the backend into the property's type
func (p *Property) fromColumn(value any) (any, error) {
	if p.Transform != nil && p.Transform.FromColumn != nil {
		return p.Transform.FromColumn(value)
	}
	if value == nil {
		return nil, nil
	}
	return coerce(p.Type, value)
}

// timestampLayouts are tried in order when a backend returns a timestamp as text
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerce converts value to the Go representation of pt:
// int64, float64, string, bool, []byte or time.Time
func coerce(pt PropertyType, value any) (any, error) {
	switch pt {
	case TypeInt64:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case uint:
			return uintToInt64(uint64(v))
		case uint32:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint8:
			return int64(v), nil
		case uint64:
			return uintToInt64(v)
		case float32:
			return floatToInt64(float64(v))
		case float64:
			return floatToInt64(v)
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case []byte:
			return strconv.ParseInt(string(v), 10, 64)
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case TypeFloat64:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case []byte:
			return strconv.ParseFloat(string(v), 64)
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		case []byte:
			return strconv.ParseBool(string(v))
		case string:
			return strconv.ParseBool(v)
		}
	case TypeBlob:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	case TypeTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return *v, nil
		case []byte:
			return parseTimestamp(string(v))
		case string:
			return parseTimestamp(v)
		case int64:
			return time.Unix(v, 0).UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", value, pt)
}

func uintToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", v)
	}
	return int64(v), nil
}

// floatToInt64 accepts only whole numbers within the int64 range
func floatToInt64(v float64) (int64, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%v is not a whole number", v)
	}
	if v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%v overflows int64", v)
	}
	return int64(v), nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}

// sqlLiteral renders a default value as a SQL literal for DDL
func sqlLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return "'" + v.UTC().Format(time.RFC3339Nano) + "'", nil
	}
	return "", fmt.Errorf("unsupported default value type %T", value)
}
