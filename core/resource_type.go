package core

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ResourceType describes how a kind of resource maps to a table.
// A ResourceType is immutable once built and safe for concurrent use.
type ResourceType struct {
	name         string
	table        string
	primaryKey   string
	sinceVersion int
	properties   []*Property
	byName       map[string]*Property
}

// Name returns the resource type name
func (rt *ResourceType) Name() string { return rt.name }

// TableName returns the table the resource type maps to
func (rt *ResourceType) TableName() string { return rt.table }

// PrimaryKey returns the name of the primary key property
func (rt *ResourceType) PrimaryKey() string { return rt.primaryKey }

// SinceVersion returns the schema version in which the table is created
func (rt *ResourceType) SinceVersion() int { return rt.sinceVersion }

// Properties returns the properties in declaration order
func (rt *ResourceType) Properties() []Property {
	props := make([]Property, len(rt.properties))
	for i, p := range rt.properties {
		props[i] = *p
	}
	return props
}

// Property looks up a property by name and returns a copy of it
func (rt *ResourceType) Property(name string) (Property, bool) {
	p, ok := rt.byName[name]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// HasProperty reports whether name is a mapped property
func (rt *ResourceType) HasProperty(name string) bool {
	_, ok := rt.byName[name]
	return ok
}

func (rt *ResourceType) primaryKeyProperty() *Property {
	return rt.byName[rt.primaryKey]
}

// autoIncrement reports whether the backend generates primary key values
func (rt *ResourceType) autoIncrement() bool {
	return rt.primaryKeyProperty().Type == TypeInt64
}

func (rt *ResourceType) lookup(name string) (*Property, error) {
	p, ok := rt.byName[name]
	if !ok {
		return nil, Errorf(CodeUnknownProperty, "resource type %s has no property %q", rt.name, name)
	}
	return p, nil
}

func (rt *ResourceType) String() string {
	return fmt.Sprintf("%s(%s)", rt.name, rt.table)
}

// ResourceTypeBuilder provides fluent API for declaring resource types
type ResourceTypeBuilder struct {
	rt        *ResourceType
	pkType    PropertyType
	order     []string
	types     map[string]PropertyType
	configs   map[string]*PropertyConfig
	duplicate string
}

// NewResourceType starts declaring a resource type. The table defaults to
// the pluralized snake_case form of name.
func NewResourceType(name string) *ResourceTypeBuilder {
	return &ResourceTypeBuilder{
		rt: &ResourceType{
			name:         name,
			table:        generateTableName(name),
			sinceVersion: 1,
		},
		types:   make(map[string]PropertyType),
		configs: make(map[string]*PropertyConfig),
	}
}

// Table sets the table name
func (b *ResourceTypeBuilder) Table(table string) *ResourceTypeBuilder {
	b.rt.table = table
	return b
}

// PrimaryKey declares the primary key property. An int64 key is generated
// by the backend; an empty string key is filled with a random UUID on insert.
func (b *ResourceTypeBuilder) PrimaryKey(name string, pt PropertyType) *ResourceTypeBuilder {
	b.rt.primaryKey = name
	b.pkType = pt
	return b
}

// SinceVersion sets the schema version in which the table is created
func (b *ResourceTypeBuilder) SinceVersion(version int) *ResourceTypeBuilder {
	b.rt.sinceVersion = version
	return b
}

// Property declares a mapped property. Properties are nullable unless the
// configuration says otherwise.
func (b *ResourceTypeBuilder) Property(name string, pt PropertyType, configs ...*PropertyConfig) *ResourceTypeBuilder {
	if _, exists := b.types[name]; exists && b.duplicate == "" {
		b.duplicate = name
	}
	if _, exists := b.types[name]; !exists {
		b.order = append(b.order, name)
	}
	b.types[name] = pt
	for _, c := range configs {
		if c != nil {
			b.configs[name] = c
		}
	}
	return b
}

// WithProperty declares a property configured through a PropertyBuilder
func (b *ResourceTypeBuilder) WithProperty(name string, pt PropertyType, configure func(p *PropertyBuilder)) *ResourceTypeBuilder {
	pb := NewPropertyBuilder()
	if configure != nil {
		configure(pb)
	}
	return b.Property(name, pt, pb.Build())
}

// Build validates the declaration and returns the immutable ResourceType
func (b *ResourceTypeBuilder) Build() (*ResourceType, error) {
	rt := &ResourceType{
		name:         b.rt.name,
		table:        b.rt.table,
		primaryKey:   b.rt.primaryKey,
		sinceVersion: b.rt.sinceVersion,
		byName:       make(map[string]*Property),
	}

	if rt.name == "" {
		return nil, Errorf(CodeInvalid, "resource type name is required")
	}
	if !identifierPattern.MatchString(rt.table) {
		return nil, Errorf(CodeInvalid, "invalid table name %q for %s", rt.table, rt.name)
	}
	if rt.primaryKey == "" {
		return nil, Errorf(CodeInvalid, "resource type %s has no primary key", rt.name)
	}
	if b.duplicate != "" {
		return nil, Errorf(CodeInvalid, "property %q declared twice on %s", b.duplicate, rt.name)
	}
	if rt.sinceVersion < 1 {
		return nil, Errorf(CodeInvalid, "resource type %s: since version must be >= 1", rt.name)
	}
	if b.pkType != TypeInt64 && b.pkType != TypeString {
		return nil, Errorf(CodeInvalid, "primary key %s.%s must be int64 or string", rt.name, rt.primaryKey)
	}

	pk := &Property{
		Name:         rt.primaryKey,
		Column:       rt.primaryKey,
		Type:         b.pkType,
		PrimaryKey:   true,
		NewInVersion: rt.sinceVersion,
	}
	if c, ok := b.configs[rt.primaryKey]; ok && c.Column != "" {
		pk.Column = c.Column
	}
	if pt, declared := b.types[rt.primaryKey]; declared && pt != b.pkType {
		return nil, Errorf(CodeInvalid, "primary key %s.%s declared with two types", rt.name, rt.primaryKey)
	}
	rt.properties = append(rt.properties, pk)
	rt.byName[pk.Name] = pk

	for _, name := range b.order {
		if name == rt.primaryKey {
			continue
		}

		p := &Property{
			Name:         name,
			Column:       name,
			Type:         b.types[name],
			Nullable:     true,
			NewInVersion: rt.sinceVersion,
		}
		if c, ok := b.configs[name]; ok {
			c.Apply(p)
		}

		if !p.Type.IsValid() {
			return nil, Errorf(CodeInvalid, "property %s.%s has unsupported type", rt.name, name)
		}
		if p.NewInVersion < rt.sinceVersion {
			return nil, Errorf(CodeInvalid, "property %s.%s is new in version %d, before its table (version %d)",
				rt.name, name, p.NewInVersion, rt.sinceVersion)
		}
		if p.Reference != nil && (!identifierPattern.MatchString(p.Reference.Table) || !identifierPattern.MatchString(p.Reference.Column)) {
			return nil, Errorf(CodeInvalid, "property %s.%s has an invalid reference", rt.name, name)
		}
		if p.DefaultVal != nil {
			v, err := coerce(p.Type, p.DefaultVal)
			if err != nil {
				return nil, NewError(CodeInvalid, fmt.Sprintf("default for %s.%s", rt.name, name), err)
			}
			p.DefaultVal = v
		}

		rt.properties = append(rt.properties, p)
		rt.byName[name] = p
	}

	columns := make(map[string]string)
	for _, p := range rt.properties {
		if !identifierPattern.MatchString(p.Column) {
			return nil, Errorf(CodeInvalid, "invalid column name %q for %s.%s", p.Column, rt.name, p.Name)
		}
		if other, taken := columns[p.Column]; taken {
			return nil, Errorf(CodeInvalid, "properties %s and %s of %s map to the same column %q",
				other, p.Name, rt.name, p.Column)
		}
		columns[p.Column] = p.Name
	}

	return rt, nil
}

// MustBuild is like Build but panics on error
func (b *ResourceTypeBuilder) MustBuild() *ResourceType {
	rt, err := b.Build()
	if err != nil {
		panic(err)
	}
	return rt
}

// DiscoverResourceType declares a resource type from the exported fields of
// a struct. The column comes from the `db` tag or the snake_case field
// name; options come from the `gom` tag, e.g. `gom:"pk"`,
// `gom:"notnull,unique,since=2"`. A field named ID is the primary key
// when no field is tagged pk. Fields tagged `db:"-"` are not mapped.
func DiscoverResourceType(model any) (*ResourceType, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, Errorf(CodeInvalid, "DiscoverResourceType expects a struct")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, Errorf(CodeInvalid, "DiscoverResourceType expects a struct, got %s", t.Kind())
	}

	b := NewResourceType(t.Name())
	var fallbackPK string
	var fallbackPKType PropertyType

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		column := field.Tag.Get("db")
		if column == "-" {
			continue
		}
		if column == "" {
			column = strcase.ToSnake(field.Name)
		}

		pt, ok := propertyTypeOf(field.Type)
		if !ok {
			return nil, Errorf(CodeInvalid, "field %s.%s has unsupported type %s", t.Name(), field.Name, field.Type)
		}

		opts, err := parseGomTag(field.Tag.Get("gom"))
		if err != nil {
			return nil, NewError(CodeInvalid, fmt.Sprintf("field %s.%s", t.Name(), field.Name), err)
		}
		if opts.primaryKey {
			b.PrimaryKey(column, pt)
			continue
		}
		if field.Name == "ID" && fallbackPK == "" {
			fallbackPK, fallbackPKType = column, pt
			continue
		}

		cfg := &PropertyConfig{
			NotNull:      opts.notNull,
			Unique:       opts.unique,
			NewInVersion: opts.since,
		}
		if opts.hasDefault {
			cfg.DefaultVal = opts.defaultVal
		}
		b.Property(column, pt, cfg)
	}

	if b.rt.primaryKey == "" && fallbackPK != "" {
		b.PrimaryKey(fallbackPK, fallbackPKType)
	}

	return b.Build()
}

type gomTagOptions struct {
	primaryKey bool
	notNull    bool
	unique     bool
	since      int
	hasDefault bool
	defaultVal string
}

func parseGomTag(tag string) (gomTagOptions, error) {
	var opts gomTagOptions
	for _, part := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch strings.ToLower(key) {
		case "pk", "primary":
			opts.primaryKey = true
		case "notnull":
			opts.notNull = true
		case "unique":
			opts.unique = true
		case "since":
			since, err := strconv.Atoi(value)
			if err != nil || since < 1 {
				return opts, fmt.Errorf("invalid since version %q", value)
			}
			opts.since = since
		case "default":
			opts.hasDefault = true
			opts.defaultVal = value
		}
	}
	return opts, nil
}

var timeType = reflect.TypeOf(time.Time{})

func propertyTypeOf(t reflect.Type) (PropertyType, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return TypeTimestamp, true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt64, true
	case reflect.Float32, reflect.Float64:
		return TypeFloat64, true
	case reflect.String:
		return TypeString, true
	case reflect.Bool:
		return TypeBool, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeBlob, true
		}
	}
	return 0, false
}

// generateTableName converts a resource name to a snake_case plural table name
func generateTableName(name string) string {
	snake := strcase.ToSnake(name)
	return pluralize(snake)
}

// Basic pluralization - can be enhanced later
func pluralize(word string) string {
	if strings.HasSuffix(word, "y") {
		return strings.TrimSuffix(word, "y") + "ies"
	}
	if strings.HasSuffix(word, "s") || strings.HasSuffix(word, "x") ||
		strings.HasSuffix(word, "z") || strings.HasSuffix(word, "ch") ||
		strings.HasSuffix(word, "sh") {
		return word + "es"
	}
	return word + "s"
}
