package bulk

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/koustreak/bulkhelpers/internal/errs"
)

// Mapper exposes an entity as field name -> value pairs and writes an
// engine-assigned identity back. The engine matches field names to columns
// ignoring case, so mappers need not know the table.
type Mapper[T any] interface {
	// Fields returns the entity's mappable values keyed by field name.
	Fields(entity T) (map[string]any, error)

	// WithIdentity returns entity with the field matching column set to
	// value. Pointer-like entities may be updated in place.
	WithIdentity(entity T, column string, value any) (T, error)
}

// StructMapper maps structs, or pointers to structs, by reflection.
//
// A field's name is its `db` tag, or the Go field name when untagged.
// `db:"-"` skips a field, unexported fields are ignored, and embedded
// structs are flattened.
type StructMapper[T any] struct {
	typ     reflect.Type // struct type, pointer stripped
	ptr     bool
	fields  []structField
	byLower map[string]int
}

type structField struct {
	name  string
	index []int
}

// NewStructMapper builds the field plan for T once.
func NewStructMapper[T any]() (*StructMapper[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	m := &StructMapper[T]{}
	if t.Kind() == reflect.Pointer {
		m.ptr = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "struct mapper needs a struct or struct pointer, got %s", reflect.TypeOf((*T)(nil)).Elem())
	}
	m.typ = t

	collectFields(t, nil, &m.fields)
	m.byLower = make(map[string]int, len(m.fields))
	for i, f := range m.fields {
		key := strings.ToLower(f.name)
		if _, dup := m.byLower[key]; !dup {
			m.byLower[key] = i
		}
	}
	return m, nil
}

func collectFields(t reflect.Type, parent []int, out *[]structField) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		index := make([]int, len(parent)+1)
		copy(index, parent)
		index[len(parent)] = i

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, index, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		*out = append(*out, structField{name: name, index: index})
	}
}

// FieldNames returns the mapped field names in declaration order.
func (m *StructMapper[T]) FieldNames() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.name
	}
	return names
}

func (m *StructMapper[T]) structValue(entity T) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if m.ptr {
		if v.IsNil() {
			return reflect.Value{}, errs.New(errs.ErrKindColumnMapping, "nil entity")
		}
		v = v.Elem()
	}
	return v, nil
}

// Fields implements Mapper. Fields reached through a nil embedded pointer
// are left out.
func (m *StructMapper[T]) Fields(entity T) (map[string]any, error) {
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		fv, err := v.FieldByIndexErr(f.index)
		if err != nil {
			continue
		}
		out[f.name] = fv.Interface()
	}
	return out, nil
}

// WithIdentity implements Mapper. Pointer entities are updated in place;
// struct values are copied. An entity with no field matching column is
// returned unchanged.
func (m *StructMapper[T]) WithIdentity(entity T, column string, value any) (T, error) {
	i, ok := m.byLower[strings.ToLower(column)]
	if !ok {
		return entity, nil
	}
	f := m.fields[i]

	var target reflect.Value
	if m.ptr {
		v, err := m.structValue(entity)
		if err != nil {
			return entity, err
		}
		target = v
	} else {
		target = reflect.New(m.typ).Elem()
		target.Set(reflect.ValueOf(entity))
	}

	field, err := target.FieldByIndexErr(f.index)
	if err != nil {
		return entity, errs.Wrap(errs.ErrKindColumnMapping, fmt.Sprintf("field %s is unreachable", f.name), err)
	}
	if err := assignValue(field, value); err != nil {
		return entity, errs.Wrap(errs.ErrKindColumnMapping, fmt.Sprintf("set identity field %s", f.name), err)
	}

	if m.ptr {
		return entity, nil
	}
	return target.Interface().(T), nil
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// assignValue stores a driver-produced value into field, converting
// between numeric widths and named types as needed. Fields implementing
// sql.Scanner (sql.NullInt64 and friends) scan values they cannot be
// converted from directly.
func assignValue(field reflect.Value, value any) error {
	ft := field.Type()
	scanner, canScan := asScanner(field)

	if value == nil {
		if canScan {
			return scanner.Scan(nil)
		}
		field.Set(reflect.Zero(ft))
		return nil
	}

	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(ft):
		field.Set(src)
	case isNumber(src.Kind()) && isNumber(ft.Kind()):
		field.Set(src.Convert(ft))
	case canScan:
		return scanner.Scan(value)
	case ft.Kind() == reflect.Pointer:
		elem := reflect.New(ft.Elem())
		if err := assignValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
	case isNumber(src.Kind()) && ft.Kind() == reflect.String:
		field.SetString(fmt.Sprint(value))
	case src.Type().ConvertibleTo(ft):
		field.Set(src.Convert(ft))
	default:
		return fmt.Errorf("cannot assign %T to %s", value, ft)
	}
	return nil
}

func asScanner(field reflect.Value) (sql.Scanner, bool) {
	if !field.CanAddr() || !field.Addr().Type().Implements(scannerType) {
		return nil, false
	}
	return field.Addr().Interface().(sql.Scanner), true
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// MapMapper maps map[string]any entities. Identities are written into the
// caller's map.
type MapMapper struct{}

func (MapMapper) Fields(entity map[string]any) (map[string]any, error) {
	if entity == nil {
		return nil, errs.New(errs.ErrKindColumnMapping, "nil entity")
	}
	return entity, nil
}

// WithIdentity sets the key matching column ignoring case, or column
// itself when no key matches.
func (MapMapper) WithIdentity(entity map[string]any, column string, value any) (map[string]any, error) {
	if entity == nil {
		return nil, errs.New(errs.ErrKindColumnMapping, "nil entity")
	}
	for k := range entity {
		if strings.EqualFold(k, column) {
			entity[k] = value
			return entity, nil
		}
	}
	entity[column] = value
	return entity, nil
}

// isUnset reports whether an identity value counts as missing: nil, a nil
// pointer, or the zero value of its type.
func isUnset(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	if valuer, ok := v.(interface{ IsZero() bool }); ok {
		return valuer.IsZero()
	}
	return rv.IsZero()
}
