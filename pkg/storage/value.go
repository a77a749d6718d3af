package storage

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueType tags a Value. The numeric values are part of the persistence
// format and of result-set encoding, never renumber them.
type ValueType uint8

const (
	TypeUnknown   ValueType = 0
	TypeNull      ValueType = 1
	TypeString    ValueType = 2
	TypeInteger   ValueType = 3
	TypeBoolean   ValueType = 4
	TypeDouble    ValueType = 5
	TypeArray     ValueType = 6
	TypeMap       ValueType = 10
	TypePoint     ValueType = 11
	TypeVectorF32 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeString:
		return "String"
	case TypeInteger:
		return "Integer"
	case TypeBoolean:
		return "Boolean"
	case TypeDouble:
		return "Float"
	case TypeArray:
		return "List"
	case TypeMap:
		return "Map"
	case TypePoint:
		return "Point"
	case TypeVectorF32:
		return "Vectorf32"
	default:
		return "Unknown"
	}
}

// Value is an immutable typed scalar or container stored as an attribute or
// produced by an expression. The zero Value is Null.
type Value struct {
	typ  ValueType
	num  int64
	dbl  float64
	str  string
	list []Value
	keys []string
	vec  []float32
}

// NullValue returns the Null value.
func NullValue() Value { return Value{typ: TypeNull} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{typ: TypeString, str: s} }

// IntValue wraps i.
func IntValue(i int64) Value { return Value{typ: TypeInteger, num: i} }

// BoolValue wraps b.
func BoolValue(b bool) Value {
	v := Value{typ: TypeBoolean}
	if b {
		v.num = 1
	}
	return v
}

// DoubleValue wraps f.
func DoubleValue(f float64) Value { return Value{typ: TypeDouble, dbl: f} }

// ArrayValue wraps a list of values.
func ArrayValue(items ...Value) Value {
	return Value{typ: TypeArray, list: append([]Value(nil), items...)}
}

// MapValue builds a map value. Keys are kept in ascending order.
func MapValue(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]Value, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return Value{typ: TypeMap, keys: keys, list: vals}
}

// PointValue builds a geographic point.
func PointValue(lat, lon float64) Value {
	return Value{typ: TypePoint, dbl: lat, list: []Value{DoubleValue(lon)}}
}

// VectorValue wraps a float32 vector.
func VectorValue(v []float32) Value {
	return Value{typ: TypeVectorF32, vec: append([]float32(nil), v...)}
}

// Type returns the value's type tag.
func (v Value) Type() ValueType {
	if v.typ == TypeUnknown {
		return TypeNull
	}
	return v.typ
}

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.Type() == TypeNull }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.str, v.typ == TypeString }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.num, v.typ == TypeInteger }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.num != 0, v.typ == TypeBoolean }

// AsDouble returns the float payload. Integers are widened.
func (v Value) AsDouble() (float64, bool) {
	switch v.typ {
	case TypeDouble:
		return v.dbl, true
	case TypeInteger:
		return float64(v.num), true
	}
	return 0, false
}

// AsArray returns the list items. The slice must not be modified.
func (v Value) AsArray() ([]Value, bool) { return v.list, v.typ == TypeArray }

// AsMap returns the map keys and values in key order. The slices must not be modified.
func (v Value) AsMap() ([]string, []Value, bool) { return v.keys, v.list, v.typ == TypeMap }

// MapGet looks up key in a map value.
func (v Value) MapGet(key string) (Value, bool) {
	if v.typ != TypeMap {
		return Value{}, false
	}
	i := sort.SearchStrings(v.keys, key)
	if i < len(v.keys) && v.keys[i] == key {
		return v.list[i], true
	}
	return Value{}, false
}

// AsPoint returns latitude and longitude.
func (v Value) AsPoint() (lat, lon float64, ok bool) {
	if v.typ != TypePoint {
		return 0, 0, false
	}
	return v.dbl, v.list[0].dbl, true
}

// AsVector returns the vector payload. The slice must not be modified.
func (v Value) AsVector() ([]float32, bool) { return v.vec, v.typ == TypeVectorF32 }

// Equal reports deep equality. Integers and doubles compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.Type() != o.Type() {
		a, okA := v.AsDouble()
		b, okB := o.AsDouble()
		return okA && okB && a == b
	}
	switch v.Type() {
	case TypeNull:
		return true
	case TypeString:
		return v.str == o.str
	case TypeInteger, TypeBoolean:
		return v.num == o.num
	case TypeDouble:
		return v.dbl == o.dbl
	case TypePoint:
		return v.dbl == o.dbl && v.list[0].dbl == o.list[0].dbl
	case TypeVectorF32:
		if len(v.vec) != len(o.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != o.vec[i] {
				return false
			}
		}
		return true
	case TypeArray, TypeMap:
		if len(v.list) != len(o.list) || len(v.keys) != len(o.keys) {
			return false
		}
		for i := range v.keys {
			if v.keys[i] != o.keys[i] {
				return false
			}
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Key returns a canonical string usable as a hash key. Numerically equal
// integers and doubles share a key.
func (v Value) Key() string {
	switch v.Type() {
	case TypeInteger:
		return "n:" + strconv.FormatFloat(float64(v.num), 'g', -1, 64)
	case TypeDouble:
		if math.IsNaN(v.dbl) {
			return "n:NaN"
		}
		return "n:" + strconv.FormatFloat(v.dbl, 'g', -1, 64)
	case TypeString:
		return "s:" + v.str
	default:
		return v.Type().String() + ":" + v.String()
	}
}

// String renders the value the way a result set would print it.
func (v Value) String() string {
	switch v.Type() {
	case TypeNull:
		return "NULL"
	case TypeString:
		return v.str
	case TypeInteger:
		return strconv.FormatInt(v.num, 10)
	case TypeBoolean:
		return strconv.FormatBool(v.num != 0)
	case TypeDouble:
		return strconv.FormatFloat(v.dbl, 'f', -1, 64)
	case TypePoint:
		return fmt.Sprintf("point({latitude: %g, longitude: %g})", v.dbl, v.list[0].dbl)
	case TypeVectorF32:
		parts := make([]string, len(v.vec))
		for i, f := range v.vec {
			parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
		}
		return "<" + strings.Join(parts, ", ") + ">"
	case TypeArray:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		parts := make([]string, len(v.keys))
		for i, k := range v.keys {
			parts[i] = k + ": " + v.list[i].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

// Interface converts the value to plain Go types for callers outside the engine.
func (v Value) Interface() any {
	switch v.Type() {
	case TypeString:
		return v.str
	case TypeInteger:
		return v.num
	case TypeBoolean:
		return v.num != 0
	case TypeDouble:
		return v.dbl
	case TypePoint:
		return map[string]any{"latitude": v.dbl, "longitude": v.list[0].dbl}
	case TypeVectorF32:
		return append([]float32(nil), v.vec...)
	case TypeArray:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case TypeMap:
		out := make(map[string]any, len(v.keys))
		for i, k := range v.keys {
			out[k] = v.list[i].Interface()
		}
		return out
	}
	return nil
}

// ParseVector parses a float32 vector written as numbers separated by commas
// or whitespace, optionally enclosed in brackets: "[0.1, 0.2]" or "0.1 0.2".
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty vector: %w", ErrInvalidData)
	}
	out := make([]float32, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d %q: %w", i, f, ErrInvalidData)
		}
		out[i] = float32(x)
	}
	return out, nil
}
