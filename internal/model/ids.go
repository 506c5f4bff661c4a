package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// IDs is a sealed interface over the two accepted calling conventions for an
// identifier tuple. Only Keyed and Positional implement it.
type IDs interface {
	ids()
	// Len returns the number of supplied values.
	Len() int
}

// Keyed is an associative tuple keyed by field name.
type Keyed map[string]any

func (Keyed) ids() {}

// Len returns the number of supplied values.
func (k Keyed) Len() int { return len(k) }

// Positional is a tuple in declared field order.
type Positional []any

func (Positional) ids() {}

// Len returns the number of supplied values.
func (p Positional) Len() int { return len(p) }

// IsEmpty reports whether ids is nil or carries no values.
func IsEmpty(ids IDs) bool {
	return ids == nil || ids.Len() == 0
}

// ErrPartialKey is returned when a full source key is required but one or
// more declared fields are missing.
var ErrPartialKey = errors.New("partial identifier key")

// KeyError reasons.
const (
	ReasonMissing    = "missing"
	ReasonNull       = "null value"
	ReasonUndeclared = "not a declared identifier field"
	ReasonSurplus    = "more values than declared fields"
)

// KeyError names the field that made a key unusable.
type KeyError struct {
	Field  string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key field %q: %s", e.Field, e.Reason)
}

func (e *KeyError) Unwrap() error {
	return ErrPartialKey
}

// Ordered returns the values of ids in declared field order. Every declared
// field must be present and non-nil; keyed input may not carry undeclared
// names and positional input must have exactly len(fields) values.
func Ordered(fields []FieldSpec, ids IDs) ([]any, error) {
	if ids == nil {
		if len(fields) == 0 {
			return []any{}, nil
		}
		return nil, &KeyError{Field: fields[0].Name, Reason: ReasonMissing}
	}

	out := make([]any, len(fields))
	switch t := ids.(type) {
	case Keyed:
		for i, f := range fields {
			v, ok := t[f.Name]
			if !ok {
				return nil, &KeyError{Field: f.Name, Reason: ReasonMissing}
			}
			if v == nil {
				return nil, &KeyError{Field: f.Name, Reason: ReasonNull}
			}
			out[i] = v
		}
		if extra := unboundKeys(fields, t); len(extra) > 0 {
			return nil, &KeyError{Field: extra[0], Reason: ReasonUndeclared}
		}
	case Positional:
		if len(t) < len(fields) {
			return nil, &KeyError{Field: fields[len(t)].Name, Reason: ReasonMissing}
		}
		if len(t) > len(fields) {
			return nil, &KeyError{Field: fmt.Sprintf("#%d", len(fields)+1), Reason: ReasonSurplus}
		}
		for i, f := range fields {
			if t[i] == nil {
				return nil, &KeyError{Field: f.Name, Reason: ReasonNull}
			}
			out[i] = t[i]
		}
	}
	return out, nil
}

// Binding pairs a declared field with a supplied value.
type Binding struct {
	Index int // zero-based position in the declared field list
	Field FieldSpec
	Value any
}

// Match binds the supplied values to declared fields, allowing partial input.
//
// Keyed input binds every declared field present with a non-nil value.
// Positional input binds to the first len(ids) declared fields, in order.
// Values that cannot be bound are reported in extra: undeclared names and
// nil-valued names for keyed input, surplus positions (as "#n") for
// positional input.
func Match(fields []FieldSpec, ids IDs) (bound []Binding, extra []string) {
	switch t := ids.(type) {
	case Keyed:
		for i, f := range fields {
			if v, ok := t[f.Name]; ok && v != nil {
				bound = append(bound, Binding{Index: i, Field: f, Value: v})
			}
		}
		extra = unboundKeys(fields, t)
	case Positional:
		for i, v := range t {
			if i >= len(fields) {
				extra = append(extra, fmt.Sprintf("#%d", i+1))
				continue
			}
			bound = append(bound, Binding{Index: i, Field: fields[i], Value: v})
		}
	}
	return bound, extra
}

func unboundKeys(fields []FieldSpec, k Keyed) []string {
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
	}
	var extra []string
	for name, v := range k {
		if !declared[name] || v == nil {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}

// ToKeyed pairs ordered values with their declared field names.
// Values beyond len(fields) are dropped; missing values are omitted.
func ToKeyed(fields []FieldSpec, values []any) Keyed {
	out := make(Keyed, len(fields))
	for i, f := range fields {
		if i >= len(values) {
			break
		}
		out[f.Name] = values[i]
	}
	return out
}

// Coerce normalises a value scanned from the database to the Go type that
// matches the field's semantic type. Drivers differ: MySQL returns []byte for
// most columns, SQLite returns int64 for INTEGER affinity.
func (f FieldSpec) Coerce(v any) any {
	if b, ok := v.([]byte); ok {
		if f.Type == TypeBinary {
			return append([]byte(nil), b...)
		}
		v = string(b)
	}
	s, isString := v.(string)
	switch f.Type {
	case TypeInteger, TypeTimestamp, TypeBoolean:
		if isString {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	case TypeFloat:
		if isString {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return n
			}
		}
	}
	return v
}

// CoerceAll applies Coerce field by field.
func CoerceAll(fields []FieldSpec, values []any) []any {
	for i := range values {
		if i < len(fields) {
			values[i] = fields[i].Coerce(values[i])
		}
	}
	return values
}

// Strval converts a value to the string form used for hashing.
//
// Integers render in decimal, booleans as "1" or "", nil as "", floats with
// 14 significant digits. The same logical value therefore hashes identically
// whether it arrives as 5, int64(5) or "5".
func Strval(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return ""
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'G', 14, 32)
	case float64:
		return strconv.FormatFloat(x, 'G', 14, 64)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
