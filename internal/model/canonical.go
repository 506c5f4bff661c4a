package model

import (
	"bytes"
	"fmt"
	"strconv"
)

// Entry is one key/value pair of a serialised array. Key must be an int or a
// string.
type Entry struct {
	Key   any
	Value any
}

// SerializeList encodes values as a zero-indexed PHP serialize() array:
//
//	a:2:{i:0;s:1:"5";i:1;s:2:"en";}
//
// This is the ONLY encoding used for source id hashing; changing it
// invalidates every stored source_ids_hash.
func SerializeList(values []any) ([]byte, error) {
	entries := make([]Entry, len(values))
	for i, v := range values {
		entries[i] = Entry{Key: i, Value: v}
	}
	return SerializeArray(entries)
}

// SerializeKeyed encodes a keyed tuple in declared field order, keeping the
// native value types (integers stay i:, strings stay s:).
func SerializeKeyed(names []string, k Keyed) ([]byte, error) {
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if v, ok := k[name]; ok {
			entries = append(entries, Entry{Key: name, Value: v})
		}
	}
	return SerializeArray(entries)
}

// SerializeArray encodes ordered entries as a PHP serialize() array.
func SerializeArray(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("a:")
	buf.WriteString(strconv.Itoa(len(entries)))
	buf.WriteString(":{")
	for i, e := range entries {
		switch k := e.Key.(type) {
		case int:
			writeInt(&buf, int64(k))
		case string:
			writeString(&buf, k)
		default:
			return nil, fmt.Errorf("entry %d: unsupported key type %T", i, e.Key)
		}
		writeScalar(&buf, e.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeScalar(buf *bytes.Buffer, v any) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("N;")
	case string:
		writeString(buf, x)
	case []byte:
		writeString(buf, string(x))
	case bool:
		if x {
			buf.WriteString("b:1;")
		} else {
			buf.WriteString("b:0;")
		}
	case int:
		writeInt(buf, int64(x))
	case int8:
		writeInt(buf, int64(x))
	case int16:
		writeInt(buf, int64(x))
	case int32:
		writeInt(buf, int64(x))
	case int64:
		writeInt(buf, x)
	case uint8:
		writeInt(buf, int64(x))
	case uint16:
		writeInt(buf, int64(x))
	case uint32:
		writeInt(buf, int64(x))
	case float32:
		writeFloat(buf, float64(x))
	case float64:
		writeFloat(buf, x)
	default:
		// Anything else (including uint64, which may overflow i:) goes
		// through its string form.
		writeString(buf, Strval(x))
	}
}

// writeString emits s:<byte length>:"<raw bytes>"; PHP does not escape.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString("s:")
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteString(`:"`)
	buf.WriteString(s)
	buf.WriteString(`";`)
}

func writeInt(buf *bytes.Buffer, n int64) {
	buf.WriteString("i:")
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteByte(';')
}

func writeFloat(buf *bytes.Buffer, f float64) {
	buf.WriteString("d:")
	buf.WriteString(strconv.FormatFloat(f, 'G', -1, 64))
	buf.WriteByte(';')
}
