package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes attributes as canonical JSON:
//   - keys ordered by UTF-16 code units
//   - strings NFC normalized, no HTML escaping
//   - integers only
//
// This is the storage encoding, so two equal attribute sets always produce
// identical bytes.
func MarshalCanonical(attrs Attributes) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range attrs.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(&buf, k); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonicalValue(&buf, attrs[k]); err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue encodes a single value canonically.
func MarshalValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonicalValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonicalValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return writeCanonicalString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case List:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalValue(buf, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unknown value type: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// UnmarshalAttributes decodes JSON produced by MarshalCanonical (or any JSON
// object restricted to the supported value types).
func UnmarshalAttributes(data []byte) (Attributes, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Attributes{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	attrs := make(Attributes, len(raw))
	for k, v := range raw {
		val, err := fromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("unmarshal attributes: key %q: %w", k, err)
		}
		attrs[k] = val
	}
	return attrs, nil
}

func fromJSON(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not supported: %s", val)
		}
		return Int(n), nil
	case []any:
		out := make(List, len(val))
		for i, e := range val {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported JSON type: %T", v)
	}
}
