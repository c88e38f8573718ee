package models

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ajitpratap0/nebulaflow/pkg/json"
)

// tokenReader is the subset of the JSON decoder used for ordered decoding.
type tokenReader interface {
	Token() (json.Token, error)
}

// UnmarshalJSON decodes a JSON object keeping the top-level field order.
// Integral numbers become int64, other numbers float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	rec, err := DecodeRecord(dec)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// DecodeRecord reads the next JSON object from dec as a Record. It returns
// io.EOF when the stream is exhausted. dec must have been created with
// json.NewDecoder so numbers arrive as json.Number.
func DecodeRecord(dec tokenReader) (*Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	return decodeObject(dec)
}

// DecodeRecords reads records from a JSON document. The document may be an
// array of objects, a sequence of objects (JSON lines), or, when path is set,
// an object whose value at the dotted path is such an array or object.
// limit > 0 stops after that many records.
func DecodeRecords(r io.Reader, path string, limit int) ([]*Record, error) {
	dec := json.NewDecoder(r)

	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			if err := seekKey(dec, segment); err != nil {
				return nil, fmt.Errorf("records path %q: %w", path, err)
			}
		}
	}

	var records []*Record
	full := func() bool { return limit > 0 && len(records) >= limit }

	tok, err := dec.Token()
	if err == io.EOF {
		return records, nil
	}
	if err != nil {
		return nil, err
	}

	switch tok {
	case json.Delim('['):
		for !full() {
			next, err := dec.Token()
			if err != nil {
				return nil, unexpected(err)
			}
			if next == json.Delim(']') {
				break
			}
			if next != json.Delim('{') {
				return nil, fmt.Errorf("record %d: expected JSON object, got %v", len(records), next)
			}
			rec, err := decodeObject(dec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(records), err)
			}
			records = append(records, rec)
		}
		return records, nil

	case json.Delim('{'):
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("record 0: %w", err)
		}
		records = append(records, rec)
		if path != "" {
			return records, nil
		}
		for !full() {
			rec, err := DecodeRecord(dec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(records), err)
			}
			records = append(records, rec)
		}
		return records, nil

	default:
		return nil, fmt.Errorf("expected JSON array or object, got %v", tok)
	}
}

// seekKey consumes an object up to and including key, leaving dec positioned
// at the key's value.
func seekKey(dec tokenReader, key string) error {
	tok, err := dec.Token()
	if err != nil {
		return unexpected(err)
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("expected object before key %q, got %v", key, tok)
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return unexpected(err)
		}
		if tok == json.Delim('}') {
			return fmt.Errorf("key %q not found", key)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if name == key {
			return nil
		}
		val, err := dec.Token()
		if err != nil {
			return unexpected(err)
		}
		if _, err := decodeValue(dec, val); err != nil {
			return err
		}
	}
}

func decodeObject(dec tokenReader) (*Record, error) {
	r := NewRecord(8)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, unexpected(err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return r, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, unexpected(err)
		}
		val, err := decodeValue(dec, tok)
		if err != nil {
			return nil, err
		}
		r.SetData(strings.Clone(key), val)
	}
}

func decodeValue(dec tokenReader, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec, err := decodeObject(dec)
			if err != nil {
				return nil, err
			}
			return rec.ToMap(), nil
		case '[':
			out := []interface{}{}
			for {
				next, err := dec.Token()
				if err != nil {
					return nil, unexpected(err)
				}
				if d, ok := next.(json.Delim); ok && d == ']' {
					return out, nil
				}
				v, err := decodeValue(dec, next)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		return ParseNumber(t.String()), nil
	case string:
		return strings.Clone(t), nil
	default:
		return t, nil
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ParseNumber converts a JSON number literal to int64 when integral, else
// float64. Unparseable input is returned as the original string.
func ParseNumber(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return strings.Clone(s)
}
