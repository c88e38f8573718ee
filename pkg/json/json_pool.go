// Package json provides JSON serialization on goccy/go-json with pooled buffers
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Token, Delim and Number re-export the decoder token types.
type (
	Token  = gojson.Token
	Delim  = gojson.Delim
	Number = gojson.Number
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns an encoder that does not escape HTML.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that keeps numbers as Number.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// MarshalArray marshals a slice as a JSON array
func MarshalArray[T any](values []T) ([]byte, error) {
	if len(values) == 0 {
		return []byte("[]"), nil
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}

		data, err := gojson.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')

	// Copy since the buffer goes back to the pool
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())

	return result, nil
}

// MarshalLines marshals values as line-delimited JSON
func MarshalLines[T any](values []T) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	for _, v := range values {
		data, err := gojson.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())

	return result, nil
}

// StreamingEncoder writes values one by one as a JSON array or as JSON lines
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) (*StreamingEncoder, error) {
	se := &StreamingEncoder{
		writer:      w,
		encoder:     NewEncoder(w),
		firstRecord: true,
		isArray:     isArray,
	}

	if isArray {
		if _, err := w.Write([]byte{'['}); err != nil {
			return nil, err
		}
	}

	return se, nil
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray {
		if !se.firstRecord {
			if _, err := se.writer.Write([]byte{','}); err != nil {
				return err
			}
		}
		se.firstRecord = false
	}

	// Encode appends a newline, which keeps line-delimited output valid
	return se.encoder.Encode(v)
}

// Close finalizes the encoding
func (se *StreamingEncoder) Close() error {
	if se.isArray {
		_, err := se.writer.Write([]byte{']'})
		return err
	}
	return nil
}
