// Package compression wraps writers and readers with the codecs the object
// store destination can emit.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	None   Algorithm = "none"
	Gzip   Algorithm = "gzip"
	Zstd   Algorithm = "zstd"
	LZ4    Algorithm = "lz4"
	Snappy Algorithm = "snappy"
	S2     Algorithm = "s2"
)

// Level trades speed for ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Best    Level = 9
)

// ParseAlgorithm normalizes an algorithm name. The empty string means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return None, nil
	case None, Gzip, Zstd, LZ4, Snappy, S2:
		return a, nil
	case "gz":
		return Gzip, nil
	case "zst":
		return Zstd, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", name)
	}
}

// ParseLevel maps fastest, default and best onto a Level.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fastest":
		return Fastest
	case "best":
		return Best
	default:
		return Default
	}
}

// Extension returns the file suffix for a, including the dot.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	case Snappy:
		return ".snappy"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// ContentEncoding returns the HTTP Content-Encoding for a, if any.
func (a Algorithm) ContentEncoding() string {
	switch a {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps dst. Close flushes the codec but never closes dst.
func NewWriter(dst io.Writer, a Algorithm, level Level) (io.WriteCloser, error) {
	switch a {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		gl := gzip.DefaultCompression
		switch level {
		case Fastest:
			gl = gzip.BestSpeed
		case Best:
			gl = gzip.BestCompression
		}
		return gzip.NewWriterLevel(dst, gl)
	case Zstd:
		zl := zstd.SpeedDefault
		switch level {
		case Fastest:
			zl = zstd.SpeedFastest
		case Best:
			zl = zstd.SpeedBestCompression
		}
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(zl))
	case LZ4:
		w := lz4.NewWriter(dst)
		ll := lz4.Fast
		switch level {
		case Default:
			ll = lz4.Level5
		case Best:
			ll = lz4.Level9
		}
		if err := w.Apply(lz4.CompressionLevelOption(ll)); err != nil {
			return nil, err
		}
		return w, nil
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		opts := []s2.WriterOption{}
		if level == Best {
			opts = append(opts, s2.WriterBestCompression())
		}
		return s2.NewWriter(dst, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", a)
	}
}

// NewReader wraps src with the matching decoder.
func NewReader(src io.Reader, a Algorithm) (io.ReadCloser, error) {
	switch a {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		return gzip.NewReader(src)
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", a)
	}
}

// Compress encodes data in one shot.
func Compress(data []byte, a Algorithm, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, a, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes data in one shot.
func Decompress(data []byte, a Algorithm) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(data), a)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
