package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte(`{"id":1,"name":"compressible content"}`+"\n"), 200)

	for _, a := range []Algorithm{None, Gzip, Zstd, LZ4, Snappy, S2} {
		t.Run(string(a), func(t *testing.T) {
			compressed, err := Compress(original, a, Default)
			require.NoError(t, err)
			if a != None {
				assert.Less(t, len(compressed), len(original))
			}

			out, err := Decompress(compressed, a)
			require.NoError(t, err)
			assert.Equal(t, original, out)
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"GZIP", Gzip, false},
		{"zst", Zstd, false},
		{"lz4", LZ4, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, "", None.Extension())
	assert.Equal(t, Best, ParseLevel("best"))
	assert.Equal(t, Default, ParseLevel("whatever"))
}
