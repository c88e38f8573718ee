package objectstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/compression"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects []Object
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, obj Object) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.objects = append(f.objects, obj)
	return nil
}

func (f *fakeUploader) BucketExists(context.Context, string) error { return f.err }
func (f *fakeUploader) Close() error                             { return nil }

func newTestDestination(up *fakeUploader) *Destination {
	d := NewDestination("s3", "s3", func(context.Context, models.DataSourceConfig) (Uploader, error) { return up, nil })
	d.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return d
}

func records() []*models.Record {
	a := models.NewRecord(2)
	a.SetData("id", int64(1))
	a.SetData("name", "ada")
	b := models.NewRecord(2)
	b.SetData("id", int64(2))
	b.SetData("name", "grace, hopper")
	return []*models.Record{a, b}
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("s3", "s3://bucket/raw/events/")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "bucket", Prefix: "raw/events"}, loc)

	loc, err = ParseLocation("gs", "bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", loc.Bucket)

	_, err = ParseLocation("s3", "gs://bucket")
	assert.Error(t, err)
	_, err = ParseLocation("s3", "")
	assert.Error(t, err)
}

func TestWriteUploadsOneObjectPerBatch(t *testing.T) {
	up := &fakeUploader{}
	d := newTestDestination(up)
	cfg := models.DataSourceConfig{
		ConnectionString: "s3://lake/users",
		Parameters:       map[string]string{"compression": "gzip"},
	}

	require.NoError(t, d.Write(context.Background(), cfg, records()))
	require.NoError(t, d.Write(context.Background(), cfg, records()))
	require.Len(t, up.objects, 2)
	assert.NotEqual(t, up.objects[0].Key, up.objects[1].Key)

	obj := up.objects[0]
	assert.Equal(t, "lake", obj.Bucket)
	assert.True(t, strings.HasPrefix(obj.Key, "users/2024/03/09/"), obj.Key)
	assert.True(t, strings.HasSuffix(obj.Key, ".jsonl.gz"), obj.Key)
	assert.Equal(t, "gzip", obj.ContentEncoding)
	assert.Equal(t, "2", obj.Metadata["records"])

	body, err := compression.Decompress(obj.Body, compression.Gzip)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":1,"name":"ada"}`, lines[0])
}

func TestEncodeCSV(t *testing.T) {
	body, err := Encode(records(), FormatCSV, nil, compression.None, compression.Default)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ada\n2,\"grace, hopper\"\n", string(body))

	body, err = Encode(records(), FormatCSV, []string{"name"}, compression.Zstd, compression.Fastest)
	require.NoError(t, err)
	plain, err := compression.Decompress(body, compression.Zstd)
	require.NoError(t, err)
	assert.Equal(t, "name\nada\n\"grace, hopper\"\n", string(plain))
}

func TestWriteErrors(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	d := newTestDestination(up)

	err := d.Write(context.Background(), models.DataSourceConfig{ConnectionString: "s3://lake"}, records())
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnector))
	assert.Contains(t, nebulaerrors.Flatten(err), "access denied")

	err = d.Write(context.Background(), models.DataSourceConfig{
		ConnectionString: "s3://lake",
		Parameters:       map[string]string{"format": "parquet"},
	}, records())
	assert.Error(t, err)

	assert.NoError(t, d.Write(context.Background(), models.DataSourceConfig{}, nil))
	assert.Error(t, d.TestConnection(context.Background(), "s3://lake"))
}
