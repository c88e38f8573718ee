package objectstore

import (
	"context"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

type gcsUploader struct {
	client *storage.Client
}

// NewGCSUploader uses application default credentials unless the
// credentials_file parameter names a service account key.
func NewGCSUploader(ctx context.Context, cfg models.DataSourceConfig) (Uploader, error) {
	var opts []option.ClientOption
	if file := cfg.Param("credentials_file", ""); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &gcsUploader{client: client}, nil
}

func (u *gcsUploader) Upload(ctx context.Context, obj Object) error {
	w := u.client.Bucket(obj.Bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.ContentEncoding = obj.ContentEncoding
	w.Metadata = obj.Metadata

	if _, err := w.Write(obj.Body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (u *gcsUploader) BucketExists(ctx context.Context, bucket string) error {
	_, err := u.client.Bucket(bucket).Attrs(ctx)
	return err
}

func (u *gcsUploader) Close() error { return u.client.Close() }
