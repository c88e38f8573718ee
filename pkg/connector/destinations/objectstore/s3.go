package objectstore

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

type s3Uploader struct {
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Uploader loads the default AWS credential chain. The endpoint
// parameter targets S3 compatible stores with path-style addressing.
func NewS3Uploader(ctx context.Context, cfg models.DataSourceConfig) (Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := cfg.Param("region", ""); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Param("endpoint", "")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Uploader{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 8 * 1024 * 1024
			u.Concurrency = 4
		}),
	}, nil
}

func (u *s3Uploader) Upload(ctx context.Context, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(obj.Bucket),
		Key:         aws.String(obj.Key),
		Body:        bytes.NewReader(obj.Body),
		ContentType: aws.String(obj.ContentType),
		Metadata:    obj.Metadata,
	}
	if obj.ContentEncoding != "" {
		input.ContentEncoding = aws.String(obj.ContentEncoding)
	}
	_, err := u.uploader.Upload(ctx, input)
	return err
}

func (u *s3Uploader) BucketExists(ctx context.Context, bucket string) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}

func (u *s3Uploader) Close() error { return nil }
