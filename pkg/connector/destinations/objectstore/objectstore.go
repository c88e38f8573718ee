// Package objectstore provides the S3 and GCS destinations. Every write
// uploads one new object holding the batch, so retries never overwrite
// earlier batches.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/compression"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// Object is a single upload.
type Object struct {
	Bucket          string
	Key             string
	ContentType     string
	ContentEncoding string
	Body            []byte
	Metadata        map[string]string
}

// Uploader stores objects in one backend.
type Uploader interface {
	Upload(ctx context.Context, obj Object) error
	BucketExists(ctx context.Context, bucket string) error
	Close() error
}

// UploaderFactory opens an uploader for a write.
type UploaderFactory func(ctx context.Context, cfg models.DataSourceConfig) (Uploader, error)

func init() {
	for _, b := range []struct {
		scheme, name, desc string
		factory            UploaderFactory
		params             []string
	}{
		{"s3", "s3", "Amazon S3 destination writing one object per batch", NewS3Uploader, []string{"region", "endpoint"}},
		{"gs", "gcs", "Google Cloud Storage destination writing one object per batch", NewGCSUploader, []string{"credentials_file"}},
	} {
		b := b
		_ = registry.RegisterDestination(b.name, func() core.DestinationWriter {
			return NewDestination(b.name, b.scheme, b.factory)
		})
		_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
			Name:         b.name,
			Type:         string(core.ConnectorTypeDestination),
			Description:  b.desc,
			Version:      "1.0.0",
			Capabilities: []string{"batch", "compression"},
			Parameters:   append([]string{"format", "compression", "compression_level", "columns"}, b.params...),
		})
	}
}

// Destination uploads batches to an object store. The connection string is
// scheme://bucket/prefix.
type Destination struct {
	provider string
	scheme   string
	open     UploaderFactory
	now      func() time.Time
}

// NewDestination creates an object store destination for scheme.
func NewDestination(provider, scheme string, open UploaderFactory) *Destination {
	return &Destination{provider: provider, scheme: scheme, open: open, now: time.Now}
}

// Location is a parsed connection string.
type Location struct {
	Bucket string
	Prefix string
}

// ParseLocation splits scheme://bucket/prefix. The scheme is optional.
func ParseLocation(scheme, connectionString string) (Location, error) {
	s := strings.TrimSpace(connectionString)
	if s == "" {
		return Location{}, errors.New("bucket is required")
	}
	if !strings.Contains(s, "://") {
		s = scheme + "://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Location{}, err
	}
	if u.Scheme != scheme {
		return Location{}, fmt.Errorf("expected %s:// location, got %s://", scheme, u.Scheme)
	}
	if u.Host == "" {
		return Location{}, errors.New("bucket is required")
	}
	return Location{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// Write implements core.DestinationWriter.
func (d *Destination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, d.provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		loc, err := ParseLocation(d.scheme, cfg.ConnectionString)
		if err != nil {
			return err
		}
		format, err := ParseFormat(cfg.Param("format", ""))
		if err != nil {
			return err
		}
		alg, err := compression.ParseAlgorithm(cfg.Param("compression", ""))
		if err != nil {
			return err
		}
		body, err := Encode(records, format, models.ParseFieldList(cfg.Param("columns", "")), alg,
			compression.ParseLevel(cfg.Param("compression_level", "")))
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}

		up, err := d.open(ctx, cfg)
		if err != nil {
			return err
		}
		defer up.Close()

		now := d.now()
		return up.Upload(ctx, Object{
			Bucket:          loc.Bucket,
			Key:             ObjectKey(loc.Prefix, now, format, alg),
			ContentType:     format.ContentType(),
			ContentEncoding: alg.ContentEncoding(),
			Body:            body,
			Metadata: map[string]string{
				"records":     fmt.Sprintf("%d", len(records)),
				"format":      string(format),
				"compression": string(alg),
				"created":     now.UTC().Format(time.RFC3339),
			},
		})
	})
}

// ValidateSchema implements core.DestinationWriter.
func (d *Destination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	return base.ValidateAgainstSchema(cfg, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *Destination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection checks that the bucket exists with default credentials.
func (d *Destination) TestConnection(ctx context.Context, connectionString string) error {
	loc, err := ParseLocation(d.scheme, connectionString)
	if err != nil {
		return err
	}
	up, err := d.open(ctx, models.DataSourceConfig{ConnectionString: connectionString})
	if err != nil {
		return err
	}
	defer up.Close()
	return up.BucketExists(ctx, loc.Bucket)
}
