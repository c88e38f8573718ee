// Package mongodb provides a MongoDB collection source.
package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/mongoutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "mongodb"

// schemaSample bounds how many documents DiscoverSchema inspects.
const schemaSample = 100

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewMongoDBSource() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "MongoDB collection source",
		Version:      "1.0.0",
		Capabilities: []string{"batch", "incremental", "schema_discovery", "watermark_pushdown"},
		Parameters:   []string{"database", "collection", "filter"},
	})
}

// MongoDBSource reads documents from a collection. The watermark becomes a
// $gt condition sorted by the watermark field.
type MongoDBSource struct{}

// NewMongoDBSource creates a MongoDB source.
func NewMongoDBSource() *MongoDBSource {
	return &MongoDBSource{}
}

// Read implements core.SourceReader.
func (s *MongoDBSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		return find(ctx, cfg, wm, 0)
	})
}

// DiscoverSchema returns the union of fields over the first documents.
func (s *MongoDBSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	records, err := base.ObserveRead(ctx, provider, "discover_schema", func(ctx context.Context) ([]*models.Record, error) {
		return find(ctx, cfg, nil, schemaSample)
	})
	if err != nil {
		return nil, err
	}
	return base.FieldsOf(records), nil
}

// DryRunPreview implements core.SourceReader.
func (s *MongoDBSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "preview", func(ctx context.Context) ([]*models.Record, error) {
		return find(ctx, cfg, nil, core.SampleSize(sampleSize))
	})
}

// TestConnection connects, pings and disconnects.
func (s *MongoDBSource) TestConnection(ctx context.Context, connectionString string) error {
	client, err := mongoutil.Connect(ctx, connectionString)
	if err != nil {
		return err
	}
	mongoutil.Disconnect(ctx, client)
	return nil
}

// BuildFind returns the filter and options for a read.
func BuildFind(cfg models.DataSourceConfig, wm *core.Watermark, limit int) (bson.D, *options.FindOptions, error) {
	filter, err := mongoutil.ParseFilter(cfg.Param("filter", ""))
	if err != nil {
		return nil, nil, err
	}
	opts := options.Find()
	if wm != nil {
		clause := watermarkFilter(wm)
		if hasKey(filter, "$or") {
			filter = bson.D{{Key: "$and", Value: bson.A{filter, clause}}}
		} else {
			filter = append(filter, clause...)
		}
		opts.SetSort(bson.D{{Key: wm.Field, Value: 1}})
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return filter, opts, nil
}

// watermarkFilter matches values greater than the checkpoint. BSON only
// compares values of the same type, so a checkpoint that parses as a number
// or a time also matches fields stored as strings.
func watermarkFilter(wm *core.Watermark) bson.D {
	gt := func(v any) bson.D {
		return bson.D{{Key: wm.Field, Value: bson.D{{Key: "$gt", Value: v}}}}
	}
	typed := base.TypedWatermark(wm.Value)
	if _, ok := typed.(string); ok {
		return gt(wm.Value)
	}
	return bson.D{{Key: "$or", Value: bson.A{gt(typed), gt(wm.Value)}}}
}

func hasKey(d bson.D, key string) bool {
	for _, e := range d {
		if e.Key == key {
			return true
		}
	}
	return false
}

func find(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark, limit int) ([]*models.Record, error) {
	target, err := mongoutil.TargetFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	filter, opts, err := BuildFind(cfg, wm, limit)
	if err != nil {
		return nil, err
	}

	client, err := mongoutil.Connect(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	defer mongoutil.Disconnect(ctx, client)

	cursor, err := client.Database(target.Database).Collection(target.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return collect(ctx, cursor)
}

func collect(ctx context.Context, cursor *mongo.Cursor) ([]*models.Record, error) {
	defer cursor.Close(ctx)

	var records []*models.Record
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, mongoutil.ToRecord(doc))
	}
	return records, cursor.Err()
}
