// Package mongodb provides a MongoDB collection destination.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/mongoutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "mongodb"

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewMongoDBDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "MongoDB collection destination using unordered bulk inserts",
		Version:      "1.0.0",
		Capabilities: []string{"batch"},
		Parameters:   []string{"database", "collection"},
	})
}

// MongoDBDestination inserts each record as one document.
type MongoDBDestination struct{}

// NewMongoDBDestination creates a MongoDB destination.
func NewMongoDBDestination() *MongoDBDestination {
	return &MongoDBDestination{}
}

// Write implements core.DestinationWriter.
func (d *MongoDBDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		target, err := mongoutil.TargetFromConfig(cfg)
		if err != nil {
			return err
		}

		client, err := mongoutil.Connect(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer mongoutil.Disconnect(ctx, client)

		docs := make([]interface{}, len(records))
		for i, r := range records {
			docs[i] = mongoutil.ToDocument(r)
		}

		res, err := client.Database(target.Database).Collection(target.Collection).
			InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
		if err != nil {
			inserted := 0
			if res != nil {
				inserted = len(res.InsertedIDs)
			}
			return fmt.Errorf("insert many (inserted %d/%d): %w", inserted, len(docs), err)
		}
		return nil
	})
}

// ValidateSchema implements core.DestinationWriter. Collections are
// schemaless, so only schema text restricts the field set.
func (d *MongoDBDestination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	return base.ValidateAgainstSchema(cfg, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *MongoDBDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection connects, pings and disconnects.
func (d *MongoDBDestination) TestConnection(ctx context.Context, connectionString string) error {
	client, err := mongoutil.Connect(ctx, connectionString)
	if err != nil {
		return err
	}
	mongoutil.Disconnect(ctx, client)
	return nil
}
