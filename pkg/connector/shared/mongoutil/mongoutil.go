// Package mongoutil holds the connection and document conversion helpers
// shared by the MongoDB connectors.
package mongoutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// Target names the collection a connector works on.
type Target struct {
	Database   string
	Collection string
}

// TargetFromConfig reads the database and collection parameters.
func TargetFromConfig(cfg models.DataSourceConfig) (Target, error) {
	t := Target{
		Database:   strings.TrimSpace(cfg.Param("database", "")),
		Collection: strings.TrimSpace(cfg.Param("collection", "")),
	}
	if t.Database == "" || t.Collection == "" {
		return t, errors.New("database and collection parameters are required")
	}
	return t, nil
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongodb connection string is required")
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second).
		SetMaxPoolSize(4)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	return client, nil
}

// Disconnect closes client with a short detached deadline.
func Disconnect(ctx context.Context, client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = client.Disconnect(ctx)
}

// ParseFilter decodes an extended JSON filter. Empty text matches every
// document.
func ParseFilter(text string) (bson.D, error) {
	if strings.TrimSpace(text) == "" {
		return bson.D{}, nil
	}
	var filter bson.D
	if err := bson.UnmarshalExtJSON([]byte(text), false, &filter); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return filter, nil
}

// ToRecord converts a document into a record in field order.
func ToRecord(doc bson.D) *models.Record {
	r := models.NewRecord(len(doc))
	for _, e := range doc {
		r.SetData(e.Key, Value(e.Value))
	}
	return r
}

// Value converts a BSON value into a plain Go value.
func Value(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case int32:
		return int64(t)
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = Value(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = Value(e)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = Value(e)
		}
		return out
	default:
		return v
	}
}

// ToDocument converts a record into a document in field order.
func ToDocument(r *models.Record) bson.D {
	doc := make(bson.D, 0, r.Len())
	r.Range(func(key string, value interface{}) bool {
		if rec, ok := value.(*models.Record); ok {
			value = ToDocument(rec)
		}
		doc = append(doc, bson.E{Key: key, Value: value})
		return true
	})
	return doc
}
