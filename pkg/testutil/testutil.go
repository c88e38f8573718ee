// Package testutil provides testing utilities for nebulaflow
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// TestLogger creates a logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext returns a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Record builds a record from alternating field names and values.
func Record(kv ...interface{}) *models.Record {
	r := models.NewRecord(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		r.SetData(kv[i].(string), kv[i+1])
	}
	return r
}

// Sequence builds n records with an increasing int64 "seq" field and a
// "name" field.
func Sequence(n int) []*models.Record {
	out := make([]*models.Record, n)
	for i := range out {
		out[i] = Record("seq", int64(i+1), "name", fmt.Sprintf("row-%d", i+1))
	}
	return out
}

// Values returns field of every record, nil where it is missing.
func Values(records []*models.Record, field string) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i], _ = r.GetData(field)
	}
	return out
}
