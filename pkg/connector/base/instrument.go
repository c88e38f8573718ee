package base

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/logger"
	"github.com/ajitpratap0/nebulaflow/pkg/metrics"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebulaflow/pkg/observability"
)

// Observe runs one connector operation inside a trace span, records its
// duration, and wraps a failure as a ConnectorError naming the provider and
// operation. Errors that already are connector errors pass through unchanged.
func Observe(ctx context.Context, provider, operation string, fn func(context.Context) error) error {
	ctx = logger.ContextWithConnector(ctx, provider)
	ctx, span := observability.StartSpan(ctx, provider+"."+operation,
		observability.ConnectorKey.String(provider))

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveConnector(provider, operation, time.Since(start), err)

	if err != nil && !nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnector) {
		err = nebulaerrors.ConnectorError(provider, operation, err)
	}
	observability.EndSpan(span, err)
	return err
}

// ObserveRead is Observe for reads; it also counts the records returned.
func ObserveRead(ctx context.Context, provider, operation string, fn func(context.Context) ([]*models.Record, error)) ([]*models.Record, error) {
	var out []*models.Record
	err := Observe(ctx, provider, operation, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if operation == "read" {
		metrics.RecordsRead.WithLabelValues(provider).Add(float64(len(out)))
	}
	return out, nil
}

// IsCancellation reports whether err stems from context cancellation or
// deadline expiry.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
