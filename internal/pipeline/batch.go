package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/pkg/metrics"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// WriteFunc writes one chunk.
type WriteFunc func(ctx context.Context, chunk []*models.Record) error

// BatchConfig controls chunking and pacing.
type BatchConfig struct {
	// Size is the maximum chunk size. Zero or less writes one chunk.
	Size int
	// Delay is slept between chunks, never before the first or after the last.
	Delay time.Duration
	// Connector labels metrics.
	Connector string
}

// BatchConfigFor builds a BatchConfig from the optional pipeline settings.
func BatchConfigFor(p *models.Pipeline) BatchConfig {
	cfg := BatchConfig{Connector: p.Destination.Type}
	if p.BatchSize != nil {
		cfg.Size = *p.BatchSize
	}
	if p.BatchDelaySeconds != nil {
		cfg.Delay = time.Duration(*p.BatchDelaySeconds) * time.Second
	}
	return cfg
}

// BatchWriter partitions records into ordered chunks and paces their writes.
type BatchWriter struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewBatchWriter creates a batch writer. A nil clock uses the real clock.
func NewBatchWriter(clock clockwork.Clock, logger *zap.Logger) *BatchWriter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWriter{clock: clock, logger: logger}
}

// Chunk splits records into chunks of at most size, in order.
func Chunk(records []*models.Record, size int) [][]*models.Record {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || size >= len(records) {
		return [][]*models.Record{records}
	}
	chunks := make([][]*models.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

// Write writes records chunk by chunk and returns how many rows were written.
// A failed chunk aborts the rest; rows from earlier chunks stay written.
func (b *BatchWriter) Write(ctx context.Context, records []*models.Record, cfg BatchConfig, write WriteFunc) (int64, error) {
	var written int64
	chunks := Chunk(records, cfg.Size)

	for i, chunk := range chunks {
		if i > 0 && cfg.Delay > 0 {
			b.logger.Debug("waiting between batches",
				zap.Int("batch", i+1),
				zap.Duration("delay", cfg.Delay))
			select {
			case <-ctx.Done():
				return written, nebulaerrors.Cancelled(ctx.Err())
			case <-b.clock.After(cfg.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return written, nebulaerrors.Cancelled(err)
		}

		err := write(ctx, chunk)
		metrics.BatchesTotal.WithLabelValues(cfg.Connector, metrics.Status(err)).Inc()
		if err != nil {
			b.logger.Warn("batch write failed",
				zap.Int("batch", i+1),
				zap.Int("batches", len(chunks)),
				zap.Int64("rows_written", written),
				zap.Error(err))
			return written, err
		}
		metrics.BatchSize.WithLabelValues(cfg.Connector).Observe(float64(len(chunk)))
		metrics.RecordsWritten.WithLabelValues(cfg.Connector).Add(float64(len(chunk)))
		written += int64(len(chunk))
	}
	return written, nil
}
