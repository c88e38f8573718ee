// Package memory provides an in-process source and destination backed by
// named datasets. The connection string names the dataset.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "memory"

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewSource(Default) })
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewDestination(Default) })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "In-process dataset source",
		Version:      "1.0.0",
		Capabilities: []string{"batch", "incremental", "schema_discovery"},
	})
	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "In-process dataset destination",
		Version:      "1.0.0",
		Capabilities: []string{"batch"},
	})
}

// Default is the process-wide store used by the registered connectors.
var Default = NewStore()

// Store holds named datasets.
type Store struct {
	mu       sync.RWMutex
	datasets map[string][]*models.Record
	writes   map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		datasets: make(map[string][]*models.Record),
		writes:   make(map[string]int),
	}
}

// Seed replaces the named dataset with copies of records.
func (s *Store) Seed(name string, records []*models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[name] = cloneAll(records)
}

// Append adds copies of records to the named dataset.
func (s *Store) Append(name string, records []*models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[name] = append(s.datasets[name], cloneAll(records)...)
	s.writes[name]++
}

// Records returns copies of the named dataset.
func (s *Store) Records(name string) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.datasets[name])
}

// Writes returns how many Append calls the dataset has received.
func (s *Store) Writes(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[name]
}

// Exists reports whether the dataset has been seeded or written.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.datasets[name]
	return ok
}

// Reset drops every dataset.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = make(map[string][]*models.Record)
	s.writes = make(map[string]int)
}

func cloneAll(records []*models.Record) []*models.Record {
	out := make([]*models.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Source reads a dataset from a Store.
type Source struct {
	store *Store
}

// NewSource creates a source over store.
func NewSource(store *Store) *Source {
	return &Source{store: store}
}

// Read implements core.SourceReader.
func (s *Source) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.store.Exists(cfg.ConnectionString) {
			return nil, fmt.Errorf("dataset %q not found", cfg.ConnectionString)
		}
		return base.FilterByWatermark(s.store.Records(cfg.ConnectionString), wm), nil
	})
}

// DiscoverSchema implements core.SourceReader.
func (s *Source) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	records, err := s.Read(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return base.FieldsOf(records), nil
}

// DryRunPreview implements core.SourceReader.
func (s *Source) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ReadPreview(ctx, s, cfg, sampleSize)
}

// TestConnection succeeds when the dataset exists.
func (s *Source) TestConnection(_ context.Context, connectionString string) error {
	if !s.store.Exists(connectionString) {
		return fmt.Errorf("dataset %q not found", connectionString)
	}
	return nil
}

// Destination appends to a dataset in a Store.
type Destination struct {
	store *Store
}

// NewDestination creates a destination over store.
func NewDestination(store *Store) *Destination {
	return &Destination{store: store}
}

// Write implements core.DestinationWriter.
func (d *Destination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.store.Append(cfg.ConnectionString, records)
		return nil
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
