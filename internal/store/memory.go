package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// MemoryStore keeps everything in process. Values are cloned on the way in
// and out, so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	pipelines map[string]*models.Pipeline
	runs      map[string]*models.PipelineRunLog
	settings  Settings
}

// NewMemoryStore creates an empty store with the given settings.
func NewMemoryStore(settings Settings) *MemoryStore {
	return &MemoryStore{
		pipelines: make(map[string]*models.Pipeline),
		runs:      make(map[string]*models.PipelineRunLog),
		settings:  settings,
	}
}

var _ Store = (*MemoryStore)(nil)

// GetPipeline implements PipelineStore.
func (s *MemoryStore) GetPipeline(_ context.Context, id string) (*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nil, nebulaerrors.NotFound("pipeline", id)
	}
	return p.Clone(), nil
}

// SavePipeline implements PipelineStore.
func (s *MemoryStore) SavePipeline(_ context.Context, p *models.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[p.ID] = p.Clone()
	return nil
}

// DeletePipeline implements PipelineStore.
func (s *MemoryStore) DeletePipeline(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[id]; !ok {
		return nebulaerrors.NotFound("pipeline", id)
	}
	delete(s.pipelines, id)
	return nil
}

// ListPipelines implements PipelineStore.
func (s *MemoryStore) ListPipelines(_ context.Context) ([]*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDuePipelines implements PipelineStore.
func (s *MemoryStore) ListDuePipelines(_ context.Context, now time.Time) ([]*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Pipeline
	for _, p := range s.pipelines {
		if p.ScheduleEnabled && p.NextRunAt != nil && !p.NextRunAt.After(now) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateNextRun implements PipelineStore.
func (s *MemoryStore) UpdateNextRun(_ context.Context, id string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nebulaerrors.NotFound("pipeline", id)
	}
	if next == nil {
		p.NextRunAt = nil
	} else {
		t := *next
		p.NextRunAt = &t
	}
	return nil
}

// UpdateWatermark implements PipelineStore.
func (s *MemoryStore) UpdateWatermark(_ context.Context, id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nebulaerrors.NotFound("pipeline", id)
	}
	if p.Incremental == nil {
		return nebulaerrors.ValidationError("pipeline %s has no incremental configuration", id)
	}
	p.Incremental.LastValue = value
	return nil
}

// CreateRun implements RunLogStore.
func (s *MemoryStore) CreateRun(_ context.Context, run *models.PipelineRunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// FinalizeRun implements RunLogStore.
func (s *MemoryStore) FinalizeRun(_ context.Context, run *models.PipelineRunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.runs[run.ID]
	if !ok {
		return nebulaerrors.NotFound("run", run.ID)
	}
	if cur.IsTerminal() {
		return fmt.Errorf("run %s is already %s", run.ID, cur.Status)
	}
	if !run.IsTerminal() {
		return fmt.Errorf("run %s cannot be finalized as %s", run.ID, run.Status)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// GetRun implements RunLogStore.
func (s *MemoryStore) GetRun(_ context.Context, id string) (*models.PipelineRunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nebulaerrors.NotFound("run", id)
	}
	return run.Clone(), nil
}

// ListRuns implements RunLogStore.
func (s *MemoryStore) ListRuns(_ context.Context, pipelineID string, limit int) ([]*models.PipelineRunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PipelineRunLog
	for _, run := range s.runs {
		if run.PipelineID == pipelineID {
			out = append(out, run.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClearExpiredSnapshots implements RunLogStore.
func (s *MemoryStore) ClearExpiredSnapshots(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for _, run := range s.runs {
		if run.SnapshotExpiresAt != nil && !run.SnapshotExpiresAt.After(now) {
			run.Snapshot = nil
			run.SnapshotExpiresAt = nil
			cleared++
		}
	}
	return cleared, nil
}

// Settings implements SettingsStore.
func (s *MemoryStore) Settings(context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// SaveSettings implements SettingsStore.
func (s *MemoryStore) SaveSettings(_ context.Context, settings Settings) error {
	if settings.FailedRunRetentionDays < 0 {
		return nebulaerrors.ValidationError("failed run retention cannot be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
