package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/notify"
	"github.com/ajitpratap0/nebulaflow/internal/runlock"
	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/testutil"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

var rec = testutil.Record

func seq(n int) []*models.Record {
	out := make([]*models.Record, n)
	for i := range out {
		out[i] = rec("seq", int64(i+1), "name", "row")
	}
	return out
}

// fakeSource serves datasets keyed by connection string.
type fakeSource struct {
	mu       sync.Mutex
	datasets map[string][]*models.Record
	seen     []string
	err      error
}

func (s *fakeSource) Read(_ context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, cfg.ConnectionString)
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.datasets[cfg.ConnectionString]
	if !ok {
		return nil, errors.New("dataset " + cfg.ConnectionString + " not found")
	}
	out := make([]*models.Record, len(data))
	for i, r := range data {
		out[i] = r.Clone()
	}
	return base.FilterByWatermark(out, wm), nil
}

func (s *fakeSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	records, err := s.Read(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return base.FieldsOf(records), nil
}

func (s *fakeSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, n int) ([]*models.Record, error) {
	return base.ReadPreview(ctx, s, cfg, n)
}

func (s *fakeSource) lastSeen() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return ""
	}
	return s.seen[len(s.seen)-1]
}

// fakeDestination records chunk sizes. failures makes the next writes fail;
// block, when set, holds every write until it is closed.
type fakeDestination struct {
	mu       sync.Mutex
	chunks   []int
	failures int
	entered  chan struct{}
	block    chan struct{}
}

func (d *fakeDestination) Write(ctx context.Context, _ models.DataSourceConfig, records []*models.Record) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("destination rejected batch")
	}
	d.chunks = append(d.chunks, len(records))
	return nil
}

func (d *fakeDestination) ValidateSchema(context.Context, models.DataSourceConfig, []string) (bool, error) {
	return true, nil
}

func (d *fakeDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, n int) ([]*models.Record, error) {
	return base.EchoPreview(records, n), nil
}

func (d *fakeDestination) writes() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.chunks...)
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	failures  []notify.FailureNotification
	successes []notify.SuccessNotification
	err       error
}

func (n *recordingNotifier) SendFailure(_ context.Context, f notify.FailureNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, f)
	return n.err
}

func (n *recordingNotifier) SendSuccess(_ context.Context, s notify.SuccessNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, s)
	return n.err
}

type harness struct {
	engine   *Engine
	store    *store.MemoryStore
	source   *fakeSource
	dest     *fakeDestination
	notifier *recordingNotifier
	locker   *runlock.MemoryLocker
	clock    *clockwork.FakeClock
	registry *registry.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemoryStore(store.DefaultSettings()),
		source:   &fakeSource{datasets: map[string][]*models.Record{}},
		dest:     &fakeDestination{},
		notifier: &recordingNotifier{},
		locker:   runlock.NewMemoryLocker(),
		clock:    clockwork.NewFakeClockAt(epoch),
	}

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterSource("fake", func() core.SourceReader { return h.source }))
	require.NoError(t, reg.RegisterDestination("fake", func() core.DestinationWriter { return h.dest }))
	h.registry = reg

	engine, err := NewEngine(Dependencies{
		Store:    h.store,
		Registry: reg,
		Locker:   h.locker,
		Notifier: h.notifier,
		Clock:    h.clock,
	}, zap.NewNop())
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) save(t *testing.T, p *models.Pipeline) {
	t.Helper()
	require.NoError(t, h.store.SavePipeline(context.Background(), p))
}

func fakePipeline(id, dataset string) *models.Pipeline {
	return &models.Pipeline{
		ID:          id,
		Name:        "pipeline " + id,
		Source:      models.DataSourceConfig{Type: "fake", ConnectionString: dataset},
		Destination: models.DataSourceConfig{Type: "fake", ConnectionString: "out"},
	}
}

func intPtr(i int) *int { return &i }
