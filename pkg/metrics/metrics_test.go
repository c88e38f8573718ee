package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveRun(t *testing.T) {
	before := counterValue(t, RunsTotal.WithLabelValues("Failed", "manual"))

	ObserveRun("Failed", "manual", 250*time.Millisecond)

	after := counterValue(t, RunsTotal.WithLabelValues("Failed", "manual"))
	assert.Equal(t, before+1, after)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("x")))
}

func TestObserveConnectorDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		ObserveConnector("csv", "read", time.Millisecond, nil)
		ObserveStage("SourceRead", time.Millisecond, errors.New("boom"))
	})
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	assert.Equal(t, "op", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}
