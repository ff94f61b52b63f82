package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RunFinished("completed")
	m.RunFinished("completed")
	m.RunFinished("failed")
	m.StageObserved("plan", "fallback", "timeout", 2*time.Second)
	m.RenderObserved("cached")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageOutcome.WithLabelValues("plan", "fallback", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renders.WithLabelValues("cached")))

	m.RunStarted()
	m.RunStarted()
	m.RunDone()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRuns))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.QueueDepth(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "research_queue_depth 3")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunFinished("completed")
		m.StageObserved("plan", "generated", "", time.Second)
		m.RenderObserved("rendered")
		m.QueueDepth(1)
		m.RunStarted()
		m.RunDone()
		m.HTTPRequest(http.MethodGet, http.StatusOK)
	})
	assert.Nil(t, m.Registry())
}

func TestNewLogger(t *testing.T) {
	for _, mode := range []string{"prod", "development", ""} {
		logger, err := NewLogger(mode)
		require.NoError(t, err, mode)
		assert.NotNil(t, logger)
	}
	assert.NotNil(t, OrNop(nil))
}
