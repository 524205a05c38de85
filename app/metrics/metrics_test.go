package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

func TestSourceFinished(t *testing.T) {
	m := New()

	m.SourceFinished(source.ModeQuery, tasks.OutcomeSuccess, 2*time.Second)
	m.SourceFinished(source.ModeQuery, tasks.OutcomeSuccess, time.Second)
	m.SourceFinished(source.ModeScrape, tasks.OutcomeSoftWarning, time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.SourcesTotal.WithLabelValues("query", "success")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SourcesTotal.WithLabelValues("scrape", "soft_warning")), 0.001)
}

func TestEventsMerged(t *testing.T) {
	m := New()

	m.EventsMerged(3, 1)
	m.EventsMerged(2, 0)

	assert.InDelta(t, 5, testutil.ToFloat64(m.EventsKept), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsDiscarded), 0.001)
}

func TestRunLifecycle(t *testing.T) {
	m := New()

	m.RunStarted()
	m.RunStarted()
	m.RunFinished("completed")

	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsActive), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")), 0.001)
}

func TestHandler(t *testing.T) {
	m := New()
	m.EventsMerged(1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event_comb_events_merged_total 1")
}

func TestIndependentRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New()
		New()
	})
}
