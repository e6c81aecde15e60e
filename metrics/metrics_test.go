package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorders(t *testing.T) {
	m := New()
	m.RunFinished("completed", 3*time.Second)
	m.RecordsUploaded(5, 2)
	m.QueryAttempt(true)
	m.QueryAttempt(false)
	m.QueryAttempt(false)

	out := scrape(t, m)
	assert.Contains(t, out, `ghstats_runs_total{status="completed"} 1`)
	assert.Contains(t, out, `ghstats_records_total{outcome="created"} 5`)
	assert.Contains(t, out, `ghstats_records_total{outcome="failed"} 2`)
	assert.Contains(t, out, `ghstats_query_attempts_total{result="failed"} 2`)
	assert.Contains(t, out, `ghstats_query_attempts_total{result="ok"} 1`)
	assert.Contains(t, out, "ghstats_run_duration_seconds_count 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RunFinished("aborted", time.Second)
	m.RecordsUploaded(1, 1)
	m.QueryAttempt(true)
}

func TestRegistryIsPrivate(t *testing.T) {
	a, b := New(), New()
	a.QueryAttempt(true)

	assert.NotContains(t, scrape(t, b), `ghstats_query_attempts_total{result="ok"}`)
	assert.NotSame(t, a.Registry(), b.Registry())
}
