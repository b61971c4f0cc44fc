package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/battletimer/go/internal/broadcast"
)

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, string, string, any) error { return p.err }

func TestMetricPublisherCountsOutcomes(t *testing.T) {
	hub := broadcast.NewHub(4)
	defer hub.Close()

	counters := &Counters{}
	ok := NewMetricPublisher(hub, counters)
	require.NoError(t, ok.Publish(context.Background(), "room:a", "timer:a:update", map[string]int{"duration": 1}))
	require.NoError(t, ok.Publish(context.Background(), "room:a", "timer:a:update", map[string]int{"duration": 2}))

	boom := errors.New("nats down")
	bad := NewMetricPublisher(failingPublisher{err: boom}, counters)
	assert.ErrorIs(t, bad.Publish(context.Background(), "room:a", "timer:a:update", nil), boom)

	stats := counters.Snapshot()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.False(t, stats.LastPublish.IsZero())
	assert.False(t, stats.LastFailure.IsZero())
}

func TestCheckerProbes(t *testing.T) {
	checker := NewChecker(&Counters{}, time.Minute)
	checker.AddProbe("store", func(context.Context) error { return nil })
	checker.WithConnections(func() int { return 3 })

	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, map[string]bool{"store": true}, status.Checks)
	assert.Equal(t, 3, status.Connections)
	assert.Empty(t, status.Errors)

	checker.AddProbe("nats", func(context.Context) error { return errors.New("disconnected") })
	status = checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Checks["nats"])
	assert.Equal(t, []string{"nats: disconnected"}, status.Errors)
}

func TestCheckerRecentPublishFailure(t *testing.T) {
	counters := &Counters{}
	checker := NewChecker(counters, time.Minute)

	counters.RecordPublish("timer:a:update", true, time.Millisecond)
	assert.True(t, checker.Check(context.Background()).Healthy)

	counters.RecordPublish("timer:a:update", false, time.Millisecond)
	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	require.Len(t, status.Errors, 1)

	// A later success clears it.
	time.Sleep(2 * time.Millisecond)
	counters.RecordPublish("timer:a:update", true, time.Millisecond)
	assert.True(t, checker.Check(context.Background()).Healthy)
}

func TestServeHTTP(t *testing.T) {
	checker := NewChecker(&Counters{}, time.Minute)
	checker.AddProbe("store", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])

	checker.AddProbe("db", func(context.Context) error { return errors.New("refused") })
	rec = httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPrometheusExport(t *testing.T) {
	counters := &Counters{}
	counters.RecordPublish("update", true, time.Millisecond)
	checker := NewChecker(counters, time.Minute)
	checker.AddProbe("store", func(context.Context) error { return nil })

	out := NewPrometheusExporter(checker).Export(context.Background())
	assert.Contains(t, out, "battletimer_healthy 1\n")
	assert.Contains(t, out, "battletimer_events_published_total 1\n")
	assert.Contains(t, out, `battletimer_dependency_up{dependency="store"} 1`)
}
