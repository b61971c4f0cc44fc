// Package health reports whether a timerd instance can serve: its backends
// answer and its publishes succeed.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

type HealthStatus struct {
	Healthy     bool
	Checks      map[string]bool
	Publish     PublishStats
	Connections int
	Errors      []string
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// Checker runs the registered probes and folds in publish counters and
// the number of open observer connections.
type Checker struct {
	probes      map[string]Probe
	counters    *Counters
	connections func() int
	// threshold is how recent a failed publish must be, with nothing
	// successful since, to mark the instance unhealthy.
	threshold time.Duration
}

func NewChecker(counters *Counters, threshold time.Duration) *Checker {
	return &Checker{
		probes:    make(map[string]Probe),
		counters:  counters,
		threshold: threshold,
	}
}

// AddProbe registers a named probe. Not safe to call once serving.
func (h *Checker) AddProbe(name string, probe Probe) {
	h.probes[name] = probe
}

// WithConnections reports open connections from fn.
func (h *Checker) WithConnections(fn func() int) {
	h.connections = fn
}

func (h *Checker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Checks:  make(map[string]bool, len(h.probes)),
		Errors:  []string{},
	}

	for _, name := range h.probeNames() {
		if err := h.probes[name](ctx); err != nil {
			status.Checks[name] = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		status.Checks[name] = true
	}

	if h.counters != nil {
		status.Publish = h.counters.Snapshot()
		p := status.Publish
		if !p.LastFailure.IsZero() && p.LastFailure.After(p.LastPublish) && time.Since(p.LastFailure) < h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("publishing failing since %s", p.LastFailure.Format(time.RFC3339)))
		}
	}

	if h.connections != nil {
		status.Connections = h.connections()
	}
	return status
}

func (h *Checker) probeNames() []string {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP writes the status as JSON, with 503 when unhealthy.
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	response := map[string]interface{}{
		"healthy":            status.Healthy,
		"checks":             status.Checks,
		"events_published":   status.Publish.Published,
		"events_failed":      status.Publish.Failed,
		"last_publish_time":  status.Publish.LastPublish,
		"slowest_publish_ms": status.Publish.Slowest.Milliseconds(),
		"connections":        status.Connections,
		"errors":             status.Errors,
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// PrometheusExporter renders a HealthChecker in the text exposition format.
type PrometheusExporter struct {
	checker HealthChecker
}

func NewPrometheusExporter(checker HealthChecker) *PrometheusExporter {
	return &PrometheusExporter{checker: checker}
}

func (e *PrometheusExporter) Export(ctx context.Context) string {
	status := e.checker.Check(ctx)

	var b strings.Builder
	gauge := func(name, help string, value int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, value)
	}
	counter := func(name, help string, value uint64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, value)
	}

	gauge("battletimer_healthy", "Whether the instance is healthy", boolGauge(status.Healthy))
	counter("battletimer_events_published_total", "Events published to rooms", status.Publish.Published)
	counter("battletimer_events_failed_total", "Publishes that returned an error", status.Publish.Failed)
	gauge("battletimer_connections", "Open observer connections", int64(status.Connections))

	names := make([]string, 0, len(status.Checks))
	for name := range status.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("# HELP battletimer_dependency_up Whether a dependency answered its probe\n")
		b.WriteString("# TYPE battletimer_dependency_up gauge\n")
		for _, name := range names {
			fmt.Fprintf(&b, "battletimer_dependency_up{dependency=%q} %d\n", name, boolGauge(status.Checks[name]))
		}
	}
	return b.String()
}

func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write([]byte(e.Export(ctx))); err != nil {
		log.Error().Err(err).Msg("failed to write metrics response")
	}
}

func boolGauge(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
