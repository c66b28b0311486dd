// Package api provides HTTP API endpoints for the supply-snapshot service.
// It exposes Prometheus metrics, run statistics, health checks, and the rows
// collected so far.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/grassrootseconomics/supply-snapshot/internal/pool"
	"github.com/grassrootseconomics/supply-snapshot/internal/results"
	"github.com/grassrootseconomics/supply-snapshot/internal/stats"
	"github.com/uptrace/bunrouter"
)

const (
	// metricsPath is the HTTP path for Prometheus metrics endpoint
	metricsPath = "/metrics"
	// statsPath is the HTTP path for run statistics endpoint
	statsPath = "/stats"
	// healthPath is the HTTP path for health check endpoint
	healthPath = "/health"
	// snapshotPath is the HTTP path for the collected snapshot rows
	snapshotPath = "/snapshot"
)

// APIOpts contains the collaborators the API surfaces.
type APIOpts struct {
	Stats   *stats.Stats   // Run statistics
	Pool    *pool.Pool     // Worker pool, for queue statistics
	Results *results.Store // Collected snapshot rows
}

// New creates a new HTTP router with all API endpoints registered.
func New(o APIOpts) *bunrouter.Router {
	router := bunrouter.New()

	router.GET(metricsPath, metricsHandler())
	router.GET(statsPath, statsHandler(o))
	router.GET(healthPath, healthHandler())
	router.GET(snapshotPath, snapshotHandler(o))

	return router
}

// metricsHandler returns a handler that serves Prometheus metrics.
func metricsHandler() bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		metrics.WritePrometheus(w, true)
		return nil
	}
}

// statsHandler returns a handler that serves live run statistics.
func statsHandler(o APIOpts) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		body := o.Stats.APIStatsResponse()
		body["poolQueueSize"] = o.Pool.Size()
		body["poolActiveWorkers"] = o.Pool.ActiveWorkers()
		body["rowsCollected"] = o.Results.Size()

		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(body)
	}
}

// snapshotHandler returns a handler serving all rows collected so far,
// sorted by date.
func snapshotHandler(o APIOpts) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(o.Results.Rows())
	}
}

// healthHandler returns a handler for health checks.
func healthHandler() bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
		return nil
	}
}
