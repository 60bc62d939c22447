// Package metrics exposes the exporter's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, ratelimit,
// export, assembler, archive) and registered via promauto; this package
// only serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registerer every exporter metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - exporter_requests_total{status} (Counter): HTTP attempts by status
//   - exporter_request_duration_seconds (Histogram): Duration of one attempt
//   - exporter_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - exporter_retries_total{error_class} (Counter): Retry attempts by error class
//   - exporter_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - exporter_retry_exhausted_total{error_class} (Counter): Fetches that used up the retry budget
//
// Pacing Metrics (pkg/ratelimit):
//   - exporter_pacer_wait_seconds{pacer} (Histogram): Time spent waiting for a pacer slot
//
// Run Metrics (pkg/export):
//   - exporter_items_total{outcome} (Counter): Listed items by outcome (succeeded, failed)
//   - exporter_run_duration_seconds{mode} (Histogram): Run duration by mode
//
// Output Metrics (pkg/assembler, pkg/archive):
//   - exporter_batch_files_total (Counter): Batch files written
//   - exporter_batch_documents_total (Counter): Documents written to batch files
//   - exporter_archive_bytes (Histogram): Size of built archives
//   - exporter_archive_entries_total (Counter): Entries written to archives
//
// Example Prometheus Queries:
//
//   # Item failure ratio
//   sum(rate(exporter_items_total{outcome="failed"}[5m])) / sum(rate(exporter_items_total[5m]))
//
//   # Rate limiting pressure
//   rate(exporter_retries_total{error_class="rate_limit"}[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(exporter_request_duration_seconds_bucket[5m]))

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewMux returns a mux serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server serves metrics for the lifetime of one run.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
	done   chan error
}

// Start listens on addr in the background.
func Start(addr string, logger zerolog.Logger) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
		done:   make(chan error, 1),
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		err := s.srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
		s.done <- err
	}()

	return s
}

// Shutdown stops the server and returns the error it failed with, if any.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
