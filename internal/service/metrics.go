// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Metrics is the Prometheus surface every Runner reports into: one
// info gauge, per-kind error counters, success/failure cycle counters
// and a cycle duration histogram, all labeled by service name.
type Metrics struct {
	service string

	info                *prometheus.GaugeVec
	cyclesSuccess       prometheus.Counter
	cyclesFailed        prometheus.Counter
	errorsByKind        *prometheus.CounterVec
	consecutiveFailures prometheus.Gauge
	lastCycleTimestamp  prometheus.Gauge
	cycleDuration       prometheus.Histogram
}

// NewMetrics registers the Runner's metric family against reg, labeling
// every series with service.
func NewMetrics(reg *prometheus.Registry, service string) *Metrics {
	m := &Metrics{
		service: service,
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bigbrotr", Name: "service_info", Help: "Constant 1 while the service is running.",
		}, []string{"service"}),
		cyclesSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bigbrotr", Name: "cycles_success_total", Help: "Cycles completed without error.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		cyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bigbrotr", Name: "cycles_failed_total", Help: "Cycles that returned an error.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bigbrotr", Name: "errors_total", Help: "Errors observed, labeled by kind.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"kind"}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bigbrotr", Name: "consecutive_failures", Help: "Current run of consecutive cycle failures.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		lastCycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bigbrotr", Name: "last_cycle_timestamp_seconds", Help: "Unix timestamp of the last completed cycle.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bigbrotr", Name: "cycle_duration_seconds", Help: "Cycle wall-clock duration.",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}
	reg.MustRegister(m.info, m.cyclesSuccess, m.cyclesFailed, m.errorsByKind,
		m.consecutiveFailures, m.lastCycleTimestamp, m.cycleDuration)
	return m
}

// SetInfo sets the info gauge (1 while running, 0 once stopped).
func (m *Metrics) SetInfo(v float64) { m.info.WithLabelValues(m.service).Set(v) }

// ObserveCycle records one cycle's outcome and duration.
func (m *Metrics) ObserveCycle(success bool, elapsed time.Duration) {
	if success {
		m.cyclesSuccess.Inc()
	} else {
		m.cyclesFailed.Inc()
	}
	m.cycleDuration.Observe(elapsed.Seconds())
}

// IncError increments the named error-kind counter.
func (m *Metrics) IncError(kind string) { m.errorsByKind.WithLabelValues(kind).Inc() }

// SetConsecutiveFailures sets the gauge to n.
func (m *Metrics) SetConsecutiveFailures(n int64) { m.consecutiveFailures.Set(float64(n)) }

// SetLastCycleTimestamp sets the gauge to the given Unix timestamp.
func (m *Metrics) SetLastCycleTimestamp(ts int64) { m.lastCycleTimestamp.Set(float64(ts)) }

// Server hosts /metrics over chi with permissive CORS, matching the
// teacher pack's chi+cors pairing for small HTTP surfaces.
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) a /metrics HTTP server bound to addr.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	r := chi.NewRouter()
	r.Use(cors.Default().Handler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{httpServer: &http.Server{Addr: addr, Handler: r}}
}

// ListenAndServe blocks serving metrics until the server is shut down.
// Returns nil on graceful shutdown (http.ErrServerClosed is swallowed).
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
