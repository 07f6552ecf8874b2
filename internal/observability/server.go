// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package observability provides HTTP endpoints for metrics and health
// checks plus the domain counters recorded by the linking and admission
// components.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to admit sessions.
type ReadinessChecker func() bool

// Package-level counters so components can record events without holding
// a Server reference.
var (
	admissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildgate_admission_decisions_total",
			Help: "Total admission decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)
	linkOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildgate_link_operations_total",
			Help: "Total link store operations by kind",
		},
		[]string{"op"},
	)
)

// RecordAdmissionDecision increments the admission decision counter.
// outcome is "allow" or "deny"; reason identifies the deciding check.
func RecordAdmissionDecision(outcome, reason string) {
	admissionDecisions.WithLabelValues(outcome, reason).Inc()
}

// RecordLinkOperation increments the link operation counter ("link" or
// "unlink").
func RecordLinkOperation(op string) {
	linkOperations.WithLabelValues(op).Inc()
}

// Metrics holds the registered GuildGate metrics.
type Metrics struct {
	OutstandingCodes prometheus.GaugeFunc
}

// NewMetrics registers GuildGate metrics. outstandingCodes supplies the
// current count of live pairing codes (nil disables the gauge).
func NewMetrics(reg prometheus.Registerer, outstandingCodes func() int) *Metrics {
	m := &Metrics{}
	if outstandingCodes != nil {
		m.OutstandingCodes = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "guildgate_pairing_codes_outstanding",
				Help: "Number of outstanding pairing codes",
			},
			func() float64 { return float64(outstandingCodes()) },
		)
		reg.MustRegister(m.OutstandingCodes)
	}
	reg.MustRegister(admissionDecisions)
	reg.MustRegister(linkOperations)
	return m
}

// Server provides HTTP endpoints for observability (metrics and health
// probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker, outstandingCodes func() int) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry, outstandingCodes),
		isReady:  readinessChecker,
	}
}

// Metrics returns the registered metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints. It returns an error
// channel that receives any errors from the HTTP server after startup;
// the channel is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if stopped.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
