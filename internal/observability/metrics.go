package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the prometheus collectors for a run. A nil *Metrics is valid and records nothing,
// so components can be constructed without instrumentation in tests.
type Metrics struct {
	registry     *prometheus.Registry
	sessions     *prometheus.CounterVec
	aborts       *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	fills        *prometheus.CounterVec
	stepsPerForm prometheus.Histogram
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applypilot_sessions_total",
				Help: "Form-completion sessions by terminal outcome.",
			},
			[]string{"outcome"},
		),
		aborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applypilot_aborts_total",
				Help: "Aborted sessions by reason.",
			},
			[]string{"reason"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applypilot_resolutions_total",
				Help: "Resolved questions by answer source.",
			},
			[]string{"source"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applypilot_fills_total",
				Help: "Field fill attempts by control type and result.",
			},
			[]string{"control", "success"},
		),
		stepsPerForm: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "applypilot_session_steps",
				Help:    "Wizard steps taken per session.",
				Buckets: prometheus.LinearBuckets(1, 2, 8),
			},
		),
	}
	m.registry.MustRegister(m.sessions, m.aborts, m.resolutions, m.fills, m.stepsPerForm)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSession records a finished session.
func (m *Metrics) ObserveSession(outcome string, steps int) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
	m.stepsPerForm.Observe(float64(steps))
}

// ObserveAbort records the reason a session was aborted.
func (m *Metrics) ObserveAbort(reason string) {
	if m == nil {
		return
	}
	m.aborts.WithLabelValues(reason).Inc()
}

// ObserveResolution records where an answer came from.
func (m *Metrics) ObserveResolution(source string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(source).Inc()
}

// ObserveFill records the result of one Fill call.
func (m *Metrics) ObserveFill(control string, ok bool) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(control, strconv.FormatBool(ok)).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("Metrics endpoint listening.", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
