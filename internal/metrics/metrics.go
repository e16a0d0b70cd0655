// Package metrics exposes dose engine counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every Record method is then a
// no-op.
type Metrics struct {
	registry *prometheus.Registry

	eventsMaterialized prometheus.Counter
	duplicatesRemoved  prometheus.Counter
	dosesTaken         prometheus.Counter
	dosesMissed        *prometheus.CounterVec
	inconsistentCounts prometheus.Counter
	notificationsSent  prometheus.Counter
	storeErrors        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "dose_events_materialized_total",
			Help:      "Scheduled dose events created from reminders.",
		}),
		duplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "dose_event_duplicates_removed_total",
			Help:      "Near-duplicate dose events deleted during reconciliation.",
		}),
		dosesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "doses_taken_total",
			Help:      "Doses transitioned to taken.",
		}),
		dosesMissed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "doses_missed_total",
			Help:      "Doses transitioned to missed.",
		}, []string{"source"}),
		inconsistentCounts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "adherence_inconsistent_total",
			Help:      "Aggregations where recorded doses exceeded expected doses.",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "dose_notifications_sent_total",
			Help:      "Due dose notifications delivered.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doseline",
			Name:      "store_errors_total",
			Help:      "Failed store operations by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.eventsMaterialized,
		m.duplicatesRemoved,
		m.dosesTaken,
		m.dosesMissed,
		m.inconsistentCounts,
		m.notificationsSent,
		m.storeErrors,
	)
	return m
}

func (m *Metrics) RecordMaterialized(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsMaterialized.Add(float64(n))
}

func (m *Metrics) RecordDuplicatesRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesRemoved.Add(float64(n))
}

func (m *Metrics) RecordTaken() {
	if m == nil {
		return
	}
	m.dosesTaken.Inc()
}

func (m *Metrics) RecordMissed(source string) {
	if m == nil {
		return
	}
	m.dosesMissed.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordInconsistent() {
	if m == nil {
		return
	}
	m.inconsistentCounts.Inc()
}

func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.notificationsSent.Inc()
}

func (m *Metrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
