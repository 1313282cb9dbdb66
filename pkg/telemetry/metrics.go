package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for strata.
type Metrics struct {
	config MetricsConfig

	// Document metrics
	documentReads  *prometheus.CounterVec
	documentWrites *prometheus.CounterVec
	readDuration   *prometheus.HistogramVec
	writeDuration  *prometheus.HistogramVec

	// Composition metrics
	basesResolved     *prometheus.CounterVec
	fragmentsExpanded *prometheus.CounterVec
	resolveDuration   *prometheus.HistogramVec

	// Repair metrics
	sanitizations     *prometheus.CounterVec
	migrationsApplied *prometheus.CounterVec
	defaultsCreated   *prometheus.CounterVec

	// Validation metrics
	validationViolations *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Policy metrics
	policyDecisions *prometheus.CounterVec

	// Sync metrics
	syncTransfers *prometheus.CounterVec
	syncBytes     *prometheus.CounterVec

	// System metrics
	documentsManaged *prometheus.GaugeVec
	activeWatches    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Document metrics
		documentReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_reads_total",
				Help:      "Total number of document reads",
			},
			[]string{"type", "mode", "outcome"},
		),
		documentWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_writes_total",
				Help:      "Total number of document writes",
			},
			[]string{"type", "mode"},
		),
		readDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_read_duration_seconds",
				Help:      "Duration of document reads in seconds",
				Buckets:   buckets,
			},
			[]string{"type", "mode"},
		),
		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_write_duration_seconds",
				Help:      "Duration of document writes in seconds",
				Buckets:   buckets,
			},
			[]string{"type"},
		),

		// Composition metrics
		basesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bases_resolved_total",
				Help:      "Total number of base documents resolved through inheritance",
			},
			[]string{"type"},
		),
		fragmentsExpanded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragments_expanded_total",
				Help:      "Total number of fragment includes expanded",
			},
			[]string{"type"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Duration of composition stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		// Repair metrics
		sanitizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sanitizations_total",
				Help:      "Total number of sanitization attempts",
			},
			[]string{"type", "outcome"},
		),
		migrationsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_applied_total",
				Help:      "Total number of value migrations applied during sanitization",
			},
			[]string{"rule"},
		),
		defaultsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "defaults_created_total",
				Help:      "Total number of default documents written for missing files",
			},
			[]string{"type", "mode"},
		),

		// Validation metrics
		validationViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_violations_total",
				Help:      "Total number of schema violations encountered",
			},
			[]string{"type", "kind"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Policy metrics
		policyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"policy", "decision"},
		),

		// Sync metrics
		syncTransfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_transfers_total",
				Help:      "Total number of remote sync file transfers",
			},
			[]string{"direction", "status"},
		),
		syncBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_bytes_total",
				Help:      "Total bytes transferred during remote sync",
			},
			[]string{"direction"},
		),

		// System metrics
		documentsManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "documents_managed",
				Help:      "Current number of documents known to the workspace",
			},
			[]string{"type"},
		),
		activeWatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_watches",
				Help:      "Current number of active filesystem watches",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.documentReads,
		m.documentWrites,
		m.readDuration,
		m.writeDuration,
		m.basesResolved,
		m.fragmentsExpanded,
		m.resolveDuration,
		m.sanitizations,
		m.migrationsApplied,
		m.defaultsCreated,
		m.validationViolations,
		m.errorsByClass,
		m.errorsByCode,
		m.policyDecisions,
		m.syncTransfers,
		m.syncBytes,
		m.documentsManaged,
		m.activeWatches,
	)

	return m, nil
}

// Document Metrics

// RecordDocumentRead records a document read with its outcome and duration.
func (m *Metrics) RecordDocumentRead(docType, mode, outcome string, duration time.Duration) {
	if m.documentReads == nil {
		return
	}
	m.documentReads.WithLabelValues(docType, mode, outcome).Inc()
	m.readDuration.WithLabelValues(docType, mode).Observe(duration.Seconds())
}

// RecordDocumentWrite records a document write with its duration.
func (m *Metrics) RecordDocumentWrite(docType, mode string, duration time.Duration) {
	if m.documentWrites == nil {
		return
	}
	m.documentWrites.WithLabelValues(docType, mode).Inc()
	m.writeDuration.WithLabelValues(docType).Observe(duration.Seconds())
}

// Composition Metrics

// RecordBaseResolved records the resolution of a base document.
func (m *Metrics) RecordBaseResolved(docType string) {
	if m.basesResolved == nil {
		return
	}
	m.basesResolved.WithLabelValues(docType).Inc()
}

// RecordFragmentExpanded records the expansion of a fragment include.
func (m *Metrics) RecordFragmentExpanded(docType string) {
	if m.fragmentsExpanded == nil {
		return
	}
	m.fragmentsExpanded.WithLabelValues(docType).Inc()
}

// RecordResolveStage records the duration of a composition stage.
func (m *Metrics) RecordResolveStage(stage string, duration time.Duration) {
	if m.resolveDuration == nil {
		return
	}
	m.resolveDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Repair Metrics

// RecordSanitization records a sanitization attempt and its outcome.
func (m *Metrics) RecordSanitization(docType, outcome string) {
	if m.sanitizations == nil {
		return
	}
	m.sanitizations.WithLabelValues(docType, outcome).Inc()
}

// RecordMigration records an applied value migration.
func (m *Metrics) RecordMigration(rule string) {
	if m.migrationsApplied == nil {
		return
	}
	m.migrationsApplied.WithLabelValues(rule).Inc()
}

// RecordDefaultCreated records the creation of a default document.
func (m *Metrics) RecordDefaultCreated(docType, mode string) {
	if m.defaultsCreated == nil {
		return
	}
	m.defaultsCreated.WithLabelValues(docType, mode).Inc()
}

// Validation Metrics

// RecordValidationViolations records schema violations by kind.
func (m *Metrics) RecordValidationViolations(docType, kind string, count int) {
	if m.validationViolations == nil {
		return
	}
	m.validationViolations.WithLabelValues(docType, kind).Add(float64(count))
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Policy Metrics

// RecordPolicyDecision records a policy decision.
func (m *Metrics) RecordPolicyDecision(policy, decision string) {
	if m.policyDecisions == nil {
		return
	}
	m.policyDecisions.WithLabelValues(policy, decision).Inc()
}

// Sync Metrics

// RecordSyncTransfer records a remote sync transfer.
func (m *Metrics) RecordSyncTransfer(direction, status string, bytes int64) {
	if m.syncTransfers == nil {
		return
	}
	m.syncTransfers.WithLabelValues(direction, status).Inc()
	if bytes > 0 && m.syncBytes != nil {
		m.syncBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

// System Metrics

// SetDocumentCount sets the current count of workspace documents by type.
func (m *Metrics) SetDocumentCount(docType string, count float64) {
	if m.documentsManaged == nil {
		return
	}
	m.documentsManaged.WithLabelValues(docType).Set(count)
}

// IncActiveWatches increments the active watch gauge.
func (m *Metrics) IncActiveWatches() {
	if m.activeWatches == nil {
		return
	}
	m.activeWatches.Inc()
}

// DecActiveWatches decrements the active watch gauge.
func (m *Metrics) DecActiveWatches() {
	if m.activeWatches == nil {
		return
	}
	m.activeWatches.Dec()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
