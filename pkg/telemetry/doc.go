// Package telemetry provides comprehensive observability instrumentation for strata.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging strata operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "strata"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("store")
//	logger = logger.WithDocumentID("app-settings").WithMode("settings")
//	logger.Info("Reading document")
//	logger.WithError(err).Error("Read failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into request flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("document.id", documentID),
//	    attribute.String("operation", "read"),
//	)
//
//	// Record events
//	span.AddEvent("validation.complete")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track system behavior and performance:
//
//	// Record document operations
//	tel.Metrics.RecordDocumentRead("settings", "settings", "succeeded", duration)
//	tel.Metrics.RecordDocumentWrite("settings", "settings", duration)
//
//	// Record composition work
//	tel.Metrics.RecordBaseResolved("settings")
//	tel.Metrics.RecordFragmentExpanded("settings")
//
//	// Record errors
//	tel.Metrics.RecordError("user", "PATH_ESCAPES_ROOT")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishDocumentRead(documentID, documentType, mode)
//	tel.Events.PublishDocumentSanitized(documentID, migrations)
//	tel.Events.PublishDriftDetected(documentID, driftCount)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByDocumentID, FilterByDocumentType
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "document.read",
//	    attribute.String("document.id", documentID))
//	defer ic.End(err)
//
//	ic.Logger.Info("Reading document")
//
//	// Read context
//	ctx = telemetry.WithReadContext(ctx, documentID, documentType, mode)
//	defer telemetry.EndReadContext(ctx, documentID, documentType, mode, outcome, err)
//
//	// Resolve stages
//	err := telemetry.RecordResolveOperation(ctx, "inherit", documentID, func() error {
//	    return resolver.Resolve(ctx, documentID)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "strata",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Performance Considerations
//
// The telemetry system is designed for minimal overhead:
//
//   - Structured logging uses zerolog's zero-allocation approach
//   - Tracing uses sampling to reduce data volume in production
//   - Metrics use Prometheus's efficient storage format
//   - Events are buffered and batched to reduce I/O
//   - All operations are non-blocking when possible
//
// Typical overhead: <1% CPU, <10MB memory for moderate workloads
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//   - All buffered events are published
//   - All pending traces are exported
//   - Metrics are finalized
//
// # Integration with the Document Store
//
// The store components automatically integrate with telemetry when available:
//
//  1. Document reads: Per-read tracing with mode and outcome labels
//  2. Composition: Base resolution and fragment expansion spans
//  3. Sanitization: Migration counts and self-heal events
//  4. Drift detection: Drift events and metrics
//  5. Policy engine: Policy violation events
//
// # Exporters
//
// Tracing supports multiple exporters:
//
//   - "stdout": Print traces to stdout (development)
//   - "otlp": Export via OTLP/gRPC (production, works with collectors)
//   - "none": Generate traces but don't export (testing)
//
// Configure via TracingConfig.Exporter and TracingConfig.Endpoint
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - strata_document_reads_total{type,mode,outcome}
//   - strata_document_writes_total{type,mode}
//   - strata_document_read_duration_seconds{type,mode}
//   - strata_bases_resolved_total{type}
//   - strata_fragments_expanded_total{type}
//   - strata_sanitizations_total{type,outcome}
//   - strata_validation_violations_total{type,kind}
//   - strata_errors_by_class_total{class}
//   - strata_sync_transfers_total{direction,status}
//   - strata_documents_managed{type}
//
// # Best Practices
//
//  1. Always use context to propagate telemetry
//  2. Use component-specific loggers for clarity
//  3. Add meaningful attributes to spans
//  4. Record both success and failure metrics
//  5. Use appropriate log levels
//  6. Filter events to avoid overwhelming subscribers
//  7. Monitor telemetry overhead in production
//  8. Configure sampling for high-volume systems
//  9. Always call defer span.End() after starting a span
//  10. Shut down gracefully to avoid data loss
//
// # Security Considerations
//
//   - Never log sensitive data (credentials, keys, tokens)
//   - Sanitize document IDs if they contain PII
//   - Use secure connections (TLS) for trace exporters in production
//   - Limit metrics endpoint access via network policies
//   - Consider event data before adding to audit logs
package telemetry
