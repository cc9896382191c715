// Package observability provides the OpenTelemetry tracer and meter used
// across the dispatch system, plus HTTP middleware for automatic request
// instrumentation.
package observability

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "elevator-dispatch-core"

// TelemetryProvider provides a unified interface for telemetry operations.
type TelemetryProvider struct {
	enabled bool
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter

	requestDuration metric.Float64Histogram
	requestCount    metric.Int64Counter
}

// NewTelemetryProvider creates a telemetry provider. When disabled it hands
// out no-op instruments so callers never need to branch.
func NewTelemetryProvider(enabled bool, logger *slog.Logger) (*TelemetryProvider, error) {
	tp := &TelemetryProvider{
		enabled: enabled,
		logger:  logger,
	}
	if !enabled {
		return tp, nil
	}

	tp.tracer = otel.Tracer(instrumentationName)
	tp.meter = otel.Meter(instrumentationName)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var err error
	tp.requestDuration, err = tp.meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP request handling"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	tp.requestCount, err = tp.meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests handled"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	logger.Info("telemetry provider initialized", slog.String("service", instrumentationName))
	return tp, nil
}

// GetTracer returns the configured tracer.
func (tp *TelemetryProvider) GetTracer() trace.Tracer {
	if tp.tracer == nil {
		return noop.NewTracerProvider().Tracer("noop")
	}
	return tp.tracer
}

// CreateSpan creates a new span with the given name and options.
func (tp *TelemetryProvider) CreateSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tp.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tp.tracer.Start(ctx, name, opts...)
}

// Middleware instruments HTTP handlers with a span and request metrics.
func (tp *TelemetryProvider) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !tp.enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tp.CreateSpan(r.Context(), "http_request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
				),
			)
			defer span.End()

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start).Seconds()
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.Int("status_code", wrapped.statusCode),
				attribute.String("endpoint", sanitizeEndpoint(r.URL.Path)),
			)
			tp.requestDuration.Record(ctx, duration, attrs)
			tp.requestCount.Add(ctx, 1, attrs)

			span.SetAttributes(
				attribute.Int("http.status_code", wrapped.statusCode),
				attribute.Float64("http.duration_seconds", duration),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket upgrades through the
// middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not implement http.Hijacker")
}

// sanitizeEndpoint sanitizes URL path for metrics
func sanitizeEndpoint(path string) string {
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}

	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) > 0 && isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// isNumeric checks if a string is numeric
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
