// Package tracing wires OpenTelemetry tracing for the daemon: a tracer
// provider with a configurable exporter and sampler, plus HTTP middleware
// that extracts remote trace context.
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"runtime"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/meterhub/meterhub/pkg/config"
)

// Manager owns the tracer provider lifecycle. A disabled manager is valid
// and hands out no-op spans.
type Manager struct {
	config         config.TracingConfig
	version        string
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
}

// NewManager builds the tracer provider from cfg. When tracing is disabled
// the returned manager is inert and Shutdown is a no-op.
func NewManager(cfg config.TracingConfig, version string) (*Manager, error) {
	m := &Manager{config: cfg, version: version}

	if !cfg.Enabled {
		log.Info().Msg("Tracing disabled")
		return m, nil
	}

	if err := m.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	log.Info().
		Str("service_name", cfg.ServiceName).
		Str("exporter", cfg.Exporter).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("Tracing initialized successfully")

	return m, nil
}

func (m *Manager) initialize() error {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(m.config.ServiceName),
		semconv.ServiceVersion(m.version),
		attribute.String("process.runtime.name", "go"),
		attribute.String("process.runtime.version", runtime.Version()),
		attribute.String("runtime.arch", runtime.GOARCH),
		attribute.String("runtime.os", runtime.GOOS),
	)

	exporter, err := m.createExporter()
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	m.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(m.config.SampleRatio)),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(m.tracerProvider)

	m.tracer = m.tracerProvider.Tracer(
		m.config.ServiceName,
		trace.WithInstrumentationVersion(m.version),
	)

	m.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(m.propagator)

	return nil
}

func (m *Manager) createExporter() (sdktrace.SpanExporter, error) {
	switch m.config.Exporter {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(m.config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", m.config.Exporter)
	}
}

// Tracer returns the tracer instance, or a no-op tracer when disabled.
func (m *Manager) Tracer() trace.Tracer {
	if m.tracer == nil {
		return noop.NewTracerProvider().Tracer("meterhub")
	}
	return m.tracer
}

// Middleware returns HTTP middleware that starts a server span per request,
// continuing any trace context found in the incoming headers. With tracing
// disabled it passes requests through untouched.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.tracer == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			spanName := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
			ctx, span := m.tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("user_agent.original", r.UserAgent()),
					attribute.String("client.address", r.RemoteAddr),
				),
			)
			defer span.End()

			ww := &wrappedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", ww.statusCode))
			if ww.statusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(ww.statusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// wrappedResponseWriter wraps http.ResponseWriter to capture status code
type wrappedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrappedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Shutdown flushes pending spans and stops the provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.tracerProvider == nil {
		return nil
	}
	if err := m.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	log.Info().Msg("Tracing shut down successfully")
	return nil
}
