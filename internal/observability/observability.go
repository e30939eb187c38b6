// Package observability configures OpenTelemetry tracing for runs.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Default service name for traces
	DefaultServiceName = "dataflow"

	// Default OTLP/HTTP collector endpoint
	DefaultOTLPEndpoint = "localhost:4318"
)

var (
	mu sync.RWMutex

	// Global tracer provider, set by Init when an exporter is configured
	tracerProvider *sdktrace.TracerProvider

	// Global tracer
	tracer trace.Tracer
)

// Config holds observability configuration
type Config struct {
	// ServiceName is the name of the service (defaults to "dataflow")
	ServiceName string

	// Enabled controls whether tracing is enabled
	Enabled bool

	// ExporterType specifies the exporter: "otlp", "stdout", or "none"
	ExporterType string

	// OTLPEndpoint is the OTLP/HTTP endpoint host:port
	OTLPEndpoint string

	// OTLPHeaders are additional headers for OTLP requests (e.g., authorization)
	OTLPHeaders map[string]string

	// Insecure disables TLS for the OTLP exporter
	Insecure bool
}

// InitFromEnv initializes observability from environment variables
// Supports standard OpenTelemetry environment variables:
// - OTEL_SERVICE_NAME: Service name (default: "dataflow")
// - OTEL_TRACES_EXPORTER: Exporter type - "otlp", "stdout", or "none" (default: "none")
// - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4318)
// - OTEL_EXPORTER_OTLP_HEADERS: Headers in format "key1=value1,key2=value2"
// - OTEL_EXPORTER_OTLP_INSECURE: "true" to disable TLS
//
// enabled reports whether an exporter was configured.
func InitFromEnv() (enabled bool, err error) {
	exporter := getEnv("OTEL_TRACES_EXPORTER", "none")
	enabled = exporter != "none"
	return enabled, Init(Config{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", DefaultServiceName),
		Enabled:      enabled,
		ExporterType: exporter,
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		OTLPHeaders:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:     os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	})
}

// Init initializes the observability system with the given configuration
func Init(config Config) error {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	if !config.Enabled || config.ExporterType == "" || config.ExporterType == "none" {
		slog.Debug("tracing disabled")
		mu.Lock()
		tracer = otel.GetTracerProvider().Tracer(config.ServiceName)
		mu.Unlock()
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.ExporterType {
	case "otlp":
		exporter, err = createOTLPExporter(config)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		slog.Info("tracing initialized", "exporter", "otlp", "endpoint", config.OTLPEndpoint)

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		slog.Info("tracing initialized", "exporter", "stdout")

	default:
		return fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracerProvider = tp
	tracer = tp.Tracer(config.ServiceName)
	mu.Unlock()

	return nil
}

// UseTracerProvider routes spans to tp. Tests use it with an in-memory recorder.
func UseTracerProvider(tp trace.TracerProvider) {
	mu.Lock()
	tracer = tp.Tracer(DefaultServiceName)
	mu.Unlock()
}

// Shutdown flushes and stops the tracer provider created by Init.
func Shutdown(ctx context.Context) error {
	mu.RLock()
	tp := tracerProvider
	mu.RUnlock()
	if tp == nil {
		return nil
	}

	// Create a timeout context if not already provided
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	return tp.Shutdown(ctx)
}

// StartSpanWithOtel creates a new span with the given name and OpenTelemetry options.
// Returns a context with the span and the raw OpenTelemetry span.
func StartSpanWithOtel(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	tr := tracer
	mu.RUnlock()
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}

	return tr.Start(ctx, name, opts...)
}

func createOTLPExporter(config Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	// Add headers if provided
	if len(config.OTLPHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.OTLPHeaders))
	}

	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(context.Background(), client)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseHeaders parses "key1=value1,key2=value2". Pairs without '=' are skipped.
func parseHeaders(headerStr string) map[string]string {
	if headerStr == "" {
		return nil
	}

	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		headers[k] = v
	}
	return headers
}
