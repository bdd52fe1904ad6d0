package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracerName  = "github.com/unkn0wn-root/wscls/internal/telemetry"
	httpHostKey = attribute.Key("http.host")
)

type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

// RequestStart describes one HTTP exchange or one WebSocket connection.
type RequestStart struct {
	Method        string
	URL           string
	Configuration string
	WebSocket     bool
}

type RequestResult struct {
	Err        error
	StatusCode int
	FramesSent uint64
	FramesRecv uint64
	CloseCode  int
}

type RequestSpan interface {
	// Event records a point-in-time occurrence such as a ping or reconnect.
	Event(name string, attrs ...attribute.KeyValue)
	End(result RequestResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

// New returns a no-op instrumenter unless an endpoint, exporter or span
// processor is supplied.
func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	ctx, span := m.tracer.Start(
		ctx,
		spanNameFor(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(buildSpanAttributes(info)...),
	)
	return ctx, &requestSpan{span: span, ws: info.WebSocket}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type requestSpan struct {
	span trace.Span
	ws   bool
}

func (rs *requestSpan) Event(name string, attrs ...attribute.KeyValue) {
	if rs == nil || rs.span == nil {
		return
	}
	rs.span.AddEvent(name, trace.WithAttributes(attrs...), trace.WithTimestamp(time.Now()))
}

func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}
	if rs.ws {
		rs.span.SetAttributes(
			attribute.Int64("wscls.ws.frames_sent", int64(result.FramesSent)),
			attribute.Int64("wscls.ws.frames_received", int64(result.FramesRecv)),
		)
		if result.CloseCode != 0 {
			rs.span.SetAttributes(attribute.Int("wscls.ws.close_code", result.CloseCode))
		}
	}

	switch {
	case result.Err != nil:
		rs.span.RecordError(result.Err)
		rs.span.SetStatus(codes.Error, result.Err.Error())
	case result.StatusCode >= 400:
		rs.span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", result.StatusCode))
	default:
		rs.span.SetStatus(codes.Ok, "OK")
	}
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) Event(string, ...attribute.KeyValue) {}

func (noopSpan) End(RequestResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func buildSpanAttributes(info RequestStart) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Bool("wscls.websocket", info.WebSocket)}
	if info.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(info.Method))
	}
	if name := strings.TrimSpace(info.Configuration); name != "" {
		attrs = append(attrs, attribute.String("wscls.configuration", name))
	}
	if u, err := url.Parse(info.URL); err == nil && u.Host != "" {
		attrs = append(attrs,
			semconv.HTTPSchemeKey.String(u.Scheme),
			httpHostKey.String(u.Host),
			semconv.HTTPTargetKey.String(u.RequestURI()),
		)
	}
	if info.URL != "" {
		attrs = append(attrs, semconv.HTTPURLKey.String(info.URL))
	}
	return attrs
}

func spanNameFor(info RequestStart) string {
	host := ""
	if u, err := url.Parse(info.URL); err == nil {
		host = u.Host
	}
	switch {
	case info.WebSocket && host != "":
		return "WS " + host
	case info.WebSocket:
		return "ws.connect"
	case info.Method != "" && host != "":
		return info.Method + " " + host
	case info.Method != "":
		return info.Method
	default:
		return "http.request"
	}
}
