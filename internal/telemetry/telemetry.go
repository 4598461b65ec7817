package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zhouzirui/interview-coach/backend"

var (
	attrSessionID = attribute.Key("interview.session_id")
	attrOutcome   = attribute.Key("interview.chat.outcome")
)

// Config drives how telemetry is initialized.
type Config struct {
	ServiceName  string
	OTLPEndpoint string
	// Providers override the SDK defaults, mostly for tests.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// TurnData describes one finished chat turn.
type TurnData struct {
	SessionID string
	Fragments int
	Duration  time.Duration
	Err       error
}

// Manager records spans and metrics for the interview flow. A nil Manager is
// valid and records nothing.
type Manager struct {
	tracer         trace.Tracer
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	sessions  metric.Int64Counter
	turns     metric.Int64Counter
	fragments metric.Int64Counter
	latency   metric.Float64Histogram
}

// NewManager wires tracing and metrics. With an OTLP endpoint spans are
// exported over HTTP; otherwise they stay in the local SDK provider.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		res, err := buildResource(cfg.ServiceName)
		if err != nil {
			return nil, err
		}
		opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
		if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
			exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
			if err != nil {
				return nil, fmt.Errorf("create otlp exporter: %w", err)
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
		tp = sdktrace.NewTracerProvider(opts...)
	}

	mp := cfg.MeterProvider
	if mp == nil {
		mp = sdkmetric.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	sessions, err := meter.Int64Counter("interview.sessions.created", metric.WithDescription("Interview sessions created."))
	if err != nil {
		return nil, err
	}
	turns, err := meter.Int64Counter("interview.chat.turns", metric.WithDescription("Chat turns relayed, by outcome."))
	if err != nil {
		return nil, err
	}
	fragments, err := meter.Int64Counter("interview.chat.fragments", metric.WithDescription("Model fragments relayed to clients."))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("interview.chat.latency.ms", metric.WithDescription("End-to-end chat turn latency."), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Manager{
		tracer:         tp.Tracer(instrumentationName),
		tracerProvider: tp,
		meterProvider:  mp,
		sessions:       sessions,
		turns:          turns,
		fragments:      fragments,
		latency:        latency,
	}, nil
}

// StartTurn opens the span covering one chat turn.
func (m *Manager) StartTurn(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	if m == nil || m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, "chat.turn", trace.WithAttributes(attrSessionID.String(sessionID)))
}

// RecordSessionCreated counts a new session.
func (m *Manager) RecordSessionCreated(ctx context.Context) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

// RecordTurn publishes the metrics for a finished turn.
func (m *Manager) RecordTurn(ctx context.Context, data TurnData) {
	if m == nil || m.turns == nil {
		return
	}
	outcome := "completed"
	if data.Err != nil {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(attrOutcome.String(outcome))

	m.turns.Add(ctx, 1, attrs)
	if data.Fragments > 0 {
		m.fragments.Add(ctx, int64(data.Fragments))
	}
	m.latency.Record(ctx, float64(data.Duration.Milliseconds()), attrs)
}

// Shutdown flushes and stops the providers created by NewManager.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var result error
	if closer, ok := m.tracerProvider.(interface {
		Shutdown(context.Context) error
	}); ok {
		result = errors.Join(result, closer.Shutdown(ctx))
	}
	if closer, ok := m.meterProvider.(interface {
		Shutdown(context.Context) error
	}); ok {
		result = errors.Join(result, closer.Shutdown(ctx))
	}
	return result
}

// EndSpan finalizes span state while standardizing error recording.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	span.End()
}

func buildResource(service string) (*resource.Resource, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "interview-coach"
	}
	base := resource.Default()
	schema := base.SchemaURL()
	if schema == "" {
		schema = semconv.SchemaURL
	}
	return resource.Merge(base, resource.NewWithAttributes(schema, semconv.ServiceName(service)))
}
