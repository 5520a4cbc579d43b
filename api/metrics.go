package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	todosSpanName    = "todos.request"
	todosEventName   = "todos.request.completed"
	todosEventDomain = "prism.todos"
	tracerName       = "prism-todo/api"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	route         string
	operation     string
	todoID        string
	storeDuration time.Duration
	todosReturned int
	errorStage    string
	cause         error
}

// newRequestMetrics opens a span for the request and returns the context
// carrying it.
func newRequestMetrics(ctx context.Context, logger *log.Logger, route, operation string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, todosSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("prism.todos.operation", operation),
		),
	)
	return &requestMetrics{
		logger:        logger,
		span:          span,
		start:         time.Now(),
		route:         route,
		operation:     operation,
		todosReturned: -1,
	}, spanCtx
}

func (m *requestMetrics) ObserveStore(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.storeDuration = duration
}

func (m *requestMetrics) SetTodoID(id string) {
	m.todoID = id
}

func (m *requestMetrics) SetTodosReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.todosReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Fail records the stage and cause of an error that was already turned
// into a response.
func (m *requestMetrics) Fail(stage string, cause error) {
	m.SetErrorStage(stage)
	m.cause = cause
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.String("prism.todos.operation", m.operation),
		attribute.Float64("prism.todos.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64("prism.todos.store_ms", durationToMillis(m.storeDuration)))
	}
	if m.todoID != "" {
		attrs = append(attrs, attribute.String("prism.todos.id", m.todoID))
	}
	if m.todosReturned >= 0 {
		attrs = append(attrs, attribute.Int("prism.todos.returned", m.todosReturned))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("prism.todos.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log emits one observability event and ends the request span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.cause
	}
	severityText, severityNumber := severityForStatus(status, err)
	attrs := m.attributes(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", todosEventName),
			attribute.String("event.domain", todosEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		defer m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      todosEventName,
		"event.domain":    todosEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case status == 0 && err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
