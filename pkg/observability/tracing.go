package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every meetiq span.
const TracerName = "meetiq"

// Span attributes.
var (
	AttrSessionID  = attribute.Key("meetiq.session_id")
	AttrProfile    = attribute.Key("meetiq.profile")
	AttrScore      = attribute.Key("meetiq.score")
	AttrTrend      = attribute.Key("meetiq.trend")
	AttrReady      = attribute.Key("meetiq.ready")
	AttrType       = attribute.Key("meetiq.meeting_type")
	AttrConfidence = attribute.Key("meetiq.confidence")
	AttrFragments  = attribute.Key("meetiq.fragments")
	AttrSink       = attribute.Key("meetiq.sink")
	AttrDurationMs = attribute.Key("meetiq.duration_ms")
	AttrErrorCode  = attribute.Key("error.type")
	AttrRetryable  = attribute.Key("meetiq.retryable")
	AttrRPCMethod  = attribute.Key("rpc.method")
)

// Span names. Sink spans are SpanSinkPrefix + the envelope kind.
const (
	SpanTick       = "meetiq.tick"
	SpanClassify   = "meetiq.classify"
	SpanSemantic   = "meetiq.semantic"
	SpanReport     = "meetiq.report"
	SpanSinkPrefix = "meetiq.sink."
)

// Tracer starts the spans around ticks, classification and sink writes.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses the global provider, which is a no-op unless the host
// program installs one.
func NewTracer() *Tracer {
	return NewTracerFrom(otel.GetTracerProvider())
}

// NewTracerFrom uses tp.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *Tracer) StartTickSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return t.start(ctx, SpanTick, AttrSessionID.String(sessionID))
}

func (t *Tracer) StartClassifySpan(ctx context.Context, sessionID string, fragments int) (context.Context, trace.Span) {
	return t.start(ctx, SpanClassify, AttrSessionID.String(sessionID), AttrFragments.Int(fragments))
}

// StartSemanticSpan wraps one call to the remote classifier.
func (t *Tracer) StartSemanticSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return t.start(ctx, SpanSemantic, AttrRPCMethod.String(method))
}

// StartReportSpan wraps building and publishing the final report.
func (t *Tracer) StartReportSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return t.start(ctx, SpanReport, AttrSessionID.String(sessionID))
}

func (t *Tracer) StartSinkSpan(ctx context.Context, sink, kind string) (context.Context, trace.Span) {
	return t.start(ctx, SpanSinkPrefix+kind, AttrSink.String(sink))
}

// SpanHelper sets meetiq attributes on a span.
type SpanHelper struct {
	span trace.Span
}

func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetScore records a tick result.
func (h *SpanHelper) SetScore(ready bool, score, trend int, profile string) {
	h.span.SetAttributes(
		AttrReady.Bool(ready),
		AttrScore.Int(score),
		AttrTrend.Int(trend),
		AttrProfile.String(profile),
	)
}

func (h *SpanHelper) SetClassification(meetingType string, confidence int) {
	h.span.SetAttributes(AttrType.String(meetingType), AttrConfidence.Int(confidence))
}

func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(AttrDurationMs.Int64(durationMs))
}

// SetError marks the span failed. code is a collaborator error code.
func (h *SpanHelper) SetError(err error, code string, retryable bool) {
	h.span.RecordError(err)
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(AttrErrorCode.String(code), AttrRetryable.Bool(retryable))
}

func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID is the hex trace id in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
