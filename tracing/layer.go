// Package tracing bridges in-process span and log activity into
// wire.Record values pushed onto an emitter.Channel, the way
// Atsika-aznet's Driver bridges connection state into metrics — except
// here the source is observability data, not connection events.
//
// Go's ecosystem splits what Rust's tracing unifies into one
// Layer/Subscriber: spans go through the OpenTelemetry SDK's
// trace.SpanProcessor, and events go through log/slog. Layer
// implements both, fed by a single emitter.Channel.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/grampelberg/laminar/emitter"
	"github.com/grampelberg/laminar/wire"
)

// dropTarget marks spans/events produced by the collector's own
// machinery (its transport, its endpoint's background actors, its
// writer task) so they never re-enter the emitter and generate more
// records about themselves.
const dropTarget = "inspector::drop"

const (
	attrTarget = attribute.Key("tracing.target")
	attrFile   = attribute.Key("code.filepath")
	attrLine   = attribute.Key("code.lineno")
	attrModule = attribute.Key("code.namespace")
)

// Layer fans spans and events into a wire.Record stream.
type Layer struct {
	out    *emitter.Channel
	source string

	mu      sync.Mutex
	dropped map[oteltrace.SpanID]struct{}
}

// New builds a Layer that sends onto out, tagging every Record's Source
// field with source (typically the writer's hostname/display name).
// out may be nil, in which case the Layer is permanently Disabled.
func New(out *emitter.Channel, source string) *Layer {
	return &Layer{out: out, source: source, dropped: make(map[oteltrace.SpanID]struct{})}
}

// Disabled reports whether the layer should no-op: no emitter channel
// configured, or the channel has been closed.
func (l *Layer) Disabled() bool {
	return l == nil || l.out == nil || l.out.IsClosed()
}

func (l *Layer) markDropped(id oteltrace.SpanID) {
	l.mu.Lock()
	l.dropped[id] = struct{}{}
	l.mu.Unlock()
}

func (l *Layer) isDropped(id oteltrace.SpanID) bool {
	if !id.IsValid() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.dropped[id]
	return ok
}

func (l *Layer) forgetDropped(id oteltrace.SpanID) {
	l.mu.Lock()
	delete(l.dropped, id)
	l.mu.Unlock()
}

// Handler returns an slog.Handler that feeds event-shaped records through
// this same Layer, sharing its drop-marker state.
func (l *Layer) Handler() slog.Handler {
	return &eventHandler{layer: l}
}

// OnStart implements sdktrace.SpanProcessor. It propagates the drop
// marker down the span tree: a span targeting dropTarget, or whose
// parent already carries the marker, is marked and never produces a
// Record, nor does any event recorded against it.
func (l *Layer) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if l.Disabled() {
		return
	}

	id := s.SpanContext().SpanID()
	parentID := oteltrace.SpanContextFromContext(parent).SpanID()

	target, _ := findAttr(s.Attributes(), attrTarget)
	if target == dropTarget || l.isDropped(parentID) {
		l.markDropped(id)
		return
	}

	l.send(l.spanRecord(s))
}

// OnEnd implements sdktrace.SpanProcessor. Span records are sent on
// start (mirroring new_span in the source), so OnEnd only releases the
// drop-marker entry to keep the tracked set bounded.
func (l *Layer) OnEnd(s sdktrace.ReadOnlySpan) {
	l.forgetDropped(s.SpanContext().SpanID())
}

// Shutdown implements sdktrace.SpanProcessor.
func (l *Layer) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (l *Layer) ForceFlush(context.Context) error { return nil }

func (l *Layer) spanRecord(s sdktrace.ReadOnlySpan) wire.Record {
	sc := s.SpanContext()
	spanID := spanIDToUint64(sc.SpanID())

	var parentID *uint64
	if p := s.Parent(); p.IsValid() {
		v := spanIDToUint64(p.SpanID())
		parentID = &v
	}

	target, _ := findAttr(s.Attributes(), attrTarget)
	file, _ := findAttr(s.Attributes(), attrFile)
	module, _ := findAttr(s.Attributes(), attrModule)
	line := findIntAttr(s.Attributes(), attrLine)

	fields := fieldsFromAttributes(s.Attributes())
	meta := tracingMeta{Name: s.Name(), Target: target, File: file, Line: line, ModulePath: module}

	return wire.Record{
		Kind:        wire.KindSpan,
		TimestampMS: s.StartTime().UnixMilli(),
		Source:      l.source,
		Trace:       wire.Trace{SpanID: &spanID, ParentID: parentID},
		Message:     s.Name(),
		Fields:      encodeFields(fields, meta),
	}
}

func (l *Layer) send(rec wire.Record) {
	if l.Disabled() {
		return
	}
	l.out.Send(&rec)
}

// eventHandler is the slog.Handler half of Layer: it turns log records
// into Event-kind wire.Records, suppressing any whose governing span
// carries the drop marker.
type eventHandler struct {
	layer *Layer
	attrs []slog.Attr
	group string
}

func (h *eventHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return !h.layer.Disabled()
}

func (h *eventHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.layer.Disabled() {
		return nil
	}

	sc := oteltrace.SpanContextFromContext(ctx)
	if h.layer.isDropped(sc.SpanID()) {
		return nil
	}

	// Primitives materialize directly; anything else (errors included)
	// through its string form.
	value := func(v slog.Value) any {
		v = v.Resolve()
		switch v.Kind() {
		case slog.KindBool, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindString:
			return v.Any()
		default:
			return fmt.Sprintf("%v", v.Any())
		}
	}

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[h.qualify(a.Key)] = value(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.qualify(a.Key)] = value(a.Value)
		return true
	})

	message := r.Message
	level := levelFromSlog(r.Level)

	var spanID *uint64
	if sc.IsValid() {
		v := spanIDToUint64(sc.SpanID())
		spanID = &v
	}

	meta := tracingMeta{Name: r.Message, Target: "event"}

	rec := wire.Record{
		Kind:        wire.KindEvent,
		TimestampMS: r.Time.UnixMilli(),
		Level:       &level,
		Source:      h.layer.source,
		Trace:       wire.Trace{SpanID: spanID},
		Message:     message,
		Fields:      encodeFields(fields, meta),
	}
	h.layer.send(rec)
	return nil
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &eventHandler{layer: h.layer, group: h.group}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	next := &eventHandler{layer: h.layer, attrs: h.attrs, group: name}
	return next
}

func (h *eventHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func findAttr(attrs []attribute.KeyValue, key attribute.Key) (string, bool) {
	for _, kv := range attrs {
		if kv.Key == key && kv.Value.Type() == attribute.STRING {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func findIntAttr(attrs []attribute.KeyValue, key attribute.Key) int {
	for _, kv := range attrs {
		if kv.Key == key && kv.Value.Type() == attribute.INT64 {
			return int(kv.Value.AsInt64())
		}
	}
	return 0
}

func spanIDToUint64(id oteltrace.SpanID) uint64 {
	var v uint64
	for _, b := range id {
		v = v<<8 | uint64(b)
	}
	return v
}

func levelFromSlog(l slog.Level) wire.Level {
	switch {
	case l < slog.LevelDebug:
		return wire.LevelTrace
	case l < slog.LevelInfo:
		return wire.LevelDebug
	case l < slog.LevelWarn:
		return wire.LevelInfo
	case l < slog.LevelError:
		return wire.LevelWarn
	default:
		return wire.LevelError
	}
}

var (
	_ sdktrace.SpanProcessor = (*Layer)(nil)
	_ slog.Handler           = (*eventHandler)(nil)
)
