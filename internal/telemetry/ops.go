package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Ops records a span, a counter, a duration histogram and an error counter
// for every operation of one subsystem ("honcho", "watch", ...).
type Ops struct {
	prefix string
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// NewOps builds the instruments for subsystem. With telemetry disabled the
// global providers are no-ops, so the returned value is always safe to use.
func NewOps(subsystem string) *Ops {
	scope := instrumentationScope + "/" + subsystem
	m := Meter(scope)
	ops, _ := m.Int64Counter("liquid_mail."+subsystem+".operations",
		metric.WithDescription("Total "+subsystem+" operations executed"),
	)
	dur, _ := m.Float64Histogram("liquid_mail."+subsystem+".operation.duration",
		metric.WithDescription(subsystem+" operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("liquid_mail."+subsystem+".errors",
		metric.WithDescription("Total "+subsystem+" operation errors"),
	)
	return &Ops{prefix: subsystem, tracer: Tracer(scope), ops: ops, dur: dur, errs: errs}
}

// Start opens a span for name. The returned function ends it, recording the
// duration and err (if any).
func (o *Ops) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	all := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
	ctx, span := o.tracer.Start(ctx, o.prefix+"."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	o.ops.Add(ctx, 1, metric.WithAttributes(all...))
	start := time.Now()
	return ctx, func(err error) {
		o.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(all...))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.errs.Add(ctx, 1, metric.WithAttributes(all...))
		}
		span.End()
	}
}

// Count adds n to a named counter under the subsystem scope.
func (o *Ops) Count(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	c, err := Meter(instrumentationScope+"/"+o.prefix).Int64Counter("liquid_mail." + o.prefix + "." + name)
	if err != nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
