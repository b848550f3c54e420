// README: Tracing and counters for order operations.
package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "gigmarket/internal/modules/order"

type serviceMetrics struct {
	transitions      metric.Int64Counter
	dispatchFailures metric.Int64Counter
	expired          metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	transitions, _ := m.Int64Counter("order.transitions", metric.WithDescription("Committed order status transitions"))
	dispatchFailures, _ := m.Int64Counter("order.dispatch_failures", metric.WithDescription("Notification or chat emissions that failed after commit"))
	expired, _ := m.Int64Counter("order.expired", metric.WithDescription("Orders cancelled by the expiry sweep"))
	return serviceMetrics{transitions: transitions, dispatchFailures: dispatchFailures, expired: expired}
}

func (m serviceMetrics) recordTransition(ctx context.Context, from, to Status) {
	if m.transitions != nil {
		m.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("order.from", string(from)),
			attribute.String("order.to", string(to)),
		))
	}
}

func (m serviceMetrics) recordDispatchFailure(ctx context.Context, channel string) {
	if m.dispatchFailures != nil {
		m.dispatchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
	}
}

func (m serviceMetrics) recordExpired(ctx context.Context, kind DeadlineKind, n int) {
	if m.expired != nil && n > 0 {
		m.expired.Add(ctx, int64(n), metric.WithAttributes(attribute.String("deadline", string(kind))))
	}
}

func defaultTracer() trace.Tracer { return otel.Tracer(instrumentationName) }

func defaultMeter() metric.Meter { return otel.Meter(instrumentationName) }

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
