package core

import (
	"context"
	"time"
)

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan finalizes a single traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer opens spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// instrument wraps a service operation with tracing and metrics. The returned
// finish func must be called exactly once with the operation error.
func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	var span TraceSpan = noopSpan{}
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	return ctx, func(err error) {
		span.End(err)
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
		}
	}
}
