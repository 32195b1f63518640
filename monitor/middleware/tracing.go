package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/absmach/hivemon/monitor"
	"github.com/absmach/hivemon/peer"
)

var _ monitor.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    monitor.Service
}

func Tracing(tracer trace.Tracer, svc monitor.Service) monitor.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Register(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "register")
	defer span.End()

	return tm.svc.Register(ctx)
}

func (tm *tracing) Tick(ctx context.Context) (snap peer.Snapshot, emitted bool, err error) {
	ctx, span := tm.tracer.Start(ctx, "tick")
	defer func() {
		span.SetAttributes(
			attribute.Int64("step", snap.Step),
			attribute.Bool("emitted", emitted),
		)
		span.End()
	}()

	return tm.svc.Tick(ctx)
}

func (tm *tracing) Status(ctx context.Context) (monitor.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}
