package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/absmach/hivemon/monitor"
	"github.com/absmach/hivemon/peer"
)

var _ monitor.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     monitor.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc monitor.Service) monitor.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Register(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "register").Add(1)
		mm.latency.With("method", "register").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Register(ctx)
}

func (mm *metricsMiddleware) Tick(ctx context.Context) (peer.Snapshot, bool, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "tick").Add(1)
		mm.latency.With("method", "tick").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Tick(ctx)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (monitor.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}
