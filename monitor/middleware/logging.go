package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/hivemon/monitor"
	"github.com/absmach/hivemon/peer"
)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    monitor.Service
}

func Logging(logger *slog.Logger, svc monitor.Service) monitor.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Register(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register monitor failed", args...)

			return
		}
		lm.logger.Info("Register monitor completed successfully", args...)
	}(time.Now())

	return lm.svc.Register(ctx)
}

func (lm *loggingMiddleware) Tick(ctx context.Context) (snap peer.Snapshot, emitted bool, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Bool("emitted", emitted),
		}
		if emitted {
			args = append(args, slog.Group("snapshot",
				slog.Int64("step", snap.Step),
				slog.Int("alive_peers", snap.AlivePeers),
			))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Tick failed", args...)

			return
		}
		lm.logger.Debug("Tick completed successfully", args...)
	}(time.Now())

	return lm.svc.Tick(ctx)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (st monitor.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Debug("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}
