package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/hivemon/peer"
)

// Status is the monitor's current view of the collaboration, exposed over
// the HTTP API.
type Status struct {
	InstanceID         string        `json:"instance_id"`
	Experiment         string        `json:"experiment"`
	Step               int64         `json:"step"`
	Snapshot           peer.Snapshot `json:"snapshot"`
	CheckpointsEnabled bool          `json:"checkpoints_enabled"`
	LastSavedStep      int64         `json:"last_saved_step,omitempty"`
	LastUpload         time.Time     `json:"last_upload,omitzero"`
}

// Service is the monitor's coordination surface. A single monitor process
// drives it from one polling loop; running replicas against the same
// collaboration would need leader election or idempotent checkpoint writes
// and is deliberately not supported here.
type Service interface {
	// Register announces the monitor to the shared store before polling
	// starts.
	Register(ctx context.Context) error

	// Tick runs one poll iteration: fetch records, aggregate, report
	// telemetry, evaluate the checkpoint cadences. The boolean reports
	// whether a new snapshot was emitted. Errors are contained at this
	// boundary; the caller logs them and keeps polling.
	Tick(ctx context.Context) (peer.Snapshot, bool, error)

	// Status returns the monitor's latest view.
	Status(ctx context.Context) (Status, error)
}

// Run polls the service at a fixed period until the context is cancelled.
// Polling is strictly sequential: no tick starts before the previous one
// finished, and the period is fixed rather than adaptive.
func Run(ctx context.Context, svc Service, period time.Duration, logger *slog.Logger) error {
	if err := svc.Register(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if _, emitted, err := svc.Tick(ctx); err != nil {
			logger.ErrorContext(ctx, "Tick failed", slog.Any("error", err))
		} else if !emitted {
			logger.DebugContext(ctx, "Monitor is still alive, no new progress")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
