package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/hivemon/peer"
	"github.com/absmach/hivemon/pkg/averager"
	"github.com/absmach/hivemon/pkg/cron"
	"github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/model"
	"github.com/absmach/hivemon/pkg/registry"
)

type Config struct {
	SaveStepInterval int64         `env:"SAVE_CHECKPOINT_STEP_INTERVAL" envDefault:"5"`
	UploadInterval   time.Duration `env:"UPLOAD_INTERVAL"`
	UploadSchedule   string        `env:"UPLOAD_SCHEDULE"`
	UploadTimezone   string        `env:"UPLOAD_TIMEZONE"`
	PullTimeout      time.Duration `env:"PULL_TIMEOUT" envDefault:"60s"`
}

// Coordinator decides when to pull a consistent snapshot of the distributed
// training state and when to publish it. The two cadences are independent:
// saving is step-gated and keeps a fresh local copy, uploading is wall-clock
// gated (fixed interval or cron schedule) and only considered right after a
// successful save. With no upload interval and no schedule, uploading is
// disabled.
//
// All bookkeeping is owned by this object and touched only by the monitor's
// single polling loop.
type Coordinator struct {
	averager averager.Service
	exporter registry.Exporter
	local    *LocalStore
	skeleton model.Skeleton
	cfg      Config
	logger   *slog.Logger

	schedule   *cron.Schedule
	nextUpload time.Time

	lastSavedStep int64
	lastUpload    time.Time
	state         model.State
	hasState      bool

	now func() time.Time
}

func NewCoordinator(cfg Config, avg averager.Service, exp registry.Exporter, local *LocalStore, sk model.Skeleton, logger *slog.Logger) (*Coordinator, error) {
	c := &Coordinator{
		averager:      avg,
		exporter:      exp,
		local:         local,
		skeleton:      sk,
		cfg:           cfg,
		logger:        logger,
		lastSavedStep: -1,
		now:           time.Now,
	}
	c.lastUpload = c.now()

	if cfg.UploadSchedule != "" {
		schedule, err := cron.Parse(cfg.UploadSchedule)
		if err != nil {
			return nil, err
		}
		c.schedule = schedule
		c.nextUpload = schedule.Next(c.lastUpload, cfg.UploadTimezone)
	}

	return c, nil
}

// Evaluate runs one cadence check against a freshly emitted snapshot. It is
// never called on a tick where the global step did not advance.
func (c *Coordinator) Evaluate(ctx context.Context, snap peer.Snapshot) error {
	if !c.ShouldSave(snap.Step) {
		return nil
	}
	if err := c.Save(ctx, snap.Step); err != nil {
		return err
	}
	if !c.ShouldUpload() {
		return nil
	}

	return c.Upload(ctx, snap.Loss)
}

func (c *Coordinator) ShouldSave(step int64) bool {
	if c.cfg.SaveStepInterval <= 0 {
		return false
	}

	return step-c.lastSavedStep >= c.cfg.SaveStepInterval
}

// Save pulls the current state from peers. On any failure the bookkeeping is
// left untouched so the next eligible tick retries; there is no tight retry
// loop.
func (c *Coordinator) Save(ctx context.Context, step int64) error {
	c.logger.InfoContext(ctx, "Saving state from peers", slog.Int64("step", step))

	pullCtx, cancel := context.WithTimeout(ctx, c.cfg.PullTimeout)
	defer cancel()

	st, err := c.averager.PullState(pullCtx)
	if err != nil {
		return err
	}

	if err := c.skeleton.Validate(st); err != nil {
		return err
	}

	if c.local != nil {
		if err := c.local.Put(ctx, st); err != nil {
			return fmt.Errorf("failed to store local checkpoint copy: %w", err)
		}
	}

	c.state = st
	c.hasState = true
	c.lastSavedStep = step

	return nil
}

func (c *Coordinator) ShouldUpload() bool {
	if c.schedule != nil {
		return !c.now().Before(c.nextUpload)
	}
	if c.cfg.UploadInterval <= 0 {
		return false
	}

	return c.now().Sub(c.lastUpload) >= c.cfg.UploadInterval
}

// Upload publishes the last saved state to the artifact repository, tagged
// with the step it was saved at. lastUpload only advances on success.
func (c *Coordinator) Upload(ctx context.Context, loss float64) error {
	if !c.hasState {
		return errors.ErrNotFound
	}

	st := c.state
	meta := make(map[string]any, len(st.Metadata)+1)
	for k, v := range st.Metadata {
		meta[k] = v
	}
	meta["loss"] = loss
	st.Metadata = meta

	tag := fmt.Sprintf("step-%d", c.lastSavedStep)
	c.logger.InfoContext(ctx, "Uploading checkpoint", slog.String("tag", tag))

	if err := c.exporter.Export(ctx, st, tag); err != nil {
		return err
	}

	c.lastUpload = c.now()
	if c.schedule != nil {
		c.nextUpload = c.schedule.Next(c.lastUpload, c.cfg.UploadTimezone)
	}

	return nil
}

func (c *Coordinator) LastSavedStep() int64 {
	return c.lastSavedStep
}

func (c *Coordinator) LastUpload() time.Time {
	return c.lastUpload
}
