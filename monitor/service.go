package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/hivemon/peer"
	"github.com/absmach/hivemon/pkg/checkpoint"
	"github.com/absmach/hivemon/pkg/store"
	"github.com/absmach/hivemon/pkg/telemetry"
)

const metricsKeySuffix = "_metrics"

type service struct {
	instanceID  string
	experiment  string
	addrs       []string
	store       store.Store
	agg         *Aggregator
	coordinator *checkpoint.Coordinator
	telemetry   telemetry.Sink
	logger      *slog.Logger

	// Copies of the coordinator's bookkeeping taken under mu at the end of
	// each tick, so Status can be served concurrently while only the polling
	// loop ever touches the coordinator itself.
	mu            sync.Mutex
	last          peer.Snapshot
	lastSavedStep int64
	lastUpload    time.Time
}

// NewService wires the monitor together. The coordinator may be nil, which
// disables checkpointing entirely; the telemetry sink may be nil, which
// limits reporting to logs.
func NewService(instanceID, experiment string, addrs []string, s store.Store, c *checkpoint.Coordinator, sink telemetry.Sink, logger *slog.Logger) Service {
	svc := &service{
		instanceID:  instanceID,
		experiment:  experiment,
		addrs:       addrs,
		store:       s,
		agg:         NewAggregator(),
		coordinator: c,
		telemetry:   sink,
		logger:      logger,
	}
	if c != nil {
		svc.lastSavedStep = c.LastSavedStep()
		svc.lastUpload = c.LastUpload()
	}

	return svc
}

func (svc *service) Register(ctx context.Context) error {
	if err := svc.store.Register(ctx, svc.instanceID, svc.addrs); err != nil {
		return err
	}

	svc.logger.InfoContext(ctx, "Monitor joined the collaboration",
		slog.String("experiment", svc.experiment),
		slog.Any("announce_addrs", svc.addrs),
	)

	return nil
}

func (svc *service) Tick(ctx context.Context) (peer.Snapshot, bool, error) {
	raw, err := svc.store.FetchLatest(ctx, svc.experiment+metricsKeySuffix)
	if err != nil {
		// Treated as "no new data"; the next period retries.
		return peer.Snapshot{}, false, err
	}
	if len(raw) == 0 {
		return peer.Snapshot{}, false, nil
	}

	records := make(map[string]peer.Metric, len(raw))
	for peerID, r := range raw {
		m, err := peer.ParseMetric(r)
		if err != nil {
			svc.logger.WarnContext(ctx, "Skipping peer record",
				slog.String("peer", peerID),
				slog.Any("error", err),
			)

			continue
		}
		records[peerID] = m
	}

	snap, emitted, err := svc.agg.Fold(records)
	if err != nil {
		return peer.Snapshot{}, false, err
	}
	if !emitted {
		return peer.Snapshot{}, false, nil
	}

	svc.mu.Lock()
	svc.last = snap
	svc.mu.Unlock()

	svc.logger.InfoContext(ctx, "Aggregated training progress",
		slog.Int64("step", snap.Step),
		slog.Float64("loss", snap.Loss),
		slog.Int("alive_peers", snap.AlivePeers),
		slog.Int64("samples", snap.Samples),
		slog.Float64("performance", snap.Throughput),
	)

	if svc.telemetry != nil {
		if err := svc.telemetry.Report(ctx, snap); err != nil {
			svc.logger.WarnContext(ctx, "Failed to report telemetry", slog.Any("error", err))
		}
	}

	if svc.coordinator != nil {
		err := svc.coordinator.Evaluate(ctx, snap)

		svc.mu.Lock()
		svc.lastSavedStep = svc.coordinator.LastSavedStep()
		svc.lastUpload = svc.coordinator.LastUpload()
		svc.mu.Unlock()

		if err != nil {
			return snap, true, err
		}
	}

	return snap, true, nil
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	st := Status{
		InstanceID: svc.instanceID,
		Experiment: svc.experiment,
		Step:       svc.last.Step,
		Snapshot:   svc.last,
	}
	if svc.coordinator != nil {
		st.CheckpointsEnabled = true
		st.LastSavedStep = svc.lastSavedStep
		st.LastUpload = svc.lastUpload
	}

	return st, nil
}
