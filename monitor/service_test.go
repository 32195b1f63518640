package monitor_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/absmach/hivemon/monitor"
	"github.com/absmach/hivemon/peer"
	avgmocks "github.com/absmach/hivemon/pkg/averager/mocks"
	"github.com/absmach/hivemon/pkg/checkpoint"
	"github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/model"
	regmocks "github.com/absmach/hivemon/pkg/registry/mocks"
	"github.com/absmach/hivemon/pkg/store"
	tmocks "github.com/absmach/hivemon/pkg/telemetry/mocks"
)

const (
	experiment = "albert"
	metricsKey = experiment + "_metrics"
)

func publishMetric(t *testing.T, s *store.MemStore, peerID string, m peer.Metric) {
	t.Helper()

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, s.Publish(metricsKey, peerID, raw, time.Minute))
}

func TestTickNoPeersYet(t *testing.T) {
	s := store.NewInMemoryStore()
	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, nil, slog.Default())

	_, emitted, err := svc.Tick(context.Background())
	require.NoError(t, err, "an absent metrics key is not an error")
	assert.False(t, emitted)
}

func TestTickEmitsSnapshot(t *testing.T) {
	s := store.NewInMemoryStore()
	publishMetric(t, s, "p1", peer.Metric{Step: 5, Loss: 1.0, MiniSteps: 2, SamplesAccumulated: 64, SamplesPerSecond: 8})
	publishMetric(t, s, "p2", peer.Metric{Step: 5, Loss: 3.0, MiniSteps: 2, SamplesAccumulated: 64, SamplesPerSecond: 8})

	sink := new(tmocks.Sink)
	sink.On("Report", mock.Anything, mock.Anything).Return(nil)

	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, sink, slog.Default())

	snap, emitted, err := svc.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, emitted)
	assert.Equal(t, int64(5), snap.Step)
	assert.Equal(t, 2, snap.AlivePeers)
	assert.Equal(t, 1.0, snap.Loss)
	sink.AssertExpectations(t)
}

func TestTickIdempotentOnSameStep(t *testing.T) {
	s := store.NewInMemoryStore()
	publishMetric(t, s, "p1", peer.Metric{Step: 5, Loss: 1.0, MiniSteps: 2})

	sink := new(tmocks.Sink)
	sink.On("Report", mock.Anything, mock.Anything).Return(nil)

	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, sink, slog.Default())

	_, emitted, err := svc.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, emitted)

	_, emitted, err = svc.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, emitted, "a tick without step advancement must be a no-op")
	sink.AssertNumberOfCalls(t, "Report", 1)
}

func TestTickSkipsMalformedRecord(t *testing.T) {
	s := store.NewInMemoryStore()
	publishMetric(t, s, "p1", peer.Metric{Step: 5, Loss: 1.0, MiniSteps: 2})
	require.NoError(t, s.Publish(metricsKey, "p2", json.RawMessage(`not json`), time.Minute))

	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, nil, slog.Default())

	snap, emitted, err := svc.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, emitted)
	assert.Equal(t, 1, snap.AlivePeers, "malformed records are skipped, not fatal")
}

func TestTickTelemetryFailureIsContained(t *testing.T) {
	s := store.NewInMemoryStore()
	publishMetric(t, s, "p1", peer.Metric{Step: 5, Loss: 1.0, MiniSteps: 2})

	sink := new(tmocks.Sink)
	sink.On("Report", mock.Anything, mock.Anything).Return(errors.ErrStoreUnavailable)

	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, sink, slog.Default())

	_, emitted, err := svc.Tick(context.Background())
	require.NoError(t, err, "telemetry is best effort")
	assert.True(t, emitted)
}

func testCoordinator(t *testing.T, avg *avgmocks.Averager, exp *regmocks.Exporter, cfg checkpoint.Config) *checkpoint.Coordinator {
	t.Helper()

	sk, err := model.New(model.Config{HiddenSize: 1, Layers: 1, VocabSize: 1})
	require.NoError(t, err)

	c, err := checkpoint.NewCoordinator(cfg, avg, exp, nil, sk, slog.Default())
	require.NoError(t, err)

	return c
}

func pulledState() model.State {
	return model.State{
		Step: 10,
		Tensors: map[string][]float64{
			"embeddings.word_embeddings": {0},
			"encoder.layer.0.weight":     {0},
			"encoder.layer.0.bias":       {0},
		},
		Optimizer: map[string][]float64{
			"momentum.embeddings.word_embeddings": {0},
			"momentum.encoder.layer.0.weight":     {0},
			"momentum.encoder.layer.0.bias":       {0},
		},
	}
}

func TestTickSaveCadence(t *testing.T) {
	ctx := context.Background()

	avg := new(avgmocks.Averager)
	avg.On("PullState", mock.Anything).Return(pulledState(), nil)

	c := testCoordinator(t, avg, nil, checkpoint.Config{SaveStepInterval: 10, PullTimeout: time.Second})

	s := store.NewInMemoryStore()
	svc := monitor.NewService("monitor-1", experiment, nil, s, c, nil, slog.Default())

	// lastSavedStep starts at -1, so step 8 is 9 steps of progress (below
	// the interval of 10) and step 10 is 11 (at cadence).
	publishMetric(t, s, "p1", peer.Metric{Step: 8, Loss: 1.0, MiniSteps: 2})
	_, emitted, err := svc.Tick(ctx)
	require.NoError(t, err)
	require.True(t, emitted)
	assert.Equal(t, int64(-1), c.LastSavedStep())

	publishMetric(t, s, "p1", peer.Metric{Step: 10, Loss: 1.0, MiniSteps: 2})
	_, emitted, err = svc.Tick(ctx)
	require.NoError(t, err)
	require.True(t, emitted)
	assert.Equal(t, int64(10), c.LastSavedStep())
	avg.AssertNumberOfCalls(t, "PullState", 1)
}

func TestTickFailedPullRetriesNextCadence(t *testing.T) {
	ctx := context.Background()

	avg := new(avgmocks.Averager)
	avg.On("PullState", mock.Anything).Return(model.State{}, errors.ErrStatePull).Once()
	avg.On("PullState", mock.Anything).Return(pulledState(), nil).Once()

	c := testCoordinator(t, avg, nil, checkpoint.Config{SaveStepInterval: 5, PullTimeout: time.Second})

	s := store.NewInMemoryStore()
	svc := monitor.NewService("monitor-1", experiment, nil, s, c, nil, slog.Default())

	publishMetric(t, s, "p1", peer.Metric{Step: 10, Loss: 1.0, MiniSteps: 2})
	_, _, err := svc.Tick(ctx)
	assert.ErrorIs(t, err, errors.ErrStatePull)
	assert.Equal(t, int64(-1), c.LastSavedStep(), "failed pull must not advance bookkeeping")

	publishMetric(t, s, "p1", peer.Metric{Step: 11, Loss: 1.0, MiniSteps: 2})
	_, _, err = svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), c.LastSavedStep())
}

func TestStatusReflectsProgress(t *testing.T) {
	ctx := context.Background()

	s := store.NewInMemoryStore()
	publishMetric(t, s, "p1", peer.Metric{Step: 5, Loss: 1.0, MiniSteps: 2})

	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, nil, slog.Default())

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Step)
	assert.False(t, st.CheckpointsEnabled)

	_, _, err = svc.Tick(ctx)
	require.NoError(t, err)

	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Step)
	assert.Equal(t, "monitor-1", st.InstanceID)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := store.NewInMemoryStore()
	svc := monitor.NewService("monitor-1", experiment, nil, s, nil, nil, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := monitor.Run(ctx, svc, 10*time.Millisecond, slog.Default())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
