package monitor_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/hivemon/monitor"
	"github.com/absmach/hivemon/peer"
	"github.com/absmach/hivemon/pkg/errors"
)

func advanceTo(t *testing.T, agg *monitor.Aggregator, step int64) {
	t.Helper()

	_, emitted, err := agg.Fold(map[string]peer.Metric{
		"seed": {Step: step, Loss: 1.0, MiniSteps: 1},
	})
	require.NoError(t, err)
	require.True(t, emitted)
	require.Equal(t, step, agg.PreviousStep())
}

func TestFoldEmitsOnAdvance(t *testing.T) {
	agg := monitor.NewAggregator()
	advanceTo(t, agg, 4)

	snap, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 5, Loss: 1.0, MiniSteps: 2},
		"p2": {Step: 5, Loss: 3.0, MiniSteps: 2},
	})
	require.NoError(t, err)
	require.True(t, emitted)
	assert.Equal(t, int64(5), snap.Step)
	assert.Equal(t, 2, snap.AlivePeers)
	assert.Equal(t, 1.0, snap.Loss)
}

func TestFoldNoEmitOnTie(t *testing.T) {
	agg := monitor.NewAggregator()
	advanceTo(t, agg, 5)

	_, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 5, Loss: 1.0, MiniSteps: 2},
		"p2": {Step: 5, Loss: 3.0, MiniSteps: 2},
	})
	require.NoError(t, err)
	assert.False(t, emitted)
}

func TestFoldEmptyRecords(t *testing.T) {
	agg := monitor.NewAggregator()

	_, emitted, err := agg.Fold(nil)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Equal(t, int64(0), agg.PreviousStep())
}

func TestFoldStepZeroOnly(t *testing.T) {
	// The aggregator starts at step 0, so a collaboration that has not taken
	// its first optimizer step yet never emits.
	agg := monitor.NewAggregator()

	_, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 0, Loss: 1.0, MiniSteps: 2},
	})
	require.NoError(t, err)
	assert.False(t, emitted)
}

func TestFoldStepIsMax(t *testing.T) {
	agg := monitor.NewAggregator()

	snap, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 3, Loss: 1.0, MiniSteps: 1},
		"p2": {Step: 9, Loss: 1.0, MiniSteps: 1},
		"p3": {Step: 7, Loss: 1.0, MiniSteps: 1},
	})
	require.NoError(t, err)
	require.True(t, emitted)
	assert.Equal(t, int64(9), snap.Step)
	assert.Equal(t, 3, snap.AlivePeers)
}

func TestFoldLossRatio(t *testing.T) {
	agg := monitor.NewAggregator()

	records := map[string]peer.Metric{
		"p1": {Step: 2, Loss: 0.7, MiniSteps: 3, SamplesAccumulated: 100, SamplesPerSecond: 10},
		"p2": {Step: 2, Loss: 2.1, MiniSteps: 5, SamplesAccumulated: 250, SamplesPerSecond: 25.5},
		"p3": {Step: 1, Loss: 1.4, MiniSteps: 2, SamplesAccumulated: 50, SamplesPerSecond: 5},
	}
	snap, emitted, err := agg.Fold(records)
	require.NoError(t, err)
	require.True(t, emitted)

	var sumLoss float64
	var sumMini int64
	for _, m := range records {
		sumLoss += float64(m.Loss)
		sumMini += m.MiniSteps
	}
	assert.InDelta(t, sumLoss, snap.Loss*float64(sumMini), 1e-9)
	assert.Equal(t, int64(400), snap.Samples)
	assert.InDelta(t, 40.5, snap.Throughput, 1e-9)
}

func TestFoldDegenerateAggregate(t *testing.T) {
	agg := monitor.NewAggregator()

	_, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 5, Loss: 1.0, MiniSteps: 0},
		"p2": {Step: 5, Loss: 3.0, MiniSteps: 0},
	})
	assert.ErrorIs(t, err, errors.ErrDegenerateAggregate)
	assert.False(t, emitted)

	// The degenerate step is accounted for, so the next identical tick is a
	// quiet no-op instead of a repeated error.
	assert.Equal(t, int64(5), agg.PreviousStep())

	_, emitted, err = agg.Fold(map[string]peer.Metric{
		"p1": {Step: 5, Loss: 1.0, MiniSteps: 0},
	})
	require.NoError(t, err)
	assert.False(t, emitted)
}

func TestFoldNaNLossExcluded(t *testing.T) {
	agg := monitor.NewAggregator()

	snap, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 5, Loss: 2.0, MiniSteps: 2, SamplesAccumulated: 10},
		"p2": {Step: 5, Loss: peer.Loss(math.NaN()), MiniSteps: 4, SamplesAccumulated: 20},
	})
	require.NoError(t, err)
	require.True(t, emitted)

	assert.Equal(t, 2, snap.AlivePeers, "NaN peers still count as alive")
	assert.Equal(t, int64(30), snap.Samples)
	assert.Equal(t, 1.0, snap.Loss, "NaN records must not poison the ratio")
}

func TestFoldAllNaN(t *testing.T) {
	agg := monitor.NewAggregator()

	_, emitted, err := agg.Fold(map[string]peer.Metric{
		"p1": {Step: 5, Loss: peer.Loss(math.NaN()), MiniSteps: 4},
	})
	assert.ErrorIs(t, err, errors.ErrDegenerateAggregate)
	assert.False(t, emitted)
}
