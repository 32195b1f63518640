package monitor

import (
	"math"

	"github.com/absmach/hivemon/peer"
	"github.com/absmach/hivemon/pkg/errors"
)

// Aggregator folds per-peer progress records into a global snapshot and
// tracks the last emitted step so that a tick where nothing advanced is a
// no-op. It is owned by a single monitor loop; no locking.
type Aggregator struct {
	previousStep int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Fold aggregates one tick's records. It returns false when there is nothing
// to emit: no records, or the global step did not advance past the previous
// tick's.
//
// The aggregate loss is Σloss / Σmini_steps over the contributing records,
// matching what peers expect from the published ratio; it is not a
// per-sample weighted average. Records reporting a NaN loss stay in the
// peer/sample/throughput totals but are excluded from both sides of the
// ratio. If every record is excluded or no peer accumulated mini-steps, the
// snapshot is withheld and ErrDegenerateAggregate is returned, with the step
// still recorded so the same degenerate tick is not re-reported every poll.
func (a *Aggregator) Fold(records map[string]peer.Metric) (peer.Snapshot, bool, error) {
	if len(records) == 0 {
		return peer.Snapshot{}, false, nil
	}

	var step int64
	for _, m := range records {
		if m.Step > step {
			step = m.Step
		}
	}
	if step == a.previousStep {
		return peer.Snapshot{}, false, nil
	}

	var (
		sumLoss      float64
		sumMiniSteps int64
		samples      int64
		throughput   float64
	)
	for _, m := range records {
		samples += m.SamplesAccumulated
		throughput += m.SamplesPerSecond

		if math.IsNaN(float64(m.Loss)) {
			continue
		}
		sumLoss += float64(m.Loss)
		sumMiniSteps += m.MiniSteps
	}

	a.previousStep = step

	if sumMiniSteps == 0 {
		return peer.Snapshot{}, false, errors.ErrDegenerateAggregate
	}

	return peer.Snapshot{
		Step:       step,
		AlivePeers: len(records),
		Loss:       sumLoss / float64(sumMiniSteps),
		Samples:    samples,
		Throughput: throughput,
	}, true, nil
}

// PreviousStep reports the last step the aggregator accounted for.
func (a *Aggregator) PreviousStep() int64 {
	return a.previousStep
}
