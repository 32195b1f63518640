package peer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/absmach/hivemon/pkg/errors"
)

// Loss is a float64 that also accepts the bare NaN/Infinity tokens some
// training frameworks emit when serializing metrics, which encoding/json
// rejects.
type Loss float64

func (l *Loss) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.ErrInvalidData
	}

	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}

	switch s {
	case "NaN", "nan":
		*l = Loss(math.NaN())

		return nil
	case "Infinity", "inf":
		*l = Loss(math.Inf(1))

		return nil
	case "-Infinity", "-inf":
		*l = Loss(math.Inf(-1))

		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidData, err)
	}
	*l = Loss(v)

	return nil
}

func (l Loss) MarshalJSON() ([]byte, error) {
	v := float64(l)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(fmt.Sprintf("%g", v))
	}

	return json.Marshal(v)
}

// Metric is one training peer's latest reported progress, as published into
// the shared metrics key. Records are written by peers with a TTL and are
// read-only to the monitor.
type Metric struct {
	PeerID             string  `json:"peer_id,omitempty"`
	Step               int64   `json:"step"`
	Loss               Loss    `json:"loss"`
	SamplesAccumulated int64   `json:"samples_accumulated"`
	SamplesPerSecond   float64 `json:"samples_per_second"`
	MiniSteps          int64   `json:"mini_steps"`
}

// bareTokenReplacer quotes the non-standard NaN/Infinity tokens so the
// document parses; the Loss decoder then maps the quoted forms back to
// floats. Applied only after a strict parse has already failed.
var bareTokenReplacer = strings.NewReplacer(
	"NaN", `"NaN"`,
	"-Infinity", `"-Infinity"`,
	"Infinity", `"Infinity"`,
)

// ParseMetric decodes and validates a single peer's raw record. A failure
// here means the record is skipped for the tick, not that the tick fails.
func ParseMetric(raw json.RawMessage) (Metric, error) {
	var m Metric
	if err := json.Unmarshal(raw, &m); err != nil {
		patched := bareTokenReplacer.Replace(string(raw))
		if err2 := json.Unmarshal([]byte(patched), &m); err2 != nil {
			return Metric{}, fmt.Errorf("%w: %s", errors.ErrMalformedRecord, err)
		}
	}

	if m.Step < 0 || m.SamplesAccumulated < 0 || m.MiniSteps < 0 {
		return Metric{}, fmt.Errorf("%w: negative counter", errors.ErrMalformedRecord)
	}
	if m.SamplesPerSecond < 0 {
		return Metric{}, fmt.Errorf("%w: negative throughput", errors.ErrMalformedRecord)
	}

	return m, nil
}
