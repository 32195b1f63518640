package model

import (
	"fmt"

	"github.com/absmach/hivemon/pkg/errors"
)

// Config is the static training configuration shared by every peer in the
// collaboration. The monitor never trains; it only needs the configuration
// to know the shape of the state being checkpointed.
type Config struct {
	Name         string  `env:"NAME"          envDefault:"albert-large-v2"`
	HiddenSize   int     `env:"HIDDEN_SIZE"   envDefault:"1024"`
	Layers       int     `env:"LAYERS"        envDefault:"24"`
	VocabSize    int     `env:"VOCAB_SIZE"    envDefault:"30000"`
	LearningRate float64 `env:"LEARNING_RATE" envDefault:"0.00176"`
	Momentum     float64 `env:"MOMENTUM"      envDefault:"0.9"`
	WeightDecay  float64 `env:"WEIGHT_DECAY"  envDefault:"0.01"`
}

// State is a materialized model+optimizer snapshot as pulled from the
// state-averaging service: named parameter tensors plus the plain SGD
// momentum buffers that mirror them.
type State struct {
	Step      int64                `json:"step"                cbor:"step"`
	Tensors   map[string][]float64 `json:"tensors"             cbor:"tensors"`
	Optimizer map[string][]float64 `json:"optimizer,omitempty" cbor:"optimizer,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"  cbor:"metadata,omitempty"`
}

// Skeleton maps tensor names to element counts. It is what "constructing the
// model and optimizer" amounts to on the monitor side.
type Skeleton struct {
	Tensors   map[string]int
	Optimizer map[string]int
}

// New builds the state skeleton for the configured model with a plain
// momentum-SGD optimizer.
func New(cfg Config) (Skeleton, error) {
	if cfg.HiddenSize <= 0 || cfg.Layers <= 0 || cfg.VocabSize <= 0 {
		return Skeleton{}, fmt.Errorf("%w: non-positive model dimension", errors.ErrInvalidData)
	}

	tensors := map[string]int{
		"embeddings.word_embeddings": cfg.VocabSize * cfg.HiddenSize,
	}
	for i := range cfg.Layers {
		tensors[fmt.Sprintf("encoder.layer.%d.weight", i)] = cfg.HiddenSize * cfg.HiddenSize
		tensors[fmt.Sprintf("encoder.layer.%d.bias", i)] = cfg.HiddenSize
	}

	momentum := make(map[string]int, len(tensors))
	for name, size := range tensors {
		momentum["momentum."+name] = size
	}

	return Skeleton{
		Tensors:   tensors,
		Optimizer: momentum,
	}, nil
}

// Validate checks that a pulled state carries every tensor the skeleton
// names, with matching element counts. Extra tensors are tolerated; missing
// or misshapen ones are not.
func (sk Skeleton) Validate(st State) error {
	for name, size := range sk.Tensors {
		data, ok := st.Tensors[name]
		if !ok {
			return fmt.Errorf("%w: missing tensor %s", errors.ErrStateMismatch, name)
		}
		if len(data) != size {
			return fmt.Errorf("%w: tensor %s has %d elements, want %d", errors.ErrStateMismatch, name, len(data), size)
		}
	}
	for name, size := range sk.Optimizer {
		data, ok := st.Optimizer[name]
		if !ok {
			return fmt.Errorf("%w: missing optimizer buffer %s", errors.ErrStateMismatch, name)
		}
		if len(data) != size {
			return fmt.Errorf("%w: optimizer buffer %s has %d elements, want %d", errors.ErrStateMismatch, name, len(data), size)
		}
	}

	return nil
}
