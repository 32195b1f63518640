package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/hivemon/pkg/checkpoint"
	"github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/model"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := checkpoint.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	st := model.State{
		Step: 15,
		Tensors: map[string][]float64{
			"encoder.layer.0.bias": {0.5, -0.5},
		},
	}
	require.NoError(t, s.Put(ctx, st))

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestLocalStoreLatestWins(t *testing.T) {
	s, err := checkpoint.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	for _, step := range []int64{5, 10, 15} {
		require.NoError(t, s.Put(ctx, model.State{Step: step, Tensors: map[string][]float64{}}))
	}

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Step)
}
