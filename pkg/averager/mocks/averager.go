package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/hivemon/pkg/averager"
	"github.com/absmach/hivemon/pkg/model"
)

// Averager is a mock implementation of the averager.Service interface.
type Averager struct {
	mock.Mock
}

var _ averager.Service = (*Averager)(nil)

func (m *Averager) PullState(ctx context.Context) (model.State, error) {
	args := m.Called(ctx)

	return args.Get(0).(model.State), args.Error(1)
}
