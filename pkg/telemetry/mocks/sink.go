package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/hivemon/peer"
	"github.com/absmach/hivemon/pkg/telemetry"
)

// Sink is a mock implementation of the telemetry.Sink interface.
type Sink struct {
	mock.Mock
}

var _ telemetry.Sink = (*Sink)(nil)

func (m *Sink) Report(ctx context.Context, snap peer.Snapshot) error {
	args := m.Called(ctx, snap)

	return args.Error(0)
}
