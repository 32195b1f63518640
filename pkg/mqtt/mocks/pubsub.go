package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/hivemon/pkg/mqtt"
)

// PubSub is a mock implementation of the mqtt.PubSub interface for testing.
type PubSub struct {
	mock.Mock
}

var _ mqtt.PubSub = (*PubSub)(nil)

func (m *PubSub) Publish(ctx context.Context, topic string, msg any) error {
	args := m.Called(ctx, topic, msg)

	return args.Error(0)
}

func (m *PubSub) Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error {
	args := m.Called(ctx, topic, handler)

	return args.Error(0)
}

func (m *PubSub) Unsubscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)

	return args.Error(0)
}

func (m *PubSub) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
