package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/hivemon/pkg/model"
	"github.com/absmach/hivemon/pkg/registry"
)

// Exporter is a mock implementation of the registry.Exporter interface.
type Exporter struct {
	mock.Mock
}

var _ registry.Exporter = (*Exporter)(nil)

func (m *Exporter) Export(ctx context.Context, st model.State, tag string) error {
	args := m.Called(ctx, st, tag)

	return args.Error(0)
}
