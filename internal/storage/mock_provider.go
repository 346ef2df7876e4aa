package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a testify mock of Provider for callers' tests.
type MockProvider struct {
	mock.Mock
}

// PutObject records the call and returns the configured URI and error.
func (m *MockProvider) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	args := m.Called(ctx, objectPath, contentType, r)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
