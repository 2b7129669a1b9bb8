package storage

import (
	"context"

	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockContentStore implements interfaces.ContentStore for testing
type MockContentStore struct {
	mock.Mock
	StoreName string
}

var _ interfaces.ContentStore = (*MockContentStore)(nil)

func (m *MockContentStore) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockContentStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	args := m.Called(ctx, data, filename)
	return args.String(0), args.Error(1)
}

func (m *MockContentStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockContentStore) Name() string {
	return m.StoreName
}

func (m *MockContentStore) LocationURI() string {
	return "mock:"
}
