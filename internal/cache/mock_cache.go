package cache

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key, category string) ([]byte, bool) {
	args := m.Called(ctx, key, category)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]byte), args.Bool(1)
}

func (m *MockCache) Put(ctx context.Context, key, category string, payload []byte, metadata map[string]string) error {
	args := m.Called(ctx, key, category, payload, metadata)
	return args.Error(0)
}

func (m *MockCache) Clear(ctx context.Context, categories ...string) error {
	callArgs := make([]interface{}, 0, len(categories)+1)
	callArgs = append(callArgs, ctx)
	for _, c := range categories {
		callArgs = append(callArgs, c)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}

func (m *MockCache) Stats(ctx context.Context) (Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(Stats), args.Error(1)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
