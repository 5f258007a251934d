package provider

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the Client interface for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Call(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	args := m.Called(ctx, model, systemPrompt, userPrompt, temperature, maxTokens)
	return args.String(0), args.Error(1)
}
