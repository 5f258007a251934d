package provider

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// StubClient is a deterministic offline backend for tests and local
// development. The response depends only on the prompt, so repeated calls
// are stable.
type StubClient struct {
	ID string
}

func NewStubClient(id string) *StubClient {
	return &StubClient{ID: id}
}

func (c *StubClient) Call(_ context.Context, _, _, userPrompt string, _ float64, _ int) (string, error) {
	sum := sha256.Sum256([]byte(userPrompt))
	return fmt.Sprintf("stub response from %s (%x)", c.ID, sum[:4]), nil
}
