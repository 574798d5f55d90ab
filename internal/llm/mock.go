package llm

import (
	"context"
	"crypto/sha256"
	"math"
)

// MockClient is a deterministic collaborator for tests. Embeddings are
// derived from the text hash so the same text always gets the same vector;
// completions and failures are scripted through the public fields.
type MockClient struct {
	Dims             int
	CompleteResponse string
	CompleteErr      error
	EmbedErr         error
}

// NewMockClient returns a mock with the given embedding dimension.
func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = 8
	}
	return &MockClient{Dims: dims}
}

// Embed returns a deterministic unit-length vector derived from the text hash,
// or EmbedErr when set.
func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.EmbedErr != nil {
		return nil, c.EmbedErr
	}
	hash := sha256.Sum256([]byte(text))
	emb := make([]float32, c.Dims)
	for i := 0; i < c.Dims; i++ {
		emb[i] = (float32(hash[i%len(hash)]) / 127.5) - 1.0
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := float32(1.0 / math.Sqrt(sum))
		for i := range emb {
			emb[i] *= norm
		}
	}
	return emb, nil
}

// Complete returns CompleteResponse, or CompleteErr when set.
func (c *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.CompleteErr != nil {
		return "", c.CompleteErr
	}
	return c.CompleteResponse, nil
}
