// Package llm provides the language-model collaborator clients: text
// embeddings and plain-text completions. Output content carries no structural
// guarantees; callers treat it as untrusted text.
package llm

import "context"

// CompletionRequest is one prompt to the completion collaborator.
// System may be empty. MaxTokens caps the completion when positive.
type CompletionRequest struct {
	System    string
	User      string
	MaxTokens int
}

// Client is the language-model collaborator boundary. Embed returns a
// fixed-dimension vector or an error, never a partial vector. Complete
// returns plain text with no structural contract on its content.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
