package domain

import "context"

// Embedding is the vector of a profile section description.
type Embedding []float32

// Dim returns the number of components of e.
func (e Embedding) Dim() int { return len(e) }

// EmbeddingClient turns section descriptions into vectors. The result has one
// embedding per input text, in input order.
type EmbeddingClient interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([]Embedding, error)
}
