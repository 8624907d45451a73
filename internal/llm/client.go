package llm

import (
	"context"
)

// LLMClient generates free-text completions. The consolidation engine uses
// it only for the optional contradiction review pass.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedderClient turns text into a vector for semantic similarity. The
// embedding model itself is an external capability; callers must treat a
// failed call as "similarity unavailable", never as zero similarity.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
