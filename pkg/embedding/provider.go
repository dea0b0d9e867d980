package embedding

import "context"

// Task types understood by the providers. Gemini honors them; Ollama and
// Jina accept and ignore them.
const (
	TaskRetrievalQuery     = "RETRIEVAL_QUERY"
	TaskRetrievalDocument  = "RETRIEVAL_DOCUMENT"
	TaskSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// EmbeddingProvider defines the interface for generating text embeddings
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error)
}

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}
