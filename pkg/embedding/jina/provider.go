// Package jina adapts the Jina AI embeddings API to the shared provider
// contract. The v2-base-en model emits 768 dimensions, interchangeable
// with the Gemini embedder for storage and similarity purposes.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-answer-engine-be/pkg/embedding"
)

type JinaProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewJinaProvider(apiKey string) *JinaProvider {
	return &JinaProvider{
		apiKey:  apiKey,
		baseURL: "https://api.jina.ai/v1/embeddings",
		model:   "jina-embeddings-v2-base-en",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type jinaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type jinaResponse struct {
	Data []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate embeds a single text. The task type hint is accepted for
// interface compatibility; the v2 models have no equivalent knob.
func (p *JinaProvider) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	raw, err := json.Marshal(jinaRequest{
		Model: p.model,
		Input: []string{text}, // batch API, single-element batch
	})
	if err != nil {
		return nil, fmt.Errorf("jina embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL, bytes.NewBuffer(raw))
	if err != nil {
		return nil, fmt.Errorf("jina embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jina embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jina embed: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jina embed: status %d, body %s", resp.StatusCode, string(body))
	}

	var parsed jinaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jina embed: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("jina embed: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("jina embed: empty embedding in response")
	}

	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{
			Values: parsed.Data[0].Embedding,
		},
	}, nil
}
