package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// text-embedding-004 emits 768 dimensions, matching the history store's
// vector column.
const geminiEmbedModel = "text-embedding-004"

type GeminiProvider struct {
	ApiKey string
	Client *http.Client
}

func NewGeminiProvider(apiKey string) EmbeddingProvider {
	return &GeminiProvider{
		ApiKey: apiKey,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

type geminiEmbedRequestPart struct {
	Text string `json:"text"`
}

type geminiEmbedRequestContent struct {
	Parts []geminiEmbedRequestPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model    string                    `json:"model"`
	Content  geminiEmbedRequestContent `json:"content"`
	TaskType string                    `json:"task_type,omitempty"`
}

// Generate embeds a single text. Gemini honors the task type hint, which
// shifts the embedding space slightly between query and document use.
func (p *GeminiProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	payload := geminiEmbedRequest{
		Model:    geminiEmbedModel,
		Content:  geminiEmbedRequestContent{Parts: []geminiEmbedRequestPart{{Text: text}}},
		TaskType: taskType,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1/models/%s:embedContent",
		geminiEmbedModel,
	)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(raw))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini embed: status %d, body %s", res.StatusCode, string(body))
	}

	var parsed EmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("gemini embed: decode response: %w", err)
	}

	// Gemini can answer 200 with an empty embedding when content filtering
	// swallows the input. Treat that as a failure, not a zero vector.
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding in response")
	}

	return &parsed, nil
}
