package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-answer-engine-be/pkg/llm"
)

// HuggingFaceProvider speaks the OpenAI-compatible chat completions API
// exposed by the Hugging Face inference router.
type HuggingFaceProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.LLMProvider = &HuggingFaceProvider{}

func NewHuggingFaceProvider(apiKey, baseURL, model string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/v1" // Default Router URL
	}
	return &HuggingFaceProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// --- OpenAI-compatible wire format ---

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

func (p *HuggingFaceProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	// Router answers are hard-capped server side; 1024 leaves room for a
	// full cited answer without letting a runaway prompt bill forever.
	opts := llm.Resolve(llm.Options{Model: p.model, MaxTokens: 1024}, options...)

	payload := completionRequest{
		Model:     opts.Model,
		Messages:  toWireMessages(history),
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		payload.Temperature = &opts.Temperature
	}

	body, err := p.post(ctx, payload)
	if err != nil {
		return "", err
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("huggingface api returned error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices from huggingface api")
	}

	return parsed.Choices[0].Message.Content, nil
}

func (p *HuggingFaceProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

func toWireMessages(history []llm.Message) []wireMessage {
	out := make([]wireMessage, len(history))
	for i, m := range history {
		out[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (p *HuggingFaceProvider) post(ctx context.Context, payload completionRequest) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The router wraps most failures in the OpenAI error envelope;
		// surface that message instead of the raw body when present.
		var parsed completionResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			return nil, fmt.Errorf("huggingface api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("huggingface api error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
