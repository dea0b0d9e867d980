package factory

import (
	"fmt"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/llm/gemini"
	"ai-answer-engine-be/pkg/llm/huggingface"
	"ai-answer-engine-be/pkg/llm/ollama"
)

// Keys bundles the provider credentials so callers pass one struct instead
// of a positional key per provider.
type Keys struct {
	Gemini      string
	HuggingFace string
}

func NewLLMProvider(providerType, modelName, baseURL string, keys Keys) (llm.LLMProvider, error) {
	switch providerType {
	case "gemini":
		if keys.Gemini == "" {
			return nil, fmt.Errorf("gemini provider requires an api key")
		}
		return gemini.NewGeminiProvider(keys.Gemini, modelName), nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(keys.HuggingFace, "", modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
