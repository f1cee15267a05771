package embedding

import (
	"fmt"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"go.uber.org/zap"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an embedding client based on the provider name.
// Remote providers are wrapped in a circuit breaker so a failing API degrades
// search to its substring fallback instead of stalling every request.
func NewClient(provider, apiKey string, dimensions int, logger *zap.Logger) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewBreaker(NewOpenAIClient(apiKey, dimensions), "openai-embeddings", logger), nil

	case ProviderMock:
		return NewMockClient(dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", provider)
	}
}
