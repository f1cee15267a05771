package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const model = openai.SmallEmbedding3

type OpenAIClient struct {
	client     *openai.Client
	dimensions int
}

// NewOpenAIClient returns a client for text-embedding-3-small. A positive
// dimensions value asks the API to shorten the returned vectors.
func NewOpenAIClient(apiKey string, dimensions int) *OpenAIClient {
	return &OpenAIClient{
		client:     openai.NewClient(apiKey),
		dimensions: dimensions,
	}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: model,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}
	return resp.Data[0].Embedding, nil
}
