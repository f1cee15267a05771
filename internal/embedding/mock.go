package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/Harshitk-cp/protomind/internal/vector"
)

const defaultMockDimensions = 64

// MockClient is a deterministic embedder for tests and offline runs. Each
// lower-cased word is hashed into a signed bucket, so texts sharing words
// point in similar directions.
type MockClient struct {
	dimensions int

	mu    sync.Mutex
	calls []string
}

func NewMockClient(dimensions int) *MockClient {
	if dimensions <= 0 {
		dimensions = defaultMockDimensions
	}
	return &MockClient{dimensions: dimensions}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, text)
	c.mu.Unlock()

	v := make([]float32, c.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(c.dimensions))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return vector.Normalize(v), nil
}

// Recorded returns every text embedded so far, in call order.
func (c *MockClient) Recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
