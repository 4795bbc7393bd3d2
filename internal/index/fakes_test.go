package index

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// bagEmbedder 以固定词表的词频作为向量，便于构造可预期的相似度。
type bagEmbedder struct {
	vocab []string

	mu      sync.Mutex
	err     error
	entered chan struct{}
	release chan struct{}
	batches int
}

func newBagEmbedder(vocab ...string) *bagEmbedder {
	return &bagEmbedder{vocab: vocab}
}

func (b *bagEmbedder) vector(text string) []float32 {
	v := make([]float32, len(b.vocab))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		for i, x := range b.vocab {
			if w == x {
				v[i]++
			}
		}
	}
	return v
}

func (b *bagEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	return b.vector(text), nil
}

func (b *bagEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.batches++
	err, entered, release := b.err, b.entered, b.release
	b.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vector(t)
	}
	return out, nil
}

var errEmbed = errors.New("embedding backend down")
