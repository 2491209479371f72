// Copyright 2026 Anaphor Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embeddings

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Ensure MockEmbedder implements the Embedder interface
var _ Embedder = (*MockEmbedder)(nil)

// MockEmbedder produces deterministic pseudo-embeddings from token hashes.
// Identical tokens always map to the same vector, which is what coreference
// tests need: repeated mentions of a word stay close in embedding space.
type MockEmbedder struct {
	dim int
}

// NewMockEmbedder creates a deterministic embedder of the given width.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

// Dim returns the embedding width.
func (e *MockEmbedder) Dim() int {
	return e.dim
}

// EmbedTokens returns a unit vector per token derived from its hash.
func (e *MockEmbedder) EmbedTokens(ctx context.Context, sentences [][]string) ([][][]float32, error) {
	out := make([][][]float32, len(sentences))
	for i, sentence := range sentences {
		out[i] = make([][]float32, len(sentence))
		for j, token := range sentence {
			out[i][j] = e.vectorFor(token)
		}
	}
	return out, nil
}

// EmbedDoc is not supported by the mock embedder.
func (e *MockEmbedder) EmbedDoc(ctx context.Context, docKey string) ([][][]float32, error) {
	return nil, ErrUnsupportedDocKey
}

func (e *MockEmbedder) vectorFor(token string) []float32 {
	vec := make([]float32, e.dim)
	seed := xxhash.Sum64String(token)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map the top bits onto [-1, 1).
		v := float64(int64(seed>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
