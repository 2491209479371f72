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

package coref

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaphorlab/anaphor/lib/embeddings"
)

func embedForTest(t *testing.T, doc *Document, dim int) [][][]float32 {
	t.Helper()
	emb, err := embeddings.NewMockEmbedder(dim).EmbedTokens(context.Background(), doc.Sentences)
	require.NoError(t, err)
	return emb
}

func TestNewTensorized(t *testing.T) {
	doc := validDocument()
	vocab := CharVocabFromDocuments([]Document{doc})
	emb := embedForTest(t, &doc, 6)

	tz, err := newTensorized(&doc, emb, vocab, 3, []int{2, 3}, 1)
	require.NoError(t, err)

	assert.Equal(t, 8, tz.numWords)
	assert.Equal(t, 2, tz.numSentences)
	assert.Equal(t, 4, tz.maxSentLen)
	assert.Equal(t, 6, tz.embDim)
	assert.Equal(t, int32(1), tz.genreID)

	// "called" has 6 characters, wider than the widest filter.
	assert.Equal(t, 6, tz.charWidth)

	// Candidate spans: per 4-token sentence, widths 1..3 give 4+3+2 = 9.
	assert.Len(t, tz.spans, 18)
	assert.Len(t, tz.starts, 18)
	assert.Len(t, tz.spanIdx, 18*3)

	// The flat index of the first token of sentence 2 lands past the
	// padded first sentence row.
	assert.Equal(t, int32(4), tz.flatIdx[4])

	// Span token positions past the span end are masked.
	first := tz.spans[0]
	require.Equal(t, Span{0, 0}, first)
	assert.Equal(t, float32(0), tz.spanMask[0])
	assert.True(t, math.IsInf(float64(tz.spanMask[1]), -1))
	assert.Equal(t, int32(0), tz.spanIdx[1], "padding positions clamp to the span end")
}

func TestNewTensorizedShapeMismatch(t *testing.T) {
	doc := validDocument()
	vocab := CharVocabFromDocuments([]Document{doc})
	emb := embedForTest(t, &doc, 4)

	_, err := newTensorized(&doc, emb[:1], vocab, 3, []int{3}, 0)
	assert.Error(t, err)
}

func TestTruncateDocumentNoop(t *testing.T) {
	doc := validDocument()
	out, first := truncateDocument(&doc, 10, WindowHead, rand.New(rand.NewSource(1)))
	assert.Same(t, &doc, out)
	assert.Equal(t, 0, first)
}

func fiveSentenceDoc() Document {
	doc := Document{Key: "nw/long"}
	for i := 0; i < 5; i++ {
		doc.Sentences = append(doc.Sentences, []string{"a", "b"})
		doc.Speakers = append(doc.Speakers, []string{"s", "s"})
	}
	// One cluster inside sentences 0-1, one spanning into sentence 4.
	doc.Clusters = [][]Span{
		{{0, 0}, {2, 2}},
		{{1, 1}, {8, 9}},
	}
	return doc
}

func TestTruncateDocumentHead(t *testing.T) {
	doc := fiveSentenceDoc()
	out, first := truncateDocument(&doc, 2, WindowHead, rand.New(rand.NewSource(1)))
	require.NoError(t, out.Validate())

	assert.Equal(t, 0, first)
	assert.Len(t, out.Sentences, 2)
	// The first cluster survives intact; the second loses its out-of-window
	// span and keeps only token 1.
	require.Len(t, out.Clusters, 2)
	assert.Equal(t, []Span{{0, 0}, {2, 2}}, out.Clusters[0])
	assert.Equal(t, []Span{{1, 1}}, out.Clusters[1])
}

func TestTruncateDocumentTail(t *testing.T) {
	doc := fiveSentenceDoc()
	out, first := truncateDocument(&doc, 2, WindowTail, rand.New(rand.NewSource(1)))
	require.NoError(t, out.Validate())

	assert.Equal(t, 3, first)
	// Only the span at tokens 8-9 falls inside the window; its cluster
	// shrinks to one span, offset to the window start.
	require.Len(t, out.Clusters, 1)
	assert.Equal(t, []Span{{2, 3}}, out.Clusters[0])
}

func TestTruncateDocumentRandomStaysInRange(t *testing.T) {
	doc := fiveSentenceDoc()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		out, first := truncateDocument(&doc, 3, WindowRandom, rng)
		require.NoError(t, out.Validate())
		assert.Len(t, out.Sentences, 3)
		assert.GreaterOrEqual(t, first, 0)
		assert.LessOrEqual(t, first, 2)
	}
}
