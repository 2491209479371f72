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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateSpans(t *testing.T) {
	// Two sentences of 3 and 2 tokens, spans up to width 2.
	spans := enumerateSpans([]int{3, 2}, 2)
	want := []Span{
		{0, 0}, {0, 1},
		{1, 1}, {1, 2},
		{2, 2},
		{3, 3}, {3, 4},
		{4, 4},
	}
	assert.Equal(t, want, spans)
}

func TestEnumerateSpansStayWithinSentences(t *testing.T) {
	spans := enumerateSpans([]int{2, 2}, 10)
	for _, s := range spans {
		// No span may straddle the sentence boundary at token 2.
		assert.False(t, s.Start < 2 && s.End >= 2, "span %v crosses sentence boundary", s)
	}
}

func TestDistanceBucket(t *testing.T) {
	cases := map[int]int{
		0: 0, 1: 1, 2: 2, 3: 3, 4: 4,
		5: 5, 7: 5,
		8: 6, 15: 6,
		16: 7, 31: 7,
		32: 8, 63: 8,
		64: 9, 1000: 9,
	}
	for d, want := range cases {
		assert.Equal(t, want, distanceBucket(d), "distance %d", d)
	}
}

func TestTopKMentions(t *testing.T) {
	scores := []float32{0.1, 0.9, 0.3, 0.8, 0.2}
	// Top 3 by score are indices 1, 3, 2; returned in document order.
	assert.Equal(t, []int{1, 2, 3}, topKMentions(scores, 3))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, topKMentions(scores, 10))
	assert.Nil(t, topKMentions(scores, 0))
}

func TestAntecedentCandidates(t *testing.T) {
	antecedents, lens, mask := antecedentCandidates(4, 2)
	require.Len(t, antecedents, 4)

	// Mention 0 has no antecedents.
	assert.Equal(t, 0, lens[0])
	assert.True(t, math.IsInf(float64(mask[0][0]), -1))

	// Mention 2 sees mentions 1 and 0, nearest first.
	assert.Equal(t, []int32{1, 0}, antecedents[2])
	assert.Equal(t, 2, lens[2])
	assert.Equal(t, float32(0), mask[2][0])
	assert.Equal(t, float32(0), mask[2][1])

	// Mention 1 sees only mention 0; the second slot is masked.
	assert.Equal(t, 1, lens[1])
	assert.True(t, math.IsInf(float64(mask[1][1]), -1))
}

func TestAntecedentCandidatesClampedWidth(t *testing.T) {
	antecedents, _, _ := antecedentCandidates(3, 250)
	// The candidate width never exceeds the mention count.
	assert.Len(t, antecedents[0], 3)
}

func TestMentionClusterIDs(t *testing.T) {
	spans := []Span{{0, 0}, {1, 2}, {4, 4}}
	gold := [][]Span{
		{{0, 0}, {4, 4}},
		{{1, 2}},
	}
	ids := mentionClusterIDs(spans, gold)
	// Cluster ids start at 1; 0 marks spans outside any gold cluster.
	assert.Equal(t, []int{1, 2, 1}, ids)

	assert.Equal(t, []int{0, 0, 0}, mentionClusterIDs(spans, nil))
}

func TestGoldLabels(t *testing.T) {
	clusterIDs := []int{1, 0, 1}
	antecedents, lens, _ := antecedentCandidates(3, 2)
	labels := goldLabels(clusterIDs, antecedents, lens)

	// Mention 0 has no antecedents: dummy column set.
	assert.Equal(t, []float32{1, 0, 0}, labels[0])
	// Mention 1 is not in a cluster: dummy column set.
	assert.Equal(t, []float32{1, 0, 0}, labels[1])
	// Mention 2 corefers with mention 0, which is its second-nearest
	// antecedent.
	assert.Equal(t, []float32{0, 0, 1}, labels[2])
}

func TestPairFeatures(t *testing.T) {
	spans := []Span{{0, 0}, {2, 2}, {5, 6}}
	speakers := []int{0, 0, 1, 1, 1, 0, 0}
	antecedents, _, _ := antecedentCandidates(3, 2)

	sameSpeaker, distBins := pairFeatures(spans, speakers, antecedents)
	// Mention 1 (token 2, speaker 1) vs mention 0 (token 0, speaker 0).
	assert.Equal(t, int32(0), sameSpeaker[1][0])
	// Mention 2 (token 5, speaker 0) vs mention 1 (speaker 1) and mention 0
	// (speaker 0).
	assert.Equal(t, []int32{0, 1}, sameSpeaker[2])

	// Distances are in mention index space.
	assert.Equal(t, []int32{1, 2}, distBins[2])
}
