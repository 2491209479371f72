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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictedAntecedents(t *testing.T) {
	antecedents, _, _ := antecedentCandidates(3, 2)
	// Rows are [dummy, nearest, second-nearest].
	scores := []float32{
		0, -1, -1, // mention 0: dummy wins
		-1, 2, -1, // mention 1: links to mention 0
		1, 0, 3, // mention 2: links to its second-nearest, mention 0
	}
	preds := predictedAntecedents(scores, 3, 3, antecedents)
	assert.Equal(t, []int{-1, 0, 0}, preds)
}

func TestPredictedAntecedentsPrecedeMentions(t *testing.T) {
	antecedents, _, _ := antecedentCandidates(4, 3)
	scores := make([]float32, 4*4)
	for i := range scores {
		scores[i] = float32(i % 4) // always prefer the last column
	}
	preds := predictedAntecedents(scores, 4, 4, antecedents)
	for i, p := range preds {
		if p >= 0 {
			assert.Less(t, p, i, "antecedent of mention %d must precede it", i)
		}
	}
}

func TestBuildClusters(t *testing.T) {
	mentions := []Span{{0, 0}, {3, 3}, {5, 6}, {8, 8}}
	// 1 -> 0, 2 -> 1 (same chain), 3 on its own.
	preds := []int{-1, 0, 1, -1}

	res := buildClusters(mentions, preds)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []Span{{0, 0}, {3, 3}, {5, 6}}, res.Clusters[0])

	assert.Equal(t, 0, res.MentionToCluster[Span{0, 0}])
	assert.Equal(t, 0, res.MentionToCluster[Span{5, 6}])
	_, ok := res.MentionToCluster[Span{8, 8}]
	assert.False(t, ok, "singleton mentions do not form clusters")
}

func TestBuildClustersTwoChains(t *testing.T) {
	mentions := []Span{{0, 0}, {2, 2}, {4, 4}, {6, 6}}
	preds := []int{-1, 0, -1, 2}

	res := buildClusters(mentions, preds)
	require.Len(t, res.Clusters, 2)
	assert.Equal(t, []Span{{0, 0}, {2, 2}}, res.Clusters[0])
	assert.Equal(t, []Span{{4, 4}, {6, 6}}, res.Clusters[1])
}

func TestBuildClustersEmpty(t *testing.T) {
	res := buildClusters(nil, nil)
	assert.Empty(t, res.Clusters)
	assert.Empty(t, res.MentionToCluster)
}
