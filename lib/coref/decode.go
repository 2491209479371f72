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

// predictedAntecedents picks, for each mention, the best-scoring antecedent
// from the flattened [m][a+1] score matrix, where column 0 is the fixed "no
// antecedent" score. It returns one mention index per mention, or -1 for
// mentions that start their own chain. Every predicted antecedent strictly
// precedes its mention, so the resulting links are acyclic.
func predictedAntecedents(scores []float32, m, cols int, antecedents [][]int32) []int {
	preds := make([]int, m)
	for i := 0; i < m; i++ {
		row := scores[i*cols : (i+1)*cols]
		best := 0
		for j := 1; j < cols; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		if best == 0 {
			preds[i] = -1
		} else {
			preds[i] = int(antecedents[i][best-1])
		}
	}
	return preds
}

// buildClusters chains mentions to their predicted antecedents greedily, in
// mention order, and returns the resulting coreference structure. Chains of
// length one are not reported as clusters.
func buildClusters(mentions []Span, preds []int) *Resolution {
	res := &Resolution{MentionToCluster: make(map[Span]int)}
	for i, p := range preds {
		if p < 0 {
			continue
		}
		antecedent := mentions[p]
		cluster, ok := res.MentionToCluster[antecedent]
		if !ok {
			cluster = len(res.Clusters)
			res.Clusters = append(res.Clusters, []Span{antecedent})
			res.MentionToCluster[antecedent] = cluster
		}
		res.Clusters[cluster] = append(res.Clusters[cluster], mentions[i])
		res.MentionToCluster[mentions[i]] = cluster
	}
	return res
}
