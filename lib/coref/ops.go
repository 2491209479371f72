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
	"sort"
)

// logMaskOff is the additive mask for padded positions in log space.
var logMaskOff = float32(math.Inf(-1))

// enumerateSpans lists every candidate span of width 1..maxWidth that stays
// inside a single sentence, ordered by start then end.
func enumerateSpans(sentenceLens []int, maxWidth int) []Span {
	var spans []Span
	offset := 0
	for _, n := range sentenceLens {
		for start := 0; start < n; start++ {
			maxEnd := start + maxWidth
			if maxEnd > n {
				maxEnd = n
			}
			for end := start; end < maxEnd; end++ {
				spans = append(spans, Span{Start: offset + start, End: offset + end})
			}
		}
		offset += n
	}
	return spans
}

// distanceBucket folds a non-negative distance into one of 10 buckets:
// identity for 1..4, then [5,8), [8,16), [16,32), [32,64), and 64+.
func distanceBucket(d int) int {
	switch {
	case d <= 0:
		return 0
	case d < 5:
		return d
	case d < 8:
		return 5
	case d < 16:
		return 6
	case d < 32:
		return 7
	case d < 64:
		return 8
	default:
		return 9
	}
}

// topKMentions picks the k highest-scoring candidate spans and returns their
// indices restored to document order.
func topKMentions(scores []float32, k int) []int {
	if k > len(scores) {
		k = len(scores)
	}
	if k <= 0 {
		return nil
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	selected := order[:k]
	sort.Ints(selected)
	return selected
}

// antecedentCandidates pairs each of m mentions with its nearest preceding
// mentions, nearest first, up to maxAntecedents per mention. It returns the
// antecedent index matrix [m][a] (clamped to 0 where no antecedent exists),
// the valid-antecedent count per mention, and the additive log mask [m][a]
// (0 for valid pairs, -Inf for padding).
func antecedentCandidates(m, maxAntecedents int) (antecedents [][]int32, lens []int, logMask [][]float32) {
	a := maxAntecedents
	if m < a {
		a = m
	}
	antecedents = make([][]int32, m)
	lens = make([]int, m)
	logMask = make([][]float32, m)
	for i := 0; i < m; i++ {
		antecedents[i] = make([]int32, a)
		logMask[i] = make([]float32, a)
		n := i
		if n > a {
			n = a
		}
		lens[i] = n
		for j := 0; j < a; j++ {
			prev := i - (j + 1)
			if prev < 0 {
				prev = 0
			}
			antecedents[i][j] = int32(prev)
			if j >= n {
				logMask[i][j] = logMaskOff
			}
		}
	}
	return antecedents, lens, logMask
}

// mentionClusterIDs maps each span to the id of the gold cluster containing
// it. Cluster c carries id c+1; spans outside any cluster carry 0.
func mentionClusterIDs(spans []Span, gold [][]Span) []int {
	byGold := make(map[Span]int, len(gold))
	for c, cluster := range gold {
		for _, s := range cluster {
			byGold[s] = c + 1
		}
	}
	ids := make([]int, len(spans))
	for i, s := range spans {
		ids[i] = byGold[s]
	}
	return ids
}

// goldLabels builds the [m][a+1] gold indicator matrix for the marginalized
// antecedent loss. Column 0 marks mentions whose true antecedent set is
// empty; column j+1 marks antecedent j sharing a gold cluster with the
// mention.
func goldLabels(clusterIDs []int, antecedents [][]int32, lens []int) [][]float32 {
	m := len(clusterIDs)
	labels := make([][]float32, m)
	for i := 0; i < m; i++ {
		a := len(antecedents[i])
		labels[i] = make([]float32, a+1)
		any := false
		if clusterIDs[i] > 0 {
			for j := 0; j < lens[i]; j++ {
				if clusterIDs[antecedents[i][j]] == clusterIDs[i] {
					labels[i][j+1] = 1
					any = true
				}
			}
		}
		if !any {
			labels[i][0] = 1
		}
	}
	return labels
}

// pairFeatures derives per-pair inputs for the antecedent scorer: whether
// mention and antecedent share a speaker, and the bucketed mention-index
// distance.
func pairFeatures(spans []Span, speakerIDs []int, antecedents [][]int32) (sameSpeaker [][]int32, distBins [][]int32) {
	m := len(spans)
	sameSpeaker = make([][]int32, m)
	distBins = make([][]int32, m)
	for i := 0; i < m; i++ {
		a := len(antecedents[i])
		sameSpeaker[i] = make([]int32, a)
		distBins[i] = make([]int32, a)
		for j := 0; j < a; j++ {
			ant := int(antecedents[i][j])
			if speakerIDs[spans[i].Start] == speakerIDs[spans[ant].Start] {
				sameSpeaker[i][j] = 1
			}
			distBins[i][j] = int32(distanceBucket(i - ant))
		}
	}
	return sameSpeaker, distBins
}
