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

// Package textproc holds the small text-preprocessing components used by the
// coreference and ranking pipelines.
package textproc

import "strings"

// JoinChars transforms a batch of character sequences into a batch of strings,
// concatenating the characters of each sample without separators.
func JoinChars(batch [][]string) []string {
	out := make([]string, len(batch))
	for i, sample := range batch {
		out[i] = strings.Join(sample, "")
	}
	return out
}

// Flatten collapses a list of sentences into a single token sequence,
// preserving order.
func Flatten(sentences [][]string) []string {
	total := 0
	for _, s := range sentences {
		total += len(s)
	}
	flat := make([]string, 0, total)
	for _, s := range sentences {
		flat = append(flat, s...)
	}
	return flat
}

// LowercaseSentences returns a deep copy of sentences with every token
// lowercased. The input is never mutated.
func LowercaseSentences(sentences [][]string) [][]string {
	out := make([][]string, len(sentences))
	for i, s := range sentences {
		out[i] = make([]string, len(s))
		for j, w := range s {
			out[i][j] = strings.ToLower(w)
		}
	}
	return out
}

// SentenceOffsets returns the flat-token offset of the first token of each
// sentence, plus the total token count as the final element.
func SentenceOffsets(sentenceLengths []int) []int {
	offsets := make([]int, len(sentenceLengths)+1)
	for i, n := range sentenceLengths {
		offsets[i+1] = offsets[i] + n
	}
	return offsets
}
