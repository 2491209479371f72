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
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// CharVocab maps characters to embedding indices. Index 0 is reserved for
// padding and unknown characters.
type CharVocab struct {
	index map[rune]int
}

// NewCharVocab builds a vocabulary from an explicit character set.
func NewCharVocab(chars []rune) *CharVocab {
	v := &CharVocab{index: make(map[rune]int, len(chars))}
	for _, r := range chars {
		if _, ok := v.index[r]; !ok {
			v.index[r] = len(v.index) + 1
		}
	}
	return v
}

// LoadCharVocab reads a character vocabulary file: one character per line.
// Blank lines are skipped.
func LoadCharVocab(path string) (*CharVocab, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening char vocab: %w", err)
	}
	defer func() { _ = file.Close() }()

	v := &CharVocab{index: make(map[rune]int)}
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\n\r")
		if line == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(line)
		if r == utf8.RuneError || size != len(line) {
			return nil, fmt.Errorf("char vocab line %d: expected a single character, got %q", lineNo, line)
		}
		if _, ok := v.index[r]; !ok {
			v.index[r] = len(v.index) + 1
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading char vocab: %w", err)
	}
	if len(v.index) == 0 {
		return nil, fmt.Errorf("char vocab %s is empty", path)
	}
	return v, nil
}

// CharVocabFromDocuments collects the character set of a document corpus,
// in order of first appearance. Useful for tests and small corpora.
func CharVocabFromDocuments(docs []Document) *CharVocab {
	v := &CharVocab{index: make(map[rune]int)}
	for _, doc := range docs {
		for _, sentence := range doc.Sentences {
			for _, token := range sentence {
				for _, r := range token {
					if _, ok := v.index[r]; !ok {
						v.index[r] = len(v.index) + 1
					}
				}
			}
		}
	}
	return v
}

// Size returns the number of embedding rows, including the reserved index 0.
func (v *CharVocab) Size() int {
	return len(v.index) + 1
}

// Lookup returns the embedding index for r, or 0 when unknown.
func (v *CharVocab) Lookup(r rune) int {
	return v.index[r]
}

// Indices maps token characters to embedding indices, right-padded with
// zeros to width.
func (v *CharVocab) Indices(token string, width int) []int32 {
	out := make([]int32, width)
	i := 0
	for _, r := range token {
		if i >= width {
			break
		}
		out[i] = int32(v.index[r])
		i++
	}
	return out
}
