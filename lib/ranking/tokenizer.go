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

package ranking

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer is a WordPiece tokenizer driven by a plain vocab.txt file. Older
// BERT model repositories ship only vocab.txt, without tokenizer.json, so
// the tokenizer is implemented directly instead of going through a
// tokenizer-config loader.
type Tokenizer struct {
	vocab     map[string]int
	lowercase bool
	maxLen    int

	clsID int
	sepID int
	padID int
	unkID int
}

// TokenizerConfig holds configuration for loading a WordPiece vocabulary.
type TokenizerConfig struct {
	// VocabPath is the vocab.txt file, one token per line, line number =
	// token id.
	VocabPath string

	// MaxLen caps the encoded sequence length including the [CLS] and [SEP]
	// markers (0 = 128).
	MaxLen int

	// Lowercase folds input to lower case before lookup, for uncased models.
	Lowercase bool
}

// NewTokenizer loads the vocabulary and checks the special tokens exist.
func NewTokenizer(cfg TokenizerConfig) (*Tokenizer, error) {
	file, err := os.Open(cfg.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("opening vocab: %w", err)
	}
	defer func() { _ = file.Close() }()

	t := &Tokenizer{
		vocab:     make(map[string]int),
		lowercase: cfg.Lowercase,
		maxLen:    cfg.MaxLen,
	}
	if t.maxLen <= 0 {
		t.maxLen = 128
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\n\r")
		if _, ok := t.vocab[token]; !ok {
			t.vocab[token] = len(t.vocab)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocab: %w", err)
	}

	for _, special := range []struct {
		name string
		id   *int
	}{
		{"[CLS]", &t.clsID},
		{"[SEP]", &t.sepID},
		{"[PAD]", &t.padID},
		{"[UNK]", &t.unkID},
	} {
		id, ok := t.vocab[special.name]
		if !ok {
			return nil, fmt.Errorf("vocab %s is missing the %s token", cfg.VocabPath, special.name)
		}
		*special.id = id
	}
	return t, nil
}

// MaxLen returns the configured sequence cap.
func (t *Tokenizer) MaxLen() int {
	return t.maxLen
}

// PadID returns the padding token id.
func (t *Tokenizer) PadID() int {
	return t.padID
}

// Encode converts text to token ids wrapped in [CLS]/[SEP], truncated to the
// configured maximum length. No padding is applied here; batching pads.
func (t *Tokenizer) Encode(text string) []int {
	if t.lowercase {
		text = strings.ToLower(text)
	}
	words := basicTokenize(text)

	ids := make([]int, 0, t.maxLen)
	ids = append(ids, t.clsID)
	for _, word := range words {
		for _, sub := range t.wordPiece(word) {
			if len(ids) == t.maxLen-1 {
				break
			}
			if id, ok := t.vocab[sub]; ok {
				ids = append(ids, id)
			} else {
				ids = append(ids, t.unkID)
			}
		}
	}
	ids = append(ids, t.sepID)
	return ids
}

// basicTokenize splits on whitespace and breaks out punctuation runes.
func basicTokenize(text string) []string {
	var words []string
	var current strings.Builder
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		case unicode.IsPunct(r):
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// wordPiece greedily matches the longest vocabulary prefix, marking
// continuations with "##". Words with no decomposition collapse to [UNK].
func (t *Tokenizer) wordPiece(word string) []string {
	if word == "" {
		return nil
	}
	runes := []rune(word)
	var tokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				found = sub
				break
			}
			end--
		}
		if found == "" {
			return []string{"[UNK]"}
		}
		tokens = append(tokens, found)
		start = end
	}
	return tokens
}

// encodeBatch encodes every text and pads the batch to a common length.
// Returns flat input ids and attention mask, both [len(texts) * seqLen].
func (t *Tokenizer) encodeBatch(texts []string) (inputIDs, attentionMask []int64, seqLen int) {
	encoded := make([][]int, len(texts))
	for i, text := range texts {
		encoded[i] = t.Encode(text)
		if len(encoded[i]) > seqLen {
			seqLen = len(encoded[i])
		}
	}
	inputIDs = make([]int64, len(texts)*seqLen)
	attentionMask = make([]int64, len(texts)*seqLen)
	for i, ids := range encoded {
		for j := 0; j < seqLen; j++ {
			if j < len(ids) {
				inputIDs[i*seqLen+j] = int64(ids[j])
				attentionMask[i*seqLen+j] = 1
			} else {
				inputIDs[i*seqLen+j] = int64(t.padID)
			}
		}
	}
	return inputIDs, attentionMask, seqLen
}
