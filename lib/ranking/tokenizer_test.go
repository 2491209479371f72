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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestVocab(t *testing.T, tokens []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(tokens, "\n")+"\n"), 0o644))
	return path
}

func testVocab() []string {
	return []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"hello", "world", "un", "##believ", "##able", "!",
	}
}

func TestTokenizerEncode(t *testing.T) {
	tok, err := NewTokenizer(TokenizerConfig{VocabPath: writeTestVocab(t, testVocab())})
	require.NoError(t, err)

	// [CLS] hello world ! [SEP]
	assert.Equal(t, []int{2, 4, 5, 9, 3}, tok.Encode("hello world!"))
}

func TestTokenizerWordPiece(t *testing.T) {
	tok, err := NewTokenizer(TokenizerConfig{VocabPath: writeTestVocab(t, testVocab())})
	require.NoError(t, err)

	// "unbelievable" decomposes into un + ##believ + ##able.
	assert.Equal(t, []int{2, 6, 7, 8, 3}, tok.Encode("unbelievable"))

	// No decomposition: the whole word collapses to [UNK].
	assert.Equal(t, []int{2, 1, 3}, tok.Encode("xyzzy"))
}

func TestTokenizerLowercase(t *testing.T) {
	tok, err := NewTokenizer(TokenizerConfig{
		VocabPath: writeTestVocab(t, testVocab()),
		Lowercase: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 3}, tok.Encode("Hello"))
}

func TestTokenizerTruncates(t *testing.T) {
	tok, err := NewTokenizer(TokenizerConfig{
		VocabPath: writeTestVocab(t, testVocab()),
		MaxLen:    4,
	})
	require.NoError(t, err)

	ids := tok.Encode("hello world hello world")
	assert.Len(t, ids, 4)
	assert.Equal(t, 2, ids[0], "starts with [CLS]")
	assert.Equal(t, 3, ids[len(ids)-1], "ends with [SEP]")
}

func TestTokenizerMissingSpecialToken(t *testing.T) {
	_, err := NewTokenizer(TokenizerConfig{
		VocabPath: writeTestVocab(t, []string{"[PAD]", "[UNK]", "[CLS]", "hello"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[SEP]")
}

func TestEncodeBatchPadding(t *testing.T) {
	tok, err := NewTokenizer(TokenizerConfig{VocabPath: writeTestVocab(t, testVocab())})
	require.NoError(t, err)

	inputIDs, mask, seqLen := tok.encodeBatch([]string{"hello world", "hello"})
	assert.Equal(t, 4, seqLen)
	require.Len(t, inputIDs, 8)
	require.Len(t, mask, 8)

	// First row is full, second row is padded by one.
	assert.Equal(t, []int64{1, 1, 1, 1}, mask[:4])
	assert.Equal(t, []int64{1, 1, 1, 0}, mask[4:])
	assert.Equal(t, int64(tok.PadID()), inputIDs[7])
}

func TestDot(t *testing.T) {
	assert.Equal(t, float32(11), dot([]float32{1, 2, 3}, []float32{3, 1, 2}))
	assert.Equal(t, float32(0), dot(nil, []float32{1}))
}
