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
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableEmbedder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.txt")
	content := "the 0.1 0.2 0.3\ncat 0.4 0.5 0.6\nsat -0.1 -0.2 -0.3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	emb, err := NewTableEmbedder(TableEmbedderConfig{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 3, emb.Dim())

	out, err := emb.EmbedTokens(context.Background(), [][]string{{"the", "cat", "unknown"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 3)
	assert.InDelta(t, 0.1, out[0][0][0], 1e-6)
	assert.InDelta(t, 0.5, out[0][1][1], 1e-6)
	// Out-of-vocabulary tokens map to the zero vector.
	assert.Equal(t, []float32{0, 0, 0}, out[0][2])

	_, err = emb.EmbedDoc(context.Background(), "nw/wsj_0001")
	assert.ErrorIs(t, err, ErrUnsupportedDocKey)
}

func TestTableEmbedderLowercase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat 1 2\n"), 0o644))

	emb, err := NewTableEmbedder(TableEmbedderConfig{Path: path, Lowercase: true})
	require.NoError(t, err)

	out, err := emb.EmbedTokens(context.Background(), [][]string{{"Cat"}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, out[0][0])
}

func TestTableEmbedderWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat 1 2 3\nsat 1 2\n"), 0o644))

	_, err := NewTableEmbedder(TableEmbedderConfig{Path: path})
	require.Error(t, err)
}

func TestCachedEmbedder(t *testing.T) {
	dir := t.TempDir()
	doc := [][][]float32{
		{{1, 0}, {0, 1}},
		{{0.5, 0.5}},
	}
	data, err := sonic.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nw_doc1.json"), data, 0o644))

	emb, err := NewCachedEmbedder(CachedEmbedderConfig{Dir: dir, Dim: 2})
	require.NoError(t, err)
	defer emb.Close()

	out, err := emb.EmbedDoc(context.Background(), "nw_doc1")
	require.NoError(t, err)
	assert.Equal(t, doc, out)

	// Second read comes from the hot cache.
	_, err = emb.EmbedDoc(context.Background(), "nw_doc1")
	require.NoError(t, err)
	hits, misses := emb.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	_, err = emb.EmbedDoc(context.Background(), "missing_doc")
	assert.Error(t, err)

	_, err = emb.EmbedTokens(context.Background(), [][]string{{"a"}})
	assert.ErrorIs(t, err, ErrUnsupportedTokens)
}

func TestCachedEmbedderWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	data, err := sonic.Marshal([][][]float32{{{1, 2, 3}}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.json"), data, 0o644))

	emb, err := NewCachedEmbedder(CachedEmbedderConfig{Dir: dir, Dim: 2})
	require.NoError(t, err)
	defer emb.Close()

	_, err = emb.EmbedDoc(context.Background(), "doc")
	require.Error(t, err)
}

func TestMockEmbedderDeterministic(t *testing.T) {
	emb := NewMockEmbedder(8)
	out1, err := emb.EmbedTokens(context.Background(), [][]string{{"John", "said"}})
	require.NoError(t, err)
	out2, err := emb.EmbedTokens(context.Background(), [][]string{{"John"}})
	require.NoError(t, err)

	assert.Equal(t, out1[0][0], out2[0][0])
	assert.NotEqual(t, out1[0][0], out1[0][1])
	assert.Len(t, out1[0][0], 8)

	// Vectors are unit length.
	var norm float64
	for _, v := range out1[0][0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
