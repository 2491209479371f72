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

package anaphor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anaphorlab/anaphor/lib/coref"
	"github.com/anaphorlab/anaphor/lib/embeddings"
)

// testModelConfig keeps the graph tiny so handler tests stay fast on the
// pure Go engine.
func testModelConfig() coref.Config {
	return coref.Config{
		CharEmbeddingSize: 3,
		FilterSize:        4,
		FilterWidths:      []int{2, 3},
		MaxMentionWidth:   3,
		MentionRatio:      0.4,
		MaxAntecedents:    10,
		LSTMSize:          4,
		FFNNSize:          8,
		FFNNDepth:         1,
		FeatureSize:       2,
		Seed:              7,
	}
}

func testDocument() coref.Document {
	return coref.Document{
		Key: "nw/wsj_0001",
		Sentences: [][]string{
			{"John", "called", "home", "."},
			{"He", "was", "tired", "."},
		},
		Speakers: [][]string{
			{"spk1", "spk1", "spk1", "spk1"},
			{"spk1", "spk1", "spk1", "spk1"},
		},
	}
}

func newTestNode(t *testing.T) *AnaphorNode {
	t.Helper()
	logger := zaptest.NewLogger(t)

	vocab := coref.CharVocabFromDocuments([]coref.Document{testDocument()})
	model, err := coref.NewModel(testModelConfig(), embeddings.NewMockEmbedder(8), vocab, logger)
	require.NoError(t, err)
	t.Cleanup(model.Destroy)

	cache := NewResolveCache(model, 0, logger)
	t.Cleanup(cache.Close)

	return &AnaphorNode{
		logger:       logger,
		model:        model,
		resolveCache: cache,
	}
}

func resolveBody(t *testing.T, doc coref.Document) []byte {
	t.Helper()
	body, err := json.Marshal(ResolveRequest{
		DocKeys:   []string{doc.Key},
		Sentences: [][][]string{doc.Sentences},
		Speakers:  [][][]string{doc.Speakers},
	})
	require.NoError(t, err)
	return body
}

func TestHandleApiResolve_NoModel(t *testing.T) {
	node := &AnaphorNode{logger: zaptest.NewLogger(t)}

	req := httptest.NewRequest("POST", "/api/v1/resolve", bytes.NewReader(resolveBody(t, testDocument())))
	w := httptest.NewRecorder()
	node.handleApiResolve(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleApiResolve_InvalidJSON(t *testing.T) {
	node := newTestNode(t)

	req := httptest.NewRequest("POST", "/api/v1/resolve", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	node.handleApiResolve(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleApiResolve_MissingDocKey(t *testing.T) {
	node := newTestNode(t)

	req := httptest.NewRequest("POST", "/api/v1/resolve", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	node.handleApiResolve(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleApiResolve_MismatchedShapes(t *testing.T) {
	node := newTestNode(t)

	body, err := json.Marshal(ResolveRequest{
		DocKeys:   []string{"nw/wsj_0001", "nw/wsj_0002"},
		Sentences: [][][]string{{{"Hello", "."}}},
		Speakers:  [][][]string{{{"spk1", "spk1"}}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/resolve", bytes.NewReader(body))
	w := httptest.NewRecorder()
	node.handleApiResolve(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleApiResolve_Success(t *testing.T) {
	node := newTestNode(t)
	doc := testDocument()

	req := httptest.NewRequest("POST", "/api/v1/resolve", bytes.NewReader(resolveBody(t, doc)))
	w := httptest.NewRecorder()
	node.handleApiResolve(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Resolutions, 1)
	assert.Equal(t, doc.Key, resp.Resolutions[0].DocKey)
	// Untrained weights give arbitrary but well-formed clusters.
	total := 0
	for _, cluster := range resp.Resolutions[0].Clusters {
		total += len(cluster)
	}
	assert.Len(t, resp.Resolutions[0].Mentions, total)
	for _, cluster := range resp.Resolutions[0].Clusters {
		assert.GreaterOrEqual(t, len(cluster), 2)
		for _, span := range cluster {
			assert.GreaterOrEqual(t, span.Start, 0)
			assert.LessOrEqual(t, span.End, doc.NumWords()-1)
		}
	}
}

func TestHandleApiResolve_ReusesCache(t *testing.T) {
	node := newTestNode(t)
	doc := testDocument()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/v1/resolve", bytes.NewReader(resolveBody(t, doc)))
		w := httptest.NewRecorder()
		node.handleApiResolve(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	hits, misses, _ := node.resolveCache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestHandleApiRank_NoRanker(t *testing.T) {
	node := &AnaphorNode{logger: zaptest.NewLogger(t)}

	body, err := json.Marshal(RankRequest{Query: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/rank", bytes.NewReader(body))
	w := httptest.NewRecorder()
	node.handleApiRank(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHealthz(t *testing.T) {
	node := &AnaphorNode{logger: zaptest.NewLogger(t)}

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	node.handleHealthz(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleReadyz_NotReadyWithoutModel(t *testing.T) {
	node := &AnaphorNode{logger: zaptest.NewLogger(t)}

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()
	node.handleReadyz(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.False(t, resp.Models.Resolver)
}

func TestHandleReadyz_ReadyWithModel(t *testing.T) {
	node := newTestNode(t)

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()
	node.handleReadyz(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.True(t, resp.Models.Resolver)
	assert.False(t, resp.Models.Ranker)
}
