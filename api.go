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
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic/decoder"
	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"

	"github.com/anaphorlab/anaphor/lib/coref"
)

// ResolveRequest is a batch of documents to resolve. Fields mirror the
// JSONL record format used for training data.
type ResolveRequest struct {
	DocKeys   []string     `json:"doc_key"`
	Sentences [][][]string `json:"sentences"`
	Speakers  [][][]string `json:"speakers"`
}

// MentionAssignment maps one predicted mention to its cluster index.
type MentionAssignment struct {
	Span    coref.Span `json:"span"`
	Cluster int        `json:"cluster"`
}

// DocumentResolution pairs a document key with its predicted clusters.
type DocumentResolution struct {
	DocKey   string              `json:"doc_key"`
	Clusters [][]coref.Span      `json:"clusters"`
	Mentions []MentionAssignment `json:"mentions"`
}

// ResolveResponse is the response for /api/v1/resolve.
type ResolveResponse struct {
	Resolutions []DocumentResolution `json:"resolutions"`
}

// RankRequest is a query to rank against the configured response bank.
type RankRequest struct {
	Query string `json:"query"`
	TopN  int    `json:"top_n"`
}

// RankedItem is one response with its relevance score.
type RankedItem struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// RankResponse is the response for /api/v1/rank.
type RankResponse struct {
	Responses []RankedItem `json:"responses"`
}

// handleApiResolve handles coreference resolution requests
func (an *AnaphorNode) handleApiResolve(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	if an.model == nil {
		http.Error(w, "resolution not available", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	status := http.StatusOK
	defer func() {
		RecordRequestDuration("resolve", strconv.Itoa(status), time.Since(start).Seconds())
	}()

	var req ResolveRequest
	if err := decoder.NewStreamDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, fmt.Sprintf("decoding request: %v", err), status)
		return
	}

	if len(req.DocKeys) == 0 {
		status = http.StatusBadRequest
		http.Error(w, "doc_key is required", status)
		return
	}

	rec := coref.Record{
		DocKeys:   req.DocKeys,
		Sentences: req.Sentences,
		Speakers:  req.Speakers,
	}
	docs, err := rec.Documents()
	if err != nil {
		status = http.StatusBadRequest
		http.Error(w, fmt.Sprintf("invalid input: %v", err), status)
		return
	}

	resp := ResolveResponse{Resolutions: make([]DocumentResolution, 0, len(docs))}
	for i := range docs {
		doc := &docs[i]
		res, err := an.resolveCache.Resolve(r.Context(), doc)
		if err != nil {
			an.logger.Error("resolution failed",
				zap.String("doc_key", doc.Key),
				zap.Error(err))
			status = http.StatusInternalServerError
			http.Error(w, fmt.Sprintf("resolving %s: %v", doc.Key, err), status)
			return
		}

		RecordResolveRequest(doc.Genre())
		RecordClusterCreation(doc.Genre(), len(res.Clusters))
		RecordMentionCreation(doc.Genre(), len(res.MentionToCluster))

		clusters := res.Clusters
		if clusters == nil {
			clusters = [][]coref.Span{}
		}
		mentions := make([]MentionAssignment, 0, len(res.MentionToCluster))
		for span, cluster := range res.MentionToCluster {
			mentions = append(mentions, MentionAssignment{Span: span, Cluster: cluster})
		}
		sort.Slice(mentions, func(a, b int) bool {
			if mentions[a].Span.Start != mentions[b].Span.Start {
				return mentions[a].Span.Start < mentions[b].Span.Start
			}
			return mentions[a].Span.End < mentions[b].Span.End
		})
		resp.Resolutions = append(resp.Resolutions, DocumentResolution{
			DocKey:   doc.Key,
			Clusters: clusters,
			Mentions: mentions,
		})
	}

	an.logger.Info("resolve request completed",
		zap.Int("num_documents", len(docs)),
		zap.Duration("duration", time.Since(start)))

	w.Header().Set("Content-Type", "application/json")
	if err := encoder.NewStreamEncoder(w).Encode(resp); err != nil {
		an.logger.Error("encoding response", zap.Error(err))
		status = http.StatusInternalServerError
		http.Error(w, err.Error(), status)
		return
	}
}

// handleApiRank handles response ranking requests
func (an *AnaphorNode) handleApiRank(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	if an.ranker == nil {
		http.Error(w, "ranking not available: no ranker configured", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	status := http.StatusOK
	defer func() {
		RecordRequestDuration("rank", strconv.Itoa(status), time.Since(start).Seconds())
	}()

	var req RankRequest
	if err := decoder.NewStreamDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, fmt.Sprintf("decoding request: %v", err), status)
		return
	}

	if req.Query == "" {
		status = http.StatusBadRequest
		http.Error(w, "query is required", status)
		return
	}

	ranked, err := an.ranker.Rank(r.Context(), req.Query, req.TopN)
	if err != nil {
		an.logger.Error("ranking failed",
			zap.String("query", req.Query),
			zap.Error(err))
		status = http.StatusInternalServerError
		http.Error(w, fmt.Sprintf("ranking failed: %v", err), status)
		return
	}

	RecordRankRequest()

	resp := RankResponse{Responses: make([]RankedItem, 0, len(ranked))}
	for _, rr := range ranked {
		resp.Responses = append(resp.Responses, RankedItem{
			Index: rr.Index,
			Text:  rr.Text,
			Score: rr.Score,
		})
	}

	an.logger.Info("rank request completed",
		zap.String("query", req.Query),
		zap.Int("num_responses", len(resp.Responses)),
		zap.Duration("duration", time.Since(start)))

	w.Header().Set("Content-Type", "application/json")
	if err := encoder.NewStreamEncoder(w).Encode(resp); err != nil {
		an.logger.Error("encoding response", zap.Error(err))
		status = http.StatusInternalServerError
		http.Error(w, err.Error(), status)
		return
	}
}
