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
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// RankedResponse is one response bank entry scored against a query.
type RankedResponse struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// PooledRanker ranks a fixed response bank against incoming utterances.
// Multiple encoder instances serve concurrent requests; each request
// acquires a slot via semaphore and picks an encoder round-robin.
type PooledRanker struct {
	encoders    []*Encoder
	sem         *semaphore.Weighted
	nextEncoder atomic.Uint64
	poolSize    int
	logger      *zap.Logger

	responses []string
	vectors   [][]float32
}

// PooledRankerConfig holds configuration for creating a PooledRanker.
type PooledRankerConfig struct {
	// Encoder configures the underlying ONNX encoder.
	Encoder EncoderConfig

	// PoolSize determines how many requests encode concurrently (0 =
	// CPU count).
	PoolSize int

	// Responses is the response bank; its vectors are computed once at
	// startup and kept immutable.
	Responses []string

	// Logger for logging (nil = no logging).
	Logger *zap.Logger
}

// NewPooledRanker creates the encoder pool and precomputes the response bank
// vectors.
func NewPooledRanker(ctx context.Context, cfg PooledRankerConfig) (*PooledRanker, error) {
	if len(cfg.Responses) == 0 {
		return nil, errors.New("response bank is empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	logger.Info("Initializing pooled ranker",
		zap.String("model_path", cfg.Encoder.ModelPath),
		zap.Int("pool_size", poolSize),
		zap.Int("responses", len(cfg.Responses)))

	encoders := make([]*Encoder, poolSize)
	for i := range encoders {
		encCfg := cfg.Encoder
		encCfg.Logger = logger
		enc, err := NewEncoder(encCfg)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = encoders[j].Close()
			}
			return nil, fmt.Errorf("creating encoder %d: %w", i, err)
		}
		encoders[i] = enc
	}

	p := &PooledRanker{
		encoders:  encoders,
		sem:       semaphore.NewWeighted(int64(poolSize)),
		poolSize:  poolSize,
		logger:    logger,
		responses: cfg.Responses,
	}

	vectors, err := encoders[0].Encode(ctx, cfg.Responses)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("encoding response bank: %w", err)
	}
	p.vectors = vectors

	logger.Info("Response bank encoded", zap.Int("responses", len(vectors)))
	return p, nil
}

// Rank scores the response bank against the query by dot product and
// returns the topN best responses, highest first.
func (p *PooledRanker) Rank(ctx context.Context, query string, topN int) ([]RankedResponse, error) {
	if query == "" {
		return nil, errors.New("query is required for ranking")
	}
	if topN <= 0 || topN > len(p.responses) {
		topN = len(p.responses)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring encoder slot: %w", err)
	}
	defer p.sem.Release(1)

	idx := int(p.nextEncoder.Add(1) % uint64(p.poolSize))
	vectors, err := p.encoders[idx].Encode(ctx, []string{query})
	if err != nil {
		p.logger.Error("Query encoding failed",
			zap.Int("encoder_index", idx),
			zap.Error(err))
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	queryVec := vectors[0]

	ranked := make([]RankedResponse, len(p.responses))
	for i, vec := range p.vectors {
		ranked[i] = RankedResponse{
			Index: i,
			Text:  p.responses[i],
			Score: dot(queryVec, vec),
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})

	p.logger.Debug("Ranked responses",
		zap.Int("encoder_index", idx),
		zap.Int("top_n", topN),
		zap.Float32("best_score", ranked[0].Score))
	return ranked[:topN], nil
}

// Responses returns the immutable response bank.
func (p *PooledRanker) Responses() []string {
	return p.responses
}

// Close releases every encoder in the pool.
func (p *PooledRanker) Close() error {
	var lastErr error
	for i, enc := range p.encoders {
		if enc == nil {
			continue
		}
		if err := enc.Close(); err != nil {
			p.logger.Warn("Failed to close encoder",
				zap.Int("index", i),
				zap.Error(err))
			lastErr = err
		}
	}
	p.encoders = nil
	return lastErr
}

func dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
