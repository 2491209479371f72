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
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachedEmbeddingTTL is the default TTL for in-memory document embeddings.
const CachedEmbeddingTTL = 10 * time.Minute

// Ensure CachedEmbedder implements the Embedder interface
var _ Embedder = (*CachedEmbedder)(nil)

// CachedEmbedder serves precomputed per-token embeddings by document key from
// a directory of JSON files (one file per key, named <key>.json). Hot entries
// are held in a TTL cache; concurrent loads of the same key are deduplicated.
type CachedEmbedder struct {
	dir     string
	dim     int
	cache   *ttlcache.Cache[uint64, [][][]float32]
	sfGroup *singleflight.Group
	logger  *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CachedEmbedderConfig holds configuration for the cached embedding provider.
type CachedEmbedderConfig struct {
	// Dir contains one <doc_key>.json file per document.
	Dir string

	// Dim is the expected embedding width; files with a different width are
	// rejected at load time.
	Dim int

	// TTL overrides the default cache TTL (0 = CachedEmbeddingTTL).
	TTL time.Duration

	// Logger for logging (nil = no logging).
	Logger *zap.Logger
}

// NewCachedEmbedder creates a by-document-key embedding provider.
func NewCachedEmbedder(cfg CachedEmbedderConfig) (*CachedEmbedder, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cached embedder requires a directory")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("cached embedder requires a positive embedding dim, got %d", cfg.Dim)
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("stat embeddings dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("embeddings path %s is not a directory", cfg.Dir)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = CachedEmbeddingTTL
	}

	cache := ttlcache.New[uint64, [][][]float32](
		ttlcache.WithTTL[uint64, [][][]float32](ttl),
	)
	go cache.Start()

	return &CachedEmbedder{
		dir:     cfg.Dir,
		dim:     cfg.Dim,
		cache:   cache,
		sfGroup: &singleflight.Group{},
		logger:  logger,
	}, nil
}

// Dim returns the embedding width.
func (e *CachedEmbedder) Dim() int {
	return e.dim
}

// EmbedTokens is not supported by the cached embedder.
func (e *CachedEmbedder) EmbedTokens(ctx context.Context, sentences [][]string) ([][][]float32, error) {
	return nil, ErrUnsupportedTokens
}

// EmbedDoc loads the precomputed embeddings for docKey, from memory when hot.
func (e *CachedEmbedder) EmbedDoc(ctx context.Context, docKey string) ([][][]float32, error) {
	key := xxhash.Sum64String(docKey)
	if item := e.cache.Get(key); item != nil {
		e.hits.Add(1)
		return item.Value(), nil
	}

	result, err, _ := e.sfGroup.Do(docKey, func() (any, error) {
		e.misses.Add(1)
		emb, err := e.loadFile(docKey)
		if err != nil {
			return nil, err
		}
		e.cache.Set(key, emb, ttlcache.DefaultTTL)
		return emb, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][][]float32), nil
}

// Stats returns cache hit/miss counters.
func (e *CachedEmbedder) Stats() (hits, misses uint64) {
	return e.hits.Load(), e.misses.Load()
}

// Close stops the cache janitor.
func (e *CachedEmbedder) Close() error {
	e.cache.Stop()
	return nil
}

func (e *CachedEmbedder) loadFile(docKey string) ([][][]float32, error) {
	path := filepath.Join(e.dir, docKey+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings for doc %q: %w", docKey, err)
	}

	var emb [][][]float32
	if err := sonic.Unmarshal(data, &emb); err != nil {
		return nil, fmt.Errorf("parsing embeddings for doc %q: %w", docKey, err)
	}
	for i, sentence := range emb {
		for j, vec := range sentence {
			if len(vec) != e.dim {
				return nil, fmt.Errorf("doc %q sentence %d token %d: got width %d, want %d",
					docKey, i, j, len(vec), e.dim)
			}
		}
	}

	e.logger.Debug("Loaded document embeddings",
		zap.String("doc_key", docKey),
		zap.Int("sentences", len(emb)))
	return emb, nil
}
