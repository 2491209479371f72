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
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/anaphorlab/anaphor/lib/coref"
)

// ResolveCacheTTL is the default TTL for cached resolutions.
const ResolveCacheTTL = 2 * time.Minute

// ResolveCache memoizes coreference resolutions keyed by document
// content. Resolution is deterministic for a given model state, so a
// cached result stays valid until the cache entry expires.
type ResolveCache struct {
	model   *coref.Model
	cache   *ttlcache.Cache[uint64, *coref.Resolution]
	sfGroup *singleflight.Group
	logger  *zap.Logger

	// Metrics
	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// NewResolveCache wraps a model with resolution caching.
func NewResolveCache(model *coref.Model, ttl time.Duration, logger *zap.Logger) *ResolveCache {
	if ttl <= 0 {
		ttl = ResolveCacheTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[uint64, *coref.Resolution](ttl),
	)
	go cache.Start()
	return &ResolveCache{
		model:   model,
		cache:   cache,
		sfGroup: &singleflight.Group{},
		logger:  logger,
	}
}

// Resolve returns the coreference resolution for doc, computing it on
// a cache miss. Concurrent requests for the same document share one
// computation.
func (rc *ResolveCache) Resolve(ctx context.Context, doc *coref.Document) (*coref.Resolution, error) {
	key := rc.cacheKey(doc)

	if item := rc.cache.Get(key); item != nil {
		rc.hits.Add(1)
		RecordCacheHit("resolve")
		rc.logger.Debug("Resolution cache hit",
			zap.String("doc_key", doc.Key),
			zap.Int("num_clusters", len(item.Value().Clusters)))
		return item.Value(), nil
	}

	result, err, shared := rc.sfGroup.Do(strconv.FormatUint(key, 16), func() (any, error) {
		rc.misses.Add(1)
		RecordCacheMiss("resolve")

		start := time.Now()
		res, err := rc.model.Resolve(ctx, doc)
		if err != nil {
			return nil, err
		}

		rc.cache.Set(key, res, ttlcache.DefaultTTL)

		rc.logger.Debug("Resolution computed and cached",
			zap.String("doc_key", doc.Key),
			zap.Int("num_clusters", len(res.Clusters)),
			zap.Duration("duration", time.Since(start)))

		return res, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		rc.sfHits.Add(1)
		rc.logger.Debug("Singleflight hit for resolve request",
			zap.String("doc_key", doc.Key))
	}

	return result.(*coref.Resolution), nil
}

// Stats returns cache hit, miss, and singleflight-hit counts.
func (rc *ResolveCache) Stats() (hits, misses, sfHits uint64) {
	return rc.hits.Load(), rc.misses.Load(), rc.sfHits.Load()
}

// Close stops the cache janitor.
func (rc *ResolveCache) Close() {
	rc.cache.Stop()
}

// cacheKey hashes the full document content: tokens, speakers, and the
// document key all affect the resolution.
func (rc *ResolveCache) cacheKey(doc *coref.Document) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(doc.Key)
	for i, sent := range doc.Sentences {
		_, _ = h.WriteString("|s")
		for _, tok := range sent {
			_, _ = h.WriteString(tok)
			_, _ = h.WriteString("\x00")
		}
		if i < len(doc.Speakers) {
			_, _ = h.WriteString("|k")
			for _, spk := range doc.Speakers[i] {
				_, _ = h.WriteString(spk)
				_, _ = h.WriteString("\x00")
			}
		}
	}
	return h.Sum64()
}
