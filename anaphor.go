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
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anaphorlab/anaphor/lib/coref"
	"github.com/anaphorlab/anaphor/lib/embeddings"
	"github.com/anaphorlab/anaphor/lib/ranking"
)

type AnaphorNode struct {
	logger *zap.Logger

	model        *coref.Model
	resolveCache *ResolveCache

	// Optional response ranker; nil when no ranker model is configured.
	ranker *ranking.PooledRanker
}

// corsMiddleware adds permissive CORS headers for the Anaphor API
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// NewEmbedder builds the embedding provider matching the model's embedding
// format.
func NewEmbedder(modelCfg coref.Config, embCfg EmbeddingsConfig, zl *zap.Logger) (embeddings.Embedder, error) {
	switch modelCfg.EmbFormat {
	case coref.EmbFormatCached:
		return embeddings.NewCachedEmbedder(embeddings.CachedEmbedderConfig{
			Dir:    embCfg.CacheDir,
			Dim:    embCfg.Dim,
			Logger: zl.Named("embeddings"),
		})
	default:
		return embeddings.NewTableEmbedder(embeddings.TableEmbedderConfig{
			Path:      embCfg.TablePath,
			Lowercase: embCfg.Lowercase,
			Logger:    zl.Named("embeddings"),
		})
	}
}

// LoadResponseBank reads the ranker's response bank. A path takes precedence
// over inline responses.
func LoadResponseBank(cfg RankerConfig) ([]string, error) {
	if cfg.ResponsesPath == "" {
		return cfg.Responses, nil
	}
	data, err := os.ReadFile(cfg.ResponsesPath)
	if err != nil {
		return nil, err
	}
	var responses []string
	if err := sonic.Unmarshal(data, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

// RunAsAnaphor runs the coreference resolution node until ctx is cancelled.
// If readyC is non-nil, it will be closed when the server is ready to accept
// requests.
func RunAsAnaphor(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) {
	zl = zl.Named("anaphor")
	zl.Info("Starting anaphor node", zap.Any("config", config))

	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		zl.Fatal("Invalid API URL", zap.String("url", config.ApiUrl), zap.Error(err))
	}

	if err := config.Model.Validate(); err != nil {
		zl.Fatal("Invalid model configuration", zap.Error(err))
	}

	vocab, err := coref.LoadCharVocab(config.CharVocabPath)
	if err != nil {
		zl.Fatal("Failed to load character vocabulary",
			zap.String("path", config.CharVocabPath), zap.Error(err))
	}
	zl.Info("Character vocabulary loaded", zap.Int("size", vocab.Size()))

	embedder, err := NewEmbedder(config.Model, config.Embeddings, zl)
	if err != nil {
		zl.Fatal("Failed to initialize embeddings", zap.Error(err))
	}
	if closer, ok := embedder.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	model, err := coref.NewModel(config.Model, embedder, vocab, zl)
	if err != nil {
		zl.Fatal("Failed to initialize resolver", zap.Error(err))
	}
	defer model.Destroy()

	var cacheTTL time.Duration
	if config.ResolveCacheTTL != "" && config.ResolveCacheTTL != "0" {
		cacheTTL, err = time.ParseDuration(config.ResolveCacheTTL)
		if err != nil {
			zl.Fatal("Invalid resolve_cache_ttl duration",
				zap.String("resolve_cache_ttl", config.ResolveCacheTTL), zap.Error(err))
		}
	}
	resolveCache := NewResolveCache(model, cacheTTL, zl.Named("resolve-cache"))
	defer resolveCache.Close()

	// The ranker is optional; without a model path the rank endpoint
	// reports unavailable.
	var ranker *ranking.PooledRanker
	if config.Ranker.ModelPath != "" {
		responses, err := LoadResponseBank(config.Ranker)
		if err != nil {
			zl.Fatal("Failed to load response bank",
				zap.String("path", config.Ranker.ResponsesPath), zap.Error(err))
		}
		ranker, err = ranking.NewPooledRanker(ctx, ranking.PooledRankerConfig{
			Encoder: ranking.EncoderConfig{
				ModelPath: config.Ranker.ModelPath,
				MaxLen:    config.Ranker.MaxLen,
				Lowercase: config.Ranker.Lowercase,
				Logger:    zl.Named("ranker"),
			},
			PoolSize:  config.Ranker.PoolSize,
			Responses: responses,
			Logger:    zl.Named("ranker"),
		})
		if err != nil {
			zl.Fatal("Failed to initialize ranker",
				zap.String("model_path", config.Ranker.ModelPath), zap.Error(err))
		}
		defer ranker.Close()
	} else {
		zl.Info("No ranker model configured, ranking endpoint disabled")
	}

	node := &AnaphorNode{
		logger: zl,

		model:        model,
		resolveCache: resolveCache,
		ranker:       ranker,
	}

	rootMux := http.NewServeMux()

	// Health endpoints (outside /api prefix for k8s compatibility)
	rootMux.HandleFunc("GET /healthz", node.handleHealthz)
	rootMux.HandleFunc("GET /readyz", node.handleReadyz)

	rootMux.Handle("GET /metrics", promhttp.Handler())

	rootMux.HandleFunc("POST /api/v1/resolve", node.handleApiResolve)
	rootMux.HandleFunc("POST /api/v1/rank", node.handleApiRank)

	srv := &http.Server{
		Addr:        u.Host,
		Handler:     corsMiddleware(rootMux),
		ReadTimeout: 540 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("Anaphor's api server starting", zap.String("address", config.ApiUrl))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Signal readiness after server starts
	if readyC != nil {
		close(readyC)
	}

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		if err != nil {
			zl.Fatal("HTTP server error", zap.Error(err))
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
}
