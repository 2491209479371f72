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
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Ensure TableEmbedder implements the Embedder interface
var _ Embedder = (*TableEmbedder)(nil)

// TableEmbedder resolves tokens against a GloVe-style text table: one word
// per line followed by its vector components, whitespace separated.
// Out-of-vocabulary tokens embed to the zero vector.
type TableEmbedder struct {
	vectors map[string][]float32
	dim     int
	lower   bool
	logger  *zap.Logger
}

// TableEmbedderConfig holds configuration for loading an embedding table.
type TableEmbedderConfig struct {
	// Path is the embedding table file.
	Path string

	// Lowercase folds tokens to lower case before lookup.
	Lowercase bool

	// Logger for logging (nil = no logging).
	Logger *zap.Logger
}

// NewTableEmbedder loads the embedding table from disk. The vector width is
// taken from the first line; lines with a different width are rejected.
func NewTableEmbedder(cfg TableEmbedderConfig) (*TableEmbedder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening embedding table: %w", err)
	}
	defer func() { _ = file.Close() }()

	e := &TableEmbedder{
		vectors: make(map[string][]float32),
		lower:   cfg.Lowercase,
		logger:  logger,
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		word := fields[0]
		vec := make([]float32, len(fields)-1)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("parsing embedding table line %d: %w", lineNo, err)
			}
			vec[i] = float32(v)
		}
		if e.dim == 0 {
			e.dim = len(vec)
		} else if len(vec) != e.dim {
			return nil, fmt.Errorf("embedding table line %d: got width %d, want %d", lineNo, len(vec), e.dim)
		}
		if e.lower {
			word = strings.ToLower(word)
		}
		e.vectors[word] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading embedding table: %w", err)
	}
	if e.dim == 0 {
		return nil, fmt.Errorf("embedding table %s is empty", cfg.Path)
	}

	logger.Info("Loaded embedding table",
		zap.String("path", cfg.Path),
		zap.Int("words", len(e.vectors)),
		zap.Int("dim", e.dim))
	return e, nil
}

// Dim returns the embedding width.
func (e *TableEmbedder) Dim() int {
	return e.dim
}

// EmbedTokens resolves each token against the table. Unknown tokens embed to
// zeros; the caller cannot distinguish them from genuinely-zero vectors.
func (e *TableEmbedder) EmbedTokens(ctx context.Context, sentences [][]string) ([][][]float32, error) {
	out := make([][][]float32, len(sentences))
	for i, sentence := range sentences {
		out[i] = make([][]float32, len(sentence))
		for j, word := range sentence {
			if e.lower {
				word = strings.ToLower(word)
			}
			if vec, ok := e.vectors[word]; ok {
				out[i][j] = vec
			} else {
				out[i][j] = make([]float32, e.dim)
			}
		}
	}
	return out, nil
}

// EmbedDoc is not supported by the table embedder.
func (e *TableEmbedder) EmbedDoc(ctx context.Context, docKey string) ([][][]float32, error) {
	return nil, ErrUnsupportedDocKey
}
