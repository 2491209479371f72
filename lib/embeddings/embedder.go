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

// Package embeddings provides the word-embedding collaborators of the
// coreference model: a direct per-token lookup table and a by-document-key
// cache of precomputed embeddings.
package embeddings

import "context"

// Embedder produces per-token word embeddings for the coreference encoder.
//
// Two access modes exist, matching the model's embedding formats:
//   - EmbedTokens resolves embeddings for raw token strings (format "std_emb")
//   - EmbedDoc retrieves precomputed embeddings by document key (format "cached")
//
// An implementation may support only one mode and return an unsupported-mode
// error for the other.
type Embedder interface {
	// Dim returns the embedding width.
	Dim() int

	// EmbedTokens returns one vector per token, shaped [sentence][token][dim].
	EmbedTokens(ctx context.Context, sentences [][]string) ([][][]float32, error)

	// EmbedDoc returns precomputed per-token embeddings for a document key,
	// shaped [sentence][token][dim].
	EmbedDoc(ctx context.Context, docKey string) ([][][]float32, error)
}

type unsupportedModeError struct{ mode string }

func (e *unsupportedModeError) Error() string {
	return "embeddings: " + e.mode + " mode not supported by this embedder"
}

// ErrUnsupportedTokens reports that the embedder cannot resolve raw tokens.
var ErrUnsupportedTokens error = &unsupportedModeError{mode: "std_emb"}

// ErrUnsupportedDocKey reports that the embedder cannot resolve document keys.
var ErrUnsupportedDocKey error = &unsupportedModeError{mode: "cached"}
