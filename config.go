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
	"github.com/anaphorlab/anaphor/lib/coref"
)

// Config is the service-level configuration, loaded from the config file,
// environment and flags.
type Config struct {
	// ApiUrl is the address the HTTP API binds to.
	ApiUrl string `mapstructure:"api_url"`

	// CharVocabPath points at the character vocabulary file, one character
	// per line.
	CharVocabPath string `mapstructure:"char_vocab"`

	// Model carries the coreference model hyperparameters.
	Model coref.Config `mapstructure:"model"`

	// Embeddings configures the word embedding provider matching the
	// model's embedding format.
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`

	// Ranker configures the optional response ranker. Empty model path
	// disables the ranking endpoint.
	Ranker RankerConfig `mapstructure:"ranker"`

	// ResolveCacheTTL holds the resolution cache lifetime as a duration
	// string ("0" or empty = default).
	ResolveCacheTTL string `mapstructure:"resolve_cache_ttl"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// TablePath is the GloVe-style embedding table, used with the std_emb
	// format.
	TablePath string `mapstructure:"table_path"`

	// Lowercase folds tokens before table lookup.
	Lowercase bool `mapstructure:"lowercase"`

	// CacheDir holds per-document embedding files, used with the cached
	// format.
	CacheDir string `mapstructure:"cache_dir"`

	// Dim is the embedding width, required with the cached format.
	Dim int `mapstructure:"dim"`
}

// RankerConfig configures the response ranker.
type RankerConfig struct {
	// ModelPath is the ONNX encoder directory (model.onnx + vocab.txt).
	ModelPath string `mapstructure:"model_path"`

	// PoolSize caps concurrent encoder use (0 = CPU count).
	PoolSize int `mapstructure:"pool_size"`

	// MaxLen caps tokenized sequence length (0 = 128).
	MaxLen int `mapstructure:"max_len"`

	// Lowercase folds input for uncased encoders.
	Lowercase bool `mapstructure:"lowercase"`

	// ResponsesPath is a JSON file holding the response bank as an array of
	// strings.
	ResponsesPath string `mapstructure:"responses_path"`

	// Responses inlines the response bank; ignored when ResponsesPath is
	// set.
	Responses []string `mapstructure:"responses"`
}
