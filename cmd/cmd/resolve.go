// Copyright 2026 Anaphor Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/encoder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anaphorlab/anaphor"
	"github.com/anaphorlab/anaphor/lib/coref"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file.json>",
	Short: "Resolve coreference in a document file",
	Long: `Resolve coreference clusters in a JSON document file and print the
result to stdout.

The file holds one record with parallel doc_key, sentences and speakers
arrays, matching the JSONL training format.

Examples:
  # Resolve a document file
  anaphor resolve document.json

  # Resolve with an explicit config
  anaphor resolve --config ./config.yaml document.json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	docs, err := readDocuments(args[0])
	if err != nil {
		return err
	}

	model, err := buildModel(cfg, logger)
	if err != nil {
		return err
	}
	defer model.Destroy()

	type output struct {
		DocKey   string         `json:"doc_key"`
		Clusters [][]coref.Span `json:"clusters"`
	}
	results := make([]output, 0, len(docs))
	for i := range docs {
		res, err := model.Resolve(cmd.Context(), &docs[i])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", docs[i].Key, err)
		}
		clusters := res.Clusters
		if clusters == nil {
			clusters = [][]coref.Span{}
		}
		results = append(results, output{DocKey: docs[i].Key, Clusters: clusters})
	}

	enc := encoder.NewStreamEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// buildModel constructs the resolver from the service config, without the
// HTTP layer.
func buildModel(cfg anaphor.Config, logger *zap.Logger) (*coref.Model, error) {
	if err := cfg.Model.Validate(); err != nil {
		return nil, err
	}
	vocab, err := coref.LoadCharVocab(cfg.CharVocabPath)
	if err != nil {
		return nil, fmt.Errorf("loading character vocabulary: %w", err)
	}
	embedder, err := anaphor.NewEmbedder(cfg.Model, cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}
	return coref.NewModel(cfg.Model, embedder, vocab, logger)
}

// readDocuments loads documents from a JSON record file or a JSONL file
// with one record per line.
func readDocuments(path string) ([]coref.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var docs []coref.Document
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec coref.Record
		if err := sonic.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		lineDocs, err := rec.Documents()
		if err != nil {
			return nil, fmt.Errorf("validating %s: %w", path, err)
		}
		docs = append(docs, lineDocs...)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents in %s", path)
	}
	return docs, nil
}
