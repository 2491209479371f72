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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/spf13/cobra"
)

// rankerModelFiles are the files a ranker model directory needs.
var rankerModelFiles = []string{"model.onnx", "vocab.txt", "config.json"}

var pullCmd = &cobra.Command{
	Use:   "pull <hf-repo> [hf-repo...]",
	Short: "Pull ranker model(s) from HuggingFace",
	Long: `Download one or more ONNX ranker models from HuggingFace.

Each model's model.onnx, vocab.txt and config.json are stored under
<models-dir>/<repo-name>/, ready to be referenced by ranker.model_path.

Examples:
  # Pull a sentence encoder
  anaphor pull sentence-transformers/all-MiniLM-L6-v2

  # Pull to a custom directory
  anaphor pull --models-dir /opt/anaphor/models sentence-transformers/all-MiniLM-L6-v2

  # Pull a gated model
  anaphor pull --hf-token $HF_TOKEN some-org/private-encoder`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
}

func runPull(cmd *cobra.Command, args []string) error {
	hfToken, _ := cmd.Flags().GetString("hf-token")
	if hfToken == "" {
		hfToken = os.Getenv("HF_TOKEN")
	}

	for _, repoID := range args {
		fmt.Printf("\n=== Pulling %s ===\n", repoID)
		if err := pullFromHuggingFace(repoID, hfToken); err != nil {
			return fmt.Errorf("failed to pull %s: %w", repoID, err)
		}
	}

	return nil
}

func pullFromHuggingFace(repoID, hfToken string) error {
	repo := hub.New(repoID).WithAuth(hfToken)

	parts := strings.Split(repoID, "/")
	targetDir := filepath.Join(modelsDir, parts[len(parts)-1])
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}

	for _, name := range rankerModelFiles {
		cachedPath, err := repo.DownloadFile(name)
		if err != nil && name == "model.onnx" {
			// Newer repos keep the ONNX export under onnx/.
			cachedPath, err = repo.DownloadFile("onnx/model.onnx")
		}
		if err != nil {
			return fmt.Errorf("downloading %s: %w", name, err)
		}

		target := filepath.Join(targetDir, name)
		if err := copyFile(cachedPath, target); err != nil {
			return fmt.Errorf("copying %s: %w", name, err)
		}
		fmt.Printf("  %s\n", target)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
