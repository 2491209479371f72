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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anaphorlab/anaphor"
)

var (
	trainEpochs    int
	trainBatchSize int
)

var trainCmd = &cobra.Command{
	Use:   "train <file.jsonl>",
	Short: "Run training steps over a document file",
	Long: `Run optimizer steps over a JSONL file of gold-annotated documents,
logging the loss and learning rate per batch.

Each line holds one record with parallel doc_key, sentences, speakers and
clusters arrays.

Examples:
  # One epoch over a training file
  anaphor train train.english.jsonl

  # Multiple epochs with a larger batch
  anaphor train --epochs 10 --batch-size 32 train.english.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 1, "number of passes over the document file")
	trainCmd.Flags().IntVar(&trainBatchSize, "batch-size", 16, "documents per logged batch")
}

func runTrain(cmd *cobra.Command, args []string) error {
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
	logger.Info("Training documents loaded",
		zap.String("path", args[0]),
		zap.Int("num_documents", len(docs)))

	model, err := buildModel(cfg, logger)
	if err != nil {
		return err
	}
	defer model.Destroy()

	if trainBatchSize <= 0 {
		trainBatchSize = 1
	}
	for epoch := 0; epoch < trainEpochs; epoch++ {
		for start := 0; start < len(docs); start += trainBatchSize {
			end := start + trainBatchSize
			if end > len(docs) {
				end = len(docs)
			}

			stats, err := model.TrainOnBatch(cmd.Context(), docs[start:end])
			if err != nil {
				return err
			}
			anaphor.RecordTrainSteps(stats.Documents)

			logger.Info("Training batch completed",
				zap.Int("epoch", epoch),
				zap.Int64("step", stats.Step),
				zap.Float64("loss", stats.Loss),
				zap.Float64("learning_rate", stats.LearningRate),
				zap.Int("documents", stats.Documents),
				zap.Int("skipped", stats.Skipped))
		}
	}

	logger.Info("Training finished", zap.Int64("step", model.Step()))
	return nil
}
