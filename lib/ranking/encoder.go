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

// Package ranking encodes utterances with a BERT-style ONNX encoder and
// ranks a fixed response bank against them by vector similarity.
package ranking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx/parser"
	"go.uber.org/zap"

	// Pure Go engine, always available.
	_ "github.com/gomlx/gomlx/backends/simplego"
)

// Encoder runs a BERT-style ONNX model and mean-pools the final hidden
// states into one vector per input text. Not safe for concurrent use; the
// pooled ranker serializes access per encoder.
type Encoder struct {
	tokenizer *Tokenizer
	engine    backends.Backend
	mlCtx     *mlctx.Context
	exec      *mlctx.Exec
	logger    *zap.Logger
}

// EncoderConfig holds configuration for loading the ONNX encoder.
type EncoderConfig struct {
	// ModelPath is the model directory, holding model.onnx and vocab.txt.
	ModelPath string

	// MaxLen caps tokenized sequence length (0 = 128).
	MaxLen int

	// Lowercase folds input for uncased models.
	Lowercase bool

	// Engine names the computation engine configuration ("" = best
	// available).
	Engine string

	// Logger for logging (nil = no logging).
	Logger *zap.Logger
}

// NewEncoder loads the ONNX weights into a fresh model context and compiles
// the pooled-embedding graph.
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	onnxPath := filepath.Join(cfg.ModelPath, "model.onnx")
	if _, err := os.Stat(onnxPath); err != nil {
		return nil, fmt.Errorf("encoder model not found: %w", err)
	}
	tok, err := NewTokenizer(TokenizerConfig{
		VocabPath: filepath.Join(cfg.ModelPath, "vocab.txt"),
		MaxLen:    cfg.MaxLen,
		Lowercase: cfg.Lowercase,
	})
	if err != nil {
		return nil, err
	}

	onnxModel, err := parser.ParseFile(onnxPath)
	if err != nil {
		return nil, fmt.Errorf("reading onnx model: %w", err)
	}

	ctx := mlctx.New()
	if err := onnxModel.VariablesToContext(ctx); err != nil {
		return nil, fmt.Errorf("loading onnx variables: %w", err)
	}

	var engine backends.Backend
	if cfg.Engine != "" {
		engine, err = backends.NewWithConfig(cfg.Engine)
	} else {
		engine, err = backends.New()
	}
	if err != nil {
		return nil, fmt.Errorf("creating computation engine: %w", err)
	}

	e := &Encoder{
		tokenizer: tok,
		engine:    engine,
		mlCtx:     ctx,
		logger:    logger,
	}
	e.exec, err = mlctx.NewExecAny(engine, ctx, func(ctx *mlctx.Context, inputs []*graph.Node) []*graph.Node {
		g := inputs[0].Graph()
		hidden := onnxModel.CallGraph(ctx.Reuse(), g, map[string]*graph.Node{
			"input_ids":      inputs[0],
			"attention_mask": inputs[1],
			"token_type_ids": graph.ZerosLike(inputs[0]),
		})
		return []*graph.Node{meanPool(hidden[0], inputs[1])}
	})
	if err != nil {
		engine.Finalize()
		return nil, fmt.Errorf("compiling encoder graph: %w", err)
	}

	logger.Info("Response encoder loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.Int("max_len", tok.MaxLen()))
	return e, nil
}

// meanPool averages the hidden states over real (unmasked) token positions:
// [batch, seq, hidden] x [batch, seq] -> [batch, hidden].
func meanPool(hidden, attentionMask *graph.Node) *graph.Node {
	mask := graph.ConvertDType(attentionMask, dtypes.Float32)
	maskExp := graph.InsertAxes(mask, -1)
	summed := graph.ReduceSum(graph.Mul(hidden, maskExp), 1)
	counts := graph.InsertAxes(graph.ReduceSum(mask, 1), -1)
	counts = graph.Max(counts, graph.OnesLike(counts))
	return graph.Div(summed, counts)
}

// Encode returns one pooled vector per text.
func (e *Encoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputIDs, attentionMask, seqLen := e.tokenizer.encodeBatch(texts)
	outputs, err := e.exec.Exec(
		tensors.FromFlatDataAndDimensions(inputIDs, len(texts), seqLen),
		tensors.FromFlatDataAndDimensions(attentionMask, len(texts), seqLen),
	)
	if err != nil {
		return nil, fmt.Errorf("encoding batch of %d texts: %w", len(texts), err)
	}

	flat := tensors.MustCopyFlatData[float32](outputs[0])
	dim := len(flat) / len(texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = flat[i*dim : (i+1)*dim]
	}
	return vectors, nil
}

// Close releases the computation engine.
func (e *Encoder) Close() error {
	e.engine.Finalize()
	return nil
}
