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

package coref

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"go.uber.org/zap"

	// Pure Go engine, always available.
	_ "github.com/gomlx/gomlx/backends/simplego"

	"github.com/anaphorlab/anaphor/lib/embeddings"
)

// Optimizer selects the parameter update rule.
type Optimizer string

const (
	OptimizerAdam Optimizer = "adam"
	OptimizerSGD  Optimizer = "sgd"
)

// EmbFormat selects how word embeddings reach the model.
type EmbFormat string

const (
	// EmbFormatStd resolves embeddings from raw tokens.
	EmbFormatStd EmbFormat = "std_emb"
	// EmbFormatCached retrieves precomputed embeddings by document key.
	EmbFormatCached EmbFormat = "cached"
)

// Config holds the model hyperparameters. Zero values take the documented
// defaults via Validate.
type Config struct {
	// EmbFormat must be one of EmbFormatStd or EmbFormatCached.
	EmbFormat EmbFormat `mapstructure:"emb_format"`

	CharEmbeddingSize int   `mapstructure:"char_embedding_size"` // default 8
	FilterSize        int   `mapstructure:"filter_size"`         // default 50
	FilterWidths      []int `mapstructure:"filter_widths"`       // default [3, 4, 5]

	MaxMentionWidth int     `mapstructure:"max_mention_width"` // default 10
	MentionRatio    float64 `mapstructure:"mention_ratio"`     // default 0.4
	MaxAntecedents  int     `mapstructure:"max_antecedents"`   // default 250

	LSTMSize    int `mapstructure:"lstm_size"`    // default 200
	FFNNSize    int `mapstructure:"ffnn_size"`    // default 150
	FFNNDepth   int `mapstructure:"ffnn_depth"`   // default 2
	FeatureSize int `mapstructure:"feature_size"` // default 20

	DropoutRate        float64 `mapstructure:"dropout_rate"`         // default 0.2
	LexicalDropoutRate float64 `mapstructure:"lexical_dropout_rate"` // default 0.5

	Optimizer      Optimizer `mapstructure:"optimizer"`       // default adam
	LearningRate   float64   `mapstructure:"learning_rate"`   // default 0.001
	DecayRate      float64   `mapstructure:"decay_rate"`      // default 0.999
	DecayFrequency int       `mapstructure:"decay_frequency"` // default 100
	FinalRate      float64   `mapstructure:"final_rate"`      // default 0.0002

	// TrainOnGold bypasses mention detection during training: the gold
	// mentions are scored directly with a fixed detection score.
	TrainOnGold bool `mapstructure:"train_on_gold"`

	MaxTrainingSentences int             `mapstructure:"max_training_sentences"` // default 50
	WindowPlacement      WindowPlacement `mapstructure:"window_placement"`       // default random

	// Genres lists the recognized document genre prefixes. Keys outside the
	// list fall back to the first entry.
	Genres []string `mapstructure:"genres"`

	// Engine names the computation engine configuration ("" = best
	// available).
	Engine string `mapstructure:"engine"`

	// Seed fixes the truncation window sampling (0 = time-based).
	Seed int64 `mapstructure:"seed"`
}

// DefaultGenres covers the OntoNotes genre prefixes.
var DefaultGenres = []string{"bc", "bn", "mz", "nw", "pt", "tc", "wb"}

// Validate applies defaults and rejects unusable configurations.
func (c *Config) Validate() error {
	switch c.EmbFormat {
	case EmbFormatStd, EmbFormatCached:
	case "":
		c.EmbFormat = EmbFormatStd
	default:
		return fmt.Errorf("emb_format must be %q or %q, got %q", EmbFormatStd, EmbFormatCached, c.EmbFormat)
	}
	switch c.Optimizer {
	case OptimizerAdam, OptimizerSGD:
	case "":
		c.Optimizer = OptimizerAdam
	default:
		return fmt.Errorf("optimizer must be %q or %q, got %q", OptimizerAdam, OptimizerSGD, c.Optimizer)
	}
	switch c.WindowPlacement {
	case WindowRandom, WindowHead, WindowTail:
	case "":
		c.WindowPlacement = WindowRandom
	default:
		return fmt.Errorf("window_placement must be random, head or tail, got %q", c.WindowPlacement)
	}

	setIntDefault(&c.CharEmbeddingSize, 8)
	setIntDefault(&c.FilterSize, 50)
	if len(c.FilterWidths) == 0 {
		c.FilterWidths = []int{3, 4, 5}
	}
	setIntDefault(&c.MaxMentionWidth, 10)
	setFloatDefault(&c.MentionRatio, 0.4)
	setIntDefault(&c.MaxAntecedents, 250)
	setIntDefault(&c.LSTMSize, 200)
	setIntDefault(&c.FFNNSize, 150)
	setIntDefault(&c.FFNNDepth, 2)
	setIntDefault(&c.FeatureSize, 20)
	setFloatDefault(&c.DropoutRate, 0.2)
	setFloatDefault(&c.LexicalDropoutRate, 0.5)
	setFloatDefault(&c.LearningRate, 0.001)
	setFloatDefault(&c.DecayRate, 0.999)
	setIntDefault(&c.DecayFrequency, 100)
	setFloatDefault(&c.FinalRate, 0.0002)
	setIntDefault(&c.MaxTrainingSentences, 50)
	if len(c.Genres) == 0 {
		c.Genres = DefaultGenres
	}

	for _, w := range c.FilterWidths {
		if w < 1 {
			return fmt.Errorf("filter widths must be positive, got %v", c.FilterWidths)
		}
	}
	if c.MentionRatio <= 0 || c.MentionRatio > 1 {
		return fmt.Errorf("mention_ratio must be in (0, 1], got %v", c.MentionRatio)
	}
	return nil
}

func setIntDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setFloatDefault(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}

// TrainStats aggregates the outcome of one training batch.
type TrainStats struct {
	Loss         float64 `json:"loss"`
	LearningRate float64 `json:"learning_rate"`
	Step         int64   `json:"step"`
	Documents    int     `json:"documents"`
	Skipped      int     `json:"skipped"`
}

// Model is the end-to-end coreference resolver: span enumeration in Go,
// scoring on the computation graph, greedy clustering back in Go. A Model is
// safe for concurrent Resolve calls; training takes the same lock.
type Model struct {
	cfg      Config
	logger   *zap.Logger
	embedder embeddings.Embedder
	vocab    *CharVocab

	engine backends.Backend
	mlCtx  *mlctx.Context

	candExec  *mlctx.Exec // candidate mention scores
	scoreExec *mlctx.Exec // antecedent scores for selected mentions
	trainExec *mlctx.Exec // loss plus one optimizer step

	rng    *rand.Rand
	rngMu  sync.Mutex
	mu     sync.Mutex
	closed bool
}

// NewModel compiles the scoring graphs and readies the model for Resolve and
// TrainOnBatch calls.
func NewModel(cfg Config, embedder embeddings.Embedder, vocab *CharVocab, logger *zap.Logger) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var engine backends.Backend
	var err error
	if cfg.Engine != "" {
		engine, err = backends.NewWithConfig(cfg.Engine)
	} else {
		engine, err = backends.New()
	}
	if err != nil {
		return nil, fmt.Errorf("creating computation engine: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Model{
		cfg:      cfg,
		logger:   logger.Named("coref"),
		embedder: embedder,
		vocab:    vocab,
		engine:   engine,
		mlCtx:    mlctx.New(),
		rng:      rand.New(rand.NewSource(seed)),
	}
	b := &graphBuilder{cfg: &m.cfg, charVocabSize: vocab.Size()}

	m.candExec, err = mlctx.NewExecAny(engine, m.mlCtx, func(ctx *mlctx.Context, inputs []*graph.Node) []*graph.Node {
		ctx = ctx.Checked(false).In("coref")
		spans := b.buildSpanRepresentations(ctx, inputs, false)
		return []*graph.Node{spans.mentionScores}
	})
	if err != nil {
		engine.Finalize()
		return nil, fmt.Errorf("compiling mention scorer: %w", err)
	}

	m.scoreExec, err = mlctx.NewExecAny(engine, m.mlCtx, func(ctx *mlctx.Context, inputs []*graph.Node) []*graph.Node {
		ctx = ctx.Checked(false).In("coref")
		spans := b.buildSpanRepresentations(ctx, inputs, false)
		scores := b.buildAntecedentScores(ctx, spans, inputs, false, false)
		return []*graph.Node{scores}
	})
	if err != nil {
		engine.Finalize()
		return nil, fmt.Errorf("compiling antecedent scorer: %w", err)
	}

	m.trainExec, err = mlctx.NewExecAny(engine, m.mlCtx, func(ctx *mlctx.Context, inputs []*graph.Node) []*graph.Node {
		scoped := ctx.Checked(false).In("coref")
		spans := b.buildSpanRepresentations(scoped, inputs, true)
		scores := b.buildAntecedentScores(scoped, spans, inputs, true, m.cfg.TrainOnGold)
		loss := marginalLoss(scores, inputs[inLabels])
		lr, step := applyOptimizer(ctx.Checked(false), loss, &m.cfg)
		return []*graph.Node{loss, lr, step}
	})
	if err != nil {
		engine.Finalize()
		return nil, fmt.Errorf("compiling training step: %w", err)
	}

	m.logger.Info("Coreference model ready",
		zap.String("emb_format", string(cfg.EmbFormat)),
		zap.String("optimizer", string(cfg.Optimizer)),
		zap.Bool("train_on_gold", cfg.TrainOnGold),
		zap.Int("embedding_dim", embedder.Dim()))
	return m, nil
}

// Resolve predicts the coreference clusters of one document.
func (m *Model) Resolve(ctx context.Context, doc *Document) (*Resolution, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	t, err := m.tensorizeDocument(ctx, doc, false)
	if err != nil {
		return nil, err
	}

	mentions, mentionIdx, err := m.detectMentions(t)
	if err != nil {
		return nil, err
	}
	if len(mentions) < 2 {
		return &Resolution{MentionToCluster: map[Span]int{}}, nil
	}

	antecedents, _, antMask := antecedentCandidates(len(mentions), m.cfg.MaxAntecedents)
	sameSpeaker, distBins := pairFeatures(mentions, t.speakerIDs, antecedents)

	args := t.candidateArgs()
	args = append(args, m.pairArgs(t, mentionIdx, antecedents, antMask, sameSpeaker, distBins)...)
	outputs, err := m.scoreExec.Exec(args...)
	if err != nil {
		return nil, fmt.Errorf("scoring antecedents for doc %q: %w", doc.Key, err)
	}
	scores := tensors.MustCopyFlatData[float32](outputs[0])

	cols := len(antecedents[0]) + 1
	preds := predictedAntecedents(scores, len(mentions), cols, antecedents)
	return buildClusters(mentions, preds), nil
}

// TrainOnBatch runs one optimizer step per document and aggregates the
// losses. Documents that yield no trainable mention pairs are skipped.
func (m *Model) TrainOnBatch(ctx context.Context, docs []Document) (*TrainStats, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	stats := &TrainStats{}
	for i := range docs {
		doc := &docs[i]
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		t, err := m.tensorizeDocument(ctx, doc, true)
		if err != nil {
			return nil, err
		}

		var mentions []Span
		var mentionIdx []int32
		if m.cfg.TrainOnGold {
			mentions, mentionIdx = m.goldMentions(t)
		} else {
			mentions, mentionIdx, err = m.detectMentions(t)
			if err != nil {
				return nil, err
			}
		}
		if len(mentions) < 2 {
			m.logger.Debug("Skipping document with too few mentions",
				zap.String("doc_key", t.doc.Key),
				zap.Int("mentions", len(mentions)))
			stats.Skipped++
			continue
		}

		antecedents, lens, antMask := antecedentCandidates(len(mentions), m.cfg.MaxAntecedents)
		sameSpeaker, distBins := pairFeatures(mentions, t.speakerIDs, antecedents)
		clusterIDs := mentionClusterIDs(mentions, t.doc.Clusters)
		labels := goldLabels(clusterIDs, antecedents, lens)

		args := t.candidateArgs()
		args = append(args, m.pairArgs(t, mentionIdx, antecedents, antMask, sameSpeaker, distBins)...)
		args = append(args, tensors.FromFlatDataAndDimensions(flatten2D(labels), len(labels), len(labels[0])))

		outputs, err := m.trainExec.Exec(args...)
		if err != nil {
			return nil, fmt.Errorf("training on doc %q: %w", t.doc.Key, err)
		}
		stats.Loss += float64(tensors.MustCopyFlatData[float32](outputs[0])[0])
		stats.LearningRate = float64(tensors.MustCopyFlatData[float32](outputs[1])[0])
		stats.Step = int64(tensors.MustCopyFlatData[float32](outputs[2])[0])
		stats.Documents++
	}
	return stats, nil
}

// Step returns the number of optimizer steps taken so far.
func (m *Model) Step() int64 {
	v := m.mlCtx.GetVariableByScopeAndName("/optimizer", "global_step")
	if v == nil {
		return 0
	}
	return int64(tensors.MustCopyFlatData[float32](v.MustValue())[0])
}

// Destroy releases the computation engine. The model is unusable afterwards.
func (m *Model) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.engine.Finalize()
	m.logger.Info("Coreference model destroyed")
}

func (m *Model) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("coreference model has been destroyed")
	}
	return nil
}

// tensorizeDocument embeds the document and lays it out as graph inputs,
// truncating training documents that exceed the sentence limit.
func (m *Model) tensorizeDocument(ctx context.Context, doc *Document, train bool) (*tensorized, error) {
	var emb [][][]float32
	var err error
	switch m.cfg.EmbFormat {
	case EmbFormatCached:
		emb, err = m.embedder.EmbedDoc(ctx, doc.Key)
	default:
		emb, err = m.embedder.EmbedTokens(ctx, doc.Sentences)
	}
	if err != nil {
		return nil, fmt.Errorf("embedding doc %q: %w", doc.Key, err)
	}
	if len(emb) != len(doc.Sentences) {
		return nil, fmt.Errorf("doc %q: embedder returned %d sentences, want %d",
			doc.Key, len(emb), len(doc.Sentences))
	}

	if train {
		m.rngMu.Lock()
		truncated, first := truncateDocument(doc, m.cfg.MaxTrainingSentences, m.cfg.WindowPlacement, m.rng)
		m.rngMu.Unlock()
		if truncated != doc {
			m.logger.Debug("Truncated document",
				zap.String("doc_key", doc.Key),
				zap.Int("sentences", len(doc.Sentences)),
				zap.Int("kept", len(truncated.Sentences)),
				zap.Int("first", first))
			emb = emb[first : first+len(truncated.Sentences)]
			doc = truncated
		}
	}

	return newTensorized(doc, emb, m.vocab, m.cfg.MaxMentionWidth, m.cfg.FilterWidths, m.genreID(doc))
}

// detectMentions scores all candidate spans and keeps the top fraction,
// restored to document order.
func (m *Model) detectMentions(t *tensorized) ([]Span, []int32, error) {
	outputs, err := m.candExec.Exec(t.candidateArgs()...)
	if err != nil {
		return nil, nil, fmt.Errorf("scoring mentions for doc %q: %w", t.doc.Key, err)
	}
	scores := tensors.MustCopyFlatData[float32](outputs[0])

	k := int(float64(t.numWords) * m.cfg.MentionRatio)
	selected := topKMentions(scores, k)
	mentions := make([]Span, len(selected))
	mentionIdx := make([]int32, len(selected))
	for i, idx := range selected {
		mentions[i] = t.spans[idx]
		mentionIdx[i] = int32(idx)
	}
	return mentions, mentionIdx, nil
}

// goldMentions maps the gold cluster spans onto candidate indices, in
// document order. Gold spans outside the candidate enumeration (wider than
// the mention limit or crossing a sentence boundary) are dropped.
func (m *Model) goldMentions(t *tensorized) ([]Span, []int32) {
	bySpan := make(map[Span]int, len(t.spans))
	for i, s := range t.spans {
		bySpan[s] = i
	}
	seen := make(map[Span]bool)
	var mentions []Span
	for _, cluster := range t.doc.Clusters {
		for _, s := range cluster {
			if seen[s] {
				continue
			}
			seen[s] = true
			if _, ok := bySpan[s]; ok {
				mentions = append(mentions, s)
			} else {
				m.logger.Warn("Gold mention outside candidate spans",
					zap.String("doc_key", t.doc.Key),
					zap.Int("start", s.Start),
					zap.Int("end", s.End))
			}
		}
	}
	sort.Slice(mentions, func(a, b int) bool {
		if mentions[a].Start != mentions[b].Start {
			return mentions[a].Start < mentions[b].Start
		}
		return mentions[a].End < mentions[b].End
	})
	mentionIdx := make([]int32, len(mentions))
	for i, s := range mentions {
		mentionIdx[i] = int32(bySpan[s])
	}
	return mentions, mentionIdx
}

func (m *Model) genreID(doc *Document) int {
	genre := doc.Genre()
	for i, g := range m.cfg.Genres {
		if g == genre {
			return i
		}
	}
	m.logger.Debug("Unknown genre, using first configured genre",
		zap.String("doc_key", doc.Key),
		zap.String("genre", genre))
	return 0
}

// candidateArgs lays out the encoder inputs in graph order.
func (t *tensorized) candidateArgs() []any {
	return []any{
		tensors.FromFlatDataAndDimensions(t.wordEmb, t.numSentences, t.maxSentLen, t.embDim),
		tensors.FromFlatDataAndDimensions(t.charIdx, t.numSentences, t.maxSentLen, t.charWidth),
		tensors.FromFlatDataAndDimensions(t.textLen, t.numSentences),
		tensors.FromFlatDataAndDimensions(t.flatIdx, t.numWords),
		tensors.FromFlatDataAndDimensions(t.starts, len(t.spans)),
		tensors.FromFlatDataAndDimensions(t.ends, len(t.spans)),
		tensors.FromFlatDataAndDimensions(t.widthIdx, len(t.spans)),
		tensors.FromFlatDataAndDimensions(t.spanIdx, len(t.spans), t.maxSpanWidth),
		tensors.FromFlatDataAndDimensions(t.spanMask, len(t.spans), t.maxSpanWidth),
	}
}

// pairArgs lays out the antecedent-scoring inputs in graph order.
func (m *Model) pairArgs(t *tensorized, mentionIdx []int32, antecedents [][]int32, antMask [][]float32, sameSpeaker, distBins [][]int32) []any {
	numMentions := len(mentionIdx)
	numAnt := len(antecedents[0])
	return []any{
		tensors.FromFlatDataAndDimensions(mentionIdx, numMentions),
		tensors.FromFlatDataAndDimensions([]int32{t.genreID}, 1),
		tensors.FromFlatDataAndDimensions(flatten2D(sameSpeaker), numMentions, numAnt),
		tensors.FromFlatDataAndDimensions(flatten2D(distBins), numMentions, numAnt),
		tensors.FromFlatDataAndDimensions(flatten2D(antecedents), numMentions, numAnt),
		tensors.FromFlatDataAndDimensions(flatten2D(antMask), numMentions, numAnt),
	}
}

func flatten2D[T any](rows [][]T) []T {
	if len(rows) == 0 {
		return nil
	}
	out := make([]T, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}
