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
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Graph input layout. Candidate scoring consumes the first nine tensors;
// antecedent scoring appends mention selection and pair features; training
// appends the gold label matrix.
const (
	inWordEmb     = iota // f32 [sentences, maxLen, embDim]
	inCharIdx            // i32 [sentences, maxLen, charWidth]
	inTextLen            // i32 [sentences]
	inFlatIdx            // i32 [numWords]
	inStarts             // i32 [numSpans]
	inEnds               // i32 [numSpans]
	inWidthIdx           // i32 [numSpans]
	inSpanIdx            // i32 [numSpans, maxSpanWidth]
	inSpanMask           // f32 [numSpans, maxSpanWidth]
	inMentionIdx         // i32 [m]
	inGenre              // i32 [1]
	inSameSpeaker        // i32 [m, a]
	inDistBins           // i32 [m, a]
	inAntecedents        // i32 [m, a]
	inAntMask            // f32 [m, a]
	inLabels             // f32 [m, a+1]

	numCandidateInputs = inMentionIdx
	numScoreInputs     = inLabels
)

// graphBuilder assembles the scoring graphs. A single builder is shared by
// the inference and training graphs of one model; variables are shared
// through the model context scopes.
type graphBuilder struct {
	cfg           *Config
	charVocabSize int
}

// spanNodes carries the per-candidate representations between the stages of
// one graph.
type spanNodes struct {
	spanEmb       *Node // [numSpans, spanDim]
	mentionScores *Node // [numSpans]
}

// buildSpanRepresentations encodes the document and produces one embedding
// and one mention score per candidate span.
func (b *graphBuilder) buildSpanRepresentations(ctx *mlctx.Context, inputs []*Node, train bool) spanNodes {
	cfg := b.cfg
	wordEmb := inputs[inWordEmb]
	charIdx := inputs[inCharIdx]
	textLen := inputs[inTextLen]
	flatIdx := inputs[inFlatIdx]
	g := wordEmb.Graph()

	numSentences := wordEmb.Shape().Dimensions[0]
	maxLen := wordEmb.Shape().Dimensions[1]

	// Mask of real (non padding) token positions, [sentences, maxLen, 1].
	positions := Iota(g, shapes.Make(dtypes.Int32, numSentences, maxLen), 1)
	validMask := ConvertDType(LessThan(positions, InsertAxes(textLen, -1)), dtypes.Float32)
	validMask = InsertAxes(validMask, -1)

	charOut := b.charCNN(ctx.In("char"), charIdx)
	headEmb := Concatenate([]*Node{wordEmb, charOut}, -1)
	lexical := headEmb
	if train {
		lexical = dropout(ctx.In("lexical_dropout"), lexical, cfg.LexicalDropoutRate)
	}

	lstmOut := encodeSentences(ctx.In("lstm"), lexical, validMask, cfg.LSTMSize, cfg.DropoutRate, train)

	// Flatten the padded grid down to the real tokens.
	flatGather := InsertAxes(flatIdx, -1)
	textOutputs := Gather(Reshape(lstmOut, numSentences*maxLen, 2*cfg.LSTMSize), flatGather)
	if train {
		textOutputs = dropout(ctx.In("text_dropout"), textOutputs, cfg.DropoutRate)
	}
	headInputs := Gather(Reshape(headEmb, numSentences*maxLen, headEmb.Shape().Dimensions[2]), flatGather)

	headScores := layers.DenseWithBias(ctx.In("head_scores"), textOutputs, 1) // [numWords, 1]

	startEmb := Gather(textOutputs, InsertAxes(inputs[inStarts], -1))
	endEmb := Gather(textOutputs, InsertAxes(inputs[inEnds], -1))
	// The explicit trailing index axis keeps layers.Embedding from treating a
	// size-1 last dimension as an already-inserted index axis.
	widthEmb := layers.Embedding(ctx.In("width_emb"), InsertAxes(inputs[inWidthIdx], -1), dtypes.Float32, cfg.MaxMentionWidth, cfg.FeatureSize)
	if train {
		widthEmb = dropout(ctx.In("width_dropout"), widthEmb, cfg.DropoutRate)
	}

	// Attention over the tokens of each span, masked past the span end.
	spanGather := InsertAxes(inputs[inSpanIdx], -1)
	attnLogits := Add(Squeeze(Gather(headScores, spanGather), -1), inputs[inSpanMask])
	attn := Softmax(attnLogits) // [numSpans, maxSpanWidth]
	spanTokens := Gather(headInputs, spanGather)
	spanHeadEmb := ReduceSum(Mul(InsertAxes(attn, -1), spanTokens), 1)

	spanEmb := Concatenate([]*Node{startEmb, endEmb, widthEmb, spanHeadEmb}, -1)
	mentionScores := Squeeze(b.ffnn(ctx.In("mention_scores"), spanEmb, train), -1)
	return spanNodes{spanEmb: spanEmb, mentionScores: mentionScores}
}

// charCNN embeds token characters and max-pools a bank of dense filters over
// sliding character windows, one filter set per configured width.
func (b *graphBuilder) charCNN(ctx *mlctx.Context, charIdx *Node) *Node {
	cfg := b.cfg
	dims := charIdx.Shape().Dimensions
	numSentences, maxLen, charWidth := dims[0], dims[1], dims[2]

	charEmb := layers.Embedding(ctx.In("emb"), charIdx, dtypes.Float32, b.charVocabSize, cfg.CharEmbeddingSize)

	pooled := make([]*Node, 0, len(cfg.FilterWidths))
	for _, w := range cfg.FilterWidths {
		numWindows := charWidth - w + 1
		windows := make([]*Node, numWindows)
		for o := 0; o < numWindows; o++ {
			win := Slice(charEmb, AxisRange(), AxisRange(), AxisRange(o, o+w), AxisRange())
			win = Reshape(win, numSentences, maxLen, w*cfg.CharEmbeddingSize)
			windows[o] = InsertAxes(win, 2)
		}
		stacked := Concatenate(windows, 2) // [sentences, maxLen, numWindows, w*charEmb]
		conv := layers.DenseWithBias(ctx.In(fmt.Sprintf("conv_w%d", w)), stacked, cfg.FilterSize)
		conv = activations.Relu(conv)
		pooled = append(pooled, ReduceMax(conv, 2))
	}
	return Concatenate(pooled, -1)
}

// buildAntecedentScores scores every (mention, antecedent) pair and prepends
// the fixed-zero "no antecedent" column. goldMentions pins the mention
// scores to one instead of gathering learned detection scores.
func (b *graphBuilder) buildAntecedentScores(ctx *mlctx.Context, spans spanNodes, inputs []*Node, train, goldMentions bool) *Node {
	cfg := b.cfg
	mentionIdx := inputs[inMentionIdx]
	antecedents := inputs[inAntecedents]
	g := mentionIdx.Graph()
	m := mentionIdx.Shape().Dimensions[0]
	a := antecedents.Shape().Dimensions[1]

	mentionEmb := Gather(spans.spanEmb, InsertAxes(mentionIdx, -1)) // [m, spanDim]
	spanDim := mentionEmb.Shape().Dimensions[1]

	var mentionScores *Node
	if goldMentions {
		mentionScores = Ones(g, shapes.Make(dtypes.Float32, m))
	} else {
		mentionScores = Gather(spans.mentionScores, InsertAxes(mentionIdx, -1))
	}

	// The explicit trailing index axes keep layers.Embedding from treating a
	// size-1 last dimension (a==1 or the always size-1 genre) as an
	// already-inserted index axis.
	speakerEmb := layers.Embedding(ctx.In("same_speaker_emb"), InsertAxes(inputs[inSameSpeaker], -1), dtypes.Float32, 2, cfg.FeatureSize)
	distEmb := layers.Embedding(ctx.In("distance_emb"), InsertAxes(inputs[inDistBins], -1), dtypes.Float32, numDistanceBuckets, cfg.FeatureSize)
	genreEmb := layers.Embedding(ctx.In("genre_emb"), InsertAxes(inputs[inGenre], -1), dtypes.Float32, len(cfg.Genres), cfg.FeatureSize)
	genreTiled := BroadcastToDims(InsertAxes(genreEmb, 1), m, a, cfg.FeatureSize)
	featEmb := Concatenate([]*Node{speakerEmb, genreTiled, distEmb}, -1)
	if train {
		featEmb = dropout(ctx.In("feature_dropout"), featEmb, cfg.DropoutRate)
	}

	antEmb := Gather(mentionEmb, InsertAxes(antecedents, -1)) // [m, a, spanDim]
	targetEmb := BroadcastToDims(InsertAxes(mentionEmb, 1), m, a, spanDim)
	similarity := Mul(targetEmb, antEmb)
	pairEmb := Concatenate([]*Node{targetEmb, antEmb, similarity, featEmb}, -1)

	scores := Squeeze(b.ffnn(ctx.In("antecedent_scores"), pairEmb, train), -1) // [m, a]
	scores = Add(scores, inputs[inAntMask])
	scores = Add(scores, InsertAxes(mentionScores, -1))
	scores = Add(scores, Gather(mentionScores, InsertAxes(antecedents, -1)))

	dummy := Zeros(g, shapes.Make(dtypes.Float32, m, 1))
	return Concatenate([]*Node{dummy, scores}, -1) // [m, a+1]
}

// numDistanceBuckets matches distanceBucket's range.
const numDistanceBuckets = 10

// ffnn applies the scoring feed-forward stack: hidden relu layers followed
// by a single-output projection.
func (b *graphBuilder) ffnn(ctx *mlctx.Context, x *Node, train bool) *Node {
	cfg := b.cfg
	for d := 0; d < cfg.FFNNDepth; d++ {
		x = activations.Relu(layers.DenseWithBias(ctx.In(fmt.Sprintf("hidden_%d", d)), x, cfg.FFNNSize))
		if train {
			x = dropout(ctx.In(fmt.Sprintf("dropout_%d", d)), x, cfg.DropoutRate)
		}
	}
	return layers.DenseWithBias(ctx.In("output"), x, 1)
}

// marginalLoss is the marginalized negative log-likelihood over gold
// antecedents: logsumexp of all scores minus logsumexp of gold scores.
func marginalLoss(scores, labels *Node) *Node {
	gold := Add(scores, Log(labels))
	perMention := Sub(logSumExpLastAxis(scores), logSumExpLastAxis(gold))
	return ReduceAllSum(perMention)
}

// logSumExpLastAxis reduces the last axis in log space, shifted by the row
// max for stability.
func logSumExpLastAxis(x *Node) *Node {
	max := StopGradient(ReduceMax(x, -1))
	shifted := Sub(x, InsertAxes(max, -1))
	return Add(Log(ReduceSum(Exp(shifted), -1)), max)
}

// dropout zeroes each element with probability rate and rescales survivors.
func dropout(ctx *mlctx.Context, x *Node, rate float64) *Node {
	if rate <= 0 {
		return x
	}
	g := x.Graph()
	keep := 1 - rate
	u := ctx.RandomUniform(g, x.Shape())
	mask := ConvertDType(LessThan(u, Scalar(g, dtypes.Float32, keep)), dtypes.Float32)
	return DivScalar(Mul(x, mask), keep)
}

// learningRate evaluates the staircase exponential decay schedule with a
// floor, from the current step.
func learningRate(g *Graph, cfg *Config, step *Node) *Node {
	decayed := MulScalar(
		Pow(Scalar(g, dtypes.Float32, cfg.DecayRate), Floor(DivScalar(step, float64(cfg.DecayFrequency)))),
		cfg.LearningRate)
	return Max(decayed, Scalar(g, dtypes.Float32, cfg.FinalRate))
}

// applyOptimizer differentiates loss with respect to every trainable
// variable and applies one update step in-graph. It returns the learning
// rate used and the incremented step counter.
func applyOptimizer(ctx *mlctx.Context, loss *Node, cfg *Config) (lr, step *Node) {
	g := loss.Graph()
	optCtx := ctx.In("optimizer")

	stepVar := optCtx.VariableWithShape("global_step", shapes.Make(dtypes.Float32))
	stepVar.Trainable = false
	stepNode := stepVar.ValueGraph(g)
	lr = learningRate(g, cfg, stepNode)

	var trainable []*mlctx.Variable
	ctx.EnumerateVariables(func(v *mlctx.Variable) {
		if v.Trainable {
			trainable = append(trainable, v)
		}
	})

	params := make([]*Node, len(trainable))
	for i, v := range trainable {
		params[i] = v.ValueGraph(g)
	}
	grads := Gradient(loss, params...)

	switch cfg.Optimizer {
	case OptimizerSGD:
		for i, v := range trainable {
			v.SetValueGraph(Sub(params[i], Mul(lr, grads[i])))
		}
	default:
		applyAdam(optCtx.In("adam"), g, trainable, params, grads, lr, stepNode)
	}

	step = AddScalar(stepNode, 1)
	stepVar.SetValueGraph(step)
	return lr, step
}

// Adam constants.
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

func applyAdam(ctx *mlctx.Context, g *Graph, trainable []*mlctx.Variable, params, grads []*Node, lr, step *Node) {
	// Bias correction uses the one-based step number.
	t := AddScalar(step, 1)
	beta1T := Pow(Scalar(g, dtypes.Float32, adamBeta1), t)
	beta2T := Pow(Scalar(g, dtypes.Float32, adamBeta2), t)

	for i, v := range trainable {
		slot := slotName(v)
		mVar := ctx.VariableWithShape(slot+"_m", v.Shape())
		mVar.Trainable = false
		vVar := ctx.VariableWithShape(slot+"_v", v.Shape())
		vVar.Trainable = false

		m := Add(MulScalar(mVar.ValueGraph(g), adamBeta1), MulScalar(grads[i], 1-adamBeta1))
		vv := Add(MulScalar(vVar.ValueGraph(g), adamBeta2), MulScalar(Mul(grads[i], grads[i]), 1-adamBeta2))
		mHat := Div(m, OneMinus(beta1T))
		vHat := Div(vv, OneMinus(beta2T))
		update := Div(Mul(lr, mHat), AddScalar(Sqrt(vHat), adamEpsilon))

		mVar.SetValueGraph(m)
		vVar.SetValueGraph(vv)
		v.SetValueGraph(Sub(params[i], update))
	}
}

func slotName(v *mlctx.Variable) string {
	return strings.ReplaceAll(v.Scope(), "/", ".") + "." + v.Name()
}
