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
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// lstmState is the recurrent state of one direction: cell and hidden, both
// [batch, size].
type lstmState struct {
	c *Node
	h *Node
}

// lstmCell advances the highway-style cell one step. The three gates come
// from a single projection of [input, hidden]; the forget gate is tied to
// one minus the input gate.
func lstmCell(ctx *mlctx.Context, x *Node, state lstmState, size int) lstmState {
	gates := layers.DenseWithBias(ctx, Concatenate([]*Node{x, state.h}, -1), 3*size)
	i := Sigmoid(Slice(gates, AxisRange(), AxisRange(0, size)))
	j := Tanh(Slice(gates, AxisRange(), AxisRange(size, 2*size)))
	o := Sigmoid(Slice(gates, AxisRange(), AxisRange(2*size, 3*size)))

	c := Add(Mul(OneMinus(i), state.c), Mul(i, j))
	h := Mul(Tanh(c), o)
	return lstmState{c: c, h: h}
}

// initialLSTMState tiles the learned initial cell and hidden vectors across
// the batch.
func initialLSTMState(ctx *mlctx.Context, g *Graph, batch, size int) lstmState {
	c := ctx.VariableWithShape("initial_cell", shapes.Make(dtypes.Float32, 1, size)).ValueGraph(g)
	h := ctx.VariableWithShape("initial_hidden", shapes.Make(dtypes.Float32, 1, size)).ValueGraph(g)
	return lstmState{
		c: BroadcastToDims(c, batch, size),
		h: BroadcastToDims(h, batch, size),
	}
}

// runLSTM unrolls one direction over the padded sentence batch.
// inputs is [sentences, maxLen, dim]; validMask is [sentences, maxLen, 1]
// with 1 at real tokens. Padded steps carry the previous state through.
// When hiddenKeep is non-nil it is a variational dropout mask applied to the
// hidden state fed into the next step. Returns [sentences, maxLen, size].
func runLSTM(ctx *mlctx.Context, inputs, validMask *Node, size int, backward bool, hiddenKeep *Node) *Node {
	g := inputs.Graph()
	numSentences := inputs.Shape().Dimensions[0]
	maxLen := inputs.Shape().Dimensions[1]
	dim := inputs.Shape().Dimensions[2]

	state := initialLSTMState(ctx.In("init"), g, numSentences, size)
	outputs := make([]*Node, maxLen)
	for step := 0; step < maxLen; step++ {
		t := step
		if backward {
			t = maxLen - 1 - step
		}
		x := Reshape(Slice(inputs, AxisRange(), AxisElem(t), AxisRange()), numSentences, dim)
		mask := Reshape(Slice(validMask, AxisRange(), AxisElem(t), AxisRange()), numSentences, 1)

		h := state.h
		if hiddenKeep != nil {
			h = Mul(h, hiddenKeep)
		}
		next := lstmCell(ctx.In("cell"), x, lstmState{c: state.c, h: h}, size)

		// Padded positions keep the previous state.
		state = lstmState{
			c: Add(Mul(mask, next.c), Mul(OneMinus(mask), state.c)),
			h: Add(Mul(mask, next.h), Mul(OneMinus(mask), state.h)),
		}
		outputs[t] = InsertAxes(state.h, 1)
	}
	return Concatenate(outputs, 1)
}

// encodeSentences runs the bidirectional recurrent encoder over the padded
// sentence batch and returns [sentences, maxLen, 2*size].
func encodeSentences(ctx *mlctx.Context, inputs, validMask *Node, size int, dropoutRate float64, train bool) *Node {
	g := inputs.Graph()
	numSentences := inputs.Shape().Dimensions[0]

	var fwKeep, bwKeep *Node
	if train && dropoutRate > 0 {
		fwKeep = dropoutKeepMask(ctx.In("fw"), g, dropoutRate, numSentences, size)
		bwKeep = dropoutKeepMask(ctx.In("bw"), g, dropoutRate, numSentences, size)
	}
	fw := runLSTM(ctx.In("fw"), inputs, validMask, size, false, fwKeep)
	bw := runLSTM(ctx.In("bw"), inputs, validMask, size, true, bwKeep)
	return Concatenate([]*Node{fw, bw}, -1)
}

// dropoutKeepMask samples a rescaled keep mask of shape [batch, size],
// shared across timesteps.
func dropoutKeepMask(ctx *mlctx.Context, g *Graph, rate float64, batch, size int) *Node {
	keep := 1 - rate
	u := ctx.RandomUniform(g, shapes.Make(dtypes.Float32, batch, size))
	mask := ConvertDType(LessThan(u, Scalar(g, dtypes.Float32, keep)), dtypes.Float32)
	return DivScalar(mask, keep)
}
