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
	"math/rand"
	"unicode/utf8"
)

// WindowPlacement selects where the truncation window lands when a training
// document exceeds the sentence limit.
type WindowPlacement string

const (
	// WindowRandom picks a uniformly random contiguous sentence window.
	WindowRandom WindowPlacement = "random"
	// WindowHead keeps the first sentences of the document.
	WindowHead WindowPlacement = "head"
	// WindowTail keeps the last sentences of the document.
	WindowTail WindowPlacement = "tail"
)

// truncateDocument cuts a document down to a contiguous window of at most
// maxSentences sentences. Gold spans are re-offset to the window and spans
// falling outside it are dropped, along with clusters they empty out.
// Documents already within the limit come back unchanged. The second return
// is the index of the first kept sentence, for slicing parallel data.
func truncateDocument(doc *Document, maxSentences int, placement WindowPlacement, rng *rand.Rand) (*Document, int) {
	if maxSentences <= 0 || len(doc.Sentences) <= maxSentences {
		return doc, 0
	}

	var first int
	switch placement {
	case WindowHead:
		first = 0
	case WindowTail:
		first = len(doc.Sentences) - maxSentences
	default:
		first = rng.Intn(len(doc.Sentences) - maxSentences + 1)
	}

	wordOffset := 0
	for _, s := range doc.Sentences[:first] {
		wordOffset += len(s)
	}
	numWords := 0
	for _, s := range doc.Sentences[first : first+maxSentences] {
		numWords += len(s)
	}

	out := &Document{
		Key:       doc.Key,
		Sentences: doc.Sentences[first : first+maxSentences],
		Speakers:  doc.Speakers[first : first+maxSentences],
	}
	for _, cluster := range doc.Clusters {
		var kept []Span
		for _, s := range cluster {
			if s.Start >= wordOffset && s.End < wordOffset+numWords {
				kept = append(kept, Span{Start: s.Start - wordOffset, End: s.End - wordOffset})
			}
		}
		if len(kept) > 0 {
			out.Clusters = append(out.Clusters, kept)
		}
	}
	return out, first
}

// tensorized is one document converted into the flat buffers the model
// graph consumes, together with the Go-side span bookkeeping.
type tensorized struct {
	doc      *Document
	numWords int
	sentLens []int

	// Dense input dimensions.
	numSentences int
	maxSentLen   int
	embDim       int
	charWidth    int
	maxSpanWidth int

	wordEmb []float32 // [numSentences, maxSentLen, embDim]
	charIdx []int32   // [numSentences, maxSentLen, charWidth]
	textLen []int32   // [numSentences]
	flatIdx []int32   // [numWords] position of each token in the padded grid

	spans    []Span    // candidate spans in document order
	starts   []int32   // [numSpans]
	ends     []int32   // [numSpans]
	widthIdx []int32   // [numSpans] span width minus one
	spanIdx  []int32   // [numSpans, maxSpanWidth] token indices, clamped
	spanMask []float32 // [numSpans, maxSpanWidth] additive log mask

	speakerIDs []int
	genreID    int32
}

// newTensorized lays out a document and its word embeddings as model inputs.
// wordEmb must mirror doc.Sentences shape for a single embedding width.
func newTensorized(doc *Document, wordEmb [][][]float32, vocab *CharVocab, maxSpanWidth int, filterWidths []int, genreID int) (*tensorized, error) {
	if len(wordEmb) != len(doc.Sentences) {
		return nil, fmt.Errorf("doc %q: %d embedding sentences for %d token sentences",
			doc.Key, len(wordEmb), len(doc.Sentences))
	}

	t := &tensorized{
		doc:          doc,
		numWords:     doc.NumWords(),
		numSentences: len(doc.Sentences),
		maxSpanWidth: maxSpanWidth,
		speakerIDs:   doc.SpeakerIDs(),
		genreID:      int32(genreID),
	}

	t.sentLens = make([]int, t.numSentences)
	for i, s := range doc.Sentences {
		t.sentLens[i] = len(s)
		if len(wordEmb[i]) != len(s) {
			return nil, fmt.Errorf("doc %q: sentence %d has %d embeddings for %d tokens",
				doc.Key, i, len(wordEmb[i]), len(s))
		}
		if len(s) > t.maxSentLen {
			t.maxSentLen = len(s)
		}
	}
	if t.numSentences > 0 && len(wordEmb[0]) > 0 {
		t.embDim = len(wordEmb[0][0])
	}
	// Char indices are padded to at least the widest convolution filter so
	// every token admits every filter width.
	t.charWidth = maxFilterWidth(filterWidths)
	for _, sentence := range doc.Sentences {
		for _, token := range sentence {
			if n := utf8.RuneCountInString(token); n > t.charWidth {
				t.charWidth = n
			}
		}
	}

	t.wordEmb = make([]float32, t.numSentences*t.maxSentLen*t.embDim)
	t.charIdx = make([]int32, t.numSentences*t.maxSentLen*t.charWidth)
	t.textLen = make([]int32, t.numSentences)
	t.flatIdx = make([]int32, 0, t.numWords)
	for i, sentence := range doc.Sentences {
		t.textLen[i] = int32(len(sentence))
		for j, token := range sentence {
			grid := i*t.maxSentLen + j
			copy(t.wordEmb[grid*t.embDim:(grid+1)*t.embDim], wordEmb[i][j])
			copy(t.charIdx[grid*t.charWidth:(grid+1)*t.charWidth], vocab.Indices(token, t.charWidth))
			t.flatIdx = append(t.flatIdx, int32(grid))
		}
	}

	t.spans = enumerateSpans(t.sentLens, maxSpanWidth)
	n := len(t.spans)
	t.starts = make([]int32, n)
	t.ends = make([]int32, n)
	t.widthIdx = make([]int32, n)
	t.spanIdx = make([]int32, n*maxSpanWidth)
	t.spanMask = make([]float32, n*maxSpanWidth)
	for i, s := range t.spans {
		t.starts[i] = int32(s.Start)
		t.ends[i] = int32(s.End)
		t.widthIdx[i] = int32(s.Width() - 1)
		for j := 0; j < maxSpanWidth; j++ {
			tok := s.Start + j
			if tok > s.End {
				tok = s.End
				t.spanMask[i*maxSpanWidth+j] = logMaskOff
			}
			t.spanIdx[i*maxSpanWidth+j] = int32(tok)
		}
	}
	return t, nil
}

func maxFilterWidth(widths []int) int {
	max := 1
	for _, w := range widths {
		if w > max {
			max = w
		}
	}
	return max
}
