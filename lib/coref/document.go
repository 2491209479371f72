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

// Package coref implements end-to-end neural coreference resolution:
// mention detection over enumerated spans, pairwise antecedent scoring,
// and greedy cluster construction.
package coref

import (
	"fmt"

	"github.com/anaphorlab/anaphor/lib/textproc"
)

// Span is a contiguous token range over a flattened document, inclusive on
// both ends.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Width returns the number of tokens the span covers.
func (s Span) Width() int {
	return s.End - s.Start + 1
}

// Document is a single tokenized document with per-token speaker labels and,
// during training, gold coreference clusters.
type Document struct {
	// Key identifies the document; its first two characters name the genre.
	Key string `json:"doc_key"`

	// Sentences holds the document tokens, one slice per sentence.
	Sentences [][]string `json:"sentences"`

	// Speakers mirrors Sentences with one speaker label per token.
	Speakers [][]string `json:"speakers"`

	// Clusters holds gold coreference clusters as groups of spans over the
	// flattened token sequence. Empty outside of training.
	Clusters [][]Span `json:"clusters,omitempty"`
}

// Validate checks the structural invariants a document must satisfy before
// tensorization.
func (d *Document) Validate() error {
	if len(d.Key) < 2 {
		return fmt.Errorf("doc key %q too short to carry a genre prefix", d.Key)
	}
	if len(d.Sentences) == 0 {
		return fmt.Errorf("doc %q has no sentences", d.Key)
	}
	if len(d.Speakers) != len(d.Sentences) {
		return fmt.Errorf("doc %q: %d speaker sentences for %d token sentences",
			d.Key, len(d.Speakers), len(d.Sentences))
	}
	for i, sentence := range d.Sentences {
		if len(sentence) == 0 {
			return fmt.Errorf("doc %q: sentence %d is empty", d.Key, i)
		}
		if len(d.Speakers[i]) != len(sentence) {
			return fmt.Errorf("doc %q: sentence %d has %d speakers for %d tokens",
				d.Key, i, len(d.Speakers[i]), len(sentence))
		}
	}
	numWords := d.NumWords()
	for ci, cluster := range d.Clusters {
		for _, span := range cluster {
			if span.Start < 0 || span.End >= numWords || span.Start > span.End {
				return fmt.Errorf("doc %q: cluster %d span (%d,%d) out of range for %d words",
					d.Key, ci, span.Start, span.End, numWords)
			}
		}
	}
	return nil
}

// Genre returns the two-character genre prefix of the document key.
func (d *Document) Genre() string {
	if len(d.Key) < 2 {
		return ""
	}
	return d.Key[:2]
}

// NumWords returns the total token count across sentences.
func (d *Document) NumWords() int {
	n := 0
	for _, s := range d.Sentences {
		n += len(s)
	}
	return n
}

// FlatTokens returns the document tokens as a single flattened slice.
func (d *Document) FlatTokens() []string {
	return textproc.Flatten(d.Sentences)
}

// SpeakerIDs assigns a small integer to each distinct speaker label, in
// order of first appearance, and returns one id per flattened token.
func (d *Document) SpeakerIDs() []int {
	ids := make([]int, 0, d.NumWords())
	byName := make(map[string]int)
	for _, sentence := range d.Speakers {
		for _, name := range sentence {
			id, ok := byName[name]
			if !ok {
				id = len(byName)
				byName[name] = id
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// Record is the wire shape of a resolution or training request: parallel
// batches of documents, one entry per document in each field.
type Record struct {
	DocKeys   []string     `json:"doc_key"`
	Sentences [][][]string `json:"sentences"`
	Speakers  [][][]string `json:"speakers"`
	Clusters  [][][]Span   `json:"clusters,omitempty"`
}

// Documents unwraps the batch into validated per-document structs.
func (r *Record) Documents() ([]Document, error) {
	if len(r.Sentences) != len(r.DocKeys) || len(r.Speakers) != len(r.DocKeys) {
		return nil, fmt.Errorf("batch of %d doc keys with %d sentence and %d speaker entries",
			len(r.DocKeys), len(r.Sentences), len(r.Speakers))
	}
	if r.Clusters != nil && len(r.Clusters) != len(r.DocKeys) {
		return nil, fmt.Errorf("batch of %d doc keys with %d cluster entries",
			len(r.DocKeys), len(r.Clusters))
	}
	docs := make([]Document, len(r.DocKeys))
	for i := range r.DocKeys {
		docs[i] = Document{
			Key:       r.DocKeys[i],
			Sentences: r.Sentences[i],
			Speakers:  r.Speakers[i],
		}
		if r.Clusters != nil {
			docs[i].Clusters = r.Clusters[i]
		}
		if err := docs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// Resolution is the predicted coreference structure of one document.
type Resolution struct {
	// Clusters groups coreferent spans; each cluster is ordered by mention
	// position and clusters are ordered by their first mention.
	Clusters [][]Span `json:"clusters"`

	// MentionToCluster maps every clustered mention span to its index in
	// Clusters.
	MentionToCluster map[Span]int `json:"-"`
}
