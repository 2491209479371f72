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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocument() Document {
	return Document{
		Key: "nw/wsj_0001",
		Sentences: [][]string{
			{"John", "called", "home", "."},
			{"He", "was", "tired", "."},
		},
		Speakers: [][]string{
			{"spk1", "spk1", "spk1", "spk1"},
			{"spk1", "spk1", "spk1", "spk1"},
		},
		Clusters: [][]Span{
			{{0, 0}, {4, 4}},
		},
	}
}

func TestDocumentValidate(t *testing.T) {
	doc := validDocument()
	require.NoError(t, doc.Validate())

	assert.Equal(t, "nw", doc.Genre())
	assert.Equal(t, 8, doc.NumWords())
	assert.Equal(t, []string{"John", "called", "home", ".", "He", "was", "tired", "."}, doc.FlatTokens())
}

func TestDocumentValidateRejectsSpeakerMismatch(t *testing.T) {
	doc := validDocument()
	doc.Speakers[1] = []string{"spk1"}
	assert.Error(t, doc.Validate())

	doc = validDocument()
	doc.Speakers = doc.Speakers[:1]
	assert.Error(t, doc.Validate())
}

func TestDocumentValidateRejectsBadSpans(t *testing.T) {
	doc := validDocument()
	doc.Clusters = [][]Span{{{0, 99}}}
	assert.Error(t, doc.Validate())

	doc = validDocument()
	doc.Clusters = [][]Span{{{5, 4}}}
	assert.Error(t, doc.Validate())
}

func TestDocumentValidateRejectsShortKey(t *testing.T) {
	doc := validDocument()
	doc.Key = "x"
	assert.Error(t, doc.Validate())
}

func TestDocumentSpeakerIDs(t *testing.T) {
	doc := Document{
		Key:       "tc/talk_01",
		Sentences: [][]string{{"hi", "there"}, {"hello"}},
		Speakers:  [][]string{{"alice", "alice"}, {"bob"}},
	}
	require.NoError(t, doc.Validate())
	assert.Equal(t, []int{0, 0, 1}, doc.SpeakerIDs())
}

func TestRecordDocuments(t *testing.T) {
	rec := Record{
		DocKeys:   []string{"nw/a", "bn/b"},
		Sentences: [][][]string{{{"One", "two"}}, {{"Three"}}},
		Speakers:  [][][]string{{{"s", "s"}}, {{"s"}}},
	}
	docs, err := rec.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "nw/a", docs[0].Key)
	assert.Equal(t, "bn", docs[1].Genre())
}

func TestRecordDocumentsRejectsRaggedBatch(t *testing.T) {
	rec := Record{
		DocKeys:   []string{"nw/a", "bn/b"},
		Sentences: [][][]string{{{"One"}}},
		Speakers:  [][][]string{{{"s"}}},
	}
	_, err := rec.Documents()
	assert.Error(t, err)
}

func TestRecordDocumentsCarriesClusters(t *testing.T) {
	rec := Record{
		DocKeys:   []string{"nw/a"},
		Sentences: [][][]string{{{"John", "saw", "him"}}},
		Speakers:  [][][]string{{{"s", "s", "s"}}},
		Clusters:  [][][]Span{{{{0, 0}, {2, 2}}}},
	}
	docs, err := rec.Documents()
	require.NoError(t, err)
	require.Len(t, docs[0].Clusters, 1)
	assert.Equal(t, []Span{{0, 0}, {2, 2}}, docs[0].Clusters[0])
}
