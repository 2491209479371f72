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

package anaphor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaphorlab/anaphor/lib/coref"
)

func TestResolveCache_HitOnRepeat(t *testing.T) {
	node := newTestNode(t)
	doc := testDocument()

	first, err := node.resolveCache.Resolve(context.Background(), &doc)
	require.NoError(t, err)

	second, err := node.resolveCache.Resolve(context.Background(), &doc)
	require.NoError(t, err)
	assert.Same(t, first, second)

	hits, misses, _ := node.resolveCache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestResolveCache_DistinctContentMisses(t *testing.T) {
	node := newTestNode(t)

	doc := testDocument()
	_, err := node.resolveCache.Resolve(context.Background(), &doc)
	require.NoError(t, err)

	// Same key, different tokens: content hash must differ.
	changed := testDocument()
	changed.Sentences[1][2] = "happy"
	_, err = node.resolveCache.Resolve(context.Background(), &changed)
	require.NoError(t, err)

	hits, misses, _ := node.resolveCache.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestResolveCache_PropagatesValidationError(t *testing.T) {
	node := newTestNode(t)

	bad := coref.Document{Key: "nw/bad"}
	_, err := node.resolveCache.Resolve(context.Background(), &bad)
	assert.Error(t, err)
}
