/*
Copyright 2025 The viecap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package vocabulary builds token vocabularies from caption annotation
// files and numericalizes captions against them.
//
// A Vocab is assembled once and is immutable afterwards except through the
// explicit Extend and vector-loading operations; concurrent readers are
// safe after construction.
package vocabulary

import (
	"context"
	"maps"
	"slices"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/viecap/caption-data-manager/pkg/vectors"
	"github.com/viecap/caption-data-manager/pkg/vocabulary/metrics"
)

// Vocab maps token strings to integer indices and back. Indices 0..3 hold
// the padding, bos, eos and unk tokens in that fixed order, unless the
// vocabulary was delegated verbatim to a pretrained tokenizer.
type Vocab struct {
	// Freqs holds the token frequencies gathered from the annotation
	// files. Special tokens are excluded.
	Freqs map[string]int

	itos []string
	stoi map[string]int

	PaddingToken string
	BosToken     string
	EosToken     string
	UnkToken     string

	PaddingIdx int
	BosIdx     int
	EosIdx     int
	UnkIdx     int

	specials sets.Set[string]

	// MaxCaptionLength is the longest tokenized caption seen at build
	// time, plus 2 for bos/eos. Every encoded vector has exactly this
	// length.
	MaxCaptionLength int

	// Vectors is the optional pretrained embedding matrix, one row per
	// vocabulary entry in index order.
	Vectors *vectors.Matrix
}

// Len returns the vocabulary size.
func (v *Vocab) Len() int {
	return len(v.itos)
}

// Index returns the index of token.
func (v *Vocab) Index(token string) (int, bool) {
	idx, ok := v.stoi[token]
	return idx, ok
}

// Token returns the token at idx. An index gap of a delegated vocabulary
// reports absence the same way an out-of-range index does.
func (v *Vocab) Token(idx int) (string, bool) {
	if idx < 0 || idx >= len(v.itos) || v.itos[idx] == "" {
		return "", false
	}
	return v.itos[idx], true
}

// Tokens returns a copy of the index-to-token list.
func (v *Vocab) Tokens() []string {
	return slices.Clone(v.itos)
}

// IsSpecial reports whether token is one of the four reserved tokens.
func (v *Vocab) IsSpecial(token string) bool {
	return v.specials.Has(token)
}

// Extend appends tokens of other that are absent from v, leaving every
// existing index unchanged. With sortTokens the incoming tokens are
// processed in sorted order. Extending with an already-covered vocabulary
// is a no-op.
func (v *Vocab) Extend(other *Vocab, sortTokens bool) {
	words := other.Tokens()
	if sortTokens {
		sort.Strings(words)
	}

	for _, w := range words {
		if w == "" {
			// empty itos slots of a delegated vocabulary
			continue
		}
		if _, ok := v.stoi[w]; !ok {
			v.itos = append(v.itos, w)
			v.stoi[w] = len(v.itos) - 1
		}
	}
}

// Equal reports whether two vocabularies hold equal frequency tables,
// mappings and vector matrices.
func (v *Vocab) Equal(other *Vocab) bool {
	if other == nil {
		return false
	}
	if !maps.Equal(v.Freqs, other.Freqs) {
		return false
	}
	if !maps.Equal(v.stoi, other.stoi) {
		return false
	}
	if !slices.Equal(v.itos, other.itos) {
		return false
	}
	return v.Vectors.Equal(other.Vectors)
}

// LoadVectors resolves the given vector specs and attaches the
// concatenation of their embeddings to the vocabulary, one row per entry in
// index order. The total dimensionality is the sum of the source
// dimensionalities. Tokens absent from a source are filled by that source's
// unk-init, never an error.
func (v *Vocab) LoadVectors(ctx context.Context, specs []vectors.Spec, cfg *vectors.Config) error {
	sources, err := vectors.ResolveSpecs(ctx, specs, cfg)
	if err != nil {
		return err
	}

	for _, token := range v.itos {
		covered := false
		for _, src := range sources {
			if src.Contains(token) {
				covered = true
				break
			}
		}
		if !covered {
			metrics.VectorFills.Inc()
		}
	}

	v.Vectors = vectors.Concat(v.itos, sources)
	return nil
}

// SetVectors builds the vector matrix by looking every vocabulary token up
// in an externally supplied token→row mapping over an external embedding
// table. Tokens not found are filled via unkInit (nil means all-zeros).
func (v *Vocab) SetVectors(extStoi map[string]int, extVectors [][]float32, dim int, unkInit vectors.InitFunc) {
	source := vectors.FromTable("external", extStoi, extVectors, dim, unkInit)
	v.Vectors = vectors.Concat(v.itos, []*vectors.Vectors{source})
}
