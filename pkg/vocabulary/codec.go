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

package vocabulary

import (
	"fmt"
	"strings"

	"github.com/viecap/caption-data-manager/pkg/utils"
	"github.com/viecap/caption-data-manager/pkg/vocabulary/metrics"
)

// Encode turns an already-tokenized caption into a fixed-length index
// vector: bos at position 0, then the token indices (unk for tokens outside
// the vocabulary), then eos, with every remaining position holding the
// padding index.
//
// A caption longer than MaxCaptionLength-2 is a contract violation and
// returns an error rather than being truncated silently.
func (v *Vocab) Encode(tokens []string) ([]int64, error) {
	if len(tokens)+2 > v.MaxCaptionLength {
		return nil, fmt.Errorf("caption of %d tokens exceeds the maximum caption length %d (incl. bos/eos)",
			len(tokens), v.MaxCaptionLength)
	}

	vec := make([]int64, v.MaxCaptionLength)
	for i := range vec {
		vec[i] = int64(v.PaddingIdx)
	}

	vec[0] = int64(v.BosIdx)
	for i, tok := range tokens {
		idx, ok := v.stoi[tok]
		if !ok {
			idx = v.UnkIdx
			metrics.OOVSubstitutions.Inc()
		}
		vec[i+1] = int64(idx)
	}
	vec[len(tokens)+1] = int64(v.EosIdx)

	return vec, nil
}

// Decode walks each row of a batch of index vectors and returns the token
// sequences they spell. Special tokens are never emitted; the walk of a row
// stops at the eos index. An index outside the mapping is an error.
func (v *Vocab) Decode(batch [][]int64) ([][]string, error) {
	captions := make([][]string, 0, len(batch))

	for row, vec := range batch {
		words := []string{}
		for _, rawIdx := range vec {
			idx := int(rawIdx)
			tok, ok := v.Token(idx)
			if !ok {
				return nil, fmt.Errorf("row %d holds index %d outside the vocabulary", row, idx)
			}

			if !v.specials.Has(tok) {
				words = append(words, tok)
			}
			// The eos check runs after the special-token skip: eos is never
			// emitted but does terminate the walk.
			if idx == v.EosIdx {
				break
			}
		}
		captions = append(captions, words)
	}

	return captions, nil
}

// DecodeJoined is Decode with each token sequence joined by single spaces.
func (v *Vocab) DecodeJoined(batch [][]int64) ([]string, error) {
	captions, err := v.Decode(batch)
	if err != nil {
		return nil, err
	}

	return utils.SliceMap(captions, func(words []string) string {
		return strings.Join(words, " ")
	}), nil
}
