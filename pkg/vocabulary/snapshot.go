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
	"os"

	"github.com/fxamacker/cbor/v2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/viecap/caption-data-manager/pkg/vectors"
)

// snapshot is the serialized form of a Vocab. The token-to-index mapping is
// not stored; it is rebuilt as the exact inverse of the token list on load.
type snapshot struct {
	Freqs            map[string]int  `cbor:"freqs"`
	Itos             []string        `cbor:"itos"`
	PaddingToken     string          `cbor:"paddingToken"`
	BosToken         string          `cbor:"bosToken"`
	EosToken         string          `cbor:"eosToken"`
	UnkToken         string          `cbor:"unkToken"`
	MaxCaptionLength int             `cbor:"maxCaptionLength"`
	Vectors          *vectors.Matrix `cbor:"vectors,omitempty"`
}

// Save writes the vocabulary to path.
func (v *Vocab) Save(path string) error {
	snap := snapshot{
		Freqs:            v.Freqs,
		Itos:             v.itos,
		PaddingToken:     v.PaddingToken,
		BosToken:         v.BosToken,
		EosToken:         v.EosToken,
		UnkToken:         v.UnkToken,
		MaxCaptionLength: v.MaxCaptionLength,
		Vectors:          v.Vectors,
	}

	raw, err := cbor.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to encode vocabulary snapshot: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write vocabulary snapshot: %w", err)
	}

	return nil
}

// Load reads a vocabulary previously written by Save.
func Load(path string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary snapshot %q: %w", path, err)
	}

	var snap snapshot
	if err := cbor.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary snapshot %q: %w", path, err)
	}

	v := &Vocab{
		Freqs:            snap.Freqs,
		itos:             snap.Itos,
		stoi:             make(map[string]int, len(snap.Itos)),
		PaddingToken:     snap.PaddingToken,
		BosToken:         snap.BosToken,
		EosToken:         snap.EosToken,
		UnkToken:         snap.UnkToken,
		specials:         sets.New(snap.PaddingToken, snap.BosToken, snap.EosToken, snap.UnkToken),
		MaxCaptionLength: snap.MaxCaptionLength,
		Vectors:          snap.Vectors,
	}
	if v.Freqs == nil {
		v.Freqs = make(map[string]int)
	}

	for idx, tok := range v.itos {
		if tok == "" {
			// empty slot of a delegated vocabulary
			continue
		}
		v.stoi[tok] = idx
	}

	if err := v.resolveSpecialIndices(); err != nil {
		return nil, fmt.Errorf("snapshot %q is corrupt: %w", path, err)
	}

	return v, nil
}
