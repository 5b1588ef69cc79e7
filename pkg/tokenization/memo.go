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

package tokenization

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"
)

const (
	defaultMemoNumCounters = 1e6
	defaultMemoBufferItems = 64 // default buffer size for ristretto
)

// MemoConfig holds the configuration for the tokenization memo.
type MemoConfig struct {
	// Size is the maximum memory the memo may use for cached token slices.
	// Supports human-readable formats like "64MiB", "1GB", etc.
	Size string `json:"size,omitempty"`
}

// DefaultMemoConfig returns a default configuration for the tokenization
// memo.
func DefaultMemoConfig() *MemoConfig {
	return &MemoConfig{
		Size: "64MiB",
	}
}

// MemoTokenizer wraps a Tokenizer with a byte-cost-bounded cache of
// caption→tokens results. Entries are keyed by model name and caption.
type MemoTokenizer struct {
	inner Tokenizer
	cache *ristretto.Cache[string, []string]
}

var _ Tokenizer = &MemoTokenizer{}

// NewMemoTokenizer wraps inner with a tokenization memo.
func NewMemoTokenizer(inner Tokenizer, cfg *MemoConfig) (*MemoTokenizer, error) {
	if cfg == nil {
		cfg = DefaultMemoConfig()
	}

	sizeBytes, err := humanize.ParseBytes(cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenization memo: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []string]{
		NumCounters: defaultMemoNumCounters,
		MaxCost:     int64(sizeBytes), //nolint:gosec // sizes are far below max int64
		BufferItems: defaultMemoBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenization memo: %w", err)
	}

	return &MemoTokenizer{inner: inner, cache: cache}, nil
}

// Tokenize implements Tokenizer. Memo keys combine the model name and the
// caption since the same caption tokenizes differently per model.
func (m *MemoTokenizer) Tokenize(caption, modelName string) ([]string, error) {
	key := modelName + "\x00" + caption
	if tokens, ok := m.cache.Get(key); ok {
		return tokens, nil
	}

	tokens, err := m.inner.Tokenize(caption, modelName)
	if err != nil {
		return nil, err
	}

	m.cache.Set(key, tokens, tokensByteCost(key, tokens))
	return tokens, nil
}

// Close releases the memo's resources.
func (m *MemoTokenizer) Close() {
	m.cache.Close()
}

// tokensByteCost estimates memory usage of a memo entry for ristretto cost
// accounting.
func tokensByteCost(key string, tokens []string) int64 {
	total := int64(len(key)) + 16 // key content + string header
	for _, tok := range tokens {
		total += int64(len(tok)) + 16
	}
	total += int64(cap(tokens)) * 8 // slice backing array
	return total
}
