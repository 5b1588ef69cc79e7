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
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/daulet/tokenizers"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// tokenizersCacheSize is the size of the LRU cache for loaded tokenizers.
// One tokenizer per model name.
const tokenizersCacheSize = 20

// Tokenizer turns a raw caption string into an ordered sequence of token
// strings. The model name selects the tokenization scheme; implementations
// that support a single scheme ignore it.
type Tokenizer interface {
	Tokenize(caption, modelName string) ([]string, error)
}

// HFTokenizerConfig holds the configuration for the HuggingFace tokenizer.
type HFTokenizerConfig struct {
	HuggingFaceToken   string `json:"huggingFaceToken"`
	TokenizersCacheDir string `json:"tokenizersCacheDir"` // Directory for caching tokenizers
}

// DefaultHFTokenizerConfig returns a default configuration for the
// HuggingFace tokenizer.
func DefaultHFTokenizerConfig() *HFTokenizerConfig {
	return &HFTokenizerConfig{
		HuggingFaceToken:   "",
		TokenizersCacheDir: defaultTokenizerCacheDir(),
	}
}

// BasicTokenizer is the default caption tokenizer: it lowercases the
// caption, strips punctuation, and splits on whitespace. The model name is
// ignored.
type BasicTokenizer struct{}

var _ Tokenizer = BasicTokenizer{}

// Tokenize implements Tokenizer.
func (BasicTokenizer) Tokenize(caption, _ string) ([]string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, caption)

	return strings.Fields(cleaned), nil
}

// CachedHFTokenizer implements the Tokenizer interface using bindings to
// HuggingFace's rust tokenizer.
// The implementation wraps an LRU-cache for holding loaded per-model
// tokenizers.
type CachedHFTokenizer struct {
	cfg   tokenizers.TokenizerConfigOption
	cache *lru.Cache[string, *tokenizers.Tokenizer]
	group singleflight.Group
}

var _ Tokenizer = &CachedHFTokenizer{}

// NewCachedHFTokenizer creates a new instance of CachedHFTokenizer with the
// provided configuration.
func NewCachedHFTokenizer(config *HFTokenizerConfig) (*CachedHFTokenizer, error) {
	if config == nil {
		config = DefaultHFTokenizerConfig()
	}

	var cfg tokenizers.TokenizerConfigOption
	if config.TokenizersCacheDir != "" {
		cfg = tokenizers.WithCacheDir(config.TokenizersCacheDir)
	}
	if config.HuggingFaceToken != "" {
		cfg = tokenizers.WithAuthToken(config.HuggingFaceToken)
	}

	tokenizersCache, err := lru.New[string, *tokenizers.Tokenizer](tokenizersCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer cache: %w", err)
	}

	return &CachedHFTokenizer{
		cfg:   cfg,
		cache: tokenizersCache,
	}, nil
}

func (t *CachedHFTokenizer) getTokenizer(modelName string) (*tokenizers.Tokenizer, error) {
	tokenizer, ok := t.cache.Get(modelName)
	if !ok {
		result, err, shared := t.group.Do(modelName, func() (any, error) {
			return tokenizers.FromPretrained(modelName, t.cfg)
		})
		if err != nil {
			return nil, err
		}

		tokenizer, ok = result.(*tokenizers.Tokenizer)
		if !ok {
			return nil, fmt.Errorf("unexpected tokenizer type from singleflight result")
		}

		if !shared {
			// Only add to cache if this goroutine actually loaded the tokenizer
			t.cache.Add(modelName, tokenizer)
		}
	}
	return tokenizer, nil
}

// Tokenize converts a caption into its surface token strings. Special
// tokens are not added; bos/eos placement is the vocabulary codec's job.
func (t *CachedHFTokenizer) Tokenize(caption, modelName string) ([]string, error) {
	tokenizer, err := t.getTokenizer(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer for model %q: %w", modelName, err)
	}

	_, tokens := tokenizer.Encode(caption, false)
	return tokens, nil
}

// defaultTokenizerCacheDir returns the tokenizer cache directory, preferring
// the user cache dir and falling back to a local directory.
func defaultTokenizerCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".tokenizers"
	}
	return filepath.Join(base, "caption-data-manager", "tokenizers")
}
