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
	"context"
	"fmt"
	"sort"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/viecap/caption-data-manager/pkg/annotations"
	"github.com/viecap/caption-data-manager/pkg/tokenization"
	"github.com/viecap/caption-data-manager/pkg/utils/logging"
	"github.com/viecap/caption-data-manager/pkg/vectors"
	"github.com/viecap/caption-data-manager/pkg/vocabulary/metrics"
)

// Default special-token strings.
const (
	DefaultPaddingToken = "<pad>"
	DefaultBosToken     = "<bos>"
	DefaultEosToken     = "<eos>"
	DefaultUnkToken     = "<unk>"
)

// reservedSpecialTokens is the number of indices the specials always occupy.
const reservedSpecialTokens = 4

// Config holds the configuration for building a Vocab.
type Config struct {
	// MaxSize caps the total vocabulary size, specials included.
	// Zero means unlimited.
	MaxSize int `json:"maxSize"`
	// MinFreq is the minimum frequency a token needs to enter the
	// vocabulary. Values below 1 are raised to 1.
	MinFreq int `json:"minFreq"`

	PaddingToken string `json:"paddingToken"`
	BosToken     string `json:"bosToken"`
	EosToken     string `json:"eosToken"`
	UnkToken     string `json:"unkToken"`

	// PretrainedLanguageModel, when set, delegates the vocabulary and the
	// special-token identities entirely to that model's own tokenizer
	// vocabulary. Frequency counts are still gathered but play no part in
	// index assignment.
	PretrainedLanguageModel string `json:"pretrainedLanguageModel"`
	// TokenizerName selects the caption tokenization scheme. Empty means
	// the basic lowercase/strip/split tokenizer.
	TokenizerName string `json:"tokenizerName"`

	HFTokenizerConfig *tokenization.HFTokenizerConfig `json:"hfTokenizerConfig"`
	MemoConfig        *tokenization.MemoConfig        `json:"memoConfig"`

	// VectorSpecs name the pretrained vector sources to attach after the
	// mappings are built. Empty means no vector matrix.
	VectorSpecs   []vectors.Spec  `json:"-"`
	VectorsConfig *vectors.Config `json:"vectorsConfig"`

	// EnableMetrics toggles prometheus counter registration.
	EnableMetrics bool `json:"enableMetrics"`
	// MetricsLoggingInterval defines the interval at which metrics are
	// logged. If zero, metrics logging is disabled.
	// Requires `EnableMetrics` to be true.
	MetricsLoggingInterval time.Duration `json:"metricsLoggingInterval"`
}

// DefaultConfig returns a default configuration for building a Vocab.
func DefaultConfig() *Config {
	return &Config{
		MinFreq:           1,
		PaddingToken:      DefaultPaddingToken,
		BosToken:          DefaultBosToken,
		EosToken:          DefaultEosToken,
		UnkToken:          DefaultUnkToken,
		HFTokenizerConfig: tokenization.DefaultHFTokenizerConfig(),
		MemoConfig:        tokenization.DefaultMemoConfig(),
		VectorsConfig:     vectors.DefaultConfig(),
	}
}

// New builds a Vocab from the given annotation files, constructing the
// tokenization collaborators from the config. Use Build to supply your own
// collaborators.
func New(ctx context.Context, annotationPaths []string, cfg *Config) (*Vocab, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var tokenizer tokenization.Tokenizer
	if cfg.TokenizerName != "" {
		hfTokenizer, err := tokenization.NewCachedHFTokenizer(cfg.HFTokenizerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create caption tokenizer: %w", err)
		}
		tokenizer = hfTokenizer
	} else {
		tokenizer = tokenization.BasicTokenizer{}
	}

	memo, err := tokenization.NewMemoTokenizer(tokenizer, cfg.MemoConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenization memo: %w", err)
	}
	defer memo.Close()

	var pretrained tokenization.PretrainedVocab
	if cfg.PretrainedLanguageModel != "" {
		pretrained, err = tokenization.NewHFPretrainedVocab(ctx, cfg.PretrainedLanguageModel, cfg.HFTokenizerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load pretrained vocabulary: %w", err)
		}
	}

	return Build(ctx, annotationPaths, cfg, memo, pretrained)
}

// Build builds a Vocab using the supplied collaborators. A nil tokenizer
// falls back to the basic tokenizer; pretrained may be nil unless the
// config names a pretrained language model.
func Build(ctx context.Context, annotationPaths []string, cfg *Config,
	tokenizer tokenization.Tokenizer, pretrained tokenization.PretrainedVocab,
) (*Vocab, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if tokenizer == nil {
		tokenizer = tokenization.BasicTokenizer{}
	}
	if cfg.MaxSize > 0 && cfg.MaxSize < reservedSpecialTokens {
		return nil, fmt.Errorf("max size %d cannot accommodate the %d special tokens",
			cfg.MaxSize, reservedSpecialTokens)
	}

	if cfg.EnableMetrics {
		metrics.Register()
		if cfg.MetricsLoggingInterval > 0 {
			// this is non-blocking
			metrics.StartMetricsLogging(ctx, cfg.MetricsLoggingInterval)
		}
	}

	debugLogger := klog.FromContext(ctx).V(logging.DEBUG).WithName("vocabulary.Build")

	freqs, maxCaptionLength, err := scan(ctx, annotationPaths, cfg.TokenizerName, tokenizer)
	if err != nil {
		return nil, err
	}

	v := &Vocab{
		Freqs:            freqs,
		stoi:             make(map[string]int),
		MaxCaptionLength: maxCaptionLength,
	}

	if cfg.PretrainedLanguageModel != "" {
		if pretrained == nil {
			return nil, fmt.Errorf("config names pretrained language model %q but no pretrained vocabulary was supplied",
				cfg.PretrainedLanguageModel)
		}
		if err := v.adoptPretrained(pretrained); err != nil {
			return nil, err
		}
	} else {
		v.assemble(cfg)
	}

	if err := v.resolveSpecialIndices(); err != nil {
		return nil, err
	}

	debugLogger.Info("built vocabulary", "size", v.Len(),
		"maxCaptionLength", v.MaxCaptionLength, "files", len(annotationPaths))

	if len(cfg.VectorSpecs) > 0 {
		if err := v.LoadVectors(ctx, cfg.VectorSpecs, cfg.VectorsConfig); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// scan reads every annotation file, tokenizes each caption, and returns the
// token frequency table along with the maximum tokenized-caption length +2
// (bos and eos).
func scan(ctx context.Context, annotationPaths []string, tokenizerName string,
	tokenizer tokenization.Tokenizer,
) (map[string]int, int, error) {
	traceLogger := klog.FromContext(ctx).V(logging.TRACE).WithName("vocabulary.scan")

	freqs := make(map[string]int)
	maxCaptionLength := 0

	for _, path := range annotationPaths {
		file, err := annotations.ReadFile(path)
		if err != nil {
			return nil, 0, err
		}

		for _, ann := range file.Annotations {
			tokens, err := tokenizer.Tokenize(ann.Caption, tokenizerName)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to tokenize caption %q: %w", ann.Caption, err)
			}

			for _, tok := range tokens {
				freqs[tok]++
			}
			if len(tokens)+2 > maxCaptionLength {
				maxCaptionLength = len(tokens) + 2
			}

			metrics.CaptionsProcessed.Inc()
			metrics.TokensCounted.Add(float64(len(tokens)))
			traceLogger.Info("scanned caption", "tokens", len(tokens))
		}
	}

	return freqs, maxCaptionLength, nil
}

// assemble builds the index mappings from the frequency table: the four
// specials at indices 0..3, then candidates ordered by descending frequency
// with alphabetical order among equal frequencies.
func (v *Vocab) assemble(cfg *Config) {
	v.PaddingToken = cfg.PaddingToken
	v.BosToken = cfg.BosToken
	v.EosToken = cfg.EosToken
	v.UnkToken = cfg.UnkToken
	v.specials = sets.New(v.PaddingToken, v.BosToken, v.EosToken, v.UnkToken)

	// Special tokens carry no frequency.
	for tok := range v.specials {
		delete(v.Freqs, tok)
	}

	minFreq := cfg.MinFreq
	if minFreq < 1 {
		minFreq = 1
	}

	type entry struct {
		token string
		freq  int
	}
	candidates := make([]entry, 0, len(v.Freqs))
	for tok, freq := range v.Freqs {
		candidates = append(candidates, entry{token: tok, freq: freq})
	}

	// Alphabetical pass first; the stable frequency pass preserves it as
	// the tie-break among equal frequencies.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].token < candidates[j].token
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].freq > candidates[j].freq
	})

	v.itos = []string{v.PaddingToken, v.BosToken, v.EosToken, v.UnkToken}
	for _, cand := range candidates {
		if cand.freq < minFreq || (cfg.MaxSize > 0 && len(v.itos) >= cfg.MaxSize) {
			break
		}
		v.itos = append(v.itos, cand.token)
	}

	for idx, tok := range v.itos {
		v.stoi[tok] = idx
	}
}

// adoptPretrained takes the vocabulary and special-token identities of a
// pretrained tokenizer verbatim. Index gaps in the pretrained mapping leave
// empty itos slots that no token maps back to.
func (v *Vocab) adoptPretrained(pretrained tokenization.PretrainedVocab) error {
	v.PaddingToken, v.BosToken, v.EosToken, v.UnkToken = pretrained.SpecialTokens()
	v.specials = sets.New(v.PaddingToken, v.BosToken, v.EosToken, v.UnkToken)

	extStoi := pretrained.Vocab()
	maxIdx := -1
	for _, idx := range extStoi {
		if idx < 0 {
			return fmt.Errorf("pretrained vocabulary holds negative index %d", idx)
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	v.itos = make([]string, maxIdx+1)
	for tok, idx := range extStoi {
		v.itos[idx] = tok
		v.stoi[tok] = idx
	}

	return nil
}

// resolveSpecialIndices caches the four special-token indices. A missing
// special at this point is a fatal construction-time invariant violation.
func (v *Vocab) resolveSpecialIndices() error {
	lookup := func(name, tok string) (int, error) {
		idx, ok := v.stoi[tok]
		if !ok {
			return 0, fmt.Errorf("%s token %q is absent from the vocabulary mapping", name, tok)
		}
		return idx, nil
	}

	var err error
	if v.PaddingIdx, err = lookup("padding", v.PaddingToken); err != nil {
		return err
	}
	if v.BosIdx, err = lookup("bos", v.BosToken); err != nil {
		return err
	}
	if v.EosIdx, err = lookup("eos", v.EosToken); err != nil {
		return err
	}
	if v.UnkIdx, err = lookup("unk", v.UnkToken); err != nil {
		return err
	}

	return nil
}
