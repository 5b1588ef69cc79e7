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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/viecap/caption-data-manager/pkg/utils/logging"
)

const hfResolveURLFormat = "https://huggingface.co/%s/resolve/main/%s"

// PretrainedVocab exposes a pretrained tokenizer's own vocabulary and
// special-token identities. A vocabulary built in delegation mode adopts
// these verbatim instead of assigning indices from frequency counts.
type PretrainedVocab interface {
	// SpecialTokens returns the pad, bos, eos and unk token strings.
	SpecialTokens() (pad, bos, eos, unk string)
	// Vocab returns the token→index mapping. Callers must not mutate it.
	Vocab() map[string]int
}

// hfTokenizerJSON covers the parts of tokenizer.json we read.
type hfTokenizerJSON struct {
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// hfTokenizerConfigJSON covers the parts of tokenizer_config.json we read.
// Special-token fields are either plain strings or {"content": ...} objects
// depending on the transformers version that exported the model.
type hfTokenizerConfigJSON struct {
	PadToken json.RawMessage `json:"pad_token"`
	BosToken json.RawMessage `json:"bos_token"`
	EosToken json.RawMessage `json:"eos_token"`
	UnkToken json.RawMessage `json:"unk_token"`
	ClsToken json.RawMessage `json:"cls_token"`
	SepToken json.RawMessage `json:"sep_token"`
}

// HFPretrainedVocab is a PretrainedVocab backed by a model's tokenizer.json
// and tokenizer_config.json on the HuggingFace hub. Files are cached on disk
// under the configured cache dir.
type HFPretrainedVocab struct {
	modelName string

	pad, bos, eos, unk string
	vocab              map[string]int
}

var _ PretrainedVocab = &HFPretrainedVocab{}

// NewHFPretrainedVocab downloads (or reads from cache) and parses the
// tokenizer files of modelName.
func NewHFPretrainedVocab(ctx context.Context, modelName string, config *HFTokenizerConfig) (*HFPretrainedVocab, error) {
	if config == nil {
		config = DefaultHFTokenizerConfig()
	}

	debugLogger := klog.FromContext(ctx).V(logging.DEBUG).WithName("tokenization.HFPretrainedVocab")

	tokenizerPath, err := fetchHubFile(ctx, modelName, "tokenizer.json", config)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer file for %q: %w", modelName, err)
	}

	var parsed hfTokenizerJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer file for %q: %w", modelName, err)
	}

	vocab := make(map[string]int, len(parsed.Model.Vocab)+len(parsed.AddedTokens))
	for tok, idx := range parsed.Model.Vocab {
		vocab[tok] = idx
	}
	for _, added := range parsed.AddedTokens {
		vocab[added.Content] = added.ID
	}

	pv := &HFPretrainedVocab{
		modelName: modelName,
		vocab:     vocab,
	}

	if err := pv.resolveSpecialTokens(ctx, config); err != nil {
		return nil, err
	}

	debugLogger.Info("loaded pretrained vocabulary", "model", modelName,
		"size", len(vocab), "pad", pv.pad, "bos", pv.bos, "eos", pv.eos, "unk", pv.unk)

	return pv, nil
}

// resolveSpecialTokens reads special-token identities from
// tokenizer_config.json. BERT-style models carry cls/sep instead of bos/eos;
// those are used as fallbacks.
func (pv *HFPretrainedVocab) resolveSpecialTokens(ctx context.Context, config *HFTokenizerConfig) error {
	configPath, err := fetchHubFile(ctx, pv.modelName, "tokenizer_config.json", config)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read tokenizer config for %q: %w", pv.modelName, err)
	}

	var parsed hfTokenizerConfigJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to parse tokenizer config for %q: %w", pv.modelName, err)
	}

	pv.pad = specialTokenString(parsed.PadToken)
	pv.bos = specialTokenString(parsed.BosToken)
	if pv.bos == "" {
		pv.bos = specialTokenString(parsed.ClsToken)
	}
	pv.eos = specialTokenString(parsed.EosToken)
	if pv.eos == "" {
		pv.eos = specialTokenString(parsed.SepToken)
	}
	pv.unk = specialTokenString(parsed.UnkToken)

	for _, tok := range []string{pv.pad, pv.bos, pv.eos, pv.unk} {
		if tok == "" {
			return fmt.Errorf("model %q does not define all of pad/bos/eos/unk tokens", pv.modelName)
		}
		if _, ok := pv.vocab[tok]; !ok {
			return fmt.Errorf("special token %q of model %q is absent from its vocabulary",
				tok, pv.modelName)
		}
	}

	return nil
}

// SpecialTokens implements PretrainedVocab.
func (pv *HFPretrainedVocab) SpecialTokens() (pad, bos, eos, unk string) {
	return pv.pad, pv.bos, pv.eos, pv.unk
}

// Vocab implements PretrainedVocab.
func (pv *HFPretrainedVocab) Vocab() map[string]int {
	return pv.vocab
}

// specialTokenString decodes a special-token field that is either a JSON
// string or an object with a "content" field.
func specialTokenString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asObject struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject.Content
	}

	return ""
}

// fetchHubFile returns the local path of fileName for modelName, downloading
// it into the cache dir when absent.
func fetchHubFile(ctx context.Context, modelName, fileName string, config *HFTokenizerConfig) (string, error) {
	cacheDir := config.TokenizersCacheDir
	if cacheDir == "" {
		cacheDir = defaultTokenizerCacheDir()
	}

	localDir := filepath.Join(cacheDir, strings.ReplaceAll(modelName, "/", "--"))
	localPath := filepath.Join(localDir, fileName)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create tokenizer cache dir: %w", err)
	}

	url := fmt.Sprintf(hfResolveURLFormat, modelName, fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %q: %w", url, err)
	}
	if config.HuggingFaceToken != "" {
		req.Header.Set("Authorization", "Bearer "+config.HuggingFaceToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %q for model %q: %w", fileName, modelName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %q for model %q: status %s",
			fileName, modelName, resp.Status)
	}

	tmp, err := os.CreateTemp(localDir, fileName+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create tokenizer cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write tokenizer cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close tokenizer cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return "", fmt.Errorf("failed to move tokenizer cache file into place: %w", err)
	}

	return localPath, nil
}
