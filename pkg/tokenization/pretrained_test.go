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

//nolint:testpackage // need to test internal types
package tokenization

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeTokenizerJSON = `{
	"model": {
		"type": "WordPiece",
		"vocab": {"[PAD]": 0, "[UNK]": 1, "dog": 4, "runs": 5}
	},
	"added_tokens": [
		{"id": 2, "content": "[CLS]", "special": true},
		{"id": 3, "content": "[SEP]", "special": true}
	]
}`

// tokenizer_config.json with a mix of plain-string and object-form special
// token fields, as different transformers versions export them.
const fakeTokenizerConfigJSON = `{
	"pad_token": "[PAD]",
	"unk_token": {"content": "[UNK]", "lstrip": false},
	"cls_token": "[CLS]",
	"sep_token": "[SEP]"
}`

// seedTokenizerCache places tokenizer files for "fake/model" where
// fetchHubFile expects them so no network round trip happens.
func seedTokenizerCache(t *testing.T, cacheDir string) {
	t.Helper()
	dir := filepath.Join(cacheDir, "fake--model")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"),
		[]byte(fakeTokenizerJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer_config.json"),
		[]byte(fakeTokenizerConfigJSON), 0o644))
}

func TestHFPretrainedVocabFromCache(t *testing.T) {
	cacheDir := t.TempDir()
	seedTokenizerCache(t, cacheDir)

	pv, err := NewHFPretrainedVocab(context.Background(), "fake/model",
		&HFTokenizerConfig{TokenizersCacheDir: cacheDir})
	require.NoError(t, err)

	pad, bos, eos, unk := pv.SpecialTokens()
	assert.Equal(t, "[PAD]", pad)
	// bos/eos fall back to cls/sep for BERT-style configs
	assert.Equal(t, "[CLS]", bos)
	assert.Equal(t, "[SEP]", eos)
	assert.Equal(t, "[UNK]", unk)

	vocab := pv.Vocab()
	assert.Len(t, vocab, 6)
	assert.Equal(t, 4, vocab["dog"])
	assert.Equal(t, 2, vocab["[CLS]"])
}

func TestHFPretrainedVocabMissingSpecials(t *testing.T) {
	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "fake--model")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"),
		[]byte(fakeTokenizerJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer_config.json"),
		[]byte(`{"pad_token": "[PAD]"}`), 0o644))

	_, err := NewHFPretrainedVocab(context.Background(), "fake/model",
		&HFTokenizerConfig{TokenizersCacheDir: cacheDir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pad/bos/eos/unk")
}

func TestSpecialTokenString(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain string", raw: `"<s>"`, want: "<s>"},
		{name: "object form", raw: `{"content": "</s>"}`, want: "</s>"},
		{name: "absent", raw: ``, want: ""},
		{name: "null", raw: `null`, want: ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, specialTokenString([]byte(c.raw)))
		})
	}
}
