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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This should be skipped in fast unit tests.
const testModelName = "google-bert/bert-base-uncased"

func TestBasicTokenizer(t *testing.T) {
	cases := []struct {
		name    string
		caption string
		want    []string
	}{
		{
			name:    "simple caption",
			caption: "A dog runs.",
			want:    []string{"a", "dog", "runs"},
		},
		{
			name:    "punctuation and extra whitespace",
			caption: "  a man,  riding a horse!  ",
			want:    []string{"a", "man", "riding", "a", "horse"},
		},
		{
			name:    "accented letters survive",
			caption: "một con chó đang chạy",
			want:    []string{"một", "con", "chó", "đang", "chạy"},
		},
		{
			name:    "empty caption",
			caption: "",
			want:    []string{},
		},
		{
			name:    "digits kept",
			caption: "2 dogs",
			want:    []string{"2", "dogs"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := BasicTokenizer{}.Tokenize(c.caption, "")
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

// countingTokenizer counts Tokenize calls to observe memo hits.
type countingTokenizer struct {
	calls int
}

func (c *countingTokenizer) Tokenize(caption, modelName string) ([]string, error) {
	c.calls++
	return BasicTokenizer{}.Tokenize(caption, modelName)
}

func TestMemoTokenizer(t *testing.T) {
	inner := &countingTokenizer{}
	memo, err := NewMemoTokenizer(inner, nil)
	require.NoError(t, err)
	defer memo.Close()

	first, err := memo.Tokenize("a dog runs", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "dog", "runs"}, first)
	assert.Equal(t, 1, inner.calls)

	// ristretto admits asynchronously; a repeat call returns the same
	// tokens whether or not the memo has caught up
	second, err := memo.Tokenize("a dog runs", "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.LessOrEqual(t, inner.calls, 2)
}

func TestMemoTokenizerKeysByModel(t *testing.T) {
	inner := &countingTokenizer{}
	memo, err := NewMemoTokenizer(inner, nil)
	require.NoError(t, err)
	defer memo.Close()

	_, err = memo.Tokenize("a dog runs", "model-a")
	require.NoError(t, err)
	_, err = memo.Tokenize("a dog runs", "model-b")
	require.NoError(t, err)

	// distinct models never share memo entries
	assert.Equal(t, 2, inner.calls)
}

func TestMemoTokenizerBadSize(t *testing.T) {
	_, err := NewMemoTokenizer(BasicTokenizer{}, &MemoConfig{Size: "lots"})
	require.Error(t, err)
}

func TestCachedHFTokenizer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping tokenizer integration test in short mode")
	}

	tokenizer, err := NewCachedHFTokenizer(&HFTokenizerConfig{
		TokenizersCacheDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.NotNil(t, tokenizer)

	tokens, err := tokenizer.Tokenize("a dog runs across the yard", testModelName)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens)

	// repeat call hits the per-model LRU and returns identical tokens
	again, err := tokenizer.Tokenize("a dog runs across the yard", testModelName)
	require.NoError(t, err)
	assert.Equal(t, tokens, again)
}

func TestCachedHFTokenizerInvalidModel(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping tokenizer integration test in short mode")
	}

	tokenizer, err := NewCachedHFTokenizer(&HFTokenizerConfig{
		TokenizersCacheDir: t.TempDir(),
	})
	require.NoError(t, err)

	_, err = tokenizer.Tokenize("test", "non-existent/model")
	require.Error(t, err)
}
