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

// Package vectors loads pretrained word vectors and exposes per-token
// lookup over them. Sources are word2vec-style text files (one token plus
// its embedding per line), optionally gzip-compressed, fetched into a cache
// directory and memoized there in a binary form for fast reloads.
package vectors

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/viecap/caption-data-manager/pkg/utils/logging"
)

// defaultCacheDir mirrors the conventional vector cache location of
// captioning pipelines.
const defaultCacheDir = ".vector_cache"

// InitFunc produces the embedding used for tokens absent from a source.
type InitFunc func(dim int) []float32

// Zeros is the default InitFunc: an all-zero embedding.
func Zeros(dim int) []float32 {
	return make([]float32, dim)
}

// Config holds the configuration for loading vector sources.
type Config struct {
	// CacheDir is where source files and their parsed forms are kept.
	CacheDir string `json:"cacheDir"`
	// UnkInit fills embeddings of out-of-source tokens. Defaults to Zeros.
	UnkInit InitFunc `json:"-"`
}

// DefaultConfig returns a default configuration for vector loading.
func DefaultConfig() *Config {
	return &Config{
		CacheDir: defaultCacheDir,
		UnkInit:  Zeros,
	}
}

// Vectors is a pretrained vector source: a dense table of embeddings with a
// token→row mapping and a fixed dimensionality.
type Vectors struct {
	name string

	stoi map[string]int
	data [][]float32
	dim  int

	unkInit InitFunc
}

// New loads the named source from the cache dir, downloading it from url
// first when absent. The parsed table is memoized on disk so repeat loads
// skip the text parse.
func New(ctx context.Context, name, url string, cfg *Config) (*Vectors, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	unkInit := cfg.UnkInit
	if unkInit == nil {
		unkInit = Zeros
	}

	debugLogger := klog.FromContext(ctx).V(logging.DEBUG).WithName("vectors.New")

	sourcePath, err := ensureSourceFile(ctx, name, url, cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	if cached, err := loadCached(ctx, sourcePath); err == nil && cached != nil {
		cached.name = name
		cached.unkInit = unkInit
		debugLogger.Info("loaded vectors from parse cache", "name", name,
			"tokens", len(cached.stoi), "dim", cached.dim)
		return cached, nil
	}

	v, err := parseSourceFile(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vector source %q: %w", name, err)
	}
	v.name = name
	v.unkInit = unkInit

	if err := storeCached(sourcePath, v); err != nil {
		// The parse succeeded; a cache write failure only costs the next load.
		debugLogger.Info("failed to write vector parse cache", "name", name, "error", err)
	}

	debugLogger.Info("parsed vectors", "name", name, "tokens", len(v.stoi), "dim", v.dim)
	return v, nil
}

// FromTable builds a Vectors directly from an external token→row mapping
// over an external embedding table.
func FromTable(name string, stoi map[string]int, table [][]float32, dim int, unkInit InitFunc) *Vectors {
	if unkInit == nil {
		unkInit = Zeros
	}
	return &Vectors{
		name:    name,
		stoi:    stoi,
		data:    table,
		dim:     dim,
		unkInit: unkInit,
	}
}

// Name returns the source name.
func (v *Vectors) Name() string { return v.name }

// Dim returns the embedding dimensionality.
func (v *Vectors) Dim() int { return v.dim }

// Len returns the number of tokens in the source.
func (v *Vectors) Len() int { return len(v.stoi) }

// Contains reports whether token has an embedding in the source.
func (v *Vectors) Contains(token string) bool {
	_, ok := v.stoi[token]
	return ok
}

// Get returns the embedding for token, or the unk-init fill when the token
// is absent. Never an error; absence is expected for dataset-specific
// tokens.
func (v *Vectors) Get(token string) []float32 {
	if row, ok := v.stoi[strings.TrimSpace(token)]; ok {
		return v.data[row]
	}
	return v.unkInit(v.dim)
}

// ensureSourceFile returns the local path of the raw source file,
// downloading it when the cache misses and a url is configured.
func ensureSourceFile(ctx context.Context, name, url, cacheDir string) (string, error) {
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}

	localPath := filepath.Join(cacheDir, name)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if url == "" {
		return "", fmt.Errorf("vector source %q not found under %q and no download URL is set",
			name, cacheDir)
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create vector cache dir: %w", err)
	}

	klog.FromContext(ctx).Info("downloading vector source", "name", name, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %q: %w", url, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download vector source %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download vector source %q: status %s", name, resp.Status)
	}

	tmp, err := os.CreateTemp(cacheDir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create vector cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write vector cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close vector cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return "", fmt.Errorf("failed to move vector cache file into place: %w", err)
	}

	return localPath, nil
}

// parseSourceFile reads a word2vec-style text file. A leading "count dim"
// header line is skipped when present. Rows whose width disagrees with the
// first data row are dropped with a log line, matching common loader
// behavior for slightly corrupt vector dumps.
func parseSourceFile(ctx context.Context, path string) (*Vectors, error) {
	traceLogger := klog.FromContext(ctx).V(logging.TRACE).WithName("vectors.parseSourceFile")

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	v := &Vectors{stoi: make(map[string]int)}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if lineNo == 1 && isCountDimHeader(fields) {
			continue
		}

		token := fields[0]
		if v.dim == 0 {
			v.dim = len(fields) - 1
		}
		if len(fields)-1 != v.dim {
			traceLogger.Info("skipping malformed vector row", "line", lineNo,
				"want", v.dim, "got", len(fields)-1)
			continue
		}

		row := make([]float32, v.dim)
		ok := true
		for i, field := range fields[1:] {
			value, err := strconv.ParseFloat(field, 32)
			if err != nil {
				traceLogger.Info("skipping unparsable vector row", "line", lineNo, "token", token)
				ok = false
				break
			}
			row[i] = float32(value)
		}
		if !ok {
			continue
		}

		if _, seen := v.stoi[token]; seen {
			// keep the first occurrence
			continue
		}
		v.stoi[token] = len(v.data)
		v.data = append(v.data, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan vector file: %w", err)
	}

	if v.dim == 0 {
		return nil, fmt.Errorf("vector file %q holds no embeddings", path)
	}

	return v, nil
}

// isCountDimHeader reports whether fields form the word2vec "count dim"
// header line.
func isCountDimHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	for _, field := range fields {
		if _, err := strconv.Atoi(field); err != nil {
			return false
		}
	}
	return true
}
