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

package vectors

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"k8s.io/klog/v2"

	"github.com/viecap/caption-data-manager/pkg/utils/logging"
)

// cacheSuffix names the parsed form next to the raw source file.
const cacheSuffix = ".parsed.msgpack"

// parsedCache is the on-disk form of a parsed vector table. The embedding
// table is flattened row-major; the token list is in row order. Checksum is
// the xxhash64 of the raw source file so a replaced source invalidates the
// cache.
type parsedCache struct {
	Checksum uint64    `msgpack:"checksum"`
	Dim      int       `msgpack:"dim"`
	Tokens   []string  `msgpack:"tokens"`
	Data     []float32 `msgpack:"data"`
}

// loadCached returns the memoized parse of sourcePath, or nil when there is
// no valid cache.
func loadCached(ctx context.Context, sourcePath string) (*Vectors, error) {
	raw, err := os.ReadFile(sourcePath + cacheSuffix)
	if err != nil {
		return nil, err //nolint:wrapcheck // cache misses are silent
	}

	var cached parsedCache
	if err := msgpack.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode vector parse cache: %w", err)
	}

	checksum, err := sourceChecksum(sourcePath)
	if err != nil {
		return nil, err
	}
	if checksum != cached.Checksum {
		klog.FromContext(ctx).V(logging.DEBUG).Info("vector parse cache is stale",
			"source", sourcePath)
		return nil, nil
	}

	if cached.Dim <= 0 || len(cached.Data) != len(cached.Tokens)*cached.Dim {
		return nil, fmt.Errorf("vector parse cache for %q is inconsistent", sourcePath)
	}

	v := &Vectors{
		stoi: make(map[string]int, len(cached.Tokens)),
		data: make([][]float32, len(cached.Tokens)),
		dim:  cached.Dim,
	}
	for row, token := range cached.Tokens {
		v.stoi[token] = row
		v.data[row] = cached.Data[row*cached.Dim : (row+1)*cached.Dim]
	}

	return v, nil
}

// storeCached writes the memoized parse next to the raw source file.
func storeCached(sourcePath string, v *Vectors) error {
	checksum, err := sourceChecksum(sourcePath)
	if err != nil {
		return err
	}

	cached := parsedCache{
		Checksum: checksum,
		Dim:      v.dim,
		Tokens:   make([]string, len(v.data)),
		Data:     make([]float32, 0, len(v.data)*v.dim),
	}
	for token, row := range v.stoi {
		cached.Tokens[row] = token
	}
	for _, row := range v.data {
		cached.Data = append(cached.Data, row...)
	}

	raw, err := msgpack.Marshal(&cached)
	if err != nil {
		return fmt.Errorf("failed to encode vector parse cache: %w", err)
	}

	if err := os.WriteFile(sourcePath+cacheSuffix, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write vector parse cache: %w", err)
	}

	return nil
}

// sourceChecksum computes the xxhash64 of the raw source file.
func sourceChecksum(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open vector source for checksum: %w", err)
	}
	defer file.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, file); err != nil {
		return 0, fmt.Errorf("failed to checksum vector source: %w", err)
	}

	return digest.Sum64(), nil
}
