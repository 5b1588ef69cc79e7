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
	"sort"
)

// pretrainedAliases is the fixed registry of downloadable vector sources.
// The key doubles as the cached file name.
var pretrainedAliases = map[string]string{
	"fasttext.vi.300d":     "https://dl.fbaipublicfiles.com/fasttext/vectors-crawl/cc.vi.300.vec.gz",
	"phow2v.syllable.100d": "https://public.vinai.io/word2vec_vi_syllables_100dims.txt",
	"phow2v.syllable.300d": "https://public.vinai.io/word2vec_vi_syllables_300dims.txt",
}

// Aliases returns the recognized pretrained aliases, sorted.
func Aliases() []string {
	names := make([]string, 0, len(pretrainedAliases))
	for name := range pretrainedAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec selects a vector source: either a symbolic Alias resolved against
// the registry, or a ready *Vectors passed through as-is. Resolution and
// validation happen once, at the Resolve call boundary.
type Spec interface {
	Resolve(ctx context.Context, cfg *Config) (*Vectors, error)
}

// Alias is a symbolic vector-source name from the fixed registry.
type Alias string

// ParseAlias validates name against the registry without resolving it.
// Unknown names fail the same way Resolve would.
func ParseAlias(name string) (Alias, error) {
	if _, ok := pretrainedAliases[name]; !ok {
		return "", fmt.Errorf("got string input vector %q, but allowed pretrained vectors are %v",
			name, Aliases())
	}
	return Alias(name), nil
}

var _ Spec = Alias("")

// Resolve implements Spec. Unknown aliases are a hard error naming the
// offender and the valid alias set.
func (a Alias) Resolve(ctx context.Context, cfg *Config) (*Vectors, error) {
	url, ok := pretrainedAliases[string(a)]
	if !ok {
		return nil, fmt.Errorf("got string input vector %q, but allowed pretrained vectors are %v",
			string(a), Aliases())
	}

	return New(ctx, string(a), url, cfg)
}

var _ Spec = &Vectors{}

// Resolve implements Spec for a ready source.
func (v *Vectors) Resolve(_ context.Context, _ *Config) (*Vectors, error) {
	return v, nil
}

// ResolveSpecs resolves every spec in order, so concatenation order is the
// caller's spec order.
func ResolveSpecs(ctx context.Context, specs []Spec, cfg *Config) ([]*Vectors, error) {
	resolved := make([]*Vectors, len(specs))
	for i, spec := range specs {
		if spec == nil {
			return nil, fmt.Errorf("got nil input vector at position %d, expected an alias or a Vectors object", i)
		}

		v, err := spec.Resolve(ctx, cfg)
		if err != nil {
			return nil, err
		}
		resolved[i] = v
	}

	return resolved, nil
}
