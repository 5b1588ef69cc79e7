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

import "slices"

// Matrix is a dense embedding table with one row per vocabulary entry, in
// index order. Columns are the concatenated feature dimensions of the
// sources the matrix was assembled from.
type Matrix struct {
	Rows [][]float32 `msgpack:"rows" cbor:"rows"`
	Dim  int         `msgpack:"dim"  cbor:"dim"`
}

// Concat assembles a matrix for the given tokens by concatenating each
// source's embedding along the feature dimension, token by token. Tokens
// absent from a source are filled by that source's unk-init.
func Concat(tokens []string, sources []*Vectors) *Matrix {
	totalDim := 0
	for _, src := range sources {
		totalDim += src.Dim()
	}

	m := &Matrix{
		Rows: make([][]float32, len(tokens)),
		Dim:  totalDim,
	}
	for i, token := range tokens {
		row := make([]float32, 0, totalDim)
		for _, src := range sources {
			row = append(row, src.Get(token)...)
		}
		m.Rows[i] = row
	}

	return m
}

// Equal reports whether two matrices hold identical values. Two nil
// matrices are equal.
func (m *Matrix) Equal(other *Matrix) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Dim != other.Dim || len(m.Rows) != len(other.Rows) {
		return false
	}
	for i := range m.Rows {
		if !slices.Equal(m.Rows[i], other.Rows[i]) {
			return false
		}
	}
	return true
}
