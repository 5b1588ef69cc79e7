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

// Package annotations reads COCO-style caption annotation files.
//
// An annotation file is a single JSON document holding an "annotations"
// array; each entry carries one caption string. All other fields of the
// document are ignored.
package annotations

import (
	"encoding/json"
	"fmt"
	"os"
)

// Annotation is a single caption annotation.
type Annotation struct {
	ID      int    `json:"id,omitempty"`
	ImageID int    `json:"image_id,omitempty"`
	Caption string `json:"caption"`
}

// File is the decoded form of one annotation document.
type File struct {
	Annotations []Annotation `json:"annotations"`
}

// ReadFile decodes a single annotation document.
// Missing files and malformed JSON are fatal to the caller; there is no
// retry or partial-read semantics.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation file %q: %w", path, err)
	}

	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse annotation file %q: %w", path, err)
	}

	return &file, nil
}

// Captions reads every annotation file in paths and returns the captions in
// file order, then annotation order within each file.
func Captions(paths []string) ([]string, error) {
	var captions []string
	for _, path := range paths {
		file, err := ReadFile(path)
		if err != nil {
			return nil, err
		}

		for _, ann := range file.Annotations {
			captions = append(captions, ann.Caption)
		}
	}

	return captions, nil
}
