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

package annotations_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viecap/caption-data-manager/pkg/annotations"
)

const sampleDocument = `{
	"info": {"year": 2025},
	"images": [{"id": 7}],
	"annotations": [
		{"id": 1, "image_id": 7, "caption": "a dog runs"},
		{"id": 2, "image_id": 7, "caption": "a cat naps"}
	]
}`

func writeDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile(t *testing.T) {
	path := writeDocument(t, "captions.json", sampleDocument)

	file, err := annotations.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, file.Annotations, 2)
	assert.Equal(t, "a dog runs", file.Annotations[0].Caption)
	assert.Equal(t, 7, file.Annotations[1].ImageID)
}

func TestReadFileErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		missing bool
	}{
		{name: "missing file", missing: true},
		{name: "malformed json", content: `{"annotations": [`},
		{name: "wrong shape", content: `{"annotations": "nope"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.json")
			if !c.missing {
				path = writeDocument(t, "captions.json", c.content)
			}

			_, err := annotations.ReadFile(path)
			require.Error(t, err)
		})
	}
}

func TestCaptionsPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a.json")
	path2 := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(path1,
		[]byte(`{"annotations":[{"caption":"first"},{"caption":"second"}]}`), 0o644))
	require.NoError(t, os.WriteFile(path2,
		[]byte(`{"annotations":[{"caption":"third"}]}`), 0o644))

	captions, err := annotations.Captions([]string{path1, path2})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, captions)
}
