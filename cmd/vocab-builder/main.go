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

// vocab-builder builds a caption vocabulary from annotation files and
// writes it out as a snapshot.
//
// Usage:
//
//	vocab-builder [flags] annotations1.json [annotations2.json ...]
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/viecap/caption-data-manager/pkg/utils"
	"github.com/viecap/caption-data-manager/pkg/vectors"
	"github.com/viecap/caption-data-manager/pkg/vocabulary"
)

const envHFToken = "HF_TOKEN"

func main() {
	var (
		outPath       = flag.String("out", "vocab.cbor", "path of the vocabulary snapshot to write")
		minFreq       = flag.Int("min-freq", 1, "minimum token frequency")
		maxSize       = flag.Int("max-size", 0, "maximum vocabulary size, 0 for unlimited")
		tokenizerName = flag.String("tokenizer", "", "HuggingFace tokenizer for caption tokenization, empty for basic")
		pretrainedLM  = flag.String("pretrained-lm", "", "delegate the vocabulary to this pretrained language model")
		vectorAliases = flag.String("vectors", "", "comma-separated pretrained vector aliases to attach")
		vectorsCache  = flag.String("vectors-cache", ".vector_cache", "directory for cached vector sources")
		enableMetrics = flag.Bool("metrics", false, "register and periodically log build metrics")
	)
	klog.InitFlags(nil)
	flag.Parse()

	ctx := context.Background()
	logger := klog.FromContext(ctx)

	annotationPaths := flag.Args()
	if len(annotationPaths) == 0 {
		logger.Info("no annotation files given")
		flag.Usage()
		os.Exit(2)
	}

	cfg := vocabulary.DefaultConfig()
	cfg.MinFreq = *minFreq
	cfg.MaxSize = *maxSize
	cfg.TokenizerName = *tokenizerName
	cfg.PretrainedLanguageModel = *pretrainedLM
	cfg.VectorsConfig.CacheDir = *vectorsCache
	cfg.EnableMetrics = *enableMetrics
	if *enableMetrics {
		cfg.MetricsLoggingInterval = 30 * time.Second
	}
	if token := os.Getenv(envHFToken); token != "" {
		cfg.HFTokenizerConfig.HuggingFaceToken = token
	}
	if *vectorAliases != "" {
		specs, err := utils.SliceMapE(strings.Split(*vectorAliases, ","), func(raw string) (vectors.Spec, error) {
			alias, err := vectors.ParseAlias(strings.TrimSpace(raw))
			if err != nil {
				return nil, err
			}
			return alias, nil
		})
		if err != nil {
			logger.Error(err, "invalid vector alias")
			os.Exit(2)
		}
		cfg.VectorSpecs = specs
	}

	vocab, err := vocabulary.New(ctx, annotationPaths, cfg)
	if err != nil {
		logger.Error(err, "failed to build vocabulary")
		os.Exit(1)
	}

	logger.Info("built vocabulary",
		"size", vocab.Len(),
		"maxCaptionLength", vocab.MaxCaptionLength,
		"files", len(annotationPaths))

	if err := vocab.Save(*outPath); err != nil {
		logger.Error(err, "failed to write vocabulary snapshot", "path", *outPath)
		os.Exit(1)
	}

	logger.Info("wrote vocabulary snapshot", "path", *outPath)
}
