// Copyright 2025 The viecap Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"
)

var (
	// CaptionsProcessed counts captions scanned during vocabulary builds.
	CaptionsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "captiondata", Subsystem: "vocabulary", Name: "captions_processed_total",
		Help: "Total number of captions scanned while building vocabularies",
	})
	// TokensCounted counts tokens accumulated into frequency tables.
	TokensCounted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "captiondata", Subsystem: "vocabulary", Name: "tokens_counted_total",
		Help: "Total number of tokens accumulated into frequency tables",
	})
	// OOVSubstitutions counts unk substitutions made by Encode.
	OOVSubstitutions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "captiondata", Subsystem: "vocabulary", Name: "oov_substitutions_total",
		Help: "Number of out-of-vocabulary tokens substituted with unk during encoding",
	})
	// VectorFills counts embeddings filled by unk-init during vector loading.
	VectorFills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "captiondata", Subsystem: "vectors", Name: "unk_fills_total",
		Help: "Number of vocabulary tokens absent from all vector sources",
	})
)

// Collectors returns a slice of all registered Prometheus collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		CaptionsProcessed, TokensCounted,
		OOVSubstitutions, VectorFills,
	}
}

var registerMetricsOnce = sync.Once{}

// Register registers all metrics with the default registry.
func Register() {
	registerMetricsOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(Collectors()...)
	})
}

// StartMetricsLogging spawns a goroutine that logs current metric values
// every interval.
func StartMetricsLogging(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logMetrics(ctx)
			}
		}
	}()
}

func logMetrics(ctx context.Context) {
	var m dto.Metric

	err := CaptionsProcessed.Write(&m)
	if err != nil {
		return
	}
	captions := m.GetCounter().GetValue()

	err = TokensCounted.Write(&m)
	if err != nil {
		return
	}
	tokens := m.GetCounter().GetValue()

	err = OOVSubstitutions.Write(&m)
	if err != nil {
		return
	}
	oov := m.GetCounter().GetValue()

	err = VectorFills.Write(&m)
	if err != nil {
		return
	}
	fills := m.GetCounter().GetValue()

	klog.FromContext(ctx).Info("vocabulary metrics",
		"captions", captions,
		"tokens", tokens,
		"oovSubstitutions", oov,
		"vectorUnkFills", fills,
	)
}
