// Copyright 2025 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const exporterNamespace = "hardware_exporter"

// collectResult is the outcome of one collector during one scrape.
type collectResult struct {
	index    int
	samples  []sample
	err      error
	duration time.Duration
}

// Exporter runs the enabled collectors and exposes their samples. It records
// per-collector success and duration as its own metrics.
type Exporter struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger

	success  *prometheus.GaugeVec
	duration *prometheus.GaugeVec
}

// NewExporter returns an Exporter for registry. timeout bounds scrapes that
// are not started with a context of their own.
func NewExporter(registry *Registry, timeout time.Duration, logger *slog.Logger) *Exporter {
	return &Exporter{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: exporterNamespace,
			Name:      "collector_success",
			Help:      "Whether a collector succeeded during the last scrape.",
		}, []string{"collector"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: exporterNamespace,
			Name:      "collector_duration_seconds",
			Help:      "Duration of a collector during the last scrape.",
		}, []string{"collector"}),
	}
}

// Register registers the self-metrics of the exporter.
func (e *Exporter) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{e.success, e.duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Scrape runs all collectors in parallel and returns their samples in
// registration order. A collector that fails or has not returned by the time
// ctx is done contributes no samples; the other collectors are unaffected.
func (e *Exporter) Scrape(ctx context.Context) []sample {
	collectors := e.registry.Collectors()
	start := time.Now()

	results := make(chan collectResult, len(collectors))
	for i, c := range collectors {
		go func(i int, c Collector) {
			results <- e.collect(ctx, i, c)
		}(i, c)
	}

	done := make([]*collectResult, len(collectors))
	pending := len(collectors)
wait:
	for pending > 0 {
		select {
		case r := <-results:
			done[r.index] = &r
			pending--
		case <-ctx.Done():
			break wait
		}
	}
	// Pick up results that arrived together with the deadline.
drain:
	for pending > 0 {
		select {
		case r := <-results:
			done[r.index] = &r
			pending--
		default:
			break drain
		}
	}

	var samples []sample
	seen := map[string]struct{}{}
	for i, c := range collectors {
		name := c.Name().short()
		r := done[i]
		if r == nil {
			r = &collectResult{
				err:      fmt.Errorf("collector did not finish: %w", ctx.Err()),
				duration: time.Since(start),
			}
		}
		e.duration.WithLabelValues(name).Set(r.duration.Seconds())
		if r.err != nil {
			e.logger.Error("Collector failed", "collector", name, "error", r.err)
			e.success.WithLabelValues(name).Set(0)
			continue
		}
		e.logger.Debug("Collector succeeded", "collector", name, "samples", len(r.samples), "duration_seconds", r.duration.Seconds())
		e.success.WithLabelValues(name).Set(1)
		for _, s := range r.samples {
			key := s.key()
			if _, dup := seen[key]; dup {
				e.logger.Debug("Dropping duplicate sample", "collector", name, "metric", s.Name)
				continue
			}
			seen[key] = struct{}{}
			samples = append(samples, s)
		}
	}
	return samples
}

func (e *Exporter) collect(ctx context.Context, index int, c Collector) (r collectResult) {
	start := time.Now()
	r.index = index
	defer func() {
		if p := recover(); p != nil {
			r.samples = nil
			r.err = fmt.Errorf("collector panicked: %v", p)
		}
		r.duration = time.Since(start)
	}()
	r.samples, r.err = c.Collect(ctx)
	return r
}

// Describe sends nothing: the label sets of hardware samples are only known
// once collected, so the exporter is an unchecked collector.
func (e *Exporter) Describe(_ chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector with a scrape bounded by the
// exporter timeout.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.emit(ctx, ch)
}

// WithContext returns a prometheus.Collector whose scrapes run under ctx,
// typically the context of an HTTP request.
func (e *Exporter) WithContext(ctx context.Context) prometheus.Collector {
	return boundExporter{exporter: e, ctx: ctx}
}

func (e *Exporter) emit(ctx context.Context, ch chan<- prometheus.Metric) {
	for _, s := range e.Scrape(ctx) {
		m, err := s.metric()
		if err != nil {
			e.logger.Error("Invalid sample", "metric", s.Name, "error", err)
			continue
		}
		ch <- m
	}
}

type boundExporter struct {
	exporter *Exporter
	ctx      context.Context
}

func (b boundExporter) Describe(_ chan<- *prometheus.Desc) {}

func (b boundExporter) Collect(ch chan<- prometheus.Metric) {
	b.exporter.emit(b.ctx, ch)
}
