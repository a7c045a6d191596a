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
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// metricSpec declares a metric a collector may emit. It is the static
// counterpart of a sample and never touches hardware.
type metricSpec struct {
	Name      string               `json:"name"`
	Help      string               `json:"help"`
	Type      prometheus.ValueType `json:"-"`
	LabelKeys []string             `json:"labels,omitempty"`
}

func newGaugeSpec(name, help string, labelKeys ...string) metricSpec {
	return metricSpec{Name: name, Help: help, Type: prometheus.GaugeValue, LabelKeys: labelKeys}
}

// sample returns a sample of this metric. Label values are matched to the
// declared label keys by position.
func (s metricSpec) sample(value float64, labelValues ...string) sample {
	if len(labelValues) != len(s.LabelKeys) {
		panic(fmt.Sprintf("metric %s: %d label values for %d label keys", s.Name, len(labelValues), len(s.LabelKeys)))
	}
	var labels prometheus.Labels
	if len(s.LabelKeys) > 0 {
		labels = make(prometheus.Labels, len(s.LabelKeys))
		for i, k := range s.LabelKeys {
			labels[k] = labelValues[i]
		}
	}
	return sample{
		Name:   s.Name,
		Help:   s.Help,
		Labels: labels,
		Value:  value,
		Type:   s.Type,
	}
}

// typeName is used when listing declarations.
func (s metricSpec) typeName() string {
	if s.Type == prometheus.CounterValue {
		return "counter"
	}
	return "gauge"
}

// sample is a single metric value produced by one collect call.
type sample struct {
	Name   string
	Help   string
	Labels prometheus.Labels
	Value  float64
	Type   prometheus.ValueType
}

// key identifies a sample by name and label set.
func (s sample) key() string {
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, "\xff%s\xff%s", k, s.Labels[k])
	}
	return b.String()
}

// metric turns the sample into a const metric. The label set is carried as
// constant labels, so every sample keeps exactly the labels it was built with.
func (s sample) metric() (prometheus.Metric, error) {
	desc := prometheus.NewDesc(s.Name, s.Help, nil, s.Labels)
	return prometheus.NewConstMetric(desc, s.Type, s.Value)
}
