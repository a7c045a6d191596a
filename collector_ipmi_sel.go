// Copyright 2021 The Prometheus Authors
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
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rgildein/prometheus-hardware-exporter/freeipmi"
)

const SELDateTimeFormat string = "Jan-02-2006 15:04:05"

var (
	selStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "sel", "state"),
		"Worst state of the SEL entries of a sensor within the configured interval (0=nominal, 1=warning, 2=critical).",
		"name", "type",
	)
	selEventsCountByStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "sel_events", "count_by_state"),
		"Number of SEL entries within the configured interval by state.",
		"state",
	)
)

var selStates = map[string]float64{
	"Nominal":  0,
	"Warning":  1,
	"Critical": 2,
}

type selSensorKey struct {
	Name string
	Type string
}

// SELCollector summarizes the recent entries of the System Event Log.
type SELCollector struct {
	runner   toolRunner
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func (c SELCollector) Name() CollectorName {
	return IPMISELCollectorName
}

func (c SELCollector) Cmd() string {
	return "ipmi-sel"
}

func (c SELCollector) Args() []string {
	return []string{
		"--quiet-cache",
		"--comma-separated-output",
		"--no-header-output",
		"--sdr-cache-recreate",
		"--output-event-state",
		"--interpret-oem-data",
		"--entity-sensor-names",
	}
}

func (c SELCollector) Describe() []metricSpec {
	return []metricSpec{selStateSpec, selEventsCountByStateSpec}
}

func (c SELCollector) Collect(ctx context.Context) ([]sample, error) {
	output, err := c.runner.Run(ctx, c.Cmd(), c.Args()...)
	if err != nil {
		return nil, err
	}
	events, err := freeipmi.GetSELEvents(output, c.logger)
	if err != nil {
		c.logger.Error("Failed to collect SEL events", "error", err)
		return nil, err
	}

	now := c.now()
	worstBySensor := map[selSensorKey]float64{}
	var sensorOrder []selSensorKey
	countByState := map[string]float64{}
	var stateOrder []string

	for _, data := range events {
		t, err := time.ParseInLocation(SELDateTimeFormat, data.Date+" "+data.Time, time.Local)
		// ignore entries with invalid date or time
		// NOTE: in some cases ipmi-sel can return "PostInit" in Date and Time fields
		if err != nil {
			c.logger.Debug("Failed to parse time", "id", data.ID, "error", err)
			continue
		}
		if now.Sub(t) >= c.interval {
			continue
		}
		state, ok := selStates[data.State]
		if !ok {
			c.logger.Debug("Unknown SEL state", "id", data.ID, "state", data.State)
			continue
		}

		key := selSensorKey{Name: data.Name, Type: data.Type}
		worst, seen := worstBySensor[key]
		if !seen {
			sensorOrder = append(sensorOrder, key)
		}
		if !seen || state > worst {
			worstBySensor[key] = state
		}
		if _, seen := countByState[data.State]; !seen {
			stateOrder = append(stateOrder, data.State)
		}
		countByState[data.State]++
	}

	samples := make([]sample, 0, len(sensorOrder)+len(stateOrder))
	for _, key := range sensorOrder {
		samples = append(samples, selStateSpec.sample(worstBySensor[key], key.Name, key.Type))
	}
	for _, state := range stateOrder {
		samples = append(samples, selEventsCountByStateSpec.sample(countByState[state], state))
	}
	return samples, nil
}
