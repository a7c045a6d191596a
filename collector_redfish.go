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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stmcginnis/gofish"

	"github.com/rgildein/prometheus-hardware-exporter/redfish"
)

const redfishNamespace = "redfish"

var (
	redfishFanSpeedSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "fan_speed", "rpm"),
		"Fan speed reported by a chassis.",
		"chassis", "name",
	)
	redfishTemperatureSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "temperature", "celsius"),
		"Temperature reported by a chassis in degree Celsius.",
		"chassis", "name",
	)
	redfishPowerConsumedSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "power_consumed", "watts"),
		"Power consumed as reported by a chassis power control.",
		"chassis", "name",
	)
	redfishSystemHealthSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "system", "health"),
		"Health of a computer system (0=OK, 1=Warning, 2=Critical).",
		"system",
	)
	redfishSystemPowerStateSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "system", "power_state"),
		"Whether a computer system is powered on.",
		"system",
	)
	redfishProcessorCountSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "processor", "count"),
		"Number of processors of a computer system.",
		"system",
	)
	redfishMemoryTotalSpec = newGaugeSpec(
		prometheus.BuildFQName(redfishNamespace, "memory_total", "gib"),
		"Total system memory in GiB.",
		"system",
	)
)

// sessionSource hands out Redfish sessions, see redfish.DiscoveryCache.
type sessionSource interface {
	Session(ctx context.Context) (*gofish.APIClient, error)
	Invalidate(client *gofish.APIClient)
}

type queryFunc func(client *gofish.APIClient, logger *slog.Logger) (*redfish.Report, error)

type queryResult struct {
	report *redfish.Report
	err    error
}

// RedfishCollector queries the BMC through a cached Redfish session.
type RedfishCollector struct {
	sessions sessionSource
	query    queryFunc
	logger   *slog.Logger
}

func (c RedfishCollector) Name() CollectorName {
	return RedfishCollectorName
}

func (c RedfishCollector) Describe() []metricSpec {
	return []metricSpec{
		redfishFanSpeedSpec,
		redfishTemperatureSpec,
		redfishPowerConsumedSpec,
		redfishSystemHealthSpec,
		redfishSystemPowerStateSpec,
		redfishProcessorCountSpec,
		redfishMemoryTotalSpec,
	}
}

func (c RedfishCollector) Collect(ctx context.Context) ([]sample, error) {
	client, err := c.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}

	// gofish requests are bounded by the client timeout but not by ctx.
	ch := make(chan queryResult, 1)
	go func() {
		report, err := c.query(client, c.logger)
		ch <- queryResult{report: report, err: err}
	}()

	var res queryResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		c.logger.Error("Failed to query redfish service", "error", res.err)
		c.sessions.Invalidate(client)
		return nil, res.err
	}
	return redfishSamples(res.report), nil
}

func redfishSamples(report *redfish.Report) []sample {
	var samples []sample
	for _, r := range report.Fans {
		samples = append(samples, redfishFanSpeedSpec.sample(r.Value, r.Chassis, r.Name))
	}
	for _, r := range report.Temperatures {
		samples = append(samples, redfishTemperatureSpec.sample(r.Value, r.Chassis, r.Name))
	}
	for _, r := range report.Power {
		samples = append(samples, redfishPowerConsumedSpec.sample(r.Value, r.Chassis, r.Name))
	}
	for _, s := range report.Systems {
		if s.HealthKnown {
			samples = append(samples, redfishSystemHealthSpec.sample(s.Health, s.ID))
		}
		var poweredOn float64
		if s.PoweredOn {
			poweredOn = 1
		}
		samples = append(samples,
			redfishSystemPowerStateSpec.sample(poweredOn, s.ID),
			redfishProcessorCountSpec.sample(s.ProcessorCount, s.ID),
			redfishMemoryTotalSpec.sample(s.MemoryGiB, s.ID),
		)
	}
	return samples
}
