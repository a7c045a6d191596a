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
	"strconv"
	"strings"

	"github.com/rgildein/prometheus-hardware-exporter/raid"
)

const sasircuNamespace = "sasircu"

var (
	sasControllerInfoSpec = newGaugeSpec(
		sasircuNamespace+"_controller_info",
		"Controller found by sasXircu LIST.",
		"version", "controller", "adapter_type",
	)
	sasVolumeInfoSpec = newGaugeSpec(
		sasircuNamespace+"_volume_info",
		"IR volume of a controller with its status.",
		"version", "controller", "volume_id", "raid_level", "status",
	)
	sasPhysicalDeviceInfoSpec = newGaugeSpec(
		sasircuNamespace+"_physical_device_info",
		"Physical device attached to a controller with its state.",
		"version", "controller", "enclosure", "slot", "state",
	)
)

// LSISASCollector reads LSI SAS HBAs through sas2ircu or sas3ircu.
type LSISASCollector struct {
	version int
	runner  toolRunner
	logger  *slog.Logger
}

func (c LSISASCollector) Name() CollectorName {
	if c.version == 2 {
		return LSISAS2CollectorName
	}
	return LSISAS3CollectorName
}

func (c LSISASCollector) Cmd() string {
	return fmt.Sprintf("sas%dircu", c.version)
}

func (c LSISASCollector) Describe() []metricSpec {
	return []metricSpec{sasControllerInfoSpec, sasVolumeInfoSpec, sasPhysicalDeviceInfoSpec}
}

func (c LSISASCollector) Collect(ctx context.Context) ([]sample, error) {
	output, err := c.runner.Run(ctx, c.Cmd(), "LIST")
	if err != nil {
		return nil, err
	}
	controllers, err := raid.ParseSASList(output)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s LIST: %w", c.Cmd(), err)
	}

	version := strconv.Itoa(c.version)
	var samples []sample
	for _, ctrl := range controllers {
		index := strconv.Itoa(ctrl.Index)
		samples = append(samples, sasControllerInfoSpec.sample(1, version, index, ctrl.AdapterType))

		output, err := c.runner.Run(ctx, c.Cmd(), index, "DISPLAY")
		if err != nil {
			c.logger.Error("Failed to read controller details", "controller", index, "error", err)
			continue
		}
		display, err := raid.ParseSASDisplay(output)
		if err != nil {
			c.logger.Error("Failed to parse controller details", "controller", index, "error", err)
			continue
		}
		for _, v := range display.Volumes {
			samples = append(samples, sasVolumeInfoSpec.sample(1, version, index, v.ID, v.RAIDLevel, stripStateCode(v.Status)))
		}
		for _, d := range display.Devices {
			samples = append(samples, sasPhysicalDeviceInfoSpec.sample(1, version, index, d.Enclosure, d.Slot, stripStateCode(d.State)))
		}
	}
	return samples, nil
}

// stripStateCode turns "Optimal (OPT)" into "Optimal".
func stripStateCode(state string) string {
	if i := strings.Index(state, " ("); i > 0 {
		return state[:i]
	}
	return state
}
