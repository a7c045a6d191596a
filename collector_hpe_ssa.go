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
	"sort"

	"github.com/rgildein/prometheus-hardware-exporter/raid"
)

var (
	ssaControllerStatusSpec = newGaugeSpec(
		"ssacli_controller_status",
		"Status of a Smart Array controller component (1=OK, 0=otherwise).",
		"slot", "model", "component",
	)
	ssaLogicalDriveStatusSpec = newGaugeSpec(
		"ssacli_logical_drive_status",
		"Status of a logical drive (1=OK, 0=otherwise).",
		"slot", "drive",
	)
	ssaPhysicalDriveStatusSpec = newGaugeSpec(
		"ssacli_physical_drive_status",
		"Status of a physical drive (1=OK, 0=otherwise).",
		"slot", "drive",
	)
)

// HPESSACollector reads HPE Smart Array controllers through ssacli.
type HPESSACollector struct {
	runner toolRunner
	logger *slog.Logger
}

func (c HPESSACollector) Name() CollectorName {
	return HPESSACollectorName
}

func (c HPESSACollector) Cmd() string {
	return "ssacli"
}

func (c HPESSACollector) Describe() []metricSpec {
	return []metricSpec{ssaControllerStatusSpec, ssaLogicalDriveStatusSpec, ssaPhysicalDriveStatusSpec}
}

func (c HPESSACollector) Collect(ctx context.Context) ([]sample, error) {
	output, err := c.runner.Run(ctx, c.Cmd(), "ctrl", "all", "show", "status")
	if err != nil {
		return nil, err
	}
	controllers, err := raid.ParseSSAControllers(output)
	if err != nil {
		return nil, fmt.Errorf("error parsing ssacli output: %w", err)
	}

	var samples []sample
	for _, ctrl := range controllers {
		components := make([]string, 0, len(ctrl.Components))
		for component := range ctrl.Components {
			components = append(components, component)
		}
		sort.Strings(components)
		for _, component := range components {
			samples = append(samples, ssaControllerStatusSpec.sample(okValue(ctrl.Components[component]), ctrl.Slot, ctrl.Model, component))
		}
		samples = append(samples, c.drives(ctx, ctrl.Slot, "ld", ssaLogicalDriveStatusSpec, raid.ParseSSALogicalDrives)...)
		samples = append(samples, c.drives(ctx, ctrl.Slot, "pd", ssaPhysicalDriveStatusSpec, raid.ParseSSAPhysicalDrives)...)
	}
	return samples, nil
}

func (c HPESSACollector) drives(ctx context.Context, slot, kind string, spec metricSpec, parse func([]byte) ([]raid.SSADrive, error)) []sample {
	output, err := c.runner.Run(ctx, c.Cmd(), "ctrl", "slot="+slot, kind, "all", "show", "status")
	if err != nil {
		c.logger.Error("Failed to read drive status", "slot", slot, "kind", kind, "error", err)
		return nil
	}
	drives, err := parse(output)
	if err != nil {
		c.logger.Error("Failed to parse drive status", "slot", slot, "kind", kind, "error", err)
		return nil
	}
	samples := make([]sample, 0, len(drives))
	for _, d := range drives {
		samples = append(samples, spec.sample(okValue(d.Status), slot, d.Drive))
	}
	return samples
}

func okValue(status string) float64 {
	if status == "OK" {
		return 1
	}
	return 0
}
