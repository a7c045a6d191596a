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
	"strings"

	"github.com/rgildein/prometheus-hardware-exporter/raid"
)

// storCLIMetrics are the metrics of one storcli flavour.
type storCLIMetrics struct {
	controllers   metricSpec
	virtualDrive  metricSpec
	physicalDrive metricSpec
}

func newStorCLIMetrics(namespace string) storCLIMetrics {
	return storCLIMetrics{
		controllers: newGaugeSpec(
			namespace+"_controllers",
			"Number of controllers that answered.",
		),
		virtualDrive: newGaugeSpec(
			namespace+"_virtual_drive_info",
			"Virtual drive of a controller with its RAID type and state.",
			"controller_id", "virtual_drive_id", "raid_type", "state",
		),
		physicalDrive: newGaugeSpec(
			namespace+"_physical_drive_info",
			"Physical drive of a controller with its state and media type.",
			"controller_id", "enclosure_slot", "state", "media_type",
		),
	}
}

var (
	megaRAIDMetrics      = newStorCLIMetrics("megaraid")
	powerEdgeRAIDMetrics = newStorCLIMetrics("poweredgeraid")
)

// StorCLICollector reads Broadcom MegaRAID controllers through storcli, or
// Dell PERC controllers through perccli which shares its output format.
type StorCLICollector struct {
	name    CollectorName
	cmd     string
	metrics storCLIMetrics
	runner  toolRunner
	logger  *slog.Logger
}

func newMegaRAIDCollector(runner toolRunner, logger *slog.Logger) StorCLICollector {
	return StorCLICollector{name: MegaRAIDCollectorName, cmd: "storcli", metrics: megaRAIDMetrics, runner: runner, logger: logger}
}

func newPowerEdgeRAIDCollector(runner toolRunner, logger *slog.Logger) StorCLICollector {
	return StorCLICollector{name: PowerEdgeRAIDCollectorName, cmd: "perccli", metrics: powerEdgeRAIDMetrics, runner: runner, logger: logger}
}

func (c StorCLICollector) Name() CollectorName {
	return c.name
}

func (c StorCLICollector) Cmd() string {
	return c.cmd
}

func (c StorCLICollector) Args() []string {
	return raid.StorCLIArgs
}

func (c StorCLICollector) Describe() []metricSpec {
	return []metricSpec{c.metrics.controllers, c.metrics.virtualDrive, c.metrics.physicalDrive}
}

func (c StorCLICollector) Collect(ctx context.Context) ([]sample, error) {
	output, err := c.runner.Run(ctx, c.Cmd(), c.Args()...)
	if err != nil {
		return nil, err
	}
	controllers, err := raid.ParseStorCLI(output)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s output: %w", c.cmd, err)
	}

	samples := []sample{c.metrics.controllers.sample(float64(len(controllers)))}
	for _, ctrl := range controllers {
		for _, vd := range ctrl.VirtualDrives {
			// "DG/VD" is "<drive group>/<virtual drive>".
			_, id, ok := strings.Cut(vd.DGVD, "/")
			if !ok {
				id = vd.DGVD
			}
			samples = append(samples, c.metrics.virtualDrive.sample(1, ctrl.ID, id, vd.Type, vd.State))
		}
		for _, pd := range ctrl.PhysicalDrives {
			samples = append(samples, c.metrics.physicalDrive.sample(1, ctrl.ID, pd.EIDSlot, pd.State, pd.Medium))
		}
	}
	return samples, nil
}
