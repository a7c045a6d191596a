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

	"github.com/bougou/go-ipmi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rgildein/prometheus-hardware-exporter/freeipmi"
)

var powerConsumptionSpec = newGaugeSpec(
	prometheus.BuildFQName(ipmiNamespace, "dcmi", "power_consumption_watts"),
	"Current power consumption in Watts.",
)

// DCMICollector reads the system power through ipmi-dcmi.
type DCMICollector struct {
	runner toolRunner
	logger *slog.Logger
}

func (c DCMICollector) Name() CollectorName {
	return IPMIDCMICollectorName
}

func (c DCMICollector) Cmd() string {
	return "ipmi-dcmi"
}

func (c DCMICollector) Args() []string {
	return []string{"--get-system-power-statistics"}
}

func (c DCMICollector) Describe() []metricSpec {
	return []metricSpec{powerConsumptionSpec}
}

func (c DCMICollector) Collect(ctx context.Context) ([]sample, error) {
	output, err := c.runner.Run(ctx, c.Cmd(), c.Args()...)
	if err != nil {
		return nil, err
	}
	currentPowerConsumption, err := freeipmi.GetCurrentPowerConsumption(output)
	if err != nil {
		c.logger.Error("Failed to collect DCMI data", "error", err)
		return nil, err
	}
	return []sample{powerConsumptionSpec.sample(currentPowerConsumption)}, nil
}

// dcmiPowerReader is the part of the go-ipmi client used for DCMI.
type dcmiPowerReader interface {
	GetDCMIPowerReading(ctx context.Context) (*ipmi.GetDCMIPowerReadingResponse, error)
	Close(ctx context.Context) error
}

// connectOpenIPMI opens the local in-band OpenIPMI device.
func connectOpenIPMI(ctx context.Context) (dcmiPowerReader, error) {
	client, err := ipmi.NewOpenClient()
	if err != nil {
		return nil, fmt.Errorf("error creating ipmi client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to ipmi device: %w", err)
	}
	return client, nil
}

// DCMINativeCollector reads the system power through the in-band IPMI
// interface without FreeIPMI.
type DCMINativeCollector struct {
	connect func(ctx context.Context) (dcmiPowerReader, error)
	logger  *slog.Logger
}

func (c DCMINativeCollector) Name() CollectorName {
	// The name is intentionally the same as the non-native collector
	return IPMIDCMICollectorName
}

func (c DCMINativeCollector) Describe() []metricSpec {
	return []metricSpec{powerConsumptionSpec}
}

func (c DCMINativeCollector) Collect(ctx context.Context) ([]sample, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Close(ctx); err != nil {
			c.logger.Debug("Failed to close ipmi client", "error", err)
		}
	}()

	res, err := client.GetDCMIPowerReading(ctx)
	if err != nil {
		c.logger.Error("Failed to collect DCMI data", "error", err)
		return nil, err
	}
	if !res.PowerMeasurementActive {
		c.logger.Debug("DCMI power measurement is not active")
		return nil, nil
	}
	return []sample{powerConsumptionSpec.sample(float64(res.CurrentPower))}, nil
}
