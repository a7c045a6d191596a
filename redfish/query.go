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

package redfish

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stmcginnis/gofish"
	"github.com/stmcginnis/gofish/common"
	"github.com/stmcginnis/gofish/redfish"
)

// Reading is a single sensor value reported by a chassis.
type Reading struct {
	Chassis string
	Name    string
	Value   float64
}

// System summarizes a computer system resource.
type System struct {
	ID             string
	Health         float64
	HealthKnown    bool
	PoweredOn      bool
	ProcessorCount float64
	MemoryGiB      float64
}

// Report is what a single query pass could read.
type Report struct {
	Fans         []Reading
	Temperatures []Reading
	Power        []Reading
	Systems      []System
}

// Query reads chassis thermal and power data and the system summaries. A
// resource that cannot be read is skipped; an error is only returned when
// neither the chassis nor the systems collection could be listed.
func Query(client *gofish.APIClient, logger *slog.Logger) (*Report, error) {
	if client == nil || client.Service == nil {
		return nil, errors.New("no redfish service")
	}
	report := &Report{}

	chassisErr := queryChassis(client.Service, report, logger)
	if chassisErr != nil {
		logger.Debug("Failed to list chassis", "error", chassisErr)
	}
	systemsErr := querySystems(client.Service, report)
	if systemsErr != nil {
		logger.Debug("Failed to list systems", "error", systemsErr)
	}
	if chassisErr != nil && systemsErr != nil {
		return nil, fmt.Errorf("redfish query failed: %w", errors.Join(chassisErr, systemsErr))
	}
	return report, nil
}

func queryChassis(service *gofish.Service, report *Report, logger *slog.Logger) error {
	chassis, err := service.Chassis()
	if err != nil {
		return err
	}
	for _, c := range chassis {
		thermal, err := c.Thermal()
		if err != nil {
			logger.Debug("Failed to read thermal data", "chassis", c.ID, "error", err)
		} else if thermal != nil {
			for _, fan := range thermal.Fans {
				report.Fans = append(report.Fans, Reading{Chassis: c.ID, Name: fan.Name, Value: float64(fan.Reading)})
			}
			for _, temp := range thermal.Temperatures {
				report.Temperatures = append(report.Temperatures, Reading{Chassis: c.ID, Name: temp.Name, Value: float64(temp.ReadingCelsius)})
			}
		}

		power, err := c.Power()
		if err != nil {
			logger.Debug("Failed to read power data", "chassis", c.ID, "error", err)
		} else if power != nil {
			for _, pc := range power.PowerControl {
				report.Power = append(report.Power, Reading{Chassis: c.ID, Name: pc.Name, Value: float64(pc.PowerConsumedWatts)})
			}
		}
	}
	return nil
}

func querySystems(service *gofish.Service, report *Report) error {
	systems, err := service.Systems()
	if err != nil {
		return err
	}
	for _, s := range systems {
		health, known := parseHealth(s.Status.Health)
		report.Systems = append(report.Systems, System{
			ID:             s.ID,
			Health:         health,
			HealthKnown:    known,
			PoweredOn:      s.PowerState == redfish.OnPowerState,
			ProcessorCount: float64(s.ProcessorSummary.Count),
			MemoryGiB:      float64(s.MemorySummary.TotalSystemMemoryGiB),
		})
	}
	return nil
}

// parseHealth maps a Redfish health onto 0=OK, 1=Warning, 2=Critical.
func parseHealth(h common.Health) (float64, bool) {
	switch h {
	case common.OKHealth:
		return 0, true
	case common.WarningHealth:
		return 1, true
	case common.CriticalHealth:
		return 2, true
	}
	return 0, false
}
