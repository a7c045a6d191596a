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
	"slices"
	"time"
)

// backends are the process-wide resources collectors talk through.
type backends struct {
	runner     toolRunner
	sessions   sessionSource
	query      queryFunc
	nativeIPMI func(ctx context.Context) (dcmiPowerReader, error)
	now        func() time.Time
}

type collectorFactory struct {
	name CollectorName
	new  func(cfg *Config, b backends, logger *slog.Logger) Collector
}

// collectorFactories lists every known collector in registration order.
func collectorFactories() []collectorFactory {
	return []collectorFactory{
		{HPESSACollectorName, func(_ *Config, b backends, logger *slog.Logger) Collector {
			return HPESSACollector{runner: b.runner, logger: logger}
		}},
		{IPMIDCMICollectorName, func(cfg *Config, b backends, logger *slog.Logger) Collector {
			if cfg.NativeIPMI {
				return DCMINativeCollector{connect: b.nativeIPMI, logger: logger}
			}
			return DCMICollector{runner: b.runner, logger: logger}
		}},
		{IPMISELCollectorName, func(cfg *Config, b backends, logger *slog.Logger) Collector {
			return SELCollector{runner: b.runner, interval: cfg.selInterval(), now: b.now, logger: logger}
		}},
		{IPMISensorCollectorName, func(cfg *Config, b backends, logger *slog.Logger) Collector {
			return IPMISensorCollector{runner: b.runner, excludeSensorIDs: cfg.IPMIExcludeSensorIDs, logger: logger}
		}},
		{LSISAS2CollectorName, func(_ *Config, b backends, logger *slog.Logger) Collector {
			return LSISASCollector{version: 2, runner: b.runner, logger: logger}
		}},
		{LSISAS3CollectorName, func(_ *Config, b backends, logger *slog.Logger) Collector {
			return LSISASCollector{version: 3, runner: b.runner, logger: logger}
		}},
		{MegaRAIDCollectorName, func(_ *Config, b backends, logger *slog.Logger) Collector {
			return newMegaRAIDCollector(b.runner, logger)
		}},
		{PowerEdgeRAIDCollectorName, func(_ *Config, b backends, logger *slog.Logger) Collector {
			return newPowerEdgeRAIDCollector(b.runner, logger)
		}},
		{RedfishCollectorName, func(_ *Config, b backends, logger *slog.Logger) Collector {
			return RedfishCollector{sessions: b.sessions, query: b.query, logger: logger}
		}},
	}
}

// Registry is the ordered, immutable set of enabled collectors.
type Registry struct {
	collectors []Collector
}

// buildRegistry instantiates the collectors enabled in cfg. Unknown names
// are skipped.
func buildRegistry(cfg *Config, b backends, logger *slog.Logger) *Registry {
	enabled := cfg.enabled()
	known := make(map[CollectorName]struct{}, len(enabled))

	r := &Registry{}
	for _, f := range collectorFactories() {
		known[f.name] = struct{}{}
		if _, ok := enabled[f.name]; !ok {
			continue
		}
		r.collectors = append(r.collectors, f.new(cfg, b, logger.With("collector", f.name.short())))
	}
	for name := range enabled {
		if _, ok := known[name]; !ok {
			logger.Debug("Ignoring unknown collector", "collector", string(name))
		}
	}
	return r
}

// Collectors returns the enabled collectors in registration order.
func (r *Registry) Collectors() []Collector {
	return slices.Clone(r.collectors)
}
