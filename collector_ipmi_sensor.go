package main

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rgildein/prometheus-hardware-exporter/freeipmi"
)

const ipmiNamespace = "ipmi"

var (
	sensorStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "sensor", "state"),
		"Indicates the severity of the state reported by an IPMI sensor (0=nominal, 1=warning, 2=critical).",
		"id", "name", "type",
	)

	sensorValueSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "sensor", "value"),
		"Generic data read from an IPMI sensor of unknown type, relying on labels for context.",
		"id", "name", "type",
	)

	fanSpeedSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "fan_speed", "rpm"),
		"Fan speed in rotations per minute.",
		"id", "name",
	)

	fanSpeedStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "fan_speed", "state"),
		"Reported state of a fan speed sensor (0=nominal, 1=warning, 2=critical).",
		"id", "name",
	)

	temperatureSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "temperature", "celsius"),
		"Temperature reading in degree Celsius.",
		"id", "name",
	)

	temperatureStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "temperature", "state"),
		"Reported state of a temperature sensor (0=nominal, 1=warning, 2=critical).",
		"id", "name",
	)

	voltageSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "voltage", "volts"),
		"Voltage reading in Volts.",
		"id", "name",
	)

	voltageStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "voltage", "state"),
		"Reported state of a voltage sensor (0=nominal, 1=warning, 2=critical).",
		"id", "name",
	)

	currentSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "current", "amperes"),
		"Current reading in Amperes.",
		"id", "name",
	)

	currentStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "current", "state"),
		"Reported state of a current sensor (0=nominal, 1=warning, 2=critical).",
		"id", "name",
	)

	powerSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "power", "watts"),
		"Power reading in Watts.",
		"id", "name",
	)

	powerStateSpec = newGaugeSpec(
		prometheus.BuildFQName(ipmiNamespace, "power", "state"),
		"Reported state of a power sensor (0=nominal, 1=warning, 2=critical).",
		"id", "name",
	)
)

// IPMISensorCollector reads all sensors through ipmimonitoring.
type IPMISensorCollector struct {
	runner           toolRunner
	excludeSensorIDs []int64
	logger           *slog.Logger
}

func (c IPMISensorCollector) Name() CollectorName {
	return IPMISensorCollectorName
}

func (c IPMISensorCollector) Cmd() string {
	return "ipmimonitoring"
}

func (c IPMISensorCollector) Args() []string {
	return []string{
		"-Q",
		"--ignore-unrecognized-events",
		"--comma-separated-output",
		"--no-header-output",
		"--sdr-cache-recreate",
	}
}

func (c IPMISensorCollector) Describe() []metricSpec {
	return []metricSpec{
		sensorStateSpec,
		sensorValueSpec,
		fanSpeedSpec,
		fanSpeedStateSpec,
		temperatureSpec,
		temperatureStateSpec,
		voltageSpec,
		voltageStateSpec,
		currentSpec,
		currentStateSpec,
		powerSpec,
		powerStateSpec,
	}
}

func (c IPMISensorCollector) Collect(ctx context.Context) ([]sample, error) {
	output, err := c.runner.Run(ctx, c.Cmd(), c.Args()...)
	if err != nil {
		return nil, err
	}
	results, err := freeipmi.GetSensorData(output, c.excludeSensorIDs, c.logger)
	if err != nil {
		c.logger.Error("Failed to collect sensor data", "error", err)
		return nil, err
	}

	samples := make([]sample, 0, 2*len(results))
	for _, data := range results {
		var state float64

		switch data.State {
		case "Nominal":
			state = 0
		case "Warning":
			state = 1
		case "Critical":
			state = 2
		case "N/A":
			state = math.NaN()
		default:
			c.logger.Error("Unknown sensor state", "state", data.State)
			state = math.NaN()
		}

		c.logger.Debug("Got values", "data", data)

		switch data.Unit {
		case "RPM":
			samples = append(samples, typedSensorSamples(fanSpeedSpec, fanSpeedStateSpec, state, data)...)
		case "C":
			samples = append(samples, typedSensorSamples(temperatureSpec, temperatureStateSpec, state, data)...)
		case "A":
			samples = append(samples, typedSensorSamples(currentSpec, currentStateSpec, state, data)...)
		case "V":
			samples = append(samples, typedSensorSamples(voltageSpec, voltageStateSpec, state, data)...)
		case "W":
			samples = append(samples, typedSensorSamples(powerSpec, powerStateSpec, state, data)...)
		default:
			samples = append(samples, genericSensorSamples(state, data)...)
		}
	}
	return samples, nil
}

func typedSensorSamples(spec, stateSpec metricSpec, state float64, data freeipmi.SensorData) []sample {
	id := strconv.FormatInt(data.ID, 10)
	return []sample{
		spec.sample(data.Value, id, data.Name),
		stateSpec.sample(state, id, data.Name),
	}
}

func genericSensorSamples(state float64, data freeipmi.SensorData) []sample {
	id := strconv.FormatInt(data.ID, 10)
	return []sample{
		sensorValueSpec.sample(data.Value, id, data.Name, data.Type),
		sensorStateSpec.sample(state, id, data.Name, data.Type),
	}
}
