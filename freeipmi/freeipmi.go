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

// Package freeipmi parses the output of the FreeIPMI command line tools.
package freeipmi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	ipmiDCMICurrentPowerRegex = regexp.MustCompile(`^Current Power\s*:\s*(?P<value>[0-9.]*)\s*Watts.*`)
)

// SensorData is one row of ipmimonitoring output.
type SensorData struct {
	ID    int64
	Name  string
	Type  string
	State string
	Value float64
	Unit  string
	Event string
}

// SELEvent is one row of ipmi-sel output.
type SELEvent struct {
	ID    int64
	Date  string
	Time  string
	Name  string
	Type  string
	State string
	Event string
}

func getValue(ipmiOutput []byte, regex *regexp.Regexp) (string, error) {
	for _, line := range strings.Split(string(ipmiOutput), "\n") {
		match := regex.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		for i, name := range regex.SubexpNames() {
			if name != "value" {
				continue
			}
			return match[i], nil
		}
	}
	return "", fmt.Errorf("could not find value in output: %q", string(ipmiOutput))
}

// GetCurrentPowerConsumption reads the "Current Power" line of
// `ipmi-dcmi --get-system-power-statistics`.
func GetCurrentPowerConsumption(ipmiOutput []byte) (float64, error) {
	value, err := getValue(ipmiOutput, ipmiDCMICurrentPowerRegex)
	if err != nil {
		return -1, err
	}
	return strconv.ParseFloat(value, 64)
}

// readCSV returns the records of a headerless comma separated output.
// Records may differ in length.
func readCSV(ipmiOutput []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(ipmiOutput))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// GetSensorData parses `ipmimonitoring --comma-separated-output
// --no-header-output`. Sensors listed in excludeSensorIDs are skipped, a
// reading of N/A is returned as NaN. Malformed rows are logged and skipped;
// an error is only returned when the output cannot be read as CSV.
func GetSensorData(ipmiOutput []byte, excludeSensorIDs []int64, logger *slog.Logger) ([]SensorData, error) {
	var result []SensorData

	records, err := readCSV(ipmiOutput)
	if err != nil {
		return result, err
	}

	for _, line := range records {
		data, err := parseSensorRecord(line)
		if err != nil {
			logger.Debug("Skipping sensor record", "record", strings.Join(line, ","), "error", err)
			continue
		}
		if slices.Contains(excludeSensorIDs, data.ID) {
			continue
		}
		result = append(result, data)
	}
	return result, nil
}

func parseSensorRecord(line []string) (SensorData, error) {
	var data SensorData
	if len(line) < 7 {
		return data, fmt.Errorf("expected 7 fields, got %d", len(line))
	}

	var err error
	data.ID, err = strconv.ParseInt(line[0], 10, 64)
	if err != nil {
		return data, err
	}

	data.Name = line[1]
	data.Type = line[2]
	data.State = line[3]

	value := line[4]
	if value != "N/A" {
		data.Value, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return data, err
		}
	} else {
		data.Value = math.NaN()
	}

	data.Unit = line[5]
	data.Event = strings.Trim(line[6], "'")
	return data, nil
}

// GetSELEvents parses `ipmi-sel --comma-separated-output --no-header-output
// --output-event-state`, whose columns are ID,Date,Time,Name,Type,State,Event.
// Event text containing commas is joined back together. Malformed rows are
// logged and skipped.
func GetSELEvents(ipmiOutput []byte, logger *slog.Logger) ([]SELEvent, error) {
	var events []SELEvent

	records, err := readCSV(ipmiOutput)
	if err != nil {
		return events, err
	}

	for _, line := range records {
		if len(line) < 7 {
			logger.Debug("Skipping SEL record", "record", strings.Join(line, ","), "fields", len(line))
			continue
		}
		id, err := strconv.ParseInt(line[0], 10, 64)
		if err != nil {
			logger.Debug("Skipping SEL record", "record", strings.Join(line, ","), "error", err)
			continue
		}
		events = append(events, SELEvent{
			ID:    id,
			Date:  line[1],
			Time:  line[2],
			Name:  line[3],
			Type:  line[4],
			State: line[5],
			Event: strings.Join(line[6:], ","),
		})
	}
	return events, nil
}
