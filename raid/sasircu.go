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

// Package raid parses the output of storage controller utilities: sas2ircu,
// sas3ircu, storcli, perccli and ssacli.
package raid

import (
	"bufio"
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var errNoControllers = errors.New("no controllers found")

// SASController is a row of `sasXircu LIST`.
type SASController struct {
	Index       int
	AdapterType string
}

// SASVolume is an IR volume of `sasXircu <index> DISPLAY`.
type SASVolume struct {
	ID        string
	Status    string
	RAIDLevel string
}

// SASDevice is a physical device of `sasXircu <index> DISPLAY`.
type SASDevice struct {
	Enclosure string
	Slot      string
	State     string
}

// SASDisplay is the parsed `sasXircu <index> DISPLAY` output.
type SASDisplay struct {
	ControllerType  string
	FirmwareVersion string
	Volumes         []SASVolume
	Devices         []SASDevice
}

// ParseSASList parses the adapter table printed by `sasXircu LIST`.
func ParseSASList(output []byte) ([]SASController, error) {
	var controllers []SASController
	inTable := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "-----") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			// Trailing "SASXIRCU: Utility Completed Successfully."
			continue
		}
		controllers = append(controllers, SASController{Index: index, AdapterType: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(controllers) == 0 {
		return nil, errNoControllers
	}
	return controllers, nil
}

type sasSection int

const (
	sasSectionNone sasSection = iota
	sasSectionController
	sasSectionVolume
	sasSectionDevice
	sasSectionOther
)

// ParseSASDisplay parses the sections of `sasXircu <index> DISPLAY` that are
// exported: controller information, IR volumes and physical devices.
func ParseSASDisplay(output []byte) (*SASDisplay, error) {
	display := &SASDisplay{}
	section := sasSectionNone
	var volume *SASVolume
	var device *SASDevice

	flush := func() {
		if volume != nil {
			display.Volumes = append(display.Volumes, *volume)
			volume = nil
		}
		if device != nil {
			display.Devices = append(display.Devices, *device)
			device = nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "-----"):
			continue
		case line == "Controller information":
			flush()
			section = sasSectionController
			continue
		case line == "IR Volume information":
			flush()
			section = sasSectionVolume
			continue
		case line == "Physical device information":
			flush()
			section = sasSectionDevice
			continue
		case strings.HasSuffix(line, " information"):
			flush()
			section = sasSectionOther
			continue
		}

		switch section {
		case sasSectionVolume:
			if strings.HasPrefix(line, "IR volume") {
				flush()
				volume = &SASVolume{}
			}
		case sasSectionDevice:
			if strings.HasPrefix(line, "Device is a") {
				flush()
				device = &SASDevice{}
			}
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch section {
		case sasSectionController:
			switch key {
			case "Controller type":
				display.ControllerType = value
			case "Firmware version":
				display.FirmwareVersion = value
			}
		case sasSectionVolume:
			if volume == nil {
				continue
			}
			switch key {
			case "Volume ID":
				volume.ID = value
			case "Status of volume":
				volume.Status = value
			case "RAID level":
				volume.RAIDLevel = value
			}
		case sasSectionDevice:
			if device == nil {
				continue
			}
			switch key {
			case "Enclosure #":
				device.Enclosure = value
			case "Slot #":
				device.Slot = value
			case "State":
				device.State = value
			}
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if display.ControllerType == "" {
		return nil, errors.New("controller information not found")
	}
	return display, nil
}
