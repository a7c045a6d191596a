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

package raid

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var (
	ssacliControllerRegex    = regexp.MustCompile(`^(?P<model>.+?) in Slot (?P<slot>\S+)`)
	ssacliStatusRegex        = regexp.MustCompile(`^(?P<component>.+?) Status: (?P<status>.+)$`)
	ssacliLogicalDriveRegex  = regexp.MustCompile(`^logicaldrive (?P<drive>\S+) \(.*\): (?P<status>.+)$`)
	ssacliPhysicalDriveRegex = regexp.MustCompile(`^physicaldrive (?P<drive>\S+) \(.*\): (?P<status>.+)$`)
)

// SSAController is a controller of `ssacli ctrl all show status` with the
// status of each of its components (controller, cache, battery).
type SSAController struct {
	Slot       string
	Model      string
	Components map[string]string
}

// SSADrive is the status of a logical or physical drive.
type SSADrive struct {
	Drive  string
	Status string
}

// ParseSSAControllers parses `ssacli ctrl all show status`.
func ParseSSAControllers(output []byte) ([]SSAController, error) {
	var controllers []SSAController

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := ssacliStatusRegex.FindStringSubmatch(line); m != nil {
			if len(controllers) == 0 {
				continue
			}
			c := &controllers[len(controllers)-1]
			c.Components[m[1]] = m[2]
			continue
		}
		if m := ssacliControllerRegex.FindStringSubmatch(line); m != nil {
			controllers = append(controllers, SSAController{
				Model:      m[1],
				Slot:       m[2],
				Components: map[string]string{},
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(controllers) == 0 {
		return nil, errNoControllers
	}
	return controllers, nil
}

// ParseSSALogicalDrives parses `ssacli ctrl slot=<n> ld all show status`.
func ParseSSALogicalDrives(output []byte) ([]SSADrive, error) {
	return parseSSADrives(output, ssacliLogicalDriveRegex)
}

// ParseSSAPhysicalDrives parses `ssacli ctrl slot=<n> pd all show status`.
func ParseSSAPhysicalDrives(output []byte) ([]SSADrive, error) {
	return parseSSADrives(output, ssacliPhysicalDriveRegex)
}

func parseSSADrives(output []byte, regex *regexp.Regexp) ([]SSADrive, error) {
	var drives []SSADrive
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		m := regex.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		drives = append(drives, SSADrive{Drive: m[1], Status: m[2]})
	}
	return drives, scanner.Err()
}
