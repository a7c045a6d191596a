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
	"encoding/json"
	"fmt"
	"strconv"
)

// StorCLIArgs are the arguments passed to storcli and perccli, which share
// the same command line and JSON output.
var StorCLIArgs = []string{"/call", "show", "all", "J"}

// VirtualDrive is an entry of the "VD LIST" table.
type VirtualDrive struct {
	DGVD  string `json:"DG/VD"`
	Type  string `json:"TYPE"`
	State string `json:"State"`
}

// PhysicalDrive is an entry of the "PD LIST" table.
type PhysicalDrive struct {
	EIDSlot string `json:"EID:Slt"`
	State   string `json:"State"`
	Medium  string `json:"Med"`
}

// StorCLIController is one controller that answered successfully.
type StorCLIController struct {
	ID             string
	VirtualDrives  []VirtualDrive
	PhysicalDrives []PhysicalDrive
}

type storCLIOutput struct {
	Controllers []struct {
		CommandStatus struct {
			Controller json.Number `json:"Controller"`
			Status     string      `json:"Status"`
		} `json:"Command Status"`
		ResponseData struct {
			VDList []VirtualDrive  `json:"VD LIST"`
			PDList []PhysicalDrive `json:"PD LIST"`
		} `json:"Response Data"`
	} `json:"Controllers"`
}

// ParseStorCLI parses `storcli /call show all J`. Controllers whose command
// status is not "Success" are left out.
func ParseStorCLI(output []byte) ([]StorCLIController, error) {
	var out storCLIOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("error parsing storcli output: %w", err)
	}
	if len(out.Controllers) == 0 {
		return nil, errNoControllers
	}

	var controllers []StorCLIController
	for i, c := range out.Controllers {
		if c.CommandStatus.Status != "Success" {
			continue
		}
		id := c.CommandStatus.Controller.String()
		if id == "" {
			id = strconv.Itoa(i)
		}
		controllers = append(controllers, StorCLIController{
			ID:             id,
			VirtualDrives:  c.ResponseData.VDList,
			PhysicalDrives: c.ResponseData.PDList,
		})
	}
	return controllers, nil
}
