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

// Package redfishtest provides an in-memory Redfish service for tests.
package redfishtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const (
	rootPath    = "/redfish/v1/"
	chassisPath = "/redfish/v1/Chassis"
	systemsPath = "/redfish/v1/Systems"
)

// Fan is a legacy Thermal fan reading.
type Fan struct {
	Name string
	RPM  int
}

// Temperature is a legacy Thermal temperature reading.
type Temperature struct {
	Name    string
	Celsius float64
}

// PowerControl is a legacy Power consumption reading.
type PowerControl struct {
	Name  string
	Watts float64
}

// Chassis gets a Thermal link when it has fans or temperatures and a Power
// link when it has power control entries.
type Chassis struct {
	ID           string
	Fans         []Fan
	Temperatures []Temperature
	PowerControl []PowerControl
}

// System is a ComputerSystem resource.
type System struct {
	ID         string
	Health     string
	PowerState string
	Processors int
	MemoryGiB  float64
}

// Server serves a minimal Redfish tree without authentication.
type Server struct {
	*httptest.Server

	mtx      sync.Mutex
	routes   map[string]interface{}
	chassis  []string
	systems  []string
	down     bool
	requests int
}

// NewServer starts a service with empty chassis and systems collections.
func NewServer(t testing.TB) *Server {
	t.Helper()
	return newServer(t, httptest.NewServer)
}

// NewTLSServer is like NewServer but serves HTTPS with a self-signed
// certificate.
func NewTLSServer(t testing.TB) *Server {
	t.Helper()
	return newServer(t, httptest.NewTLSServer)
}

func newServer(t testing.TB, start func(http.Handler) *httptest.Server) *Server {
	s := &Server{routes: map[string]interface{}{}}
	s.routes[rootPath] = map[string]interface{}{
		"@odata.type":    "#ServiceRoot.v1_15_0.ServiceRoot",
		"@odata.id":      rootPath,
		"Id":             "RootService",
		"Name":           "Root Service",
		"RedfishVersion": "1.15.0",
		"Chassis":        map[string]string{"@odata.id": chassisPath},
		"Systems":        map[string]string{"@odata.id": systemsPath},
	}
	s.updateCollections()
	s.Server = start(http.HandlerFunc(s.handler))
	t.Cleanup(s.Close)
	return s
}

// SetDown makes every request fail with 503 while down is true.
func (s *Server) SetDown(down bool) {
	s.mtx.Lock()
	s.down = down
	s.mtx.Unlock()
}

// Requests returns the number of requests served so far.
func (s *Server) Requests() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.requests
}

// AddChassis adds a chassis with its thermal and power resources.
func (s *Server) AddChassis(c Chassis) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	path := chassisPath + "/" + c.ID
	res := map[string]interface{}{
		"@odata.type": "#Chassis.v1_14_0.Chassis",
		"@odata.id":   path,
		"Id":          c.ID,
		"Name":        "Chassis " + c.ID,
		"ChassisType": "RackMount",
	}
	if len(c.Fans) > 0 || len(c.Temperatures) > 0 {
		thermalPath := path + "/Thermal"
		res["Thermal"] = map[string]string{"@odata.id": thermalPath}
		fans := make([]map[string]interface{}, 0, len(c.Fans))
		for i, f := range c.Fans {
			fans = append(fans, map[string]interface{}{
				"@odata.id":    fmt.Sprintf("%s#/Fans/%d", thermalPath, i),
				"MemberId":     fmt.Sprint(i),
				"Name":         f.Name,
				"Reading":      f.RPM,
				"ReadingUnits": "RPM",
			})
		}
		temps := make([]map[string]interface{}, 0, len(c.Temperatures))
		for i, tmp := range c.Temperatures {
			temps = append(temps, map[string]interface{}{
				"@odata.id":      fmt.Sprintf("%s#/Temperatures/%d", thermalPath, i),
				"MemberId":       fmt.Sprint(i),
				"Name":           tmp.Name,
				"ReadingCelsius": tmp.Celsius,
			})
		}
		s.routes[thermalPath] = map[string]interface{}{
			"@odata.type":  "#Thermal.v1_7_0.Thermal",
			"@odata.id":    thermalPath,
			"Id":           "Thermal",
			"Name":         "Thermal",
			"Fans":         fans,
			"Temperatures": temps,
		}
	}
	if len(c.PowerControl) > 0 {
		powerPath := path + "/Power"
		res["Power"] = map[string]string{"@odata.id": powerPath}
		controls := make([]map[string]interface{}, 0, len(c.PowerControl))
		for i, pc := range c.PowerControl {
			controls = append(controls, map[string]interface{}{
				"@odata.id":          fmt.Sprintf("%s#/PowerControl/%d", powerPath, i),
				"MemberId":           fmt.Sprint(i),
				"Name":               pc.Name,
				"PowerConsumedWatts": pc.Watts,
			})
		}
		s.routes[powerPath] = map[string]interface{}{
			"@odata.type":  "#Power.v1_7_0.Power",
			"@odata.id":    powerPath,
			"Id":           "Power",
			"Name":         "Power",
			"PowerControl": controls,
		}
	}
	s.routes[path] = res
	s.chassis = append(s.chassis, path)
	s.updateCollections()
}

// AddSystem adds a computer system.
func (s *Server) AddSystem(sys System) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	path := systemsPath + "/" + sys.ID
	s.routes[path] = map[string]interface{}{
		"@odata.type": "#ComputerSystem.v1_20_0.ComputerSystem",
		"@odata.id":   path,
		"Id":          sys.ID,
		"Name":        "System " + sys.ID,
		"PowerState":  sys.PowerState,
		"Status": map[string]string{
			"State":  "Enabled",
			"Health": sys.Health,
		},
		"ProcessorSummary": map[string]interface{}{"Count": sys.Processors},
		"MemorySummary":    map[string]interface{}{"TotalSystemMemoryGiB": sys.MemoryGiB},
	}
	s.systems = append(s.systems, path)
	s.updateCollections()
}

func (s *Server) updateCollections() {
	s.routes[chassisPath] = collection("#ChassisCollection.ChassisCollection", chassisPath, s.chassis)
	s.routes[systemsPath] = collection("#ComputerSystemCollection.ComputerSystemCollection", systemsPath, s.systems)
}

func collection(odataType, path string, members []string) map[string]interface{} {
	refs := make([]map[string]string, 0, len(members))
	for _, m := range members {
		refs = append(refs, map[string]string{"@odata.id": m})
	}
	return map[string]interface{}{
		"@odata.type":         odataType,
		"@odata.id":           path,
		"Members":             refs,
		"Members@odata.count": len(refs),
	}
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	s.requests++
	down := s.down
	res, ok := s.routes[r.URL.Path]
	s.mtx.Unlock()

	if down {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
