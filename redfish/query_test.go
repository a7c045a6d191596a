package redfish

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stmcginnis/gofish/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgildein/prometheus-hardware-exporter/redfish/redfishtest"
)

func TestTargetEndpoint(t *testing.T) {
	assert.Equal(t, "https://10.0.0.1", Target{Host: "10.0.0.1"}.Endpoint())
	assert.Equal(t, "http://bmc:8000", Target{Host: "http://bmc:8000"}.Endpoint())
}

func TestQuery(t *testing.T) {
	server := redfishtest.NewServer(t)
	server.AddChassis(redfishtest.Chassis{
		ID:           "1",
		Fans:         []redfishtest.Fan{{Name: "Fan1", RPM: 3000}, {Name: "Fan2", RPM: 3120}},
		Temperatures: []redfishtest.Temperature{{Name: "Inlet Temp", Celsius: 23.5}},
		PowerControl: []redfishtest.PowerControl{{Name: "System Power Control", Watts: 312}},
	})
	server.AddSystem(redfishtest.System{ID: "System.Embedded.1", Health: "Warning", PowerState: "On", Processors: 2, MemoryGiB: 256})

	client, err := NewDiscoverFunc(Target{Host: server.URL}, 5*time.Second)(context.Background())
	require.NoError(t, err)

	report, err := Query(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, []Reading{
		{Chassis: "1", Name: "Fan1", Value: 3000},
		{Chassis: "1", Name: "Fan2", Value: 3120},
	}, report.Fans)
	assert.Equal(t, []Reading{{Chassis: "1", Name: "Inlet Temp", Value: 23.5}}, report.Temperatures)
	assert.Equal(t, []Reading{{Chassis: "1", Name: "System Power Control", Value: 312}}, report.Power)
	require.Len(t, report.Systems, 1)
	assert.Equal(t, System{
		ID:             "System.Embedded.1",
		Health:         1,
		HealthKnown:    true,
		PoweredOn:      true,
		ProcessorCount: 2,
		MemoryGiB:      256,
	}, report.Systems[0])
}

func TestQueryServiceDown(t *testing.T) {
	server := redfishtest.NewServer(t)
	client, err := NewDiscoverFunc(Target{Host: server.URL}, 5*time.Second)(context.Background())
	require.NoError(t, err)

	server.SetDown(true)
	_, err = Query(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestQueryWithoutService(t *testing.T) {
	_, err := Query(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestDiscoverFuncUnreachable(t *testing.T) {
	server := redfishtest.NewServer(t)
	server.SetDown(true)
	_, err := NewDiscoverFunc(Target{Host: server.URL}, time.Second)(context.Background())
	assert.Error(t, err)
}

func TestDiscoverFuncCertificateVerification(t *testing.T) {
	server := redfishtest.NewTLSServer(t)

	_, err := NewDiscoverFunc(Target{Host: server.URL}, 5*time.Second)(context.Background())
	assert.Error(t, err)

	client, err := NewDiscoverFunc(Target{Host: server.URL, Insecure: true}, 5*time.Second)(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client.Service)
}

func TestParseHealth(t *testing.T) {
	for in, want := range map[string]float64{"OK": 0, "Warning": 1, "Critical": 2} {
		v, ok := parseHealth(common.Health(in))
		assert.True(t, ok, in)
		assert.Equal(t, want, v, in)
	}
	_, ok := parseHealth(common.Health(""))
	assert.False(t, ok)
}
