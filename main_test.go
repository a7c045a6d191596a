package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFlags(t *testing.T, args ...string) *cliFlags {
	t.Helper()
	app := kingpin.New("hardware_exporter", "")
	f := addFlags(app)
	_, err := app.Parse(args)
	require.NoError(t, err)
	return f
}

func TestConfigFromFlags(t *testing.T) {
	f := parseFlags(t,
		"-p", "10300",
		"--collector.ipmi_dcmi",
		"--collector.redfish",
		"--redfish-host", "bmc.example.com",
		"--redfish-client-max-retry", "0",
	)
	c, err := f.config("warn")
	require.NoError(t, err)

	assert.Equal(t, 10300, c.Port)
	assert.Equal(t, "warn", c.Level)
	assert.Equal(t, "bmc.example.com", c.RedfishHost)
	assert.Equal(t, 0, c.RedfishClientMaxRetry)
	assert.Equal(t, defaultRedfishDiscoverCacheTTL, c.RedfishDiscoverCacheTTL)
	assert.Equal(t, []string{"collector.ipmi_dcmi", "collector.redfish"}, c.EnableCollectors)
}

func TestConfigFromFlagsLevelOverride(t *testing.T) {
	c, err := parseFlags(t, "-l", "DEBUG").config("info")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", c.Level)
}

func TestConfigFromFlagsInvalid(t *testing.T) {
	_, err := parseFlags(t, "--redfish-client-timeout", "0").config("info")
	assert.ErrorContains(t, err, "redfish_client_timeout")
}

func TestConfigFileTakesPrecedence(t *testing.T) {
	file := writeConfig(t, "port: 10400\nenable_collectors: [collector.hpe_ssa]\n")
	c, err := parseFlags(t, "-c", file, "-p", "10500", "--collector.redfish").config("info")
	require.NoError(t, err)

	assert.Equal(t, 10400, c.Port)
	assert.Equal(t, []string{"collector.hpe_ssa"}, c.EnableCollectors)
}

func TestConfigFileLevel(t *testing.T) {
	withoutLevel := writeConfig(t, "port: 10400\n")
	c, err := parseFlags(t, "-c", withoutLevel).config("warn")
	require.NoError(t, err)
	assert.Equal(t, "warn", c.Level)

	c, err = parseFlags(t, "-c", withoutLevel, "-l", "error").config("warn")
	require.NoError(t, err)
	assert.Equal(t, "error", c.Level)

	withLevel := writeConfig(t, "level: debug\n")
	c, err = parseFlags(t, "-c", withLevel, "-l", "error").config("warn")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Level)
}

func TestConfigFromFlagsRedfishInsecure(t *testing.T) {
	c, err := parseFlags(t).config("info")
	require.NoError(t, err)
	assert.True(t, c.RedfishInsecure)

	c, err = parseFlags(t, "--no-redfish-insecure").config("info")
	require.NoError(t, err)
	assert.False(t, c.RedfishInsecure)
}

func TestLoadVaultCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/kv/bmc" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"username":"vault-user","password":"vault-pass"}}`))
	}))
	defer server.Close()
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("s.test"), 0o600))

	c := DefaultConfig
	c.RedfishUsername = "flag-user"
	require.NoError(t, loadVaultCredentials(context.Background(), &c))
	assert.Equal(t, "flag-user", c.RedfishUsername)

	c.RedfishVault = VaultConfig{Address: server.URL, TokenFile: tokenFile, Path: "kv/bmc"}
	require.NoError(t, loadVaultCredentials(context.Background(), &c))
	assert.Equal(t, "vault-user", c.RedfishUsername)
	assert.Equal(t, "vault-pass", c.RedfishPassword)

	c.RedfishVault.Path = "kv/missing"
	assert.Error(t, loadVaultCredentials(context.Background(), &c))
}

func TestMetricsHandler(t *testing.T) {
	e := newTestExporter(
		stubCollector{name: IPMIDCMICollectorName, samples: []sample{powerConsumptionSpec.sample(120.5)}},
		stubCollector{name: RedfishCollectorName, delay: 10 * time.Second},
	)
	self := prometheus.NewRegistry()
	require.NoError(t, e.Register(self))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(scrapeTimeoutHeader, "0.6")
	rec := httptest.NewRecorder()

	start := time.Now()
	metricsHandler(e, self, discardLogger()).ServeHTTP(rec, req)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ipmi_dcmi_power_consumption_watts 120.5")
	assert.Contains(t, body, `hardware_exporter_collector_success{collector="ipmi_dcmi"} 1`)
	assert.Contains(t, body, `hardware_exporter_collector_success{collector="redfish"} 0`)
}

func TestCollectorsHandler(t *testing.T) {
	cfg := DefaultConfig
	cfg.EnableCollectors = []string{"ipmi_dcmi", "redfish"}
	registry := buildRegistry(&cfg, testBackends(), discardLogger())

	rec := httptest.NewRecorder()
	collectorsHandler(registry, discardLogger())(rec, httptest.NewRequest(http.MethodGet, "/collectors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var listing []collectorListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing, 2)
	assert.Equal(t, "collector.ipmi_dcmi", listing[0].Name)
	assert.Equal(t, []metricListing{{
		Name: "ipmi_dcmi_power_consumption_watts",
		Help: "Current power consumption in Watts.",
		Type: "gauge",
	}}, listing[0].Metrics)
	assert.Equal(t, "collector.redfish", listing[1].Name)
	assert.Len(t, listing[1].Metrics, 7)
}

func TestRunOnce(t *testing.T) {
	e := newTestExporter(
		stubCollector{name: IPMIDCMICollectorName, samples: []sample{powerConsumptionSpec.sample(120.5)}},
	)
	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), e, &out))
	assert.Equal(t, `# HELP ipmi_dcmi_power_consumption_watts Current power consumption in Watts.
# TYPE ipmi_dcmi_power_consumption_watts gauge
ipmi_dcmi_power_consumption_watts 120.5
`, out.String())
}
