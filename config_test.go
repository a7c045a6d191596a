package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestLoadConfig(t *testing.T) {
	file := writeConfig(t, `
port: 10200
level: DEBUG
enable_collectors:
  - collector.ipmi_dcmi
  - collector.redfish
redfish_host: bmc.example.com
redfish_username: admin
redfish_password: secret
redfish_client_timeout: 5
redfish_client_max_retry: 3
redfish_discover_cache_ttl: 600
ipmi_sel_interval: 300
`)
	c, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, 10200, c.Port)
	assert.Equal(t, "DEBUG", c.Level)
	assert.Equal(t, "bmc.example.com", c.RedfishHost)
	assert.Equal(t, 5*time.Second, c.redfishClientTimeout())
	assert.Equal(t, 3, c.RedfishClientMaxRetry)
	assert.Equal(t, 10*time.Minute, c.redfishDiscoverCacheTTL())
	assert.Equal(t, 5*time.Minute, c.selInterval())
	// Not present in the file, so the default applies.
	assert.Equal(t, defaultCollectorTimeout*time.Second, c.collectorTimeout())
	assert.Equal(t, map[CollectorName]struct{}{
		IPMIDCMICollectorName: {},
		RedfishCollectorName:  {},
	}, c.enabled())
}

func TestLoadConfigEmptyFileUsesDefaults(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, defaultPort, c.Port)
	assert.Equal(t, defaultRedfishHost, c.RedfishHost)
	assert.True(t, c.RedfishInsecure)
	assert.Empty(t, c.Level)
	assert.Empty(t, c.enabled())

	c, err = LoadConfig(writeConfig(t, "redfish_insecure: false\n"))
	require.NoError(t, err)
	assert.False(t, c.RedfishInsecure)
}

func TestLoadConfigUnknownField(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "port: 10000\nfoo: bar\n"))
	require.ErrorIs(t, err, errUnknownField)
	assert.Contains(t, err.Error(), "foo")

	_, err = LoadConfig(writeConfig(t, "redfish_vault:\n  adress: http://vault:8200\n"))
	require.ErrorIs(t, err, errUnknownField)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate func(c *Config)
		errMsg string
	}{
		"defaults are valid":    {mutate: func(*Config) {}},
		"zero retries is valid": {mutate: func(c *Config) { c.RedfishClientMaxRetry = 0 }},
		"zero ttl is valid":     {mutate: func(c *Config) { c.RedfishDiscoverCacheTTL = 0 }},
		"port out of range":     {mutate: func(c *Config) { c.Port = 70000 }, errMsg: "port"},
		"bad level":             {mutate: func(c *Config) { c.Level = "verbose" }, errMsg: "log level"},
		"zero timeout":          {mutate: func(c *Config) { c.RedfishClientTimeout = 0 }, errMsg: "redfish_client_timeout"},
		"negative retries":      {mutate: func(c *Config) { c.RedfishClientMaxRetry = -1 }, errMsg: "redfish_client_max_retry"},
		"negative ttl":          {mutate: func(c *Config) { c.RedfishDiscoverCacheTTL = -5 }, errMsg: "redfish_discover_cache_ttl"},
		"zero sel interval":     {mutate: func(c *Config) { c.IPMISELInterval = 0 }, errMsg: "ipmi_sel_interval"},
		"zero collector timeout": {
			mutate: func(c *Config) { c.CollectorTimeout = 0 },
			errMsg: "collector_timeout",
		},
		"incomplete vault": {
			mutate: func(c *Config) { c.RedfishVault.Address = "http://vault:8200" },
			errMsg: "redfish_vault",
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig
			tc.mutate(&c)
			err := c.Validate()
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestRunOnceDeadline(t *testing.T) {
	c := DefaultConfig
	c.CollectorTimeout = 10
	c.RedfishClientTimeout = 5
	c.RedfishClientMaxRetry = 2
	assert.Equal(t, 25*time.Second, c.runOnceDeadline())
}
