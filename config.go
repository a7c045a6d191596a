package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	defaultPort                    = 10000
	defaultRedfishHost             = "127.0.0.1"
	defaultIPMISELInterval         = 86400
	defaultRedfishClientTimeout    = 15
	defaultRedfishClientMaxRetry   = 1
	defaultRedfishDiscoverCacheTTL = 86400
	defaultCollectorTimeout        = 30
)

var errUnknownField = errors.New("unknown fields")

// DefaultConfig holds the values used for keys missing from the config file.
// Level is left empty so that the logging flags apply.
var DefaultConfig = Config{
	Port:                    defaultPort,
	RedfishHost:             defaultRedfishHost,
	RedfishInsecure:         true,
	IPMISELInterval:         defaultIPMISELInterval,
	RedfishClientTimeout:    defaultRedfishClientTimeout,
	RedfishClientMaxRetry:   defaultRedfishClientMaxRetry,
	RedfishDiscoverCacheTTL: defaultRedfishDiscoverCacheTTL,
	CollectorTimeout:        defaultCollectorTimeout,
}

// Config is the Go representation of the yaml config file. It is resolved
// once at startup and not modified afterwards. All durations are in seconds.
type Config struct {
	Port             int      `yaml:"port"`
	Level            string   `yaml:"level"`
	EnableCollectors []string `yaml:"enable_collectors"`

	RedfishHost     string      `yaml:"redfish_host"`
	RedfishUsername string      `yaml:"redfish_username"`
	RedfishPassword string      `yaml:"redfish_password"`
	RedfishInsecure bool        `yaml:"redfish_insecure"`
	RedfishVault    VaultConfig `yaml:"redfish_vault"`

	IPMISELInterval         int `yaml:"ipmi_sel_interval"`
	RedfishClientTimeout    int `yaml:"redfish_client_timeout"`
	RedfishClientMaxRetry   int `yaml:"redfish_client_max_retry"`
	RedfishDiscoverCacheTTL int `yaml:"redfish_discover_cache_ttl"`
	CollectorTimeout        int `yaml:"collector_timeout"`

	ToolsPath            string  `yaml:"tools_path"`
	NativeIPMI           bool    `yaml:"native_ipmi"`
	IPMIExcludeSensorIDs []int64 `yaml:"ipmi_exclude_sensor_ids"`

	// Catches all undefined fields and must be empty after parsing.
	XXX map[string]interface{} `yaml:",inline"`
}

// VaultConfig points at a HashiCorp Vault KV secret holding the Redfish
// credentials.
type VaultConfig struct {
	Address   string `yaml:"address"`
	TokenFile string `yaml:"token_file"`
	Path      string `yaml:"path"`

	// Catches all undefined fields and must be empty after parsing.
	XXX map[string]interface{} `yaml:",inline"`
}

func checkOverflow(m map[string]interface{}, ctx string) error {
	if len(m) > 0 {
		var keys []string
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("%w in %s: %s", errUnknownField, ctx, strings.Join(keys, ", "))
	}
	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultConfig
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	return checkOverflow(c.XXX, "config")
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (v *VaultConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain VaultConfig
	if err := unmarshal((*plain)(v)); err != nil {
		return err
	}
	return checkOverflow(v.XXX, "redfish_vault")
}

// LoadConfig reads and validates a config file.
func LoadConfig(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	c := DefaultConfig
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the numeric bounds and the log level. An empty level is
// valid and defers to the logging flags. Unknown collector names are skipped
// when the registry is built.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Level))
	}
	if c.IPMISELInterval <= 0 {
		errs = append(errs, fmt.Errorf("ipmi_sel_interval must be greater than 0, got %d", c.IPMISELInterval))
	}
	if c.RedfishClientTimeout <= 0 {
		errs = append(errs, fmt.Errorf("redfish_client_timeout must be greater than 0, got %d", c.RedfishClientTimeout))
	}
	if c.RedfishClientMaxRetry < 0 {
		errs = append(errs, fmt.Errorf("redfish_client_max_retry must not be negative, got %d", c.RedfishClientMaxRetry))
	}
	if c.RedfishDiscoverCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("redfish_discover_cache_ttl must not be negative, got %d", c.RedfishDiscoverCacheTTL))
	}
	if c.CollectorTimeout <= 0 {
		errs = append(errs, fmt.Errorf("collector_timeout must be greater than 0, got %d", c.CollectorTimeout))
	}
	if c.RedfishVault.Address != "" && (c.RedfishVault.TokenFile == "" || c.RedfishVault.Path == "") {
		errs = append(errs, errors.New("redfish_vault requires token_file and path when address is set"))
	}
	return errors.Join(errs...)
}

// enabled returns the set of requested collector identities. Unknown names
// are kept here and dropped by buildRegistry.
func (c *Config) enabled() map[CollectorName]struct{} {
	set := make(map[CollectorName]struct{}, len(c.EnableCollectors))
	for _, name := range c.EnableCollectors {
		set[normalizeCollectorName(name)] = struct{}{}
	}
	return set
}

func (c *Config) selInterval() time.Duration {
	return time.Duration(c.IPMISELInterval) * time.Second
}

func (c *Config) redfishClientTimeout() time.Duration {
	return time.Duration(c.RedfishClientTimeout) * time.Second
}

func (c *Config) redfishDiscoverCacheTTL() time.Duration {
	return time.Duration(c.RedfishDiscoverCacheTTL) * time.Second
}

func (c *Config) collectorTimeout() time.Duration {
	return time.Duration(c.CollectorTimeout) * time.Second
}

// runOnceDeadline bounds a single diagnostic pass: the slowest CLI tool plus
// the full Redfish discovery budget.
func (c *Config) runOnceDeadline() time.Duration {
	return c.collectorTimeout() + time.Duration(c.RedfishClientMaxRetry+1)*c.redfishClientTimeout()
}
