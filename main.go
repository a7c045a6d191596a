// Copyright 2021 The Prometheus Authors
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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"

	"github.com/rgildein/prometheus-hardware-exporter/redfish"
	"github.com/rgildein/prometheus-hardware-exporter/vault"
)

const (
	exporterName = "hardware_exporter"

	scrapeTimeoutHeader = "X-Prometheus-Scrape-Timeout-Seconds"
	scrapeTimeoutOffset = 500 * time.Millisecond

	vaultTimeout = 30 * time.Second
)

// cliFlags holds the command line. Without --config.file the flags are the
// whole configuration.
type cliFlags struct {
	configFile *string
	port       *int
	level      *string

	redfishHost             *string
	redfishUsername         *string
	redfishPassword         *string
	redfishInsecure         *bool
	redfishClientTimeout    *int
	redfishClientMaxRetry   *int
	redfishDiscoverCacheTTL *int
	vaultAddress            *string
	vaultTokenFile          *string
	vaultPath               *string

	ipmiSELInterval  *int
	collectorTimeout *int
	toolsPath        *string
	nativeIPMI       *bool
	collectors       map[CollectorName]*bool

	webConfigFile *string
	runOnce       *bool
}

func addFlags(app *kingpin.Application) *cliFlags {
	f := &cliFlags{
		configFile: app.Flag("config.file", "Path to configuration file. When set, all other configuration flags are ignored.").Short('c').String(),
		port:       app.Flag("port", "Port the exporter listens on.").Short('p').Default(strconv.Itoa(defaultPort)).Int(),
		level:      app.Flag("level", "Log level, overrides --log.level. One of [debug, info, warn, error].").Short('l').String(),

		redfishHost:             app.Flag("redfish-host", "Redfish service hostname.").Default(defaultRedfishHost).String(),
		redfishUsername:         app.Flag("redfish-username", "Redfish service username.").String(),
		redfishPassword:         app.Flag("redfish-password", "Redfish service password.").String(),
		redfishInsecure:         app.Flag("redfish-insecure", "Skip TLS certificate verification of the Redfish service.").Default("true").Bool(),
		redfishClientTimeout:    app.Flag("redfish-client-timeout", "Redfish client timeout in seconds for a single discovery attempt.").Default(strconv.Itoa(defaultRedfishClientTimeout)).Int(),
		redfishClientMaxRetry:   app.Flag("redfish-client-max-retry", "Number of extra discovery attempts after the first one fails.").Default(strconv.Itoa(defaultRedfishClientMaxRetry)).Int(),
		redfishDiscoverCacheTTL: app.Flag("redfish-discover-cache-ttl", "Seconds a discovered Redfish session is reused.").Default(strconv.Itoa(defaultRedfishDiscoverCacheTTL)).Int(),
		vaultAddress:            app.Flag("redfish.vault.address", "HashiCorp Vault address holding the Redfish credentials.").String(),
		vaultTokenFile:          app.Flag("redfish.vault.token-file", "Path to the file containing the Vault token.").String(),
		vaultPath:               app.Flag("redfish.vault.path", "Vault secret path with username and password keys.").String(),

		ipmiSELInterval:  app.Flag("ipmi-sel-interval", "Seconds of IPMI SEL entries to consider, counting back from now.").Default(strconv.Itoa(defaultIPMISELInterval)).Int(),
		collectorTimeout: app.Flag("collector.timeout", "Timeout in seconds for a single tool invocation.").Default(strconv.Itoa(defaultCollectorTimeout)).Int(),
		toolsPath:        app.Flag("tools.path", "Path to the vendor tools (default: rely on $PATH).").String(),
		nativeIPMI:       app.Flag("native-ipmi", "Use native IPMI implementation instead of FreeIPMI for DCMI (EXPERIMENTAL)").Bool(),
		collectors:       map[CollectorName]*bool{},

		webConfigFile: app.Flag("web.config.file", "Path to configuration file that can enable TLS or authentication.").Default("").String(),
		runOnce:       app.Flag("run-once", "Collect all metrics once, print them to stdout and exit.").Bool(),
	}
	for _, factory := range collectorFactories() {
		short := factory.name.short()
		f.collectors[factory.name] = app.Flag(string(factory.name), fmt.Sprintf("Enable the %s collector.", short)).Bool()
	}
	return f
}

// config resolves the configuration: the file when given, the flags
// otherwise. The level is taken from the config file, then from --level, then
// from logLevel.
func (f *cliFlags) config(logLevel string) (*Config, error) {
	c, err := f.load()
	if err != nil {
		return nil, err
	}
	if c.Level == "" {
		c.Level = *f.level
	}
	if c.Level == "" {
		c.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *cliFlags) load() (*Config, error) {
	if *f.configFile != "" {
		return LoadConfig(*f.configFile)
	}

	c := DefaultConfig
	c.Port = *f.port
	c.RedfishHost = *f.redfishHost
	c.RedfishUsername = *f.redfishUsername
	c.RedfishPassword = *f.redfishPassword
	c.RedfishClientTimeout = *f.redfishClientTimeout
	c.RedfishClientMaxRetry = *f.redfishClientMaxRetry
	c.RedfishDiscoverCacheTTL = *f.redfishDiscoverCacheTTL
	c.RedfishVault = VaultConfig{
		Address:   *f.vaultAddress,
		TokenFile: *f.vaultTokenFile,
		Path:      *f.vaultPath,
	}
	c.IPMISELInterval = *f.ipmiSELInterval
	c.CollectorTimeout = *f.collectorTimeout
	c.ToolsPath = *f.toolsPath
	c.RedfishInsecure = *f.redfishInsecure
	c.NativeIPMI = *f.nativeIPMI
	for _, factory := range collectorFactories() {
		if *f.collectors[factory.name] {
			c.EnableCollectors = append(c.EnableCollectors, string(factory.name))
		}
	}
	return &c, nil
}

// loadVaultCredentials replaces the Redfish credentials with the ones stored
// in Vault, if a Vault is configured.
func loadVaultCredentials(ctx context.Context, c *Config) error {
	if c.RedfishVault.Address == "" {
		return nil
	}
	client, err := vault.NewClient("hashicorp", c.RedfishVault.Address, c.RedfishVault.TokenFile)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, vaultTimeout)
	defer cancel()
	username, password, err := client.GetCredentials(ctx, c.RedfishVault.Path)
	if err != nil {
		return fmt.Errorf("error reading redfish credentials from vault: %w", err)
	}
	c.RedfishUsername = username
	c.RedfishPassword = password
	return nil
}

// metricsHandler scrapes the exporter for every request, bounded by the
// timeout Prometheus announces, and appends the metrics of gatherer.
func metricsHandler(exporter *Exporter, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if v := r.Header.Get(scrapeTimeoutHeader); v != "" {
			seconds, err := strconv.ParseFloat(v, 64)
			if err != nil {
				logger.Debug("Ignoring invalid scrape timeout", "value", v, "error", err)
			} else if timeout := time.Duration(seconds*float64(time.Second)) - scrapeTimeoutOffset; timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(exporter.WithContext(ctx))
		// The exporter goes first so its self-metrics are current.
		h := promhttp.HandlerFor(prometheus.Gatherers{registry, gatherer}, promhttp.HandlerOpts{})
		h.ServeHTTP(w, r)
	})
}

type metricListing struct {
	Name   string   `json:"name"`
	Help   string   `json:"help"`
	Type   string   `json:"type"`
	Labels []string `json:"labels,omitempty"`
}

type collectorListing struct {
	Name    string          `json:"name"`
	Metrics []metricListing `json:"metrics"`
}

// collectorsHandler lists the enabled collectors and the metrics they
// declare.
func collectorsHandler(registry *Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		listing := []collectorListing{}
		for _, c := range registry.Collectors() {
			entry := collectorListing{Name: string(c.Name())}
			for _, spec := range c.Describe() {
				entry.Metrics = append(entry.Metrics, metricListing{
					Name:   spec.Name,
					Help:   spec.Help,
					Type:   spec.typeName(),
					Labels: spec.LabelKeys,
				})
			}
			listing = append(listing, entry)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(listing); err != nil {
			logger.Error("Error encoding collectors response", "error", err)
		}
	}
}

// runOnce performs a single scrape and writes it in the text format.
func runOnce(ctx context.Context, exporter *Exporter, out io.Writer) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(exporter.WithContext(ctx)); err != nil {
		return err
	}
	mfs, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	promslogConfig := &promslog.Config{}
	flag.AddFlags(kingpin.CommandLine, promslogConfig)
	cli := addFlags(kingpin.CommandLine)
	kingpin.CommandLine.UsageWriter(os.Stdout)
	kingpin.HelpFlag.Short('h')
	kingpin.Version(version.Print(exporterName))
	kingpin.Parse()

	// Bail early if the config is bad.
	cfg, cfgErr := cli.config(promslogConfig.Level.String())
	if cfgErr == nil {
		// Validate only accepts levels promslog knows.
		_ = promslogConfig.Level.Set(strings.ToLower(cfg.Level))
	}
	logger := promslog.New(promslogConfig)
	if cfgErr != nil {
		logger.Error("Error loading configuration", "error", cfgErr)
		os.Exit(1)
	}
	logger.Info("Starting "+exporterName, "version", version.Info())
	if cfg.NativeIPMI {
		logger.Info("Using Go-native IPMI implementation for DCMI - this is currently EXPERIMENTAL")
	}

	if err := loadVaultCredentials(context.Background(), cfg); err != nil {
		logger.Error("Error loading credentials", "error", err)
		os.Exit(1)
	}

	target := redfish.Target{
		Host:     cfg.RedfishHost,
		Username: cfg.RedfishUsername,
		Password: cfg.RedfishPassword,
		Insecure: cfg.RedfishInsecure,
	}
	cache := redfish.NewDiscoveryCache(
		redfish.NewDiscoverFunc(target, cfg.redfishClientTimeout()),
		redfish.CacheOpts{
			Timeout:  cfg.redfishClientTimeout(),
			MaxRetry: cfg.RedfishClientMaxRetry,
			TTL:      cfg.redfishDiscoverCacheTTL(),
		},
		logger.With("component", "redfish"),
	)
	registry := buildRegistry(cfg, backends{
		runner:     newExecRunner(cfg.ToolsPath, cfg.collectorTimeout(), logger),
		sessions:   cache,
		query:      redfish.Query,
		nativeIPMI: connectOpenIPMI,
		now:        time.Now,
	}, logger)
	if len(registry.Collectors()) == 0 {
		logger.Warn("No collectors enabled")
	}
	exporter := NewExporter(registry, cfg.runOnceDeadline(), logger)

	if *cli.runOnce {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.runOnceDeadline())
		err := runOnce(ctx, exporter, os.Stdout)
		cancel()
		if err != nil {
			logger.Error("Error rendering metrics", "error", err)
			os.Exit(1)
		}
		return
	}

	prometheus.MustRegister(versioncollector.NewCollector(exporterName))
	prometheus.MustRegister(cache)
	if err := exporter.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("Error registering exporter metrics", "error", err)
		os.Exit(1)
	}

	http.Handle("/metrics", metricsHandler(exporter, prometheus.DefaultGatherer, logger))
	http.HandleFunc("/collectors", collectorsHandler(registry, logger))

	landingPage, err := web.NewLandingPage(web.LandingConfig{
		Name:        "Hardware Exporter",
		Description: "Prometheus exporter for server hardware: IPMI, Redfish and RAID controllers",
		Version:     version.Info(),
		Links: []web.LandingLinks{
			{Address: "/metrics", Text: "Metrics"},
			{Address: "/collectors", Text: "Collectors"},
		},
	})
	if err != nil {
		logger.Error("Error creating landing page", "error", err)
		os.Exit(1)
	}
	http.Handle("/", landingPage)

	systemdSocket := false
	webConfig := &web.FlagConfig{
		WebListenAddresses: &[]string{fmt.Sprintf(":%d", cfg.Port)},
		WebSystemdSocket:   &systemdSocket,
		WebConfigFile:      cli.webConfigFile,
	}
	srv := &http.Server{ReadHeaderTimeout: 10 * time.Second}
	if err := web.ListenAndServe(srv, webConfig, logger); err != nil {
		logger.Error("HTTP listener stopped", "error", err)
		os.Exit(1)
	}
}
