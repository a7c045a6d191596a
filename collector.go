package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CollectorName identifies a hardware collector, e.g. "collector.ipmi_dcmi".
type CollectorName string

const (
	HPESSACollectorName        CollectorName = "collector.hpe_ssa"
	IPMIDCMICollectorName      CollectorName = "collector.ipmi_dcmi"
	IPMISELCollectorName       CollectorName = "collector.ipmi_sel"
	IPMISensorCollectorName    CollectorName = "collector.ipmi_sensor"
	LSISAS2CollectorName       CollectorName = "collector.lsi_sas_2"
	LSISAS3CollectorName       CollectorName = "collector.lsi_sas_3"
	MegaRAIDCollectorName      CollectorName = "collector.mega_raid"
	PowerEdgeRAIDCollectorName CollectorName = "collector.poweredge_raid"
	RedfishCollectorName       CollectorName = "collector.redfish"

	collectorNamePrefix = "collector."
)

// normalizeCollectorName maps user input such as "IPMI_DCMI" or
// "collector.ipmi_dcmi" onto the canonical identity.
func normalizeCollectorName(name string) CollectorName {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, collectorNamePrefix) {
		name = collectorNamePrefix + name
	}
	return CollectorName(name)
}

// short is the identity without its "collector." prefix.
func (n CollectorName) short() string {
	return strings.TrimPrefix(string(n), collectorNamePrefix)
}

// Collector is implemented by every hardware subsystem.
//
// Describe is static and must not talk to hardware. Collect may block on a
// subprocess or a network call but has to return once ctx is done. Records that
// cannot be read are left out; an error is only returned when the backend could
// not be queried at all.
type Collector interface {
	Name() CollectorName
	Describe() []metricSpec
	Collect(ctx context.Context) ([]sample, error)
}

// toolRunner runs a vendor tool and returns its standard output.
type toolRunner interface {
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

// execRunner runs tools as local subprocesses, each bounded by timeout.
type execRunner struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

func newExecRunner(path string, timeout time.Duration, logger *slog.Logger) *execRunner {
	return &execRunner{path: path, timeout: timeout, logger: logger}
}

func (r *execRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fqcmd := cmd
	if r.path != "" {
		fqcmd = filepath.Join(r.path, cmd)
	}
	r.logger.Debug("Executing", "command", fqcmd, "args", args)
	out, err := exec.CommandContext(ctx, fqcmd, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", cmd, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Error("Error while calling tool", "command", cmd, "stderr", string(exitErr.Stderr))
		}
		return out, fmt.Errorf("%s failed: %w", cmd, err)
	}
	return out, nil
}
