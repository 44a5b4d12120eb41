// Package sysinfo assembles the system context attached to every backend
// query. Host facts are read once per process; a fact that cannot be read
// degrades to "unknown" instead of failing the request.
package sysinfo

import (
	"bufio"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/cmdline-assistant/clad/internal/domain"
	"github.com/cmdline-assistant/clad/internal/version"
)

const unknown = "unknown"

var (
	osReleasePath   = "/etc/os-release"
	machineIDPaths  = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	hostOnce        sync.Once
	cachedHostFacts domain.SystemInfo
)

// Enricher builds the per-request query context.
type Enricher struct{}

func NewEnricher() *Enricher {
	return &Enricher{}
}

// Build snapshots the system context. The terminal hint is session-scoped
// and passed by the caller; host facts come from the process-wide cache.
func (e *Enricher) Build(terminalHint string) domain.QueryContext {
	return domain.QueryContext{
		Attachments: domain.Attachments{},
		Terminal:    domain.Terminal{Output: terminalHint},
		SystemInfo:  hostFacts(),
		Daemon:      domain.DaemonInfo{Version: version.Version},
	}
}

func hostFacts() domain.SystemInfo {
	hostOnce.Do(func() {
		name, osVersion := readOSRelease()
		cachedHostFacts = domain.SystemInfo{
			OS:      name,
			Version: osVersion,
			Arch:    runtime.GOARCH,
			ID:      readMachineID(),
		}
	})
	return cachedHostFacts
}

// readOSRelease extracts NAME and VERSION from os-release(5).
func readOSRelease() (name, osVersion string) {
	name, osVersion = unknown, unknown

	f, err := os.Open(osReleasePath)
	if err != nil {
		slog.Debug("could not read os-release", "path", osReleasePath, "error", err)
		return name, osVersion
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "NAME="):
			name = strings.Trim(strings.TrimPrefix(line, "NAME="), `"`)
		case strings.HasPrefix(line, "VERSION="):
			osVersion = strings.Trim(strings.TrimPrefix(line, "VERSION="), `"`)
		}
	}

	return name, osVersion
}

func readMachineID() string {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	slog.Debug("machine id not readable, using placeholder")
	return unknown
}
