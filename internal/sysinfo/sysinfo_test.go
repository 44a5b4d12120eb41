package sysinfo

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cmdline-assistant/clad/internal/version"
)

func TestReadOSRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	content := `NAME="Red Hat Enterprise Linux"
VERSION="10.0 (Coughlan)"
ID="rhel"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write os-release: %v", err)
	}

	saved := osReleasePath
	osReleasePath = path
	t.Cleanup(func() { osReleasePath = saved })

	name, osVersion := readOSRelease()
	if name != "Red Hat Enterprise Linux" {
		t.Errorf("name = %q", name)
	}
	if osVersion != "10.0 (Coughlan)" {
		t.Errorf("version = %q", osVersion)
	}
}

func TestReadOSRelease_Unreadable(t *testing.T) {
	saved := osReleasePath
	osReleasePath = filepath.Join(t.TempDir(), "missing")
	t.Cleanup(func() { osReleasePath = saved })

	name, osVersion := readOSRelease()
	if name != unknown || osVersion != unknown {
		t.Errorf("got %q/%q, want placeholders", name, osVersion)
	}
}

func TestReadMachineID(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "machine-id")
	fallback := filepath.Join(dir, "dbus-machine-id")
	if err := os.WriteFile(fallback, []byte("fallback-id\n"), 0o644); err != nil {
		t.Fatalf("write machine-id: %v", err)
	}

	saved := machineIDPaths
	machineIDPaths = []string{primary, fallback}
	t.Cleanup(func() { machineIDPaths = saved })

	// primary absent: the fallback path is consulted
	if id := readMachineID(); id != "fallback-id" {
		t.Errorf("readMachineID() = %q, want fallback-id", id)
	}

	if err := os.WriteFile(primary, []byte("primary-id\n"), 0o644); err != nil {
		t.Fatalf("write machine-id: %v", err)
	}
	if id := readMachineID(); id != "primary-id" {
		t.Errorf("readMachineID() = %q, want primary-id", id)
	}
}

func TestReadMachineID_AllUnreadable(t *testing.T) {
	saved := machineIDPaths
	machineIDPaths = []string{filepath.Join(t.TempDir(), "missing")}
	t.Cleanup(func() { machineIDPaths = saved })

	if id := readMachineID(); id != unknown {
		t.Errorf("readMachineID() = %q, want placeholder", id)
	}
}

func TestBuild(t *testing.T) {
	ctx := NewEnricher().Build("ls -la output")

	if ctx.Terminal.Output != "ls -la output" {
		t.Errorf("Terminal.Output = %q", ctx.Terminal.Output)
	}
	if ctx.Daemon.Version != version.Version {
		t.Errorf("Daemon.Version = %q, want %q", ctx.Daemon.Version, version.Version)
	}
	if ctx.SystemInfo.Arch != runtime.GOARCH {
		t.Errorf("Arch = %q, want %q", ctx.SystemInfo.Arch, runtime.GOARCH)
	}
}
