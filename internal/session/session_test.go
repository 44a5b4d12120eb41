package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// withMachineID points identity derivation at a fixture machine id for the
// duration of a test.
func withMachineID(t *testing.T, id string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "machine-id")
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		t.Fatalf("write machine-id: %v", err)
	}

	saved := machineIDPaths
	machineIDPaths = []string{path}
	t.Cleanup(func() { machineIDPaths = saved })
}

func TestUserID_StablePerUID(t *testing.T) {
	withMachineID(t, "2f0ee6a8c9d94a219f2b0e4f8f1f9a11")
	m := NewManager()

	first := m.UserID(1000)
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("UserID(1000) = %q, not a uuid: %v", first, err)
	}
	if again := m.UserID(1000); again != first {
		t.Errorf("UserID(1000) changed between calls: %q vs %q", first, again)
	}
}

func TestUserID_DistinctPerUID(t *testing.T) {
	withMachineID(t, "2f0ee6a8c9d94a219f2b0e4f8f1f9a11")
	m := NewManager()

	if m.UserID(1000) == m.UserID(1001) {
		t.Error("different uids resolved to the same identity")
	}
}

func TestUserID_StableAcrossRestarts(t *testing.T) {
	withMachineID(t, "2f0ee6a8c9d94a219f2b0e4f8f1f9a11")

	// a fresh manager models a daemon restart; the machine id keeps the
	// derivation deterministic
	a := NewManager().UserID(1000)
	b := NewManager().UserID(1000)
	if a != b {
		t.Errorf("identity not stable across managers: %q vs %q", a, b)
	}
}

func TestUserID_DistinctPerMachine(t *testing.T) {
	withMachineID(t, "2f0ee6a8c9d94a219f2b0e4f8f1f9a11")
	a := NewManager().UserID(1000)

	withMachineID(t, "7c1b2d3e4f5a46279a8b9c0d1e2f3a4b")
	b := NewManager().UserID(1000)

	if a == b {
		t.Error("same uid on different machines resolved to the same identity")
	}
}

func TestUserID_FallbackWithoutMachineID(t *testing.T) {
	saved := machineIDPaths
	machineIDPaths = []string{filepath.Join(t.TempDir(), "missing")}
	t.Cleanup(func() { machineIDPaths = saved })

	m := NewManager()
	id := m.UserID(1000)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("UserID = %q, not a uuid: %v", id, err)
	}
	// still stable within the process
	if m.UserID(1000) != id {
		t.Error("fallback identity not stable within one manager")
	}
}
