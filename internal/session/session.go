// Package session derives stable caller identities. The user id is a
// UUIDv5 of the effective uid inside the machine-id namespace, so the same
// user on the same host always maps to the same session identity without
// anything being stored.
package session

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

type Manager struct {
	namespaceOnce sync.Once
	namespace     uuid.UUID

	mu    sync.Mutex
	cache map[uint32]string
}

func NewManager() *Manager {
	return &Manager{cache: make(map[uint32]string)}
}

// UserID returns the stable identity for an effective uid.
func (m *Manager) UserID(uid uint32) string {
	m.mu.Lock()
	if id, ok := m.cache[uid]; ok {
		m.mu.Unlock()
		return id
	}
	m.mu.Unlock()

	id := uuid.NewSHA1(m.machineNamespace(), []byte(strconv.FormatUint(uint64(uid), 10))).String()

	m.mu.Lock()
	m.cache[uid] = id
	m.mu.Unlock()

	return id
}

func (m *Manager) machineNamespace() uuid.UUID {
	m.namespaceOnce.Do(func() {
		for _, path := range machineIDPaths {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			id, err := uuid.Parse(strings.TrimSpace(string(data)))
			if err != nil {
				continue
			}
			m.namespace = id
			return
		}
		// no readable machine id: identities stay stable within this
		// process but not across reboots
		slog.Warn("machine id not readable, using random namespace for user identities")
		m.namespace = uuid.New()
	})
	return m.namespace
}
