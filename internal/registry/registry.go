// Package registry holds the RegistryTable: the single-writer,
// multi-reader mapping from a request's authority hostname to the
// registered app that should receive it.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Connection tags a registration to the control connection that owns it.
// The owner's self-registration (see design note on ownership arbitration)
// carries no connection: it is the Owner variant, not a nil socket
// sentinel, so RemoveByConnection has nothing to type-pun.
type Connection struct {
	Owner bool
	ID    uuid.UUID
}

// OwnerConnection tags the switchboard owner's own self-registration.
func OwnerConnection() Connection { return Connection{Owner: true} }

// PeerConnection tags a registration made by a connected peer.
func PeerConnection(id uuid.UUID) Connection { return Connection{ID: id} }

// App is a single registered application.
type App struct {
	Origin       string
	Hostname     string // lowercased host portion of Origin; the table key
	UpstreamHost string
	UpstreamPort uint16
	Connection   Connection
}

// Table is the hostname -> App mapping. Zero value is not usable; use New.
type Table struct {
	mu   sync.RWMutex
	apps map[string]App
}

// New constructs an empty Table.
func New() *Table {
	return &Table{apps: make(map[string]App)}
}

// ErrConflict is returned by Insert when the hostname is already taken.
type ErrConflict struct{ Hostname string }

func (e *ErrConflict) Error() string {
	return "hostname already registered: " + e.Hostname
}

// Insert adds app keyed by app.Hostname. On conflict the table is left
// unchanged and ErrConflict is returned.
func (t *Table) Insert(app App) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.apps[app.Hostname]; exists {
		return &ErrConflict{Hostname: app.Hostname}
	}
	t.apps[app.Hostname] = app
	return nil
}

// Remove deletes the record for hostname, reporting whether one existed.
func (t *Table) Remove(hostname string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.apps[hostname]; !exists {
		return false
	}
	delete(t.apps, hostname)
	return true
}

// RemoveByConnection removes every record tied to connID, skipping the
// owner's self-registration, and returns the hostnames it removed.
func (t *Table) RemoveByConnection(connID uuid.UUID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []string
	for host, app := range t.apps {
		if app.Connection.Owner {
			continue
		}
		if app.Connection.ID == connID {
			delete(t.apps, host)
			removed = append(removed, host)
		}
	}
	return removed
}

// Lookup returns the app registered for hostname, if any.
func (t *Table) Lookup(hostname string) (App, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	app, ok := t.apps[hostname]
	return app, ok
}

// Snapshot returns a point-in-time copy of every registered app, safe to
// range over after the call returns without holding the table's lock.
func (t *Table) Snapshot() []App {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]App, 0, len(t.apps))
	for _, app := range t.apps {
		out = append(out, app)
	}
	return out
}

// Len reports the number of currently registered apps.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.apps)
}
