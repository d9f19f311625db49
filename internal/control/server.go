// Package control implements the ControlServer: the inter-process control
// endpoint that accepts one connection per registering app, demultiplexes
// newline-delimited JSON register/unregister messages, and keeps the
// RegistryTable in sync with connection liveness.
package control

import (
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"switchboard/internal/events"
	"switchboard/internal/healthstate"
	"switchboard/internal/paths"
	"switchboard/internal/registry"
)

var validate = validator.New()

// Server is the ControlServer: it owns the control-plane listener and
// demultiplexes registrations into the RegistryTable.
type Server struct {
	table  *registry.Table
	bus    *events.Bus
	health *healthstate.Tracker

	mu         sync.Mutex
	ln         net.Listener
	socketPath string
	conns      map[uuid.UUID]*connection
	wg         sync.WaitGroup
	closed     bool
}

// NewServer constructs a ControlServer bound to the given shared state.
func NewServer(table *registry.Table, bus *events.Bus, health *healthstate.Tracker) *Server {
	return &Server{
		table:  table,
		bus:    bus,
		health: health,
		conns:  make(map[uuid.UUID]*connection),
	}
}

// Start binds the control endpoint at socketPath, creating its parent
// directory with user-only permissions if needed, and begins accepting
// connections. See bindControlSocket for the stale-recovery algorithm.
func (s *Server) Start(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if err := paths.EnsureDataDir(dir); err != nil {
		return err
	}

	ln, err := bindControlSocket(socketPath)
	if err != nil {
		if s.health != nil {
			s.health.Setf(healthstate.ControlListener, healthstate.LevelError, err.Error())
		}
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.socketPath = socketPath
	s.mu.Unlock()

	if s.health != nil {
		s.health.Setf(healthstate.ControlListener, healthstate.LevelOK, "listening on "+socketPath)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := newConnection(s, conn)
		s.mu.Lock()
		s.conns[c.id] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
			s.mu.Lock()
			delete(s.conns, c.id)
			s.mu.Unlock()
		}()
	}
}

// RegisterOwnerApp self-registers the switchboard owner's own app, tagged
// as the Owner connection variant so RemoveByConnection never touches it.
// Safe to call any time; Insert is independently synchronized.
func (s *Server) RegisterOwnerApp(app registry.App) error {
	app.Connection = registry.OwnerConnection()
	if err := s.table.Insert(app); err != nil {
		return err
	}
	s.bus.Publish(events.Event{Topic: events.TopicRegistration, Payload: events.Registered{
		Hostname: app.Hostname, Origin: app.Origin, UpstreamHost: app.UpstreamHost,
		UpstreamPort: app.UpstreamPort, Owner: true,
	}})
	if s.health != nil {
		s.health.Setf(healthstate.UpstreamComponent(app.Hostname), healthstate.LevelOK, "registered (owner)")
	}
	return nil
}

// Stop closes the listener, then every open connection — each close
// synchronously triggers RemoveByConnection for that connection's
// registrations — and then removes the endpoint path if a socket file is
// still present there. It does not check that this socket is the one this
// server bound.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	ln := s.ln
	socketPath := s.socketPath
	s.mu.Unlock()

	var lnErr error
	if ln != nil {
		lnErr = ln.Close()
	}
	for _, c := range conns {
		c.conn.Close()
	}
	s.wg.Wait()

	if socketPath != "" {
		if fi, err := os.Lstat(socketPath); err == nil && fi.Mode()&os.ModeSocket != 0 {
			_ = os.Remove(socketPath)
		}
	}
	return lnErr
}

// SocketPath returns the endpoint path the server is bound to, once
// started.
func (s *Server) SocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketPath
}
