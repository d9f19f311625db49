package control

import (
	"errors"
	"log"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"switchboard/internal/events"
	"switchboard/internal/healthstate"
	"switchboard/internal/registry"
	"switchboard/internal/wire"
)

// connection is one accepted control-plane socket: a ControlConnection in
// spec terms. It owns at most one active registration at a time (data
// model invariant), tracked in hostname.
type connection struct {
	id       uuid.UUID
	srv      *Server
	conn     net.Conn
	fr       *wire.FrameReader
	fw       *wire.FrameWriter
	hostname string // "" when this connection has no active registration
}

func newConnection(srv *Server, nc net.Conn) *connection {
	return &connection{
		id:   uuid.New(),
		srv:  srv,
		conn: nc,
		fr:   wire.NewFrameReader(nc),
		fw:   wire.NewFrameWriter(nc),
	}
}

// serve processes messages in arrival order until the connection closes or
// a protocol error occurs, then cleans up any registration it still holds.
func (c *connection) serve() {
	defer c.conn.Close()
	for {
		line, err := c.fr.ReadLine()
		if err != nil {
			break
		}
		msg, perr := wire.Parse(line)
		if perr != nil {
			if errors.Is(perr, wire.ErrUnknownType) {
				_ = c.fw.WriteMessage(wire.AckError(wire.ErrUnknownType.Error()))
				continue
			}
			log.Printf("WARN: control: %s: %v", c.id, perr)
			break
		}
		switch m := msg.(type) {
		case wire.Register:
			c.handleRegister(m)
		case wire.Unregister:
			c.handleUnregister(m)
		default:
			_ = c.fw.WriteMessage(wire.AckError("unexpected message direction"))
		}
	}
	c.cleanup()
}

func (c *connection) handleRegister(m wire.Register) {
	if err := validate.Struct(m); err != nil {
		_ = c.fw.WriteMessage(wire.AckError("invalid register: " + err.Error()))
		return
	}
	if c.hostname != "" {
		_ = c.fw.WriteMessage(wire.AckError("connection already has an active registration"))
		return
	}

	hostname, err := hostnameOf(m.Origin)
	if err != nil {
		_ = c.fw.WriteMessage(wire.AckError(err.Error()))
		return
	}

	app := registry.App{
		Origin:       m.Origin,
		Hostname:     hostname,
		UpstreamHost: m.Host,
		UpstreamPort: uint16(m.Port),
		Connection:   registry.PeerConnection(c.id),
	}
	if err := c.srv.table.Insert(app); err != nil {
		c.srv.bus.Publish(events.Event{Topic: events.TopicRegistration, Payload: events.ConflictRejected{
			Hostname: hostname, Origin: m.Origin,
		}})
		_ = c.fw.WriteMessage(wire.AckError("hostname already registered"))
		return
	}

	c.hostname = hostname
	c.srv.bus.Publish(events.Event{Topic: events.TopicRegistration, Payload: events.Registered{
		Hostname: hostname, Origin: m.Origin, UpstreamHost: m.Host, UpstreamPort: uint16(m.Port),
	}})
	if c.srv.health != nil {
		c.srv.health.Setf(healthstate.UpstreamComponent(hostname), healthstate.LevelOK, "registered")
	}
	_ = c.fw.WriteMessage(wire.AckOK())
}

func (c *connection) handleUnregister(m wire.Unregister) {
	if err := validate.Struct(m); err != nil {
		_ = c.fw.WriteMessage(wire.AckError("invalid unregister: " + err.Error()))
		return
	}
	hostname, err := hostnameOf(m.Origin)
	if err != nil {
		_ = c.fw.WriteMessage(wire.AckError(err.Error()))
		return
	}
	if c.hostname != hostname {
		_ = c.fw.WriteMessage(wire.AckError("origin not registered on this connection"))
		return
	}

	c.srv.table.Remove(hostname)
	c.hostname = ""
	c.srv.bus.Publish(events.Event{Topic: events.TopicRegistration, Payload: events.Unregistered{
		Hostname: hostname, Reason: "unregister",
	}})
	if c.srv.health != nil {
		c.srv.health.Clear(healthstate.UpstreamComponent(hostname))
	}
	_ = c.fw.WriteMessage(wire.AckOK())
}

// cleanup runs once per connection, on any exit path from serve. It mirrors
// what an explicit unregister does, but tags the reason as a disconnect.
func (c *connection) cleanup() {
	removed := c.srv.table.RemoveByConnection(c.id)
	for _, hostname := range removed {
		c.srv.bus.Publish(events.Event{Topic: events.TopicRegistration, Payload: events.Unregistered{
			Hostname: hostname, Reason: "disconnect",
		}})
		if c.srv.health != nil {
			c.srv.health.Clear(healthstate.UpstreamComponent(hostname))
		}
	}
	if len(removed) > 0 {
		c.srv.bus.Publish(events.Event{Topic: events.TopicPeer, Payload: events.PeerDisconnected{
			ConnectionID: c.id.String(), Hostnames: removed,
		}})
	}
}

func hostnameOf(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", errInvalidOrigin
	}
	return strings.ToLower(host), nil
}
