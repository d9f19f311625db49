// Package switchclient implements the SwitchboardClient: the counterpart
// used by app processes that did not win ownership of the shared port. It
// registers its origin with the existing owner and tracks the connection's
// liveness for the app's lifetime.
package switchclient

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"switchboard/internal/wire"
)

// ErrSwitchboardNotAvailable is returned by Connect when no switchboard is
// listening at the configured endpoint — the signal the caller uses to
// attempt to become the owner instead.
var ErrSwitchboardNotAvailable = errors.New("switchboard not available")

const dialTimeout = 2 * time.Second

// State is the client's position in the state machine described in spec
// §4.4.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateRegistered
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRegistered:
		return "registered"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ErrorHandler is invoked once, from an internal goroutine, when a
// registered connection fails unexpectedly. It is never called for a clean
// Disconnect.
type ErrorHandler func(error)

// Client is the SwitchboardClient.
type Client struct {
	socketPath     string
	origin         string
	host           string
	configuredPort int

	mu     sync.Mutex
	state  State
	conn   net.Conn
	fr     *wire.FrameReader
	fw     *wire.FrameWriter
	onErr  ErrorHandler
}

// New constructs a client for the given app identity. configuredPort is
// used unless Connect is given an override (the port the app actually
// bound to, when it differs).
func New(socketPath, origin, host string, configuredPort int) *Client {
	return &Client{
		socketPath:     socketPath,
		origin:         origin,
		host:           host,
		configuredPort: configuredPort,
	}
}

// SetErrorHandler installs the callback used to notify the caller of a
// transport error while registered.
func (c *Client) SetErrorHandler(h ErrorHandler) {
	c.mu.Lock()
	c.onErr = h
	c.mu.Unlock()
}

// State reports the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the control endpoint and registers origin. If actualPort is
// > 0 it overrides configuredPort (the app may have bound an ephemeral port
// after the client was constructed).
func (c *Client) Connect(actualPort int) error {
	port := c.configuredPort
	if actualPort > 0 {
		port = actualPort
	}

	if ip := net.ParseIP(c.host); ip == nil {
		if err := resolveCheck(c.host); err != nil {
			log.Printf("WARN: switchclient: host %q did not resolve: %v", c.host, err)
		}
	}

	c.mu.Lock()
	c.state = StateDialing
	c.mu.Unlock()

	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		c.setState(StateIdle)
		if isUnavailable(err) {
			return ErrSwitchboardNotAvailable
		}
		return err
	}

	fr := wire.NewFrameReader(conn)
	fw := wire.NewFrameWriter(conn)

	if err := fw.WriteMessage(wire.NewRegister(c.origin, c.host, port)); err != nil {
		conn.Close()
		c.setState(StateIdle)
		return err
	}

	line, err := fr.ReadLine()
	if err != nil {
		conn.Close()
		c.setState(StateIdle)
		return err
	}
	msg, err := wire.Parse(line)
	if err != nil {
		conn.Close()
		c.setState(StateIdle)
		return err
	}
	ack, ok := msg.(wire.Ack)
	if !ok {
		conn.Close()
		c.setState(StateIdle)
		return fmt.Errorf("switchclient: expected ack, got %T", msg)
	}
	if !ack.Success {
		conn.Close()
		c.setState(StateIdle)
		return errors.New(ack.Error)
	}

	c.mu.Lock()
	c.conn = conn
	c.fr = fr
	c.fw = fw
	c.state = StateRegistered
	c.mu.Unlock()

	go c.watch()
	return nil
}

// watch blocks reading the control connection for as long as it is
// registered, purely to detect the peer closing or a transport error; any
// further frames (tolerating multiple acks in one segment, per spec) are
// otherwise ignored.
func (c *Client) watch() {
	for {
		_, err := c.fr.ReadLine()
		if err == nil {
			continue
		}
		c.mu.Lock()
		wasRegistered := c.state == StateRegistered
		if wasRegistered {
			c.state = StateDisconnected
		}
		handler := c.onErr
		c.mu.Unlock()
		if wasRegistered && handler != nil {
			handler(err)
		}
		return
	}
}

// Disconnect sends unregister and closes the socket. Idempotent: calling it
// while idle or already disconnected is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state != StateRegistered {
		c.mu.Unlock()
		return nil
	}
	origin := c.origin
	fw := c.fw
	conn := c.conn
	// Leave StateRegistered before closing so watch treats the close as
	// clean and does not call the error handler.
	c.state = StateIdle
	c.mu.Unlock()

	var sendErr error
	if fw != nil {
		sendErr = fw.WriteMessage(wire.NewUnregister(origin))
	}
	if conn != nil {
		conn.Close()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.conn = nil
	c.fr = nil
	c.fw = nil
	c.mu.Unlock()
	return sendErr
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func isUnavailable(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist)
}
