// Package admin exposes the switchboard's diagnostics HTTP API: a read-only
// registry snapshot, component health, and a live event stream. It binds a
// separate loopback-only port, never the shared proxy port — it carries no
// authentication, the same local-trust model as the control socket.
package admin

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"switchboard/internal/audit"
	"switchboard/internal/events"
	"switchboard/internal/healthstate"
	"switchboard/internal/registry"
)

var upgrader = websocket.Upgrader{
	// Loopback-only diagnostics socket; no browser Origin header to check.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the admin diagnostics HTTP API.
type Server struct {
	table   *registry.Table
	health  *healthstate.Tracker
	bus     *events.Bus
	audit   *audit.Log
	version string

	router  *gin.Engine
	httpSrv *http.Server
}

// NewServer constructs the admin surface. audit may be nil (diagnostics
// history endpoint is then disabled).
func NewServer(table *registry.Table, health *healthstate.Tracker, bus *events.Bus, auditLog *audit.Log, version string) *Server {
	s := &Server{table: table, health: health, bus: bus, audit: auditLog, version: version}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", s.handleHealthz)
	r.GET("/registry", s.handleRegistry)
	r.GET("/diagnostics/events", s.handleEventStream)
	if s.audit != nil {
		r.GET("/audit", s.handleAudit)
	}
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": s.version, "service": "switchboard"})
	})

	s.router = r
}

// Start binds addr (expected loopback) and begins serving.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("WARN: admin: serve: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the admin surface.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "unknown"})
		return
	}
	ready, snapshot := s.health.Ready(healthstate.ControlListener, healthstate.ProxyListener)
	c.JSON(http.StatusOK, gin.H{
		"ready":      ready,
		"status":     s.health.Overall().String(),
		"components": flattenHealth(snapshot),
	})
}

func flattenHealth(snapshot map[string]healthstate.Status) []gin.H {
	out := make([]gin.H, 0, len(snapshot))
	for name, st := range snapshot {
		out = append(out, gin.H{
			"name":       name,
			"level":      st.Level.String(),
			"message":    st.Message,
			"details":    st.Details,
			"updated_at": st.UpdatedAt,
		})
	}
	return out
}

func (s *Server) handleRegistry(c *gin.Context) {
	apps := s.table.Snapshot()
	out := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		out = append(out, gin.H{
			"hostname":      app.Hostname,
			"origin":        app.Origin,
			"upstream_host": app.UpstreamHost,
			"upstream_port": app.UpstreamPort,
			"owner":         app.Connection.Owner,
		})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

func (s *Server) handleAudit(c *gin.Context) {
	hostname := c.Query("hostname")
	if hostname != "" {
		entries, err := s.audit.ForHostname(hostname)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
		return
	}
	entries, err := s.audit.Recent(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// handleEventStream upgrades to a WebSocket and relays registration events
// live until the client disconnects.
func (s *Server) handleEventStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARN: admin: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	regCh := s.bus.Subscribe(events.TopicRegistration, 16)
	peerCh := s.bus.Subscribe(events.TopicPeer, 16)
	defer s.bus.Unsubscribe(events.TopicRegistration, regCh)
	defer s.bus.Unsubscribe(events.TopicPeer, peerCh)

	// Discard any client->server frames; this endpoint is push-only, but a
	// read loop is required to detect the peer closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	for {
		select {
		case evt, ok := <-regCh:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case evt, ok := <-peerCh:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
