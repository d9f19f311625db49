// Package proxy implements the ProxyServer: the HTTP(S) listener on the
// shared port that dispatches each request to its registered upstream by
// Host header.
//
// Per design note §9, dispatch is a pure function over (request, registry
// snapshot): the HTTP client used to reach upstreams is a long-lived
// component built once at construction, not resolved per request.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"switchboard/internal/healthstate"
	"switchboard/internal/registry"
)

// Server is the ProxyServer.
type Server struct {
	table  *registry.Table
	health *healthstate.Tracker
	client *http.Client

	ln      net.Listener
	httpSrv *http.Server
	isTLS   bool
}

// NewServer constructs a ProxyServer reading from table.
func NewServer(table *registry.Table, health *healthstate.Tracker) *Server {
	return &Server{
		table:  table,
		health: health,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				ForceAttemptHTTP2:     false,
				ResponseHeaderTimeout: 0, // upstreams may legitimately stream slowly; no deadline mandated by spec
			},
			// No client-level timeout: streamed responses may run long.
		},
	}
}

// Start binds the shared port — TLS-wrapped when cfg is non-nil — and
// begins serving.
func (s *Server) Start(addr string, cfg *tls.Config) error {
	ln, err := bindProxyListener(addr, cfg)
	if err != nil {
		if s.health != nil {
			s.health.Setf(healthstate.ProxyListener, healthstate.LevelError, err.Error())
		}
		return err
	}
	s.ln = ln
	s.isTLS = cfg != nil
	s.httpSrv = &http.Server{Handler: s}

	if s.health != nil {
		s.health.Setf(healthstate.ProxyListener, healthstate.LevelOK, "listening on "+addr)
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("WARN: proxy: serve: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the proxy listener, aborting in-flight
// requests once ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	if err != nil && ctx.Err() != nil {
		s.httpSrv.Close()
	}
	return err
}

// ServeHTTP implements the per-request algorithm of spec §4.3.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Host == "" {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Bad Request: Missing Host header")
		return
	}

	hostname := hostOnly(r.Host)
	app, ok := s.table.Lookup(hostname)
	if !ok {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "No app registered for %s", hostname)
		return
	}

	target := "http://" + net.JoinHostPort(app.UpstreamHost, strconv.Itoa(int(app.UpstreamPort))) + r.URL.RequestURI()
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Proxy Error: %s", err)
		return
	}
	copyHeaders(outReq.Header, r.Header)
	outReq.ContentLength = r.ContentLength
	applyForwardHeaders(outReq, r.Host, s.isTLS)

	resp, err := s.client.Do(outReq)
	if err != nil {
		if s.health != nil {
			s.health.RecordUpstreamResult(app, err)
		}
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Proxy Error: %s", err)
		return
	}
	defer resp.Body.Close()

	if s.health != nil {
		s.health.RecordUpstreamResult(app, nil)
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	// Headers are already committed; a copy failure here means the client
	// observes a truncated response, not a new error page.
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("WARN: proxy: %s: streaming response: %v", hostname, err)
	}
}
