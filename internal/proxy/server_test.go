package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"switchboard/internal/healthstate"
	"switchboard/internal/registry"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func startProxy(t *testing.T, table *registry.Table) (addr string) {
	t.Helper()
	port := freePort(t)
	srv := NewServer(table, healthstate.NewTracker())
	if err := srv.Start("127.0.0.1:"+strconv.Itoa(port), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return "127.0.0.1:" + strconv.Itoa(port)
}

func TestSingleAppHTTP(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") != "http" {
			t.Errorf("expected X-Forwarded-Proto http, got %q", r.Header.Get("X-Forwarded-Proto"))
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hi")
	}))
	defer upstream.Close()

	upURL, _ := url.Parse(upstream.URL)
	host, portStr, _ := net.SplitHostPort(upURL.Host)
	port, _ := strconv.Atoi(portStr)

	table := registry.New()
	table.Insert(registry.App{Hostname: "app.localhost", UpstreamHost: host, UpstreamPort: uint16(port)})

	addr := startProxy(t, table)

	req, _ := http.NewRequest("GET", "http://"+addr+"/x", nil)
	req.Host = "app.localhost"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hi" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestUnknownHost(t *testing.T) {
	table := registry.New()
	addr := startProxy(t, table)

	req, _ := http.NewRequest("GET", "http://"+addr+"/", nil)
	req.Host = "unknown.localhost"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "No app registered for unknown.localhost" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestMissingHostHeader(t *testing.T) {
	table := registry.New()
	addr := startProxy(t, table)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("GET /x HTTP/1.0\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Bad Request: Missing Host header" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestHeaderForwarding(t *testing.T) {
	var gotForwardedHost, gotCustom string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		gotCustom = r.Header.Get("X-My-Custom")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	upURL, _ := url.Parse(upstream.URL)
	host, portStr, _ := net.SplitHostPort(upURL.Host)
	port, _ := strconv.Atoi(portStr)

	table := registry.New()
	table.Insert(registry.App{Hostname: "app.localhost", UpstreamHost: host, UpstreamPort: uint16(port)})
	addr := startProxy(t, table)

	req, _ := http.NewRequest("GET", "http://"+addr+"/", nil)
	req.Host = "app.localhost"
	req.Header.Set("X-My-Custom", "value")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotForwardedHost != "app.localhost" {
		t.Fatalf("expected X-Forwarded-Host app.localhost, got %q", gotForwardedHost)
	}
	if gotCustom != "value" {
		t.Fatalf("expected custom header preserved, got %q", gotCustom)
	}
}
