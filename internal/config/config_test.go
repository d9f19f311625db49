package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Product != "switchboard" || cfg.ProxyAddr != ":8080" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	content := "product: myapp\nproxy_addr: \":9090\"\ntls:\n  cert_file: /tmp/cert.pem\n  key_file: /tmp/key.pem\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Product != "myapp" {
		t.Fatalf("expected product myapp, got %q", cfg.Product)
	}
	if cfg.ProxyAddr != ":9090" {
		t.Fatalf("expected proxy_addr :9090, got %q", cfg.ProxyAddr)
	}
	if cfg.TLS.CertFile != "/tmp/cert.pem" || cfg.TLS.KeyFile != "/tmp/key.pem" {
		t.Fatalf("expected tls paths set, got %+v", cfg.TLS)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("product: [unterminated"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SWITCHBOARD_PROXY_ADDR", ":7070")
	t.Setenv("SWITCHBOARD_ADMIN_ADDR", "127.0.0.1:7071")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProxyAddr != ":7070" {
		t.Fatalf("expected env override :7070, got %q", cfg.ProxyAddr)
	}
	if cfg.AdminAddr != "127.0.0.1:7071" {
		t.Fatalf("expected env override, got %q", cfg.AdminAddr)
	}
}
