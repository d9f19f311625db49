package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"switchboard/internal/admin"
	"switchboard/internal/audit"
	"switchboard/internal/board"
	"switchboard/internal/certs"
	"switchboard/internal/config"
	"switchboard/internal/events"
	"switchboard/internal/paths"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	origin := flag.String("origin", "", "this app's own origin URL, e.g. http://myapp.localhost (required)")
	upstreamHost := flag.String("upstream-host", "127.0.0.1", "host this app actually listens on")
	upstreamPort := flag.Int("upstream-port", 0, "port this app actually listens on (required)")
	flag.Parse()

	if *origin == "" || *upstreamPort == 0 {
		log.Fatalf("FATAL: -origin and -upstream-port are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: loading config: %v", err)
	}

	dataDir, err := paths.DataDir(cfg.Product)
	if err != nil {
		log.Fatalf("FATAL: resolving data directory: %v", err)
	}
	if err := paths.EnsureDataDir(dataDir); err != nil {
		log.Fatalf("FATAL: preparing data directory: %v", err)
	}
	socketPath, err := paths.SocketPath(cfg.Product)
	if err != nil {
		log.Fatalf("FATAL: resolving control socket path: %v", err)
	}

	tlsCfg, err := loadTLS(cfg)
	if err != nil {
		log.Fatalf("FATAL: loading TLS material: %v", err)
	}

	b := board.New(board.Config{
		SocketPath: socketPath,
		ProxyAddr:  cfg.ProxyAddr,
		TLS:        tlsCfg,
		App: board.App{
			Origin:       *origin,
			UpstreamHost: *upstreamHost,
			UpstreamPort: *upstreamPort,
		},
	})

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = b.Start(startCtx)
	startCancel()
	if err != nil {
		log.Fatalf("FATAL: switchboard startup failed: %v", err)
	}
	log.Printf("INFO: switchboard started as %s", b.Mode())

	var adminSrv *admin.Server
	var auditLog *audit.Log
	if cfg.AdminAddr != "" {
		auditLog, err = audit.Open(dataDir)
		if err != nil {
			log.Printf("WARN: audit log unavailable: %v", err)
			auditLog = nil
		} else {
			ch := b.Bus.Subscribe(events.TopicRegistration, 64)
			auditLog.Subscribe(ch, func(err error) {
				log.Printf("WARN: audit: %v", err)
			})
		}
		adminSrv = admin.NewServer(b.Table, b.Health, b.Bus, auditLog, version)
		if err := adminSrv.Start(cfg.AdminAddr); err != nil {
			log.Printf("WARN: admin surface failed to start: %v", err)
			adminSrv = nil
		} else {
			log.Printf("INFO: admin diagnostics listening on %s", cfg.AdminAddr)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("INFO: shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if adminSrv != nil {
		if err := adminSrv.Stop(stopCtx); err != nil {
			log.Printf("WARN: admin shutdown: %v", err)
		}
	}
	if auditLog != nil {
		auditLog.Close()
	}
	if err := b.Stop(stopCtx); err != nil {
		log.Printf("WARN: switchboard shutdown: %v", err)
	}
}

func loadTLS(cfg config.Config) (*tls.Config, error) {
	src := certs.Source{CertFile: cfg.TLS.CertFile, KeyFile: cfg.TLS.KeyFile}
	if !src.Enabled() {
		return nil, nil
	}
	return certs.LoadTLSConfig(src)
}
