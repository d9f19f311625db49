// Package board implements the ownership arbitration tying RegistryTable,
// ControlServer, ProxyServer and SwitchboardClient together: whichever app
// instance wins the bind on the shared port becomes the owner and serves
// the other instances' registrations; every other instance falls back to a
// SwitchboardClient connection.
package board

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"switchboard/internal/control"
	"switchboard/internal/events"
	"switchboard/internal/healthstate"
	"switchboard/internal/proxy"
	"switchboard/internal/registry"
	"switchboard/internal/switchclient"
)

// Mode reports which role this process ended up playing.
type Mode int

const (
	ModeUnstarted Mode = iota
	ModeOwner
	ModePeer
)

func (m Mode) String() string {
	switch m {
	case ModeOwner:
		return "owner"
	case ModePeer:
		return "peer"
	default:
		return "unstarted"
	}
}

// App describes the registering app's own identity: the one entry it wants
// present in the shared RegistryTable regardless of which role this process
// ends up playing.
type App struct {
	Origin       string
	UpstreamHost string
	UpstreamPort int
}

// Config configures a Board.
type Config struct {
	SocketPath string
	ProxyAddr  string
	TLS        *tls.Config
	App        App
}

// Board owns whichever of ControlServer/ProxyServer/SwitchboardClient this
// process ends up running, and exposes the shared RegistryTable, event bus
// and health tracker to the rest of the process (e.g. internal/admin).
type Board struct {
	cfg Config

	Table  *registry.Table
	Bus    *events.Bus
	Health *healthstate.Tracker

	mode    Mode
	control *control.Server
	proxy   *proxy.Server
	client  *switchclient.Client

	watchdogCancel context.CancelFunc
}

// New constructs a Board. Call Start to attempt ownership.
func New(cfg Config) *Board {
	return &Board{
		cfg:    cfg,
		Table:  registry.New(),
		Bus:    events.NewBus(),
		Health: healthstate.NewTracker(),
	}
}

// Mode reports which role Start settled on.
func (b *Board) Mode() Mode { return b.mode }

// Start attempts to become the owner by binding the control socket; on
// ErrAlreadyRunning it falls back to a SwitchboardClient registration
// against the existing owner, as does winning the control socket but then
// losing the race for the shared proxy port (see startAsOwner). Any other
// error (including a failed stale recovery) is fatal — the caller should
// not retry.
func (b *Board) Start(ctx context.Context) error {
	b.control = control.NewServer(b.Table, b.Bus, b.Health)
	err := b.control.Start(b.cfg.SocketPath)
	if err == nil {
		return b.startAsOwner(ctx)
	}
	if errors.Is(err, control.ErrAlreadyRunning) {
		return b.startAsPeer()
	}
	return fmt.Errorf("board: control endpoint: %w", err)
}

// startAsOwner attempts to stand up the ProxyServer and self-register this
// process's own app now that it holds the control socket. A proxy-bind
// failure (most commonly the shared port already in use by a process this
// one raced against for the control socket) is not fatal: spec §4.5 step 3
// and the BindError taxonomy in §7 require falling back to a
// SwitchboardClient registration in that case, the same as losing the
// control-socket race outright.
func (b *Board) startAsOwner(ctx context.Context) error {
	hostname, err := hostnameOf(b.cfg.App.Origin)
	if err != nil {
		b.control.Stop()
		return fmt.Errorf("board: own app origin: %w", err)
	}

	var proxyErr error
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		proxyErr = b.proxyStart()
		return proxyErr
	})
	g.Go(func() error {
		return b.control.RegisterOwnerApp(registry.App{
			Origin:       b.cfg.App.Origin,
			Hostname:     hostname,
			UpstreamHost: b.cfg.App.UpstreamHost,
			UpstreamPort: uint16(b.cfg.App.UpstreamPort),
		})
	})
	if err := g.Wait(); err != nil {
		b.control.Stop()
		if b.proxy != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			b.proxy.Stop(stopCtx)
			b.proxy = nil
		}
		if proxyErr != nil {
			log.Printf("WARN: board: proxy bind failed (%v), falling back to peer", proxyErr)
			return b.startAsPeer()
		}
		return fmt.Errorf("board: owner startup: %w", err)
	}

	b.mode = ModeOwner
	notifySystemdReady()
	b.startWatchdog()
	return nil
}

func (b *Board) proxyStart() error {
	b.proxy = proxy.NewServer(b.Table, b.Health)
	return b.proxy.Start(b.cfg.ProxyAddr, b.cfg.TLS)
}

func (b *Board) startAsPeer() error {
	b.client = switchclient.New(b.cfg.SocketPath, b.cfg.App.Origin, b.cfg.App.UpstreamHost, b.cfg.App.UpstreamPort)
	if err := b.client.Connect(0); err != nil {
		return fmt.Errorf("board: join as peer: %w", err)
	}
	b.mode = ModePeer
	notifySystemdReady()
	return nil
}

// Stop tears down whatever this process was running.
func (b *Board) Stop(ctx context.Context) error {
	if b.watchdogCancel != nil {
		b.watchdogCancel()
	}
	var err error
	switch b.mode {
	case ModeOwner:
		if b.proxy != nil {
			err = b.proxy.Stop(ctx)
		}
		if b.control != nil {
			if cerr := b.control.Stop(); cerr != nil && err == nil {
				err = cerr
			}
		}
	case ModePeer:
		if b.client != nil {
			err = b.client.Disconnect()
		}
	}
	b.Bus.Close()
	return err
}

func notifySystemdReady() {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("WARN: board: systemd notify failed: %v", err)
	} else if sent {
		log.Printf("INFO: board: notified systemd ready")
	}
}

// startWatchdog pings systemd's watchdog at half its configured interval,
// for as long as this process is owner. No-op when WATCHDOG_USEC isn't set
// (the common case outside a systemd unit).
func (b *Board) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.watchdogCancel = cancel

	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					log.Printf("WARN: board: watchdog notify failed: %v", err)
				}
			}
		}
	}()
}

func hostnameOf(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("origin %q missing host", origin)
	}
	return strings.ToLower(host), nil
}
