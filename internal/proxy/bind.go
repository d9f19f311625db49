package proxy

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// bindProxyListener binds the shared port, wrapping it in TLS when cfg is
// non-nil, and translates the two bind failures the spec calls out into
// their fatal messages.
func bindProxyListener(addr string, cfg *tls.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			_, port, _ := net.SplitHostPort(addr)
			return nil, fmt.Errorf("port %s already in use", port)
		}
		if errors.Is(err, syscall.EACCES) {
			return nil, fmt.Errorf("permission denied binding %s (hint: privileged ports require elevated privileges, e.g. setcap cap_net_bind_service or running as root)", addr)
		}
		return nil, err
	}
	if cfg != nil {
		ln = tls.NewListener(ln, cfg)
	}
	return ln, nil
}
