package proxy

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// copyHeaders forwards every header key/value from src to dst verbatim,
// including hop-by-hop headers (Connection, Transfer-Encoding, Upgrade) per
// spec design note §9 — the apps themselves may depend on an untouched
// WebSocket upgrade. The one allowed filter is a structurally invalid field
// name, which net/http's own Transport would reject outright.
func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if !httpguts.ValidHeaderFieldName(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// applyForwardHeaders sets the two additions the spec requires on the
// outbound request: X-Forwarded-Host mirrors the raw inbound Host exactly,
// and X-Forwarded-Proto reflects whether the inbound listener is
// TLS-wrapped, regardless of what the client already sent.
func applyForwardHeaders(outReq *http.Request, inHost string, isTLS bool) {
	proto := "http"
	if isTLS {
		proto = "https"
	}
	outReq.Header.Set("X-Forwarded-Host", inHost)
	outReq.Header.Set("X-Forwarded-Proto", proto)
}

// hostOnly strips an optional ":port" suffix and lowercases the result, per
// spec §4.3 step 2.
func hostOnly(hostHeader string) string {
	h := hostHeader
	if host, _, err := net.SplitHostPort(hostHeader); err == nil {
		h = host
	}
	return strings.ToLower(h)
}
