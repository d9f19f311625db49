package switchclient

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
)

const resolveTimeout = 2 * time.Second

// resolveCheck performs a best-effort forward lookup of host, trying A then
// AAAA against the system resolver. It never blocks registration: callers
// only log its result as a warning. Mirrors the record-construction idioms
// of the teacher's mDNS responder (dns.Msg, dns.ClassINET, dns.TypeA/AAAA),
// applied here as an outbound dns.Client query instead of a served response.
func resolveCheck(host string) error {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return fmt.Errorf("no resolver configured: %w", err)
	}
	server := cfg.Servers[0] + ":" + cfg.Port

	client := &dns.Client{Timeout: resolveTimeout}
	fqdn := dns.Fqdn(host)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, qtype)
		msg.RecursionDesired = true

		resp, _, err := client.Exchange(msg, server)
		if err != nil {
			continue
		}
		if resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0 {
			return nil
		}
	}
	return fmt.Errorf("no A or AAAA record found for %s", host)
}
