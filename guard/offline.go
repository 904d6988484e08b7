// Package guard implements the offline replay guard (spec.md §4.3): it turns
// accidental network use during replay into a deterministic, fast failure
// instead of letting a replay silently consult a live provider. The address
// classification is a generalization of
// haasonsaas-nexus/internal/net/ssrf/ip.go's private/loopback detection: SSRF
// guards allow the public internet and block internal ranges, whereas the
// replay guard inverts that — it blocks everything except loopback, UNIX
// sockets, and an explicit domain allowlist.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// ErrNetworkBlocked is returned (wrapped) when a dial is blocked by the
// offline guard; the orchestrator surfaces this as a TOOLING failure before
// any unrelated contract violation is reported (spec.md §8 property 7).
var ErrNetworkBlocked = errors.New("replay guard: network access blocked in offline mode")

// Offline enforces spec.md §4.3: loopback and UNIX-domain sockets are always
// permitted; hostnames in the configured allowlist are permitted and rate
// limited; everything else is blocked.
type Offline struct {
	mu           sync.Mutex
	allowDomains map[string]struct{}
	limiters     map[string]*rate.Limiter
	// RatePerSecond bounds how often an allow-listed domain may be dialed.
	// Zero disables limiting (unbounded, within the allowlist).
	RatePerSecond float64
}

// NewOffline builds a guard for the given spec.md contracts.network config.
// allowDomains entries are matched by exact hostname (spec.md §4.3
// "Allowlist"); ratePerSecond of 0 means unlimited.
func NewOffline(allowDomains []string, ratePerSecond float64) *Offline {
	set := make(map[string]struct{}, len(allowDomains))
	for _, d := range allowDomains {
		set[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Offline{
		allowDomains:  set,
		limiters:      make(map[string]*rate.Limiter),
		RatePerSecond: ratePerSecond,
	}
}

// DialContext is a drop-in replacement for net.Dialer.DialContext that
// enforces the offline policy. Wiring: pass it as the Control-equivalent
// entry point for any net/http Transport the replaying process constructs
// in-process (an embedded agent-side SDK, or the guard's own tests); a
// genuinely separate OS subprocess is instead constrained via Environ.
func (g *Offline) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if err := g.checkAddress(network, address); err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// checkAddress classifies network/address per spec.md §4.3 and returns
// ErrNetworkBlocked if the dial is not permitted.
func (g *Offline) checkAddress(network, address string) error {
	if strings.HasPrefix(network, "unix") {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	if isLoopbackHost(host) {
		return nil
	}
	host = strings.ToLower(host)
	g.mu.Lock()
	_, allowed := g.allowDomains[host]
	g.mu.Unlock()
	if !allowed {
		return fmt.Errorf("%w: network=%s address=%s", ErrNetworkBlocked, network, address)
	}
	if !g.allow(host) {
		return fmt.Errorf("%w: rate limit exceeded for allow-listed domain %s", ErrNetworkBlocked, host)
	}
	return nil
}

// allow applies the per-domain token bucket to an already allow-listed
// domain; it never blocks domains outside the allowlist (checkAddress
// already rejected those).
func (g *Offline) allow(host string) bool {
	if g.RatePerSecond <= 0 {
		return true
	}
	g.mu.Lock()
	lim, ok := g.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(g.RatePerSecond), 1)
		g.limiters[host] = lim
	}
	g.mu.Unlock()
	return lim.Allow()
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// Environ returns a copy of base with proxy variables pointed at an
// unreachable loopback sink, for the common case of constraining a
// subprocess's network access without kernel-level isolation: most HTTP
// client libraries honor *_PROXY and will fail fast connecting to a closed
// local port rather than silently reaching the real provider. This is a
// best-effort boundary for a genuinely separate OS process; see
// spec.md §4.3 and SPEC_FULL.md's note that full subprocess network
// isolation is platform-specific and out of a portable Go program's reach.
func Environ(base []string) []string {
	const sink = "http://127.0.0.1:1"
	out := make([]string, 0, len(base)+4)
	for _, kv := range base {
		upper := strings.ToUpper(kv)
		if strings.HasPrefix(upper, "HTTP_PROXY=") || strings.HasPrefix(upper, "HTTPS_PROXY=") ||
			strings.HasPrefix(upper, "ALL_PROXY=") || strings.HasPrefix(upper, "NO_PROXY=") {
			continue
		}
		out = append(out, kv)
	}
	out = append(out, "HTTP_PROXY="+sink, "HTTPS_PROXY="+sink, "ALL_PROXY="+sink, "NO_PROXY=")
	return out
}
