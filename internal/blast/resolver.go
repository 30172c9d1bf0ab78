package blast

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"
)

// Resolver resolves a destination host to a single address.
type Resolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, host string) (netip.Addr, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	return f(ctx, host)
}

// DNSConfig contains DNS resolver configuration.
type DNSConfig struct {
	// Servers are explicit DNS servers (host:port). Empty uses the system resolver.
	Servers []string

	// Timeout bounds a single lookup.
	Timeout time.Duration

	// CacheTTL is how long a positive answer is reused. 0 disables caching.
	CacheTTL time.Duration
}

// DefaultDNSConfig returns sensible defaults.
// No servers are configured, so the system resolver is used and local names
// such as localhost or printer.local keep working.
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		Servers:  []string{},
		Timeout:  5 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
}

// DNSResolver is the default Resolver. One instance can be shared by many
// Blasters; answers are cached per host.
type DNSResolver struct {
	cfg    DNSConfig
	mu     sync.RWMutex
	cache  map[string]*cacheEntry
	dialer *net.Dialer
}

type cacheEntry struct {
	addr      netip.Addr
	expiresAt time.Time
}

// NewDNSResolver creates a new DNS resolver.
func NewDNSResolver(cfg DNSConfig) *DNSResolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultDNSConfig().Timeout
	}

	return &DNSResolver{
		cfg:   cfg,
		cache: make(map[string]*cacheEntry),
		dialer: &net.Dialer{
			Timeout: cfg.Timeout,
		},
	}
}

// Resolve resolves host to one address, preferring IPv4.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	// Literals skip DNS entirely
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	if addr, ok := r.getCached(host); ok {
		return addr, nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	addrs, err := r.netResolver().LookupNetIP(resolveCtx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, errors.New("no addresses found")
	}

	selected := addrs[0].Unmap()
	for _, addr := range addrs {
		if addr.Unmap().Is4() {
			selected = addr.Unmap()
			break
		}
	}

	if r.cfg.CacheTTL > 0 {
		r.setCache(host, selected, r.cfg.CacheTTL)
	}

	return selected, nil
}

func (r *DNSResolver) netResolver() *net.Resolver {
	if len(r.cfg.Servers) == 0 {
		return net.DefaultResolver
	}

	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			// Try each server until one answers the dial
			var lastErr error
			for _, server := range r.cfg.Servers {
				conn, err := r.dialer.DialContext(ctx, "udp", server)
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		},
	}
}

// getCached returns a cached address if still valid.
// Expired entries are deleted on lookup.
func (r *DNSResolver) getCached(host string) (netip.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[host]
	if !ok {
		return netip.Addr{}, false
	}

	if time.Now().After(entry.expiresAt) {
		delete(r.cache, host)
		return netip.Addr{}, false
	}

	return entry.addr, true
}

func (r *DNSResolver) setCache(host string, addr netip.Addr, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache[host] = &cacheEntry{
		addr:      addr,
		expiresAt: time.Now().Add(ttl),
	}
}

// ClearCache drops every cached answer.
func (r *DNSResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*cacheEntry)
}

// CacheSize returns the number of cached entries.
func (r *DNSResolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
