package blast

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"
)

func TestDefaultDNSConfig(t *testing.T) {
	cfg := DefaultDNSConfig()

	if len(cfg.Servers) != 0 {
		t.Errorf("Servers = %v, want empty (system resolver)", cfg.Servers)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
}

func TestDNSResolver_Literals(t *testing.T) {
	r := NewDNSResolver(DefaultDNSConfig())

	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "127.0.0.1"},
		{"224.20.54.121", "224.20.54.121"},
		{"::1", "::1"},
		{"127::1", "127::1"},
		{"::ffff:192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.host)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.host, err)
			}
			if got != netip.MustParseAddr(tt.want) {
				t.Errorf("Resolve(%q) = %v, want %s", tt.host, got, tt.want)
			}
		})
	}

	if r.CacheSize() != 0 {
		t.Errorf("literals should not be cached, CacheSize() = %d", r.CacheSize())
	}
}

func TestDNSResolver_Cache(t *testing.T) {
	r := NewDNSResolver(DNSConfig{CacheTTL: time.Minute})

	addr := netip.MustParseAddr("10.1.2.3")
	r.setCache("cached.test", addr, time.Minute)

	got, err := r.Resolve(context.Background(), "cached.test")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != addr {
		t.Errorf("Resolve() = %v, want %v", got, addr)
	}

	if r.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", r.CacheSize())
	}
	r.ClearCache()
	if r.CacheSize() != 0 {
		t.Errorf("CacheSize() after ClearCache = %d, want 0", r.CacheSize())
	}
}

func TestDNSResolver_ExpiredEntry(t *testing.T) {
	r := NewDNSResolver(DefaultDNSConfig())

	r.setCache("old.test", netip.MustParseAddr("10.0.0.1"), -time.Second)

	if _, ok := r.getCached("old.test"); ok {
		t.Error("expired entry should not be returned")
	}
	if r.CacheSize() != 0 {
		t.Errorf("expired entry should be evicted, CacheSize() = %d", r.CacheSize())
	}
}

func TestDNSResolver_ZeroTimeoutUsesDefault(t *testing.T) {
	r := NewDNSResolver(DNSConfig{})
	if r.cfg.Timeout != DefaultDNSConfig().Timeout {
		t.Errorf("Timeout = %v, want default", r.cfg.Timeout)
	}
}

func TestDNSResolver_Localhost(t *testing.T) {
	r := NewDNSResolver(DefaultDNSConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	addr, err := r.Resolve(ctx, "localhost")
	if err != nil {
		t.Skipf("localhost does not resolve here: %v", err)
	}
	if !addr.IsLoopback() {
		t.Errorf("Resolve(localhost) = %v, want a loopback address", addr)
	}
	if r.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", r.CacheSize())
	}
}

func TestResolverFunc(t *testing.T) {
	wantErr := errors.New("nope")
	var seen string

	r := ResolverFunc(func(ctx context.Context, host string) (netip.Addr, error) {
		seen = host
		return netip.Addr{}, wantErr
	})

	if _, err := r.Resolve(context.Background(), "x.test"); !errors.Is(err, wantErr) {
		t.Errorf("Resolve() error = %v, want %v", err, wantErr)
	}
	if seen != "x.test" {
		t.Errorf("host = %q, want x.test", seen)
	}
}
