package blast

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// countingResolver returns a fixed answer and counts calls. When gate is
// non-nil each call waits for it to be closed.
type countingResolver struct {
	addr  netip.Addr
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (r *countingResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return netip.Addr{}, ctx.Err()
		}
	}
	return r.addr, r.err
}

// stubSocket records everything a Blaster does to its socket.
type stubSocket struct {
	mu           sync.Mutex
	datagrams    [][]byte
	dests        []string
	broadcast    bool
	ttl          int
	multicastTTL int
	closed       int

	// failOn makes the n-th WriteTo (1-based) fail.
	failOn      int
	writes      int
	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *stubSocket) WriteTo(p []byte, addr net.Addr) (int, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.failOn > 0 && s.writes == s.failOn {
		return 0, errors.New("stub: network unreachable")
	}
	s.datagrams = append(s.datagrams, append([]byte(nil), p...))
	s.dests = append(s.dests, addr.String())
	return len(p), nil
}

func (s *stubSocket) SetBroadcast(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = on
	return nil
}

func (s *stubSocket) SetTTL(ttl int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
	return nil
}

func (s *stubSocket) SetMulticastTTL(ttl int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multicastTTL = ttl
	return nil
}

func (s *stubSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: 40000}
}

func (s *stubSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubSocket) payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.datagrams))
	for i, d := range s.datagrams {
		out[i] = string(d)
	}
	return out
}

// stubBinder hands out one stubSocket, or fails with err.
type stubBinder struct {
	sock     *stubSocket
	err      error
	calls    atomic.Int32
	families []Family
	mu       sync.Mutex
}

func (b *stubBinder) Bind(ctx context.Context, family Family) (Socket, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.families = append(b.families, family)
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.sock, nil
}

func newStubs(addr string) (*countingResolver, *stubBinder, *stubSocket) {
	sock := &stubSocket{}
	return &countingResolver{addr: netip.MustParseAddr(addr)}, &stubBinder{sock: sock}, sock
}
