package blast

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Family is the address family of a resolved destination.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Network returns the Go network name for a socket of this family.
func (f Family) Network() string {
	switch f {
	case FamilyIPv4:
		return "udp4"
	case FamilyIPv6:
		return "udp6"
	default:
		return ""
	}
}

// FamilyOf classifies addr. IPv4-mapped IPv6 addresses count as IPv4.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case addr.Unmap().Is4():
		return FamilyIPv4
	case addr.Is6():
		return FamilyIPv6
	default:
		return FamilyUnknown
	}
}

// IsMulticast reports whether addr is in 224.0.0.0/4 or ff00::/8.
func IsMulticast(addr netip.Addr) bool {
	return addr.Unmap().IsMulticast()
}

// Socket is a bound UDP socket as seen by a Blaster.
type Socket interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
	SetBroadcast(on bool) error
	SetTTL(ttl int) error
	SetMulticastTTL(ttl int) error
	LocalAddr() net.Addr
	Close() error
}

// Binder creates a UDP socket of the given family bound to an ephemeral port.
type Binder interface {
	Bind(ctx context.Context, family Family) (Socket, error)
}

// UDPBinder is the default Binder backed by real OS sockets.
type UDPBinder struct {
	// LocalAddress optionally pins the local IP. Empty binds the wildcard address.
	LocalAddress string
}

// Bind opens and binds a UDP socket.
func (b UDPBinder) Bind(ctx context.Context, family Family) (Socket, error) {
	network := family.Network()
	if network == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFamily, family)
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, network, net.JoinHostPort(b.LocalAddress, "0"))
	if err != nil {
		return nil, err
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}

	s := &udpSocket{conn: conn, family: family}
	if family == FamilyIPv4 {
		s.p4 = ipv4.NewPacketConn(conn)
	} else {
		s.p6 = ipv6.NewPacketConn(conn)
	}
	return s, nil
}

// udpSocket applies per-family options through x/net.
type udpSocket struct {
	conn   *net.UDPConn
	family Family
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
}

func (s *udpSocket) WriteTo(p []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(p, addr)
}

func (s *udpSocket) SetBroadcast(on bool) error {
	return setBroadcast(s.conn, on)
}

// SetTTL sets the unicast TTL (IPv4) or hop limit (IPv6).
func (s *udpSocket) SetTTL(ttl int) error {
	if s.p4 != nil {
		return s.p4.SetTTL(ttl)
	}
	return s.p6.SetHopLimit(ttl)
}

// SetMulticastTTL sets the multicast TTL (IPv4) or multicast hop limit (IPv6).
func (s *udpSocket) SetMulticastTTL(ttl int) error {
	if s.p4 != nil {
		return s.p4.SetMulticastTTL(ttl)
	}
	return s.p6.SetMulticastHopLimit(ttl)
}

func (s *udpSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *udpSocket) Close() error {
	return s.conn.Close()
}
