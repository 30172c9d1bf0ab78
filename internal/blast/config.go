package blast

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/postalsys/udpblast/internal/logging"
	"github.com/postalsys/udpblast/internal/metrics"
)

const (
	// DefaultHost is used when a destination only names a port.
	DefaultHost = "localhost"

	// DefaultPort is used when no destination is given at all.
	DefaultPort = 1234

	// DefaultPacketSize is the datagram payload size used when PacketSize
	// is unset or not positive.
	DefaultPacketSize = 512

	// DefaultBufferWatermark is how many bytes may be queued by producers
	// before Write starts blocking.
	DefaultBufferWatermark = 16 * 1024
)

var (
	// ErrInvalidHost is returned at construction when the destination host is empty.
	ErrInvalidHost = errors.New("blast: host must be a non-empty string")

	// ErrInvalidPort is returned when a destination port cannot be used.
	ErrInvalidPort = errors.New("blast: invalid port")

	// ErrResolve wraps host resolution failures.
	ErrResolve = errors.New("blast: resolve failed")

	// ErrUnsupportedFamily is returned when the resolved address is neither IPv4 nor IPv6.
	ErrUnsupportedFamily = errors.New("blast: unsupported address family")

	// ErrBind wraps socket creation, bind and socket option failures.
	ErrBind = errors.New("blast: bind failed")

	// ErrSend wraps datagram send failures. Only terminal with StrictSend.
	ErrSend = errors.New("blast: send failed")

	// ErrClosed is returned by Write after Close has been called.
	ErrClosed = errors.New("blast: blaster is closed")
)

// Destination is where datagrams are sent.
type Destination struct {
	Host string
	Port int

	// ResolvedAddress is filled in once by the resolver and never changes.
	ResolvedAddress netip.Addr
}

// String returns host:port.
func (d Destination) String() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// validate checks the parts that can be rejected before any I/O.
func (d Destination) validate() error {
	if strings.TrimSpace(d.Host) == "" {
		return ErrInvalidHost
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, d.Port)
	}
	return nil
}

// PortDestination returns a destination on DefaultHost.
func PortDestination(port int) Destination {
	return Destination{Host: DefaultHost, Port: port}
}

// ParseDestination parses "port", "host:port" or "[v6]:port".
// An empty string yields DefaultHost:DefaultPort.
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PortDestination(DefaultPort), nil
	}

	if port, err := strconv.Atoi(s); err == nil {
		d := PortDestination(port)
		return d, d.validate()
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %q: %v", ErrInvalidPort, s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %q", ErrInvalidPort, portStr)
	}

	d := Destination{Host: host, Port: port}
	return d, d.validate()
}

// Options configures a Blaster. The zero value is usable; see DefaultOptions.
type Options struct {
	// PacketSize is the payload size of every datagram except the last.
	// Values <= 0 mean DefaultPacketSize.
	PacketSize int

	// TTL sets the unicast TTL, or the multicast TTL for multicast
	// destinations. 0 leaves the OS default.
	TTL int

	// BufferWatermark is how many written-but-unacknowledged bytes Write
	// tolerates before it blocks. Values <= 0 mean DefaultBufferWatermark.
	BufferWatermark int

	// StrictSend makes a failed datagram send terminal. By default send
	// failures are reported through OnSendError and otherwise ignored.
	StrictSend bool

	// Resolver resolves Destination.Host. Defaults to a DNSResolver with
	// DefaultDNSConfig.
	Resolver Resolver

	// Binder creates the UDP socket. Defaults to UDPBinder.
	Binder Binder

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Hooks run on the Blaster's goroutine and may call Close. A panicking
	// hook is logged and ignored.

	// OnClose fires once after the final flush and socket close.
	// It does not fire when the Blaster ends in error.
	OnClose func()

	// OnError fires once when the Blaster enters the Errored state.
	OnError func(err error)

	// OnSendError fires for every failed datagram send.
	OnSendError func(err error, size int)
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	return Options{
		PacketSize:      DefaultPacketSize,
		BufferWatermark: DefaultBufferWatermark,
	}
}

func (o Options) withDefaults() Options {
	if o.PacketSize <= 0 {
		o.PacketSize = DefaultPacketSize
	}
	if o.TTL < 0 {
		o.TTL = 0
	}
	if o.BufferWatermark <= 0 {
		o.BufferWatermark = DefaultBufferWatermark
	}
	if o.Resolver == nil {
		o.Resolver = NewDNSResolver(DefaultDNSConfig())
	}
	if o.Binder == nil {
		o.Binder = UDPBinder{}
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger()
	}
	return o
}
