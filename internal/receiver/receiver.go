// Package receiver listens for datagrams sent by a blaster. It exists for
// local verification of what went out on the wire.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/postalsys/udpblast/internal/logging"
	"github.com/postalsys/udpblast/internal/metrics"
	"github.com/postalsys/udpblast/internal/recovery"
)

// Datagram is one received payload and where it came from.
type Datagram struct {
	Source netip.AddrPort
	Data   []byte
	At     time.Time
}

// Handler is called for every received datagram. Data is only valid for the
// duration of the call.
type Handler func(Datagram)

// Receiver is a bound UDP listener.
type Receiver struct {
	cfg     Config
	conn    *net.UDPConn
	group   netip.Addr
	logger  *slog.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
}

// Listen binds cfg.Address. Metrics may be nil.
func Listen(ctx context.Context, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Receiver, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = DefaultConfig().MaxDatagramSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	ap, err := netip.ParseAddrPort(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", cfg.Address, err)
	}
	addr := ap.Addr().Unmap()

	network := "udp6"
	if addr.Is4() {
		network = "udp4"
	}

	bindAddr := cfg.Address
	if addr.IsMulticast() {
		bindAddr = net.JoinHostPort("", fmt.Sprint(ap.Port()))
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, network, bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Address, err)
	}
	conn := pc.(*net.UDPConn)

	r := &Receiver{
		cfg:     cfg,
		conn:    conn,
		logger:  logger.With(logging.KeyComponent, "receiver"),
		metrics: m,
	}

	if addr.IsMulticast() {
		if err := r.join(addr); err != nil {
			conn.Close()
			return nil, err
		}
		r.group = addr
	}

	r.logger.Info("listening",
		logging.KeyLocalAddr, conn.LocalAddr().String(),
		logging.KeyMulticast, r.group.IsValid())

	return r, nil
}

func (r *Receiver) join(group netip.Addr) error {
	var ifi *net.Interface
	if r.cfg.Interface != "" {
		var err error
		ifi, err = net.InterfaceByName(r.cfg.Interface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", r.cfg.Interface, err)
		}
	}

	ga := &net.UDPAddr{IP: group.AsSlice()}
	if group.Is4() {
		if err := ipv4.NewPacketConn(r.conn).JoinGroup(ifi, ga); err != nil {
			return fmt.Errorf("join group %s: %w", group, err)
		}
		return nil
	}
	if err := ipv6.NewPacketConn(r.conn).JoinGroup(ifi, ga); err != nil {
		return fmt.Errorf("join group %s: %w", group, err)
	}
	return nil
}

// Addr returns the bound local address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled or the receiver is closed.
// It returns nil on either.
func (r *Receiver) Serve(ctx context.Context, h Handler) error {
	defer recovery.RecoverWithLog(r.logger, "receiver.serve")

	buf := make([]byte, r.cfg.MaxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Set read deadline for responsiveness to cancellation
		r.conn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval))

		n, src, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		r.metrics.RecordReceived(n)
		r.logger.Debug("datagram received",
			logging.KeyRemoteAddr, src.String(),
			logging.KeyBytes, n)

		h(Datagram{
			Source: netip.AddrPortFrom(src.Addr().Unmap(), src.Port()),
			Data:   buf[:n],
			At:     time.Now(),
		})
	}
}

// Close releases the socket. Safe to call more than once.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
	})
	return err
}
