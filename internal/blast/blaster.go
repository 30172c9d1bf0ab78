package blast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/postalsys/udpblast/internal/logging"
	"github.com/postalsys/udpblast/internal/recovery"
)

// Stats is a point-in-time snapshot of a Blaster.
type Stats struct {
	State       State
	Destination Destination
	LocalAddr   string
	Multicast   bool
	Datagrams   uint64
	Bytes       uint64
	SendErrors  uint64
	Buffered    int
}

type writeReq struct {
	data []byte
	ack  chan error
}

type setupResult struct {
	sock   Socket
	addr   netip.Addr
	family Family
	mcast  bool
	err    error
}

// Blaster packs a byte stream into fixed-size UDP datagrams.
// Create one with New or NewPort.
type Blaster struct {
	dst    Destination
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wakeCh   chan struct{}
	setupCh  chan setupResult
	done     chan struct{}
	doneOnce sync.Once

	// Shared with producers
	mu          sync.Mutex
	queue       []*writeReq
	queuedBytes int
	ending      bool
	inHook      bool
	state       State
	err         error
	stats       Stats

	// Owned by the run loop
	acc        accumulator
	sock       Socket
	raddr      *net.UDPAddr
	pending    []*writeReq
	endPending bool
	endHandled bool
}

// New creates a Blaster for dst. No I/O happens until the first Write.
// An empty host fails immediately with ErrInvalidHost.
//
// Each Blaster runs a goroutine (and, while resolving, a second one) that
// exits only once it reaches Closed or Errored. Callers must call Close when
// done with it, including after abandoning a stream midway; a Blaster that
// is dropped without Close leaks those goroutines.
func New(dst Destination, opts Options) (*Blaster, error) {
	if err := dst.validate(); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	b := &Blaster{
		dst:  Destination{Host: dst.Host, Port: dst.Port},
		opts: opts,
		logger: opts.Logger.With(
			slog.String(logging.KeyComponent, "blast"),
			slog.String(logging.KeyDestination, dst.String())),
		ctx:     ctx,
		cancel:  cancel,
		wakeCh:  make(chan struct{}, 1),
		setupCh: make(chan setupResult),
		done:    make(chan struct{}),
		state:   StateUnresolved,
	}
	b.stats.Destination = b.dst

	opts.Metrics.RecordSessionOpen()

	go b.run()

	return b, nil
}

// NewPort creates a Blaster sending to port on DefaultHost.
func NewPort(port int, opts Options) (*Blaster, error) {
	return New(PortDestination(port), opts)
}

// Write queues p for transmission. It returns as soon as p is accepted while
// the bytes awaiting acknowledgment stay under the buffer watermark, and
// blocks until p is acknowledged otherwise.
func (b *Blaster) Write(p []byte) (int, error) {
	return b.WriteContext(context.Background(), p)
}

// WriteContext is Write with a context bounding the blocking wait. A chunk
// that was already queued when ctx ends is still sent.
func (b *Blaster) WriteContext(ctx context.Context, p []byte) (int, error) {
	b.mu.Lock()
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		return 0, err
	}
	if b.ending {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	if len(p) == 0 {
		b.mu.Unlock()
		return 0, nil
	}

	req := &writeReq{data: bytes.Clone(p), ack: make(chan error, 1)}
	b.queue = append(b.queue, req)
	b.queuedBytes += len(req.data)
	over := b.queuedBytes > b.opts.BufferWatermark
	b.mu.Unlock()

	b.wake()

	if !over {
		return len(p), nil
	}

	select {
	case err := <-req.ack:
		if err != nil {
			return 0, err
		}
		return len(p), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close signals end of input, flushes the remainder as a final datagram and
// releases the socket. It returns the terminal error, if any. Safe to call
// more than once.
//
// Close may be called from OnClose, OnError or OnSendError. Once the Blaster
// is terminal it returns immediately. While a hook is running it only marks
// end of input and returns nil; the flush follows when the hook returns and
// Done reports its completion.
func (b *Blaster) Close() error {
	return b.CloseContext(context.Background())
}

// CloseContext is Close with a context bounding the wait for the flush.
func (b *Blaster) CloseContext(ctx context.Context) error {
	b.mu.Lock()
	if b.state.Terminal() {
		err := b.err
		b.mu.Unlock()
		return err
	}
	b.ending = true
	inHook := b.inHook
	b.mu.Unlock()

	b.wake()

	// The run loop is blocked in the hook that called us.
	if inHook {
		return nil
	}

	select {
	case <-b.done:
		return b.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the Blaster reaches Closed or Errored.
func (b *Blaster) Done() <-chan struct{} {
	return b.done
}

// Err returns the terminal error, or nil.
func (b *Blaster) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// State returns the current lifecycle state.
func (b *Blaster) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Destination returns the destination, including the resolved address once known.
func (b *Blaster) Destination() Destination {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Destination
}

// Stats returns a snapshot of counters and state.
func (b *Blaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	return s
}

func (b *Blaster) wake() {
	select {
	case b.wakeCh <- struct{}{}:
	default:
	}
}

// run is the only goroutine that touches the accumulator and the socket.
func (b *Blaster) run() {
	defer recovery.RecoverWithCallback(b.logger, "blast.run", func(r interface{}) {
		b.fail(fmt.Errorf("blast: run loop panic: %v", r))
	})

	for {
		select {
		case <-b.wakeCh:
			b.drain()
		case res := <-b.setupCh:
			b.handleSetup(res)
		}

		if b.State().Terminal() {
			return
		}
	}
}

// drain moves queued writes into the state machine, then handles
// end-of-input once every earlier write was seen.
func (b *Blaster) drain() {
	for {
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		ending := b.ending
		b.mu.Unlock()

		if len(batch) == 0 {
			if ending && !b.endHandled {
				b.endHandled = true
				b.end()
			}
			return
		}

		for _, req := range batch {
			b.submit(req)
		}
	}
}

func (b *Blaster) submit(req *writeReq) {
	switch b.State() {
	case StateUnresolved:
		b.pending = append(b.pending, req)
		b.setState(StateBinding)
		go b.setup()
	case StateBinding:
		b.pending = append(b.pending, req)
	case StateReady:
		b.ack(req, b.packetize(req.data, false))
	case StateErrored:
		b.ack(req, b.Err())
	default:
		b.ack(req, ErrClosed)
	}
}

func (b *Blaster) ack(req *writeReq, err error) {
	b.mu.Lock()
	b.queuedBytes -= len(req.data)
	b.mu.Unlock()

	req.ack <- err
}

func (b *Blaster) end() {
	switch b.State() {
	case StateUnresolved:
		b.logger.Debug("end of input before any write, skipping socket setup")
		b.finishClosed()
	case StateBinding:
		b.endPending = true
	case StateReady:
		b.setState(StateDraining)
		if err := b.packetize(nil, true); err != nil {
			return
		}
		if err := b.sock.Close(); err != nil {
			b.logger.Warn("socket close failed", logging.KeyError, err)
		}
		b.sock = nil
		b.finishClosed()
	}
}

// setup resolves and binds off the run loop and hands the result back.
// A panicking Resolver or Binder is reported as a setup error.
func (b *Blaster) setup() {
	res := b.safeResolveAndBind()

	select {
	case b.setupCh <- res:
	case <-b.done:
		if res.sock != nil {
			res.sock.Close()
		}
	}
}

func (b *Blaster) safeResolveAndBind() (res setupResult) {
	defer recovery.RecoverWithCallback(b.logger, "blast.setup", func(r interface{}) {
		res = setupResult{err: fmt.Errorf("blast: setup panic: %v", r)}
	})
	return b.resolveAndBind(b.ctx)
}

func (b *Blaster) resolveAndBind(ctx context.Context) setupResult {
	host := b.dst.Host

	start := time.Now()
	addr, err := b.opts.Resolver.Resolve(ctx, host)
	b.opts.Metrics.RecordResolve(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return setupResult{err: fmt.Errorf("%w: %s: %w", ErrResolve, host, err)}
	}

	family := FamilyOf(addr)
	if family == FamilyUnknown {
		return setupResult{err: fmt.Errorf("%w: %v", ErrUnsupportedFamily, addr)}
	}
	addr = addr.Unmap()
	mcast := IsMulticast(addr)

	sock, err := b.opts.Binder.Bind(ctx, family)
	if err != nil {
		return setupResult{err: fmt.Errorf("%w: %w", ErrBind, err)}
	}

	if err := b.configure(sock, mcast); err != nil {
		sock.Close()
		return setupResult{err: fmt.Errorf("%w: %w", ErrBind, err)}
	}

	return setupResult{sock: sock, addr: addr, family: family, mcast: mcast}
}

// configure enables broadcast for non-multicast destinations and applies
// the TTL that matches the destination kind.
func (b *Blaster) configure(sock Socket, mcast bool) error {
	if !mcast {
		if err := sock.SetBroadcast(true); err != nil {
			return fmt.Errorf("enable broadcast: %w", err)
		}
	}

	if b.opts.TTL == 0 {
		return nil
	}

	if mcast {
		if err := sock.SetMulticastTTL(b.opts.TTL); err != nil {
			return fmt.Errorf("set multicast ttl: %w", err)
		}
		return nil
	}

	if err := sock.SetTTL(b.opts.TTL); err != nil {
		return fmt.Errorf("set ttl: %w", err)
	}
	return nil
}

func (b *Blaster) handleSetup(res setupResult) {
	if res.err != nil {
		b.fail(res.err)
		return
	}

	b.sock = res.sock
	b.raddr = net.UDPAddrFromAddrPort(netip.AddrPortFrom(res.addr, uint16(b.dst.Port)))

	var local string
	if la := res.sock.LocalAddr(); la != nil {
		local = la.String()
	}

	b.mu.Lock()
	b.stats.Destination.ResolvedAddress = res.addr
	b.stats.LocalAddr = local
	b.stats.Multicast = res.mcast
	b.mu.Unlock()

	b.setState(StateReady)
	b.logger.Info("socket ready",
		logging.KeyAddress, res.addr.String(),
		logging.KeyFamily, res.family.String(),
		logging.KeyMulticast, res.mcast,
		logging.KeyLocalAddr, local)

	pending := b.pending
	b.pending = nil
	for _, req := range pending {
		if b.State() != StateReady {
			b.ack(req, b.Err())
			continue
		}
		b.ack(req, b.packetize(req.data, false))
	}

	if b.endPending {
		b.endPending = false
		b.end()
	}
}

// packetize appends chunk and ships every complete packet. With flush set the
// remainder goes out as one final short datagram.
func (b *Blaster) packetize(chunk []byte, flush bool) error {
	if chunk != nil {
		b.acc.Append(chunk)
	}

	size := b.opts.PacketSize
	for b.acc.Len() >= size {
		if err := b.transmit(b.acc.Slice(size), false); err != nil {
			return err
		}
		b.acc.Consume(size)
	}

	if flush && b.acc.Len() > 0 {
		n := b.acc.Len()
		if err := b.transmit(b.acc.Slice(n), true); err != nil {
			return err
		}
		b.acc.Consume(n)
	}

	b.mu.Lock()
	b.stats.Buffered = b.acc.Len()
	b.mu.Unlock()

	return nil
}

// transmit sends exactly one datagram. Failures are reported and skipped
// unless StrictSend is set.
func (b *Blaster) transmit(p []byte, final bool) error {
	_, err := b.sock.WriteTo(p, b.raddr)
	if err != nil {
		b.mu.Lock()
		b.stats.SendErrors++
		b.mu.Unlock()

		b.opts.Metrics.RecordSendError()
		b.logger.Warn("datagram send failed",
			logging.KeyBytes, len(p),
			logging.KeyError, err)
		if b.opts.OnSendError != nil {
			size := len(p)
			b.callHook("OnSendError", func() { b.opts.OnSendError(err, size) })
		}

		if b.opts.StrictSend {
			err = fmt.Errorf("%w: %w", ErrSend, err)
			b.fail(err)
			return err
		}
		return nil
	}

	b.mu.Lock()
	b.stats.Datagrams++
	b.stats.Bytes += uint64(len(p))
	b.mu.Unlock()

	b.opts.Metrics.RecordDatagram(len(p), final && len(p) < b.opts.PacketSize)
	return nil
}

func (b *Blaster) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()

	b.logger.Debug("state transition",
		slog.String("from", prev.String()),
		slog.String(logging.KeyState, s.String()))
}

// fail moves to Errored, fails every waiting write and releases the socket.
// OnClose is not fired on this path.
func (b *Blaster) fail(err error) {
	b.mu.Lock()
	if b.state.Terminal() {
		b.mu.Unlock()
		return
	}
	prev := b.state
	b.state = StateErrored
	b.err = err
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	b.logger.Error("blaster failed",
		slog.String("from", prev.String()),
		logging.KeyError, err)
	b.opts.Metrics.RecordSessionError(errorKind(err))

	waiting := append(b.pending, queued...)
	b.pending = nil
	for _, req := range waiting {
		b.ack(req, err)
	}

	if b.sock != nil {
		b.sock.Close()
		b.sock = nil
	}

	if b.opts.OnError != nil {
		b.callHook("OnError", func() { b.opts.OnError(err) })
	}
	b.finish()
}

func (b *Blaster) finishClosed() {
	b.setState(StateClosed)

	stats := b.Stats()
	b.logger.Info("blaster closed",
		logging.KeyCount, stats.Datagrams,
		logging.KeyBytes, stats.Bytes)

	if b.opts.OnClose != nil {
		b.callHook("OnClose", b.opts.OnClose)
	}
	b.finish()
}

// callHook runs a user callback on the run loop. A panicking hook is logged
// and otherwise ignored so the lifecycle still completes.
func (b *Blaster) callHook(name string, fn func()) {
	b.mu.Lock()
	b.inHook = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inHook = false
		b.mu.Unlock()
	}()
	defer recovery.RecoverWithLog(b.logger, "blast."+name)

	fn()
}

func (b *Blaster) finish() {
	b.doneOnce.Do(func() {
		b.cancel()
		b.opts.Metrics.RecordSessionClose()
		close(b.done)
	})
}

// errorKind labels terminal errors for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrResolve):
		return "resolve"
	case errors.Is(err, ErrUnsupportedFamily):
		return "family"
	case errors.Is(err, ErrBind):
		return "bind"
	case errors.Is(err, ErrSend):
		return "send"
	default:
		return "internal"
	}
}
