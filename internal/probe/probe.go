// Package probe owns the short-lived UDP and TCP endpoints of a run and times every
// bind, send and connect made through them.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultOpTimeout = time.Second

// ErrSocketSetup matches every bind or listen failure.
var ErrSocketSetup = errors.New("socket setup failed")

// SetupError reports a bind or listen failure. It is fatal for a run.
type SetupError struct {
	Op   string
	Addr string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Is(target error) bool { return target == ErrSocketSetup }

// Outcome is the timed result of one send or connect attempt. Failed attempts
// against unreachable peers are data, not errors.
type Outcome struct {
	Elapsed  time.Duration
	Bytes    int
	Success  bool
	TimedOut bool
	Err      string
}

// ElapsedMs returns the elapsed time in milliseconds with microsecond resolution.
func (o Outcome) ElapsedMs() float64 {
	return float64(o.Elapsed.Microseconds()) / 1000.0
}

// Probe performs bounded socket operations and keeps connection statistics.
type Probe struct {
	opTimeout time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	stats Stats
	total time.Duration
}

type Option func(*Probe)

// WithOpTimeout bounds every send and connect.
func WithOpTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.opTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Probe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(opts ...Option) *Probe {
	p := &Probe{
		opTimeout: defaultOpTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpTimeout returns the bound applied to each socket operation.
func (p *Probe) OpTimeout() time.Duration {
	return p.opTimeout
}

// BindUDP opens a UDP endpoint on addr. The address family follows the literal host.
func (p *Probe) BindUDP(ctx context.Context, addr string) (*UDPEndpoint, error) {
	network := networkFor("udp", addr)
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return nil, &SetupError{Op: "bind " + network, Addr: addr, Err: err}
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, &SetupError{Op: "bind " + network, Addr: addr, Err: fmt.Errorf("unexpected packet conn %T", pc)}
	}
	p.logger.Debug("udp endpoint bound", zap.String("local", conn.LocalAddr().String()))
	return &UDPEndpoint{conn: conn}, nil
}

// BindTCPListener opens a TCP listener on addr.
func (p *Probe) BindTCPListener(ctx context.Context, addr string) (*TCPListener, error) {
	network := networkFor("tcp", addr)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, &SetupError{Op: "listen " + network, Addr: addr, Err: err}
	}
	p.logger.Debug("tcp listener bound", zap.String("local", ln.Addr().String()))
	return newTCPListener(ln, p.logger), nil
}

// SendUDP writes payload to dst from ep. It never returns an error: write failures,
// unresolvable destinations and deadline hits come back as Success=false with the
// elapsed time up to the failure.
func (p *Probe) SendUDP(ctx context.Context, ep *UDPEndpoint, payload []byte, dst string) Outcome {
	start := time.Now()
	fail := func(err error) Outcome {
		out := Outcome{Elapsed: time.Since(start), Err: err.Error(), TimedOut: isTimeout(err)}
		p.logger.Debug("udp send failed", zap.String("dst", dst), zap.Error(err))
		return out
	}
	if ep == nil || ep.conn == nil {
		return fail(net.ErrClosed)
	}

	raddr, err := p.resolveUDP(ctx, dst)
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := ep.conn.SetWriteDeadline(p.deadline(ctx, start)); err != nil {
		return fail(err)
	}
	n, err := ep.conn.WriteToUDPAddrPort(payload, raddr)
	if err != nil {
		return fail(err)
	}
	return Outcome{Elapsed: time.Since(start), Bytes: n, Success: true}
}

// ConnectTCP dials addr, records the handshake and closes the connection.
func (p *Probe) ConnectTCP(ctx context.Context, addr string) Outcome {
	conn, out := p.DialTCP(ctx, addr)
	if conn != nil {
		_ = conn.Close()
	}
	return out
}

// DialTCP dials addr under the op timeout and hands the open connection to the
// caller, who must close it. conn is nil when the attempt failed.
func (p *Probe) DialTCP(ctx context.Context, addr string) (net.Conn, Outcome) {
	dialer := net.Dialer{Timeout: p.opTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, networkFor("tcp", addr), addr)
	elapsed := time.Since(start)
	if err != nil {
		out := Outcome{Elapsed: elapsed, Err: err.Error(), TimedOut: isTimeout(err)}
		p.record(out)
		p.logger.Debug("tcp connect failed", zap.String("addr", addr), zap.Error(err))
		return nil, out
	}
	out := Outcome{Elapsed: elapsed, Success: true}
	p.record(out)
	return conn, out
}

func (p *Probe) deadline(ctx context.Context, start time.Time) time.Time {
	deadline := start.Add(p.opTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func (p *Probe) resolveUDP(ctx context.Context, dst string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(dst); err == nil {
		return ap, nil
	}
	host, port, err := net.SplitHostPort(dst)
	if err != nil {
		return netip.AddrPort{}, err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(lookupCtx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("no addresses for %q", host)
	}
	portNum, err := net.LookupPort("udp", port)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addrs[0].Unmap(), uint16(portNum)), nil
}

func networkFor(base, addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return base
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return base
	}
	if ip.Is4() {
		return base + "4"
	}
	return base + "6"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
