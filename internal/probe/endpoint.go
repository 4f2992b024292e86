package probe

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// UDPEndpoint is a bound UDP socket owned by one probe step.
type UDPEndpoint struct {
	conn      *net.UDPConn
	closeOnce sync.Once
	closeErr  error
}

func (e *UDPEndpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close releases the socket. It is safe to call more than once.
func (e *UDPEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}

// TCPListener is a bound TCP listener with an optional accept task.
type TCPListener struct {
	ln       net.Listener
	logger   *zap.Logger
	accepted atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func newTCPListener(ln net.Listener, logger *zap.Logger) *TCPListener {
	return &TCPListener{ln: ln, logger: logger}
}

func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accepted returns how many connections the accept task has taken.
func (l *TCPListener) Accepted() int64 {
	return l.accepted.Load()
}

// Serve accepts and immediately closes connections until the listener is closed
// or ctx is done. It closes the listener on return.
func (l *TCPListener) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()
	defer l.Close()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Debug("tcp accept stopped", zap.Error(err))
			}
			return
		}
		l.accepted.Add(1)
		_ = conn.Close()
	}
}

// Close releases the listener. It is safe to call more than once.
func (l *TCPListener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ln.Close()
	})
	return l.closeErr
}
