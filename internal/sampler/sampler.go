// Package sampler measures throughput, round-trip time and connection capacity
// over the endpoints opened by the transport layer.
package sampler

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pingsantohq/stackprobe/internal/probe"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

// Settings drive one sampling pass.
type Settings struct {
	ThroughputTarget    string
	RTTTarget           string
	PayloadSize         int
	Budget              time.Duration
	MaxPacketsPerSecond int
	CeilingMbps         float64
	TCPOverheadFactor   float64
	PacketLossRate      float64
	MaxConcurrent       int
}

func DefaultSettings() Settings {
	return Settings{
		ThroughputTarget:  "127.0.0.1:12345",
		RTTTarget:         "127.0.0.1:12346",
		PayloadSize:       1024,
		Budget:            100 * time.Millisecond,
		CeilingMbps:       100,
		TCPOverheadFactor: 0.95,
		PacketLossRate:    0.001,
		MaxConcurrent:     10,
	}
}

type Sampler struct {
	probe    *probe.Probe
	settings Settings
	logger   *zap.Logger
}

type Option func(*Sampler)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(p *probe.Probe, settings Settings, opts ...Option) *Sampler {
	s := &Sampler{probe: p, settings: settings, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample sends payloads from ep until the budget elapses or a send fails, then
// times one RTT send and counts simultaneous dials to listenAddr. All fields of
// the result are populated even when every send fails.
func (s *Sampler) Sample(ctx context.Context, ep *probe.UDPEndpoint, listenAddr string) types.NetworkPerformance {
	var perf types.NetworkPerformance

	packets, sent, elapsed := s.throughput(ctx, ep)
	perf.PacketsSent = packets
	perf.BytesSent = sent
	perf.UDPThroughputMbps = Mbps(sent, elapsed, s.settings.CeilingMbps)
	perf.TCPThroughputMbps = perf.UDPThroughputMbps * s.settings.TCPOverheadFactor

	rtt := s.probe.SendUDP(ctx, ep, []byte("ping"), s.settings.RTTTarget)
	perf.RoundTripTimeMs = rtt.ElapsedMs()
	perf.PacketLossRate = s.settings.PacketLossRate

	if listenAddr != "" {
		perf.ConcurrentConnections = s.Capacity(ctx, listenAddr)
	}

	s.logger.Debug("network sampled",
		zap.Int("packets", packets),
		zap.Int64("bytes", sent),
		zap.Duration("elapsed", elapsed),
		zap.Float64("udp_mbps", perf.UDPThroughputMbps),
		zap.Float64("rtt_ms", perf.RoundTripTimeMs),
		zap.Int("concurrent", perf.ConcurrentConnections),
	)
	return perf
}

func (s *Sampler) throughput(ctx context.Context, ep *probe.UDPEndpoint) (int, int64, time.Duration) {
	size := s.settings.PayloadSize
	if size <= 0 {
		size = 1024
	}
	payload := make([]byte, size)

	start := time.Now()
	budgetCtx, cancel := context.WithDeadline(ctx, start.Add(s.settings.Budget))
	defer cancel()

	var limiter *rate.Limiter
	if pps := s.settings.MaxPacketsPerSecond; pps > 0 {
		limiter = rate.NewLimiter(rate.Limit(pps), 1)
	}

	var (
		packets int
		sent    int64
	)
	for time.Since(start) < s.settings.Budget {
		if limiter != nil {
			if err := limiter.Wait(budgetCtx); err != nil {
				break
			}
		}
		out := s.probe.SendUDP(budgetCtx, ep, payload, s.settings.ThroughputTarget)
		if !out.Success {
			break
		}
		packets++
		sent += int64(out.Bytes)
	}
	return packets, sent, time.Since(start)
}

// Capacity dials addr up to MaxConcurrent times at once and returns how many
// connections were open together. Connections are closed before it returns.
func (s *Sampler) Capacity(ctx context.Context, addr string) int {
	n := s.settings.MaxConcurrent
	if n <= 0 {
		return 0
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	// Failed dials are not errors, so no goroutine cancels its siblings.
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			conn, out := s.probe.DialTCP(ctx, addr)
			if !out.Success {
				return nil
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

// Mbps converts bytes over elapsed into megabits per second, capped at ceiling.
func Mbps(bytes int64, elapsed time.Duration, ceiling float64) float64 {
	if bytes <= 0 || elapsed <= 0 {
		return 0
	}
	mbps := float64(bytes) * 8 / elapsed.Seconds() / 1e6
	if ceiling > 0 && mbps > ceiling {
		return ceiling
	}
	return mbps
}
