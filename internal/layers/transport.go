package layers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pingsantohq/stackprobe/internal/discovery"
	"github.com/pingsantohq/stackprobe/internal/sampler"
	"github.com/pingsantohq/stackprobe/internal/scoring"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

const (
	udpHeaderBytes = 8
	tcpHeaderBytes = 20
	tcpOptionBytes = 32
)

// Transport opens the run's UDP and TCP endpoints, sends a discovery query,
// connects to its own listener and samples the network.
type Transport struct{}

func (*Transport) Layer() types.Layer { return types.LayerTransport }

func (*Transport) Analyze(ctx context.Context, rc *RunContext) error {
	cfg := rc.Config.Probe
	log := rc.Logger.With(zap.String("layer", types.LayerTransport.String()))

	query, err := discovery.Encode(cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("encode discovery query: %w", err)
	}

	udp, err := rc.Probe.BindUDP(ctx, cfg.UDPBind)
	if err != nil {
		return err
	}
	tcp, err := rc.Probe.BindTCPListener(ctx, cfg.TCPBind)
	if err != nil {
		_ = udp.Close()
		return err
	}
	rc.Attach(udp, tcp)
	listenAddr := tcp.Addr().String()

	disc := rc.Probe.SendUDP(ctx, udp, query, cfg.DiscoveryAddr)
	log.Debug("discovery query sent",
		zap.String("dst", cfg.DiscoveryAddr),
		zap.Bool("success", disc.Success),
		zap.Float64("elapsed_ms", disc.ElapsedMs()),
		zap.String("error", disc.Err),
	)

	conn := rc.Probe.ConnectTCP(ctx, listenAddr)
	log.Debug("tcp connect",
		zap.String("addr", listenAddr),
		zap.Bool("success", conn.Success),
		zap.Float64("elapsed_ms", conn.ElapsedMs()),
	)

	perf := sampler.New(rc.Probe, samplerSettings(rc), sampler.WithLogger(log)).Sample(ctx, udp, listenAddr)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transport sampling: %w", err)
	}

	stats := rc.Probe.Stats()
	udpOverhead := udpHeaderBytes + len(query)
	tcpOverhead := tcpHeaderBytes + tcpOptionBytes

	succeeded := 0
	if disc.Success {
		succeeded++
	}
	if conn.Success {
		succeeded++
	}
	score := scoring.Transport(scoring.TransportInputs{
		UDPThroughputMbps: perf.UDPThroughputMbps,
		TCPThroughputMbps: perf.TCPThroughputMbps,
		RoundTripTimeMs:   perf.RoundTripTimeMs,
		PacketLossRate:    perf.PacketLossRate,
		SuccessRate:       float64(succeeded) / 2,
	})

	m := &types.TransportMetrics{
		Protocol:               "UDP_TCP_Dual_Stack",
		UDPDiscoveryTimeMs:     disc.ElapsedMs(),
		TCPConnectionTimeMs:    conn.ElapsedMs(),
		UDPDiscoverySuccess:    disc.Success,
		TCPConnectionSuccess:   conn.Success,
		UDPOverheadBytes:       udpOverhead,
		TCPOverheadBytes:       tcpOverhead,
		TotalTransportOverhead: udpOverhead + tcpOverhead,
		MultiTransportSupport:  true,
		EfficiencyScore:        score,
		NetworkPerformance:     perf,
		ConnectionStatistics: types.ConnectionStatistics{
			SuccessfulConnections:  stats.Successful,
			FailedConnections:      stats.Failed,
			TimeoutConnections:     stats.TimedOut,
			AverageHandshakeTimeMs: ms(stats.AverageHandshake),
		},
	}

	l := types.LayerTransport
	rc.store(func(r *Results) { r.Transport = m }, map[string]types.Provenance{
		path(l, "udp_discovery_time_ms"):                           types.ProvenanceMeasured,
		path(l, "tcp_connection_time_ms"):                          types.ProvenanceMeasured,
		path(l, "udp_overhead_bytes"):                              types.ProvenanceMeasured,
		path(l, "tcp_overhead_bytes"):                              types.ProvenanceConstant,
		path(l, "connection_statistics"):                           types.ProvenanceMeasured,
		path(l, "real_network_performance.udp_throughput_mbps"):    types.ProvenanceMeasured,
		path(l, "real_network_performance.tcp_throughput_mbps"):    types.ProvenanceEstimated,
		path(l, "real_network_performance.round_trip_time_ms"):     types.ProvenanceMeasured,
		path(l, "real_network_performance.packet_loss_rate"):       types.ProvenanceConstant,
		path(l, "real_network_performance.concurrent_connections"): types.ProvenanceEstimated,
		path(l, "efficiency_score"):                                types.ProvenanceEstimated,
	})

	log.Info("transport analyzed",
		zap.Bool("udp_discovery_success", disc.Success),
		zap.Bool("tcp_connection_success", conn.Success),
		zap.Float64("udp_throughput_mbps", perf.UDPThroughputMbps),
		zap.Float64("score", score),
	)
	return nil
}

func samplerSettings(rc *RunContext) sampler.Settings {
	cfg := rc.Config.Probe
	return sampler.Settings{
		ThroughputTarget:    cfg.ThroughputTarget,
		RTTTarget:           cfg.RTTTarget,
		PayloadSize:         cfg.PayloadSize,
		Budget:              cfg.SampleBudget,
		MaxPacketsPerSecond: cfg.MaxPacketsPerSecond,
		CeilingMbps:         cfg.ThroughputCeilingMbps,
		TCPOverheadFactor:   cfg.TCPOverheadFactor,
		PacketLossRate:      cfg.PacketLossRate,
		MaxConcurrent:       cfg.MaxConcurrentConnections,
	}
}
