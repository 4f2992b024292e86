// Package metrics records run results on a private Prometheus registry and
// writes them in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

const namespace = "stackprobe"

// Recorder holds the gauges and counters of one process.
type Recorder struct {
	registry *prometheus.Registry

	layerScore    *prometheus.GaugeVec
	layerLatency  *prometheus.GaugeVec
	layerOverhead *prometheus.GaugeVec
	layerDuration *prometheus.GaugeVec
	udpThroughput prometheus.Gauge
	tcpThroughput prometheus.Gauge
	roundTrip     prometheus.Gauge
	packetLoss    prometheus.Gauge
	concurrent    prometheus.Gauge
	overall       prometheus.Gauge
	totalLatency  prometheus.Gauge
	totalOverhead prometheus.Gauge
	runDuration   prometheus.Gauge
	lastRun       prometheus.Gauge
	runs          *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		layerScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layer_efficiency_score",
			Help:      "Efficiency score of each probed layer in [0,1]",
		}, []string{"layer"}),
		layerLatency: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layer_latency_milliseconds",
			Help:      "Latency contribution of each probed layer",
		}, []string{"layer"}),
		layerOverhead: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layer_overhead_bytes",
			Help:      "Byte overhead attributed to each probed layer",
		}, []string{"layer"}),
		layerDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layer_step_duration_seconds",
			Help:      "Wall-clock time spent in each layer step",
		}, []string{"layer"}),
		udpThroughput: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "udp_throughput_mbps",
			Help:      "Sampled UDP throughput",
		}),
		tcpThroughput: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tcp_throughput_mbps",
			Help:      "Estimated TCP throughput",
		}),
		roundTrip: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_trip_time_milliseconds",
			Help:      "Sampled round-trip time",
		}),
		packetLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "packet_loss_ratio",
			Help:      "Packet loss rate reported for the run",
		}),
		concurrent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrent_connections",
			Help:      "Simultaneous connections accepted by the local listener",
		}),
		overall: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overall_efficiency_score",
			Help:      "Mean of the per-layer efficiency scores",
		}),
		totalLatency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_latency_milliseconds",
			Help:      "Sum of the per-layer latency contributions",
		}),
		totalOverhead: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_overhead_bytes",
			Help:      "Sum of the per-layer byte overheads",
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome and failing layer",
		}, []string{"outcome", "layer"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records how long a layer step ran, whether or not it succeeded.
func (r *Recorder) ObserveStep(layer types.Layer, elapsed time.Duration) {
	r.layerDuration.WithLabelValues(layer.String()).Set(elapsed.Seconds())
}

// ObserveReport records a completed run.
func (r *Recorder) ObserveReport(report *types.AggregateReport, elapsed time.Duration) {
	for _, l := range report.Layers() {
		name := l.Layer.String()
		r.layerScore.WithLabelValues(name).Set(l.Score)
		r.layerLatency.WithLabelValues(name).Set(l.LatencyMs)
		r.layerOverhead.WithLabelValues(name).Set(float64(l.OverheadBytes))
	}

	perf := report.Transport.NetworkPerformance
	r.udpThroughput.Set(perf.UDPThroughputMbps)
	r.tcpThroughput.Set(perf.TCPThroughputMbps)
	r.roundTrip.Set(perf.RoundTripTimeMs)
	r.packetLoss.Set(perf.PacketLossRate)
	r.concurrent.Set(float64(perf.ConcurrentConnections))

	r.overall.Set(report.Summary.OverallEfficiency)
	r.totalLatency.Set(report.Summary.TotalLatencyMs)
	r.totalOverhead.Set(float64(report.Summary.TotalOverheadBytes))
	r.finish("done", "", elapsed)
}

// ObserveFailure records a run that stopped at layer.
func (r *Recorder) ObserveFailure(layer types.Layer, elapsed time.Duration) {
	r.finish("failed", layer.String(), elapsed)
}

func (r *Recorder) finish(outcome, layer string, elapsed time.Duration) {
	r.runs.WithLabelValues(outcome, layer).Inc()
	r.runDuration.Set(elapsed.Seconds())
	r.lastRun.SetToCurrentTime()
}

// WriteTextfile writes every registered metric to path. The file is replaced
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}
