package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Provenance tags how a report field was obtained.
type Provenance string

const (
	// ProvenanceMeasured marks values timed or counted from real socket I/O.
	ProvenanceMeasured Provenance = "measured"
	// ProvenanceSynthetic marks timings of a configured simulated delay.
	ProvenanceSynthetic Provenance = "synthetic"
	// ProvenanceEstimated marks values derived from a measured value by a fixed rule.
	ProvenanceEstimated Provenance = "estimated"
	// ProvenanceConstant marks fixed placeholders and classifications.
	ProvenanceConstant Provenance = "constant"
)

// SummaryMetrics aggregates the four layer records.
type SummaryMetrics struct {
	TotalLatencyMs     float64 `json:"total_latency_ms" yaml:"total_latency_ms"`
	TotalOverheadBytes int     `json:"total_overhead_bytes" yaml:"total_overhead_bytes"`
	OverallEfficiency  float64 `json:"overall_efficiency" yaml:"overall_efficiency"`
}

// ResourceUsage is the one-shot result of the ambient resource sampler.
type ResourceUsage struct {
	Samples        int     `json:"samples" yaml:"samples"`
	PeakHeapBytes  uint64  `json:"peak_heap_bytes" yaml:"peak_heap_bytes"`
	PeakGoroutines int     `json:"peak_goroutines" yaml:"peak_goroutines"`
	CPUSeconds     float64 `json:"cpu_seconds" yaml:"cpu_seconds"`
}

// TestEnvironment describes where the run happened.
type TestEnvironment struct {
	OSPlatform     string `json:"os_platform" yaml:"os_platform"`
	GoVersion      string `json:"go_version" yaml:"go_version"`
	Implementation string `json:"implementation" yaml:"implementation"`
	Hostname       string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
}

// AggregateReport is the single artifact produced by a successful run.
type AggregateReport struct {
	ProtocolName          string                `json:"protocol_name" yaml:"protocol_name"`
	RunID                 string                `json:"run_id" yaml:"run_id"`
	AnalysisTimestamp     time.Time             `json:"analysis_timestamp" yaml:"analysis_timestamp"`
	AnalysisType          string                `json:"analysis_type" yaml:"analysis_type"`
	TotalAnalysisTimeMs   float64               `json:"total_analysis_time_ms" yaml:"total_analysis_time_ms"`
	Transport             TransportMetrics      `json:"osi_layer_4_transport" yaml:"osi_layer_4_transport"`
	Session               SessionMetrics        `json:"osi_layer_5_session" yaml:"osi_layer_5_session"`
	Presentation          PresentationMetrics   `json:"osi_layer_6_presentation" yaml:"osi_layer_6_presentation"`
	Application           ApplicationMetrics    `json:"osi_layer_7_application" yaml:"osi_layer_7_application"`
	Summary               SummaryMetrics        `json:"summary_metrics" yaml:"summary_metrics"`
	Recommendations       []string              `json:"recommendations" yaml:"recommendations"`
	MeasurementProvenance map[string]Provenance `json:"measurement_provenance" yaml:"measurement_provenance"`
	ResourceUsage         ResourceUsage         `json:"resource_usage" yaml:"resource_usage"`
	TestEnvironment       TestEnvironment       `json:"test_environment" yaml:"test_environment"`
}

// LayerSummary is a uniform view of one layer record.
type LayerSummary struct {
	Layer         Layer
	LatencyMs     float64
	OverheadBytes int
	Score         float64
}

// Layers returns one summary per layer in pipeline order.
func (r *AggregateReport) Layers() []LayerSummary {
	return []LayerSummary{
		{
			Layer:         LayerTransport,
			LatencyMs:     r.Transport.UDPDiscoveryTimeMs + r.Transport.TCPConnectionTimeMs,
			OverheadBytes: r.Transport.TotalTransportOverhead,
			Score:         r.Transport.EfficiencyScore,
		},
		{
			Layer:         LayerSession,
			LatencyMs:     r.Session.CommissioningTimeMs,
			OverheadBytes: r.Session.SessionOverheadBytes,
			Score:         r.Session.SessionEfficiency,
		},
		{
			Layer:         LayerPresentation,
			LatencyMs:     r.Presentation.EncodingTimeMs,
			OverheadBytes: r.Presentation.EncodedSizeBytes,
			Score:         r.Presentation.EncodingEfficiency,
		},
		{
			Layer:         LayerApplication,
			LatencyMs:     r.Application.DiscoveryTimeMs,
			OverheadBytes: r.Application.ApplicationOverheadBytes,
			Score:         r.Application.InteroperabilityScore,
		},
	}
}

// Validate checks the report invariants: scores in [0,1], non-negative durations and byte counts.
func (r *AggregateReport) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	var errs []error
	score := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	nonNegative := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %v", name, v))
		}
	}

	layers := r.Layers()
	if len(layers) != len(AllLayers()) {
		errs = append(errs, fmt.Errorf("expected %d layers, got %d", len(AllLayers()), len(layers)))
	}
	for _, l := range layers {
		score(l.Layer.String()+" score", l.Score)
		nonNegative(l.Layer.String()+" latency", l.LatencyMs)
		nonNegative(l.Layer.String()+" overhead", float64(l.OverheadBytes))
	}
	score("overall_efficiency", r.Summary.OverallEfficiency)
	score("packet_loss_rate", r.Transport.NetworkPerformance.PacketLossRate)
	nonNegative("total_analysis_time_ms", r.TotalAnalysisTimeMs)
	nonNegative("total_latency_ms", r.Summary.TotalLatencyMs)
	nonNegative("total_overhead_bytes", float64(r.Summary.TotalOverheadBytes))
	nonNegative("udp_throughput_mbps", r.Transport.NetworkPerformance.UDPThroughputMbps)
	nonNegative("tcp_throughput_mbps", r.Transport.NetworkPerformance.TCPThroughputMbps)
	nonNegative("round_trip_time_ms", r.Transport.NetworkPerformance.RoundTripTimeMs)
	nonNegative("concurrent_connections", float64(r.Transport.NetworkPerformance.ConcurrentConnections))
	nonNegative("cluster_initialization_time_ms", r.Application.ClusterInitializationTimeMs)
	return errors.Join(errs...)
}
