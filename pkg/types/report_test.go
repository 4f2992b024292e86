package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *AggregateReport {
	return &AggregateReport{
		ProtocolName:        "Matter",
		RunID:               "run-1",
		AnalysisTimestamp:   time.Date(2025, 10, 23, 15, 4, 5, 0, time.UTC),
		AnalysisType:        "Matter_Protocol_OSI_Analysis",
		TotalAnalysisTimeMs: 612.5,
		Transport: TransportMetrics{
			Protocol:               "Matter_UDP_TCP",
			UDPDiscoveryTimeMs:     0.08,
			TCPConnectionTimeMs:    0.21,
			UDPOverheadBytes:       45,
			TCPOverheadBytes:       52,
			TotalTransportOverhead: 97,
			EfficiencyScore:        0.71,
			NetworkPerformance: NetworkPerformance{
				UDPThroughputMbps:     100,
				TCPThroughputMbps:     95,
				PacketLossRate:        0.001,
				RoundTripTimeMs:       0.05,
				ConcurrentConnections: 10,
			},
		},
		Session:      SessionMetrics{CommissioningTimeMs: 450, SessionOverheadBytes: 342, SessionEfficiency: 0.59},
		Presentation: PresentationMetrics{EncodingTimeMs: 25, EncodedSizeBytes: 60, EncodingEfficiency: 0.8},
		Application:  ApplicationMetrics{DiscoveryTimeMs: 80, ApplicationOverheadBytes: 267, InteroperabilityScore: 0.86},
		Summary:      SummaryMetrics{TotalLatencyMs: 555.3, TotalOverheadBytes: 766, OverallEfficiency: 0.74},
	}
}

func TestAggregateReportLayersInPipelineOrder(t *testing.T) {
	layers := sampleReport().Layers()
	require.Len(t, layers, 4)
	for i, want := range AllLayers() {
		assert.Equal(t, want, layers[i].Layer)
	}
	assert.InDelta(t, 0.29, layers[0].LatencyMs, 1e-9)
	assert.Equal(t, 342, layers[1].OverheadBytes)
}

func TestAggregateReportValidate(t *testing.T) {
	require.NoError(t, sampleReport().Validate())

	bad := sampleReport()
	bad.Session.SessionEfficiency = 1.2
	bad.Presentation.EncodingTimeMs = -1
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session score")
	assert.Contains(t, err.Error(), "presentation latency")

	var nilReport *AggregateReport
	assert.Error(t, nilReport.Validate())
}

func TestAggregateReportJSONContract(t *testing.T) {
	payload, err := json.Marshal(sampleReport())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	for _, key := range []string{
		"osi_layer_4_transport",
		"osi_layer_5_session",
		"osi_layer_6_presentation",
		"osi_layer_7_application",
		"summary_metrics",
		"total_analysis_time_ms",
	} {
		assert.Contains(t, decoded, key)
	}
	transport := decoded["osi_layer_4_transport"].(map[string]any)
	assert.Contains(t, transport, "real_network_performance")
	assert.Contains(t, transport, "udp_discovery_time_ms")
}

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("session")
	require.NoError(t, err)
	assert.Equal(t, LayerSession, l)
	assert.Equal(t, 5, l.OSINumber())

	_, err = ParseLayer("network")
	assert.Error(t, err)
}
