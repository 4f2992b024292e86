package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

func sample() *types.AggregateReport {
	r := &types.AggregateReport{
		ProtocolName:      "Matter",
		RunID:             "run-1",
		AnalysisTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		AnalysisType:      "Matter_Protocol_OSI_Analysis",
		Recommendations:   []string{"first", "second"},
		MeasurementProvenance: map[string]types.Provenance{
			"osi_layer_5_session.commissioning_time_ms": types.ProvenanceSynthetic,
		},
	}
	r.Transport.EfficiencyScore = 0.62
	r.Session.SessionEfficiency = 0.59
	r.Session.CommissioningTimeMs = 450.5
	r.Presentation.EncodingEfficiency = 0.6
	r.Application.InteroperabilityScore = 0.87
	r.Summary.OverallEfficiency = 0.67
	return r
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "matter_real_analysis.json")
	require.NoError(t, Write(path, sample()))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 450.5, got.Session.CommissioningTimeMs)
	assert.Equal(t, types.ProvenanceSynthetic, got.MeasurementProvenance["osi_layer_5_session.commissioning_time_ms"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, k := range []string{"osi_layer_4_transport", "osi_layer_7_application", "summary_metrics", "recommendations"} {
		assert.Contains(t, keys, k)
	}
}

func TestWriteNil(t *testing.T) {
	assert.Error(t, Write(filepath.Join(t.TempDir(), "r.json"), nil))
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := Read(path)
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sample()))

	out := buf.String()
	assert.Contains(t, out, "Matter analysis run-1")
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "overall efficiency 0.670")
	assert.Contains(t, out, "  2. second")
}
