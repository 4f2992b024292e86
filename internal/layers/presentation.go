package layers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pingsantohq/stackprobe/internal/scoring"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

// Presentation encodes a cluster attribute report as TLV after the configured
// encoding delay. Sizes come from the encoder output.
type Presentation struct{}

func (*Presentation) Layer() types.Layer { return types.LayerPresentation }

func (*Presentation) Analyze(ctx context.Context, rc *RunContext) error {
	start := time.Now()
	if _, err := wait(ctx, rc.Config.Simulation.Encoding); err != nil {
		return fmt.Errorf("presentation encoding: %w", err)
	}
	enc := EncodeClusterReport(rc.Config.Simulation.Clusters)
	elapsed := time.Since(start)

	raw, encoded := enc.RawSize(), enc.Len()
	ratio := 0.0
	if encoded > 0 {
		ratio = float64(raw) / float64(encoded)
	}
	score := scoring.Presentation(ratio, elapsed)

	m := &types.PresentationMetrics{
		EncodingFormat:     "Matter_Cluster_TLV",
		EncodingTimeMs:     ms(elapsed),
		RawDataSizeBytes:   raw,
		EncodedSizeBytes:   encoded,
		CompressionRatio:   ratio,
		EncodingEfficiency: score,
		ClusterSupport:     len(rc.Config.Simulation.Clusters) > 0,
	}

	l := types.LayerPresentation
	rc.store(func(r *Results) { r.Presentation = m }, map[string]types.Provenance{
		path(l, "encoding_time_ms"):    types.ProvenanceSynthetic,
		path(l, "raw_data_size_bytes"): types.ProvenanceMeasured,
		path(l, "encoded_size_bytes"):  types.ProvenanceMeasured,
		path(l, "compression_ratio"):   types.ProvenanceMeasured,
		path(l, "encoding_efficiency"): types.ProvenanceEstimated,
	})

	rc.Logger.Info("presentation analyzed",
		zap.String("layer", l.String()),
		zap.Int("raw_bytes", raw),
		zap.Int("encoded_bytes", encoded),
		zap.Float64("score", score),
	)
	return nil
}
