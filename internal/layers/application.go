package layers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pingsantohq/stackprobe/internal/scoring"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

const applicationOverheadBytes = 267

// Application stands in for service discovery and cluster initialisation.
type Application struct{}

func (*Application) Layer() types.Layer { return types.LayerApplication }

func (*Application) Analyze(ctx context.Context, rc *RunContext) error {
	sim := rc.Config.Simulation

	discovery, err := wait(ctx, sim.ServiceDiscovery)
	if err != nil {
		return fmt.Errorf("application service discovery: %w", err)
	}
	clusterInit, err := wait(ctx, sim.ClusterInitialization)
	if err != nil {
		return fmt.Errorf("application cluster initialization: %w", err)
	}

	clusters := append([]string(nil), sim.Clusters...)
	expected := sim.ExpectedClusters
	if expected == 0 {
		expected = len(clusters)
	}
	score := scoring.Application(len(clusters), expected, discovery)

	m := &types.ApplicationMetrics{
		ApplicationProtocol:         "Matter",
		ClusterModel:                "Matter_Application_Clusters",
		SupportedClusters:           clusters,
		DiscoveryTimeMs:             ms(discovery),
		ClusterInitializationTimeMs: ms(clusterInit),
		ClustersDiscovered:          len(clusters),
		InteroperabilityScore:       score,
		ApplicationOverheadBytes:    applicationOverheadBytes,
	}

	l := types.LayerApplication
	rc.store(func(r *Results) { r.Application = m }, map[string]types.Provenance{
		path(l, "discovery_time_ms"):              types.ProvenanceSynthetic,
		path(l, "cluster_initialization_time_ms"): types.ProvenanceSynthetic,
		path(l, "clusters_discovered"):            types.ProvenanceConstant,
		path(l, "application_overhead_bytes"):     types.ProvenanceConstant,
		path(l, "interoperability_score"):         types.ProvenanceEstimated,
	})

	rc.Logger.Info("application analyzed",
		zap.String("layer", l.String()),
		zap.Int("clusters", len(clusters)),
		zap.Duration("discovery", discovery),
		zap.Float64("score", score),
	)
	return nil
}
