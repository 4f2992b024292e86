package runtime

import (
	"os"
	goruntime "runtime"
	"time"

	"github.com/pingsantohq/stackprobe/internal/layers"
	"github.com/pingsantohq/stackprobe/internal/recommend"
	"github.com/pingsantohq/stackprobe/internal/scoring"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

const (
	protocolName = "Matter"
	analysisType = "Matter_Protocol_OSI_Analysis"
)

func (r *Runtime) aggregate(res layers.Results, usage types.ResourceUsage, start time.Time, runID string) *types.AggregateReport {
	report := &types.AggregateReport{
		ProtocolName:      protocolName,
		RunID:             runID,
		AnalysisTimestamp: start.UTC(),
		AnalysisType:      analysisType,
		Transport:         *res.Transport,
		Session:           *res.Session,
		Presentation:      *res.Presentation,
		Application:       *res.Application,
		ResourceUsage:     usage,
		TestEnvironment:   r.environment(),
	}

	var scores []float64
	for _, l := range report.Layers() {
		report.Summary.TotalLatencyMs += l.LatencyMs
		report.Summary.TotalOverheadBytes += l.OverheadBytes
		scores = append(scores, l.Score)
	}
	report.Summary.OverallEfficiency = scoring.Overall(scores...)

	th := r.cfg.Recommendations
	report.Recommendations = recommend.Generate(recommend.Inputs{
		OverallEfficiency: report.Summary.OverallEfficiency,
		Commissioning:     recommend.FromMillis(report.Session.CommissioningTimeMs),
		Discovery:         recommend.FromMillis(report.Application.DiscoveryTimeMs),
	}, recommend.Thresholds{
		MinEfficiency:    th.MinEfficiency,
		MaxCommissioning: th.MaxCommissioning,
		MaxDiscovery:     th.MaxDiscovery,
	})

	prov := res.Provenance
	prov["summary_metrics.total_latency_ms"] = types.ProvenanceEstimated
	prov["summary_metrics.total_overhead_bytes"] = types.ProvenanceEstimated
	prov["summary_metrics.overall_efficiency"] = types.ProvenanceEstimated
	prov["resource_usage"] = types.ProvenanceMeasured
	report.MeasurementProvenance = prov

	report.TotalAnalysisTimeMs = float64(r.opts.now().Sub(start).Microseconds()) / 1000.0
	return report
}

func (r *Runtime) environment() types.TestEnvironment {
	host := r.opts.hostname
	if host == "" {
		host, _ = os.Hostname()
	}
	return types.TestEnvironment{
		OSPlatform:     goruntime.GOOS + "/" + goruntime.GOARCH,
		GoVersion:      goruntime.Version(),
		Implementation: "Go",
		Hostname:       host,
	}
}
