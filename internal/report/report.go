// Package report persists the aggregate report and prints its summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

// Write encodes r as indented JSON and replaces path atomically.
func Write(path string, r *types.AggregateReport) error {
	if r == nil {
		return fmt.Errorf("write report: nil report")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure report dir %q: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp report %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit report %q: %w", path, err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*types.AggregateReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %q: %w", path, err)
	}
	var r types.AggregateReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %q: %w", path, err)
	}
	return &r, nil
}

// PrintSummary writes a short human-readable view of r.
func PrintSummary(w io.Writer, r *types.AggregateReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s analysis %s (%.0f ms)\n", r.ProtocolName, r.RunID, r.TotalAnalysisTimeMs)
	fmt.Fprintf(&b, "%-14s %5s %12s %10s %7s\n", "layer", "osi", "latency_ms", "overhead", "score")
	for _, l := range r.Layers() {
		fmt.Fprintf(&b, "%-14s %5d %12.2f %10d %7.3f\n",
			l.Layer, l.Layer.OSINumber(), l.LatencyMs, l.OverheadBytes, l.Score)
	}
	perf := r.Transport.NetworkPerformance
	fmt.Fprintf(&b, "udp %.2f Mbps, tcp %.2f Mbps (est), rtt %.3f ms, loss %.3f, concurrent %d\n",
		perf.UDPThroughputMbps, perf.TCPThroughputMbps, perf.RoundTripTimeMs, perf.PacketLossRate, perf.ConcurrentConnections)
	fmt.Fprintf(&b, "total latency %.2f ms, overhead %d B, overall efficiency %.3f\n",
		r.Summary.TotalLatencyMs, r.Summary.TotalOverheadBytes, r.Summary.OverallEfficiency)
	if len(r.Recommendations) > 0 {
		b.WriteString("recommendations:\n")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, rec)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
