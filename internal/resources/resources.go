// Package resources samples the probe process's own heap, goroutine and CPU
// usage while a run is in progress.
package resources

import (
	"context"
	"runtime/metrics"
	"time"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

const (
	heapMetric       = "/memory/classes/heap/objects:bytes"
	goroutinesMetric = "/sched/goroutines:goroutines"
	cpuMetric        = "/cpu/classes/total:cpu-seconds"

	defaultInterval = 50 * time.Millisecond
)

// Sampler polls runtime/metrics on a fixed interval.
type Sampler struct {
	interval time.Duration
	samples  []metrics.Sample
}

func New(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sampler{
		interval: interval,
		samples: []metrics.Sample{
			{Name: heapMetric},
			{Name: goroutinesMetric},
			{Name: cpuMetric},
		},
	}
}

// Run samples until ctx is done and returns the peaks seen. The result is
// handed back once; the sampler shares nothing else with its caller.
func (s *Sampler) Run(ctx context.Context) types.ResourceUsage {
	var usage types.ResourceUsage
	firstCPU := s.read(&usage)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lastCPU := s.read(&usage)
			usage.CPUSeconds = max(lastCPU-firstCPU, 0)
			return usage
		case <-ticker.C:
			s.read(&usage)
		}
	}
}

func (s *Sampler) read(usage *types.ResourceUsage) float64 {
	metrics.Read(s.samples)
	usage.Samples++

	var cpu float64
	for _, sample := range s.samples {
		switch sample.Name {
		case heapMetric:
			if sample.Value.Kind() == metrics.KindUint64 {
				usage.PeakHeapBytes = max(usage.PeakHeapBytes, sample.Value.Uint64())
			}
		case goroutinesMetric:
			if sample.Value.Kind() == metrics.KindUint64 {
				usage.PeakGoroutines = max(usage.PeakGoroutines, int(sample.Value.Uint64()))
			}
		case cpuMetric:
			if sample.Value.Kind() == metrics.KindFloat64 {
				cpu = sample.Value.Float64()
			}
		}
	}
	return cpu
}
