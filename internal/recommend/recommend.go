// Package recommend turns report thresholds into advisory text.
package recommend

import "time"

const (
	TransportAdvice    = "Overall efficiency is below target: tune transport configuration (socket buffers, TCP keep-alive, UDP payload sizing) before optimising higher layers"
	ProvisioningAdvice = "Commissioning is slow: pre-provision certificates and operational credentials to shorten session establishment"
	DiscoveryAdvice    = "Service discovery is slow: cache DNS-SD responses and narrow the queried service types"
	ClosingMulticast   = "Keep UDP multicast discovery and the TCP operational channel on the same interface to avoid cross-interface latency"
	ClosingRerun       = "Re-run the probe on the target network; loopback timings understate real deployment latency"
)

// Thresholds beyond which advice is emitted.
type Thresholds struct {
	MinEfficiency    float64
	MaxCommissioning time.Duration
	MaxDiscovery     time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinEfficiency:    0.7,
		MaxCommissioning: 100 * time.Millisecond,
		MaxDiscovery:     30 * time.Millisecond,
	}
}

// Inputs are the report values the rules read.
type Inputs struct {
	OverallEfficiency float64
	Commissioning     time.Duration
	Discovery         time.Duration
}

// Generate returns advice in fixed priority order followed by the two closing
// remarks. It has no side effects.
func Generate(in Inputs, th Thresholds) []string {
	out := make([]string, 0, 5)
	if in.OverallEfficiency < th.MinEfficiency {
		out = append(out, TransportAdvice)
	}
	if in.Commissioning > th.MaxCommissioning {
		out = append(out, ProvisioningAdvice)
	}
	if in.Discovery > th.MaxDiscovery {
		out = append(out, DiscoveryAdvice)
	}
	return append(out, ClosingMulticast, ClosingRerun)
}

// FromMillis converts a report millisecond value into a duration.
func FromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
