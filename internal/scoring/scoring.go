// Package scoring turns per-layer measurements into efficiency scores in [0,1].
package scoring

import (
	"math"
	"time"
)

// Profile parameterises the time-discounted score used by every layer.
type Profile struct {
	Scale time.Duration
	Cap   float64
	Floor float64
}

var (
	// Transport has no time discount; its latency cost enters through the RTT quality term.
	TransportProfile    = Profile{Floor: 0.3}
	SessionProfile      = Profile{Scale: 5 * time.Second, Cap: 0.25, Floor: 0.4}
	PresentationProfile = Profile{Scale: 500 * time.Millisecond, Cap: 0.3, Floor: 0.35}
	ApplicationProfile  = Profile{Scale: time.Second, Cap: 0.3, Floor: 0.4}
)

const (
	sessionBase     = 0.65
	applicationBase = 0.95
	transportBase   = 0.75
	// Combined UDP+TCP throughput that earns the full transport base.
	transportFullMbps = 200.0
)

// TimeFactor is 1 - min(elapsed/scale, cap). A zero scale disables the discount.
func (p Profile) TimeFactor(elapsed time.Duration) float64 {
	if p.Scale <= 0 || elapsed <= 0 {
		return 1
	}
	return 1 - math.Min(float64(elapsed)/float64(p.Scale), p.Cap)
}

// Score returns clamp(base * time_factor * quality, floor, 1).
func (p Profile) Score(base float64, elapsed time.Duration, quality float64) float64 {
	return Clamp(base*p.TimeFactor(elapsed)*quality, p.Floor, 1)
}

// TransportInputs are the measured signals that feed the transport score.
type TransportInputs struct {
	UDPThroughputMbps float64
	TCPThroughputMbps float64
	RoundTripTimeMs   float64
	PacketLossRate    float64
	SuccessRate       float64
}

func Transport(in TransportInputs) float64 {
	success := 0.8 + 0.2*Clamp(in.SuccessRate, 0, 1)
	throughput := math.Min((in.UDPThroughputMbps+in.TCPThroughputMbps)/transportFullMbps, 1)
	base := transportBase * success * math.Max(throughput, 0)
	return TransportProfile.Score(base, 0, TransportQuality(in.RoundTripTimeMs, in.PacketLossRate))
}

// TransportQuality penalises RTT and loss. It never increases as either grows.
func TransportQuality(rttMs, loss float64) float64 {
	rtt := 1 - math.Min(math.Max(rttMs, 0)/100, 0.3)
	lossFactor := 1 - math.Min(math.Max(loss, 0)*50, 0.5)
	return rtt * lossFactor
}

func Session(commissioning time.Duration) float64 {
	return SessionProfile.Score(sessionBase, commissioning, 1)
}

// Presentation scores encoding, rewarding ratios up to 1.
func Presentation(compressionRatio float64, encoding time.Duration) float64 {
	return PresentationProfile.Score(math.Min(math.Max(compressionRatio, 0), 1), encoding, 1)
}

func Application(discovered, expected int, discovery time.Duration) float64 {
	coverage := 1.0
	if expected > 0 {
		coverage = math.Min(float64(discovered)/float64(expected), 1)
	}
	return ApplicationProfile.Score(applicationBase*coverage, discovery, 1)
}

// Overall is the arithmetic mean of scores, clamped to [0,1].
func Overall(scores ...float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return Clamp(sum/float64(len(scores)), 0, 1)
}

func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
