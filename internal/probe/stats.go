package probe

import "time"

// Stats counts the TCP handshakes attempted through a Probe.
type Stats struct {
	Successful       int
	Failed           int
	TimedOut         int
	AverageHandshake time.Duration
}

func (p *Probe) record(out Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case out.Success:
		p.stats.Successful++
		p.total += out.Elapsed
	case out.TimedOut:
		p.stats.TimedOut++
	default:
		p.stats.Failed++
	}
}

// Stats returns a copy of the handshake counters. The average covers successful
// handshakes only.
func (p *Probe) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	if s.Successful > 0 {
		s.AverageHandshake = p.total / time.Duration(s.Successful)
	}
	return s
}
