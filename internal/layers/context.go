package layers

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pingsantohq/stackprobe/internal/config"
	"github.com/pingsantohq/stackprobe/internal/probe"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

// Results accumulates the per-layer records of one run.
type Results struct {
	Transport    *types.TransportMetrics
	Session      *types.SessionMetrics
	Presentation *types.PresentationMetrics
	Application  *types.ApplicationMetrics
	Provenance   map[string]types.Provenance
}

// Complete reports whether every layer stored its record.
func (r Results) Complete() bool {
	return r.Transport != nil && r.Session != nil && r.Presentation != nil && r.Application != nil
}

// RunContext is passed to every analyzer of a run. It carries configuration,
// the probe, the endpoints opened by the transport layer and the results.
type RunContext struct {
	Config config.Config
	Logger *zap.Logger
	Probe  *probe.Probe

	lifetime context.Context
	stop     context.CancelFunc

	mu      sync.Mutex
	closed  bool
	udp     *probe.UDPEndpoint
	tcp     *probe.TCPListener
	serving sync.WaitGroup
	results Results
}

func NewRunContext(cfg config.Config, p *probe.Probe, logger *zap.Logger) *RunContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = probe.New(probe.WithOpTimeout(cfg.Probe.OpTimeout), probe.WithLogger(logger))
	}
	lifetime, stop := context.WithCancel(context.Background())
	return &RunContext{
		Config:   cfg,
		Logger:   logger,
		Probe:    p,
		lifetime: lifetime,
		stop:     stop,
		results:  Results{Provenance: make(map[string]types.Provenance)},
	}
}

// Attach hands the transport endpoints to the run and starts the accept task.
// Endpoints attached after Close are released immediately.
func (rc *RunContext) Attach(udp *probe.UDPEndpoint, tcp *probe.TCPListener) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		_ = udp.Close()
		_ = tcp.Close()
		return
	}
	rc.udp, rc.tcp = udp, tcp
	rc.serving.Add(1)
	go func() {
		defer rc.serving.Done()
		tcp.Serve(rc.lifetime)
	}()
}

// Endpoints returns the transport endpoints, or nils before Attach.
func (rc *RunContext) Endpoints() (*probe.UDPEndpoint, *probe.TCPListener) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.udp, rc.tcp
}

// Close releases every endpoint and waits for the accept task. It is idempotent.
func (rc *RunContext) Close() error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	udp, tcp := rc.udp, rc.tcp
	rc.mu.Unlock()

	rc.stop()
	var errs []error
	if udp != nil {
		errs = append(errs, udp.Close())
	}
	if tcp != nil {
		errs = append(errs, tcp.Close())
	}
	rc.serving.Wait()
	return errors.Join(errs...)
}

// Results returns a snapshot of the accumulated records.
func (rc *RunContext) Results() Results {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := rc.results
	out.Provenance = make(map[string]types.Provenance, len(rc.results.Provenance))
	for k, v := range rc.results.Provenance {
		out.Provenance[k] = v
	}
	return out
}

func (rc *RunContext) store(fn func(*Results), tags map[string]types.Provenance) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	fn(&rc.results)
	for k, v := range tags {
		rc.results.Provenance[k] = v
	}
}
