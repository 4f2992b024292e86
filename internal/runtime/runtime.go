// Package runtime sequences the layer analyzers of a probe run and folds their
// records into one report.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/stackprobe/internal/config"
	"github.com/pingsantohq/stackprobe/internal/layers"
	"github.com/pingsantohq/stackprobe/internal/metrics"
	"github.com/pingsantohq/stackprobe/internal/probe"
	"github.com/pingsantohq/stackprobe/internal/resources"
	"github.com/pingsantohq/stackprobe/internal/tracing"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

type Option func(*options)

type options struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	recorder  *metrics.Recorder
	analyzers []layers.Analyzer
	probe     *probe.Probe
	now       func() time.Time
	hostname  string
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithRecorder(rec *metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = rec
	}
}

// WithAnalyzers replaces the default pipeline. Analyzers must be given in
// pipeline order.
func WithAnalyzers(analyzers ...layers.Analyzer) Option {
	return func(o *options) {
		o.analyzers = append([]layers.Analyzer(nil), analyzers...)
	}
}

func WithProbe(p *probe.Probe) Option {
	return func(o *options) {
		o.probe = p
	}
}

func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithHostname(name string) Option {
	return func(o *options) {
		o.hostname = name
	}
}

// Runtime runs the pipeline once per call to Run.
type Runtime struct {
	cfg     config.Config
	opts    options
	machine *Machine
}

func New(cfg config.Config, opts ...Option) *Runtime {
	o := options{
		logger:    zap.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer(""),
		analyzers: layers.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.probe == nil {
		o.probe = probe.New(probe.WithOpTimeout(cfg.Probe.OpTimeout), probe.WithLogger(o.logger))
	}
	return &Runtime{cfg: cfg, opts: o, machine: NewMachine()}
}

// Machine exposes the state of the current or last run. The same Machine is
// reused across runs.
func (r *Runtime) Machine() *Machine {
	return r.machine
}

// Run executes every layer in order under the run deadline. On failure it
// returns a *RunError naming the layer and no report. Endpoints opened during
// the run are closed before Run returns.
func (r *Runtime) Run(ctx context.Context) (*types.AggregateReport, error) {
	r.machine.reset()
	start := r.opts.now()
	runID := uuid.NewString()
	log := r.opts.logger.With(zap.String("run_id", runID))

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Run.Duration)
	defer cancel()
	runCtx, span := r.opts.tracer.Start(runCtx, "stackprobe.run",
		trace.WithAttributes(attribute.String("stackprobe.run_id", runID)))
	defer span.End()

	rc := layers.NewRunContext(r.cfg, r.opts.probe, log)
	defer func() {
		if err := rc.Close(); err != nil {
			log.Debug("close endpoints", zap.Error(err))
		}
	}()

	sampleCtx, stopSampling := context.WithCancel(runCtx)
	var (
		g     errgroup.Group
		usage types.ResourceUsage
	)
	g.Go(func() error {
		usage = resources.New(r.cfg.Run.ResourceSampleInterval).Run(sampleCtx)
		return nil
	})
	defer func() {
		stopSampling()
		_ = g.Wait()
	}()

	log.Info("run started", zap.Duration("duration", r.cfg.Run.Duration))
	for _, a := range r.opts.analyzers {
		if err := r.step(runCtx, rc, a, log); err != nil {
			tracing.RecordError(span, err)
			if r.opts.recorder != nil {
				r.opts.recorder.ObserveFailure(a.Layer(), r.opts.now().Sub(start))
			}
			log.Error("run failed", zap.String("layer", a.Layer().String()), zap.Error(err))
			return nil, err
		}
	}

	if err := r.machine.Advance(StateAggregating); err != nil {
		return nil, err
	}
	stopSampling()
	_ = g.Wait()

	results := rc.Results()
	if !results.Complete() {
		return nil, fmt.Errorf("aggregate: missing layer records")
	}
	report := r.aggregate(results, usage, start, runID)
	if err := report.Validate(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if err := r.machine.Advance(StateDone); err != nil {
		return nil, err
	}

	elapsed := r.opts.now().Sub(start)
	if r.opts.recorder != nil {
		r.opts.recorder.ObserveReport(report, elapsed)
	}
	span.SetAttributes(attribute.Float64("stackprobe.overall_efficiency", report.Summary.OverallEfficiency))
	log.Info("run finished",
		zap.Duration("elapsed", elapsed),
		zap.Float64("overall_efficiency", report.Summary.OverallEfficiency),
	)
	return report, nil
}

// step runs one analyzer in its own goroutine and waits for either its result
// or the layer deadline. An analyzer that ignores its context is abandoned.
func (r *Runtime) step(ctx context.Context, rc *layers.RunContext, a layers.Analyzer, log *zap.Logger) error {
	layer := a.Layer()
	if err := r.machine.Advance(StateFor(layer)); err != nil {
		return &RunError{Layer: layer, Kind: KindAnalyzer, Err: err}
	}

	timeout := r.cfg.Run.TimeoutFor(layer)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stepCtx, span := r.opts.tracer.Start(stepCtx, "stackprobe.layer."+layer.String(),
		trace.WithAttributes(
			attribute.String("stackprobe.layer", layer.String()),
			attribute.Int("stackprobe.osi_layer", layer.OSINumber()),
		))
	defer span.End()

	started := r.opts.now()
	done := make(chan error, 1)
	go func() {
		done <- a.Analyze(stepCtx, rc)
	}()

	var err error
	select {
	case err = <-done:
	case <-stepCtx.Done():
		err = fmt.Errorf("%s step: %w", layer, stepCtx.Err())
	}
	elapsed := r.opts.now().Sub(started)
	if r.opts.recorder != nil {
		r.opts.recorder.ObserveStep(layer, elapsed)
	}
	if err == nil {
		log.Debug("layer done", zap.String("layer", layer.String()), zap.Duration("elapsed", elapsed))
		return nil
	}

	rerr := classify(layer, err)
	tracing.RecordError(span, rerr)
	if ferr := r.machine.Fail(layer); ferr != nil {
		log.Warn("state machine", zap.Error(ferr))
	}
	return rerr
}
