package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pingsantohq/stackprobe/internal/config"
	"github.com/pingsantohq/stackprobe/internal/layers"
	"github.com/pingsantohq/stackprobe/internal/metrics"
	"github.com/pingsantohq/stackprobe/internal/probe"
	"github.com/pingsantohq/stackprobe/internal/recommend"
	"github.com/pingsantohq/stackprobe/pkg/types"
)

func loopbackConfig() config.Config {
	cfg := config.Default()
	cfg.Run.Duration = 5 * time.Second
	cfg.Probe.UDPBind = "127.0.0.1:0"
	cfg.Probe.DiscoveryAddr = "[::1]:5353"
	cfg.Probe.OpTimeout = 200 * time.Millisecond
	cfg.Probe.SampleBudget = 20 * time.Millisecond
	return cfg
}

// capture wraps the transport analyzer and keeps the run context it saw.
type capture struct {
	layers.Transport
	rc *layers.RunContext
}

func (c *capture) Analyze(ctx context.Context, rc *layers.RunContext) error {
	c.rc = rc
	return c.Transport.Analyze(ctx, rc)
}

// stall ignores its context.
type stall struct{ layer types.Layer }

func (s stall) Layer() types.Layer { return s.layer }

func (s stall) Analyze(context.Context, *layers.RunContext) error {
	time.Sleep(2 * time.Second)
	return nil
}

func TestRunLoopback(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(sr))
	rec := metrics.NewRecorder()

	rt := New(loopbackConfig(),
		WithTracer(tp.Tracer("test")),
		WithRecorder(rec),
		WithHostname("probe-host"),
	)
	report, err := rt.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, StateDone, rt.Machine().State())
	require.NoError(t, report.Validate())
	assert.Len(t, report.Layers(), 4)

	assert.Equal(t, "Matter", report.ProtocolName)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Transport.UDPDiscoverySuccess)
	assert.True(t, report.Transport.TCPConnectionSuccess)
	assert.GreaterOrEqual(t, report.Summary.OverallEfficiency, 0.3)
	assert.LessOrEqual(t, report.Summary.OverallEfficiency, 1.0)
	assert.GreaterOrEqual(t, report.Session.CommissioningTimeMs, 450.0)
	assert.Equal(t, "probe-host", report.TestEnvironment.Hostname)
	assert.Greater(t, report.ResourceUsage.Samples, 0)

	var latency float64
	var overhead int
	for _, l := range report.Layers() {
		latency += l.LatencyMs
		overhead += l.OverheadBytes
	}
	assert.InDelta(t, latency, report.Summary.TotalLatencyMs, 1e-9)
	assert.Equal(t, overhead, report.Summary.TotalOverheadBytes)

	n := len(report.Recommendations)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, recommend.ProvisioningAdvice, report.Recommendations[n-4])
	assert.Equal(t, recommend.DiscoveryAdvice, report.Recommendations[n-3])
	assert.Equal(t, recommend.ClosingRerun, report.Recommendations[n-1])

	assert.Equal(t, types.ProvenanceSynthetic, report.MeasurementProvenance["osi_layer_5_session.commissioning_time_ms"])
	assert.Equal(t, types.ProvenanceMeasured, report.MeasurementProvenance["osi_layer_6_presentation.encoded_size_bytes"])

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{
		"stackprobe.run",
		"stackprobe.layer.transport",
		"stackprobe.layer.session",
		"stackprobe.layer.presentation",
		"stackprobe.layer.application",
	} {
		assert.True(t, names[want], want)
	}

	count, err := testutil.GatherAndCount(rec.Registry(), "stackprobe_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunSessionTimeout(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Run.LayerTimeouts = map[string]time.Duration{"session": time.Millisecond}

	tr := &capture{}
	rt := New(cfg, WithAnalyzers(tr, &layers.Session{}, &layers.Presentation{}, &layers.Application{}))

	report, err := rt.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrLayerTimeout))

	var rerr *RunError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, types.LayerSession, rerr.Layer)
	assert.Equal(t, KindTimeout, rerr.Kind)

	assert.Equal(t, StateFailed, rt.Machine().State())
	assert.Equal(t, types.LayerSession, rt.Machine().FailedLayer())

	require.NotNil(t, tr.rc)
	_, ln := tr.rc.Endpoints()
	require.NotNil(t, ln)
	out := probe.New(probe.WithOpTimeout(200*time.Millisecond)).ConnectTCP(context.Background(), ln.Addr().String())
	assert.False(t, out.Success, "listener must be closed after a failed run")
}

func TestRunSocketSetupFailure(t *testing.T) {
	ctx := context.Background()
	held, err := probe.New().BindTCPListener(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer held.Close()

	cfg := loopbackConfig()
	cfg.Probe.TCPBind = held.Addr().String()

	rt := New(cfg)
	report, err := rt.Run(ctx)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrSocketSetup))
	assert.False(t, errors.Is(err, ErrLayerTimeout))
	assert.Equal(t, types.LayerTransport, rt.Machine().FailedLayer())
}

func TestRunAbandonsStalledAnalyzer(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Run.LayerTimeouts = map[string]time.Duration{"presentation": 50 * time.Millisecond}
	cfg.Simulation.CertificateExchange = 0
	cfg.Simulation.CredentialSetup = 0
	cfg.Simulation.NetworkConfig = 0

	rt := New(cfg, WithAnalyzers(
		&layers.Transport{},
		&layers.Session{},
		stall{layer: types.LayerPresentation},
		&layers.Application{},
	))

	start := time.Now()
	_, err := rt.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, ErrLayerTimeout)
	assert.Equal(t, types.LayerPresentation, rt.Machine().FailedLayer())
}

func TestRunDeadline(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Run.Duration = 100 * time.Millisecond
	cfg.Simulation.CertificateExchange = time.Second

	rt := New(cfg)
	_, err := rt.Run(context.Background())

	var rerr *RunError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, types.LayerSession, rerr.Layer)
	assert.ErrorIs(t, err, ErrLayerTimeout)
}

func TestRunOutOfOrderPipeline(t *testing.T) {
	rt := New(loopbackConfig(), WithAnalyzers(&layers.Session{}, &layers.Transport{}))
	_, err := rt.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateIdle, rt.Machine().State())
}

func TestRunCanceledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(loopbackConfig()).Run(ctx)
	var rerr *RunError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, types.LayerTransport, rerr.Layer)
}

func TestRunReusesMachine(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Simulation.CertificateExchange = time.Millisecond
	cfg.Simulation.CredentialSetup = time.Millisecond
	cfg.Simulation.NetworkConfig = time.Millisecond
	rt := New(cfg)
	m := rt.Machine()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.Run(canceled)
	require.Error(t, err)
	assert.Equal(t, types.LayerTransport, m.FailedLayer())

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
				_ = rt.Machine().State()
			}
		}
	}()

	_, err = rt.Run(context.Background())
	close(stop)
	<-polled
	require.NoError(t, err)

	assert.Same(t, m, rt.Machine())
	assert.Equal(t, StateDone, m.State())
	assert.Equal(t, types.Layer(""), m.FailedLayer())
	assert.Equal(t, StateIdle, m.History()[0])
	assert.NotContains(t, m.History(), StateFailed)
}
