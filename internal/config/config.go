package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

const (
	envConfigPath     = "STACKPROBE_CONFIG"
	DefaultConfigPath = "/etc/stackprobe/stackprobe.yaml"
	DefaultOutputPath = "matter_real_analysis.json"
)

type Config struct {
	Run             RunConfig            `yaml:"run"`
	Probe           ProbeConfig          `yaml:"probe"`
	Simulation      SimulationConfig     `yaml:"simulation"`
	Recommendations RecommendationConfig `yaml:"recommendations"`
	Logging         LoggingConfig        `yaml:"logging"`
	Tracing         TracingConfig        `yaml:"tracing"`
	Metrics         MetricsConfig        `yaml:"metrics"`
}

type RunConfig struct {
	Duration               time.Duration            `yaml:"duration"`
	LayerTimeout           time.Duration            `yaml:"layer_timeout"`
	LayerTimeouts          map[string]time.Duration `yaml:"layer_timeouts"`
	Output                 string                   `yaml:"output"`
	ResourceSampleInterval time.Duration            `yaml:"resource_sample_interval"`
}

type ProbeConfig struct {
	ServiceName              string        `yaml:"service_name"`
	UDPBind                  string        `yaml:"udp_bind"`
	TCPBind                  string        `yaml:"tcp_bind"`
	DiscoveryAddr            string        `yaml:"discovery_addr"`
	ThroughputTarget         string        `yaml:"throughput_target"`
	RTTTarget                string        `yaml:"rtt_target"`
	OpTimeout                time.Duration `yaml:"op_timeout"`
	SampleBudget             time.Duration `yaml:"sample_budget"`
	PayloadSize              int           `yaml:"payload_size"`
	MaxPacketsPerSecond      int           `yaml:"max_packets_per_second"`
	ThroughputCeilingMbps    float64       `yaml:"throughput_ceiling_mbps"`
	TCPOverheadFactor        float64       `yaml:"tcp_overhead_factor"`
	PacketLossRate           float64       `yaml:"packet_loss_rate"`
	MaxConcurrentConnections int           `yaml:"max_concurrent_connections"`
}

// SimulationConfig holds the delays that stand in for protocol phases this
// probe does not implement. Timings derived from them are reported as synthetic.
type SimulationConfig struct {
	CertificateExchange   time.Duration `yaml:"certificate_exchange"`
	CredentialSetup       time.Duration `yaml:"credential_setup"`
	NetworkConfig         time.Duration `yaml:"network_config"`
	Encoding              time.Duration `yaml:"encoding"`
	ServiceDiscovery      time.Duration `yaml:"service_discovery"`
	ClusterInitialization time.Duration `yaml:"cluster_initialization"`
	Clusters              []string      `yaml:"clusters"`
	ExpectedClusters      int           `yaml:"expected_clusters"`
}

type RecommendationConfig struct {
	MinEfficiency    float64       `yaml:"min_efficiency"`
	MaxCommissioning time.Duration `yaml:"max_commissioning"`
	MaxDiscovery     time.Duration `yaml:"max_discovery"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	JaegerURL   string  `yaml:"jaeger_url"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// DefaultClusters is the capability set initialised by the application layer.
var DefaultClusters = []string{
	"Basic_Information_0x0028",
	"Identify_0x0003",
	"Groups_0x0004",
	"OnOff_0x0006",
	"Level_Control_0x0008",
	"Color_Control_0x0300",
	"Temperature_Measurement_0x0402",
	"Pressure_Measurement_0x0403",
	"Illuminance_Measurement_0x0400",
	"Door_Lock_0x0101",
}

func Default() Config {
	return Config{
		Run: RunConfig{
			Duration:               60 * time.Second,
			LayerTimeout:           10 * time.Second,
			Output:                 DefaultOutputPath,
			ResourceSampleInterval: 50 * time.Millisecond,
		},
		Probe: ProbeConfig{
			ServiceName:              "_matter._tcp.local",
			UDPBind:                  "0.0.0.0:0",
			TCPBind:                  "127.0.0.1:0",
			DiscoveryAddr:            "224.0.0.251:5353",
			ThroughputTarget:         "127.0.0.1:12345",
			RTTTarget:                "127.0.0.1:12346",
			OpTimeout:                time.Second,
			SampleBudget:             100 * time.Millisecond,
			PayloadSize:              1024,
			MaxPacketsPerSecond:      20000,
			ThroughputCeilingMbps:    100,
			TCPOverheadFactor:        0.95,
			PacketLossRate:           0.001,
			MaxConcurrentConnections: 10,
		},
		Simulation: SimulationConfig{
			CertificateExchange:   200 * time.Millisecond,
			CredentialSetup:       150 * time.Millisecond,
			NetworkConfig:         100 * time.Millisecond,
			Encoding:              25 * time.Millisecond,
			ServiceDiscovery:      80 * time.Millisecond,
			ClusterInitialization: 12 * time.Millisecond,
			Clusters:              append([]string(nil), DefaultClusters...),
			ExpectedClusters:      len(DefaultClusters),
		},
		Recommendations: RecommendationConfig{
			MinEfficiency:    0.7,
			MaxCommissioning: 100 * time.Millisecond,
			MaxDiscovery:     30 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "stackprobe",
			JaegerURL:   "http://localhost:14268/api/traces",
			SampleRate:  1.0,
		},
	}
}

// SessionDelay is the total synthetic commissioning delay.
func (s SimulationConfig) SessionDelay() time.Duration {
	return s.CertificateExchange + s.CredentialSetup + s.NetworkConfig
}

// TimeoutFor returns the per-layer override if one is set, otherwise run.layer_timeout.
func (r RunConfig) TimeoutFor(layer types.Layer) time.Duration {
	if d, ok := r.LayerTimeouts[layer.String()]; ok && d > 0 {
		return d
	}
	return r.LayerTimeout
}

// Load reads path over the defaults, so omitted keys keep their default values.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Run.Duration <= 0 {
		add("run.duration must be > 0")
	}
	if c.Run.LayerTimeout <= 0 {
		add("run.layer_timeout must be > 0")
	}
	for name, d := range c.Run.LayerTimeouts {
		if _, err := types.ParseLayer(name); err != nil {
			add("run.layer_timeouts: %v", err)
		}
		if d <= 0 {
			add("run.layer_timeouts.%s must be > 0", name)
		}
	}
	if c.Run.Output == "" {
		add("run.output must not be empty")
	}
	if c.Run.ResourceSampleInterval <= 0 {
		add("run.resource_sample_interval must be > 0")
	}

	if c.Probe.ServiceName == "" {
		add("probe.service_name must not be empty")
	}
	for key, addr := range map[string]string{
		"udp_bind":          c.Probe.UDPBind,
		"tcp_bind":          c.Probe.TCPBind,
		"discovery_addr":    c.Probe.DiscoveryAddr,
		"throughput_target": c.Probe.ThroughputTarget,
		"rtt_target":        c.Probe.RTTTarget,
	} {
		if addr == "" {
			add("probe.%s must not be empty", key)
		}
	}
	if c.Probe.OpTimeout <= 0 {
		add("probe.op_timeout must be > 0")
	}
	if c.Probe.SampleBudget <= 0 {
		add("probe.sample_budget must be > 0")
	}
	if c.Probe.PayloadSize <= 0 || c.Probe.PayloadSize > 65507 {
		add("probe.payload_size must be within (0, 65507]")
	}
	if c.Probe.MaxPacketsPerSecond < 0 {
		add("probe.max_packets_per_second must be >= 0")
	}
	if c.Probe.ThroughputCeilingMbps <= 0 {
		add("probe.throughput_ceiling_mbps must be > 0")
	}
	if c.Probe.TCPOverheadFactor <= 0 || c.Probe.TCPOverheadFactor > 1 {
		add("probe.tcp_overhead_factor must be within (0, 1]")
	}
	if c.Probe.PacketLossRate < 0 || c.Probe.PacketLossRate > 1 {
		add("probe.packet_loss_rate must be within [0, 1]")
	}
	if c.Probe.MaxConcurrentConnections < 0 {
		add("probe.max_concurrent_connections must be >= 0")
	}

	for key, d := range map[string]time.Duration{
		"certificate_exchange":   c.Simulation.CertificateExchange,
		"credential_setup":       c.Simulation.CredentialSetup,
		"network_config":         c.Simulation.NetworkConfig,
		"encoding":               c.Simulation.Encoding,
		"service_discovery":      c.Simulation.ServiceDiscovery,
		"cluster_initialization": c.Simulation.ClusterInitialization,
	} {
		if d < 0 {
			add("simulation.%s must be >= 0", key)
		}
	}
	if c.Simulation.ExpectedClusters < 0 {
		add("simulation.expected_clusters must be >= 0")
	}

	if c.Recommendations.MinEfficiency < 0 || c.Recommendations.MinEfficiency > 1 {
		add("recommendations.min_efficiency must be within [0, 1]")
	}
	if c.Recommendations.MaxCommissioning < 0 {
		add("recommendations.max_commissioning must be >= 0")
	}
	if c.Recommendations.MaxDiscovery < 0 {
		add("recommendations.max_discovery must be >= 0")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		add("logging.format must be console or json")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			add("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			add("tracing.sample_rate must be within [0, 1]")
		}
	}

	return errors.Join(errs...)
}
