// Package diag collects the config, last report, metrics textfile and logs of
// a probe host into one tar.gz bundle.
package diag

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/pingsantohq/stackprobe/internal/config"
	"github.com/pingsantohq/stackprobe/internal/report"
)

const (
	defaultOutputPrefix = "stackprobe_diag_"
	infoFileName        = "diagnostics/info.json"
	configDirName       = "config"
	reportDirName       = "report"
	logsDirName         = "logs"
	observabilityDir    = "observability"
)

const (
	redactedMarker = "REDACTED"
)

var (
	tokenPattern       = regexp.MustCompile(`(?i)(token=)([^&\s"']+)`)
	bearerPattern      = regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)([A-Za-z0-9\._\-]+)`)
	apiKeyPattern      = regexp.MustCompile(`(?i)(api[_-]?key=)([^&\s"']+)`)
	secretPattern      = regexp.MustCompile(`(?i)(secret=)([^&\s"']+)`)
	passwordPattern    = regexp.MustCompile(`(?i)(password=)([^&\s"']+)`)
	accessTokenPattern = regexp.MustCompile(`(?i)(access[_-]?token=)([^&\s"']+)`)
	jsonSecretPattern  = regexp.MustCompile(`(?i)("(?:token|secret|password|api_key|authorization)"\s*:\s*")([^"]+)`)
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now func() time.Time
}

// Run executes the diagnostics workflow, producing a tar.gz bundle.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to stackprobe configuration file")
	reportPath := fs.String("report", "", "Report to include (default run.output from config)")
	metricsPath := fs.String("metrics-file", "", "Prometheus textfile to include (default metrics.textfile_path from config)")
	outputPath := fs.String("output", "", "Path for diagnostics tarball (default ./stackprobe_diag_<ts>.tar.gz)")
	logsDir := fs.String("logs", "", "Directory containing stackprobe logs to include")
	redactLogs := fs.Bool("redact-logs", true, "Redact sensitive tokens in log files (disable for raw capture)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	now := deps.Now().UTC()
	outPath := *outputPath
	if outPath == "" {
		outPath = fmt.Sprintf("%s%s.tar.gz", defaultOutputPrefix, now.Format("20060102T150405Z"))
	} else if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure output directory %q: %w", filepath.Dir(outPath), err)
	}

	info := bundleInfo{
		GeneratedAt: now.Format(time.RFC3339),
		OutputPath:  outPath,
		Warnings:    make([]string, 0, 4),
		GoVersion:   runtime.Version(),
	}

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("config unavailable (%s): %v", *configPath, err))
	} else {
		info.ConfigPath = *configPath
		info.Config = &configSummary{
			Duration:     cfg.Run.Duration.String(),
			LayerTimeout: cfg.Run.LayerTimeout.String(),
			Output:       cfg.Run.Output,
			UDPBind:      cfg.Probe.UDPBind,
			TCPBind:      cfg.Probe.TCPBind,
			Tracing:      cfg.Tracing.Enabled,
		}
		if verr := cfg.Validate(); verr != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("config invalid: %v", verr))
		}
		if *reportPath == "" {
			*reportPath = cfg.Run.Output
		}
		if *metricsPath == "" {
			*metricsPath = cfg.Metrics.TextfilePath
		}
	}

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create diagnostics file %q: %w", outPath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	includeFile(tw, &info, "config", *configPath, configDirName)
	if info.Config != nil {
		if data, err := yaml.Marshal(&cfg); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("render effective config: %v", err))
		} else if err := addBytes(tw, data, filepath.ToSlash(filepath.Join(configDirName, "effective.yaml"))); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include effective config: %v", err))
		}
	}

	if *reportPath != "" {
		if includeFile(tw, &info, "report", *reportPath, reportDirName) {
			if r, err := report.Read(*reportPath); err != nil {
				info.Warnings = append(info.Warnings, err.Error())
			} else {
				info.Report = &reportSummary{
					Path:              *reportPath,
					RunID:             r.RunID,
					AnalysisTimestamp: r.AnalysisTimestamp.Format(time.RFC3339),
					OverallEfficiency: r.Summary.OverallEfficiency,
					Recommendations:   len(r.Recommendations),
				}
				if verr := r.Validate(); verr != nil {
					info.Warnings = append(info.Warnings, fmt.Sprintf("report invalid: %v", verr))
				}
			}
		}
	}

	if *metricsPath != "" {
		data, err := os.ReadFile(*metricsPath)
		switch {
		case err == nil:
			if err := addBytes(tw, data, filepath.ToSlash(filepath.Join(observabilityDir, "metrics.prom"))); err != nil {
				info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include metrics textfile: %v", err))
			}
			summary, warns := summarizeMetrics(data, *metricsPath)
			info.Metrics = summary
			info.Warnings = append(info.Warnings, warns...)
		case errors.Is(err, os.ErrNotExist):
			info.Warnings = append(info.Warnings, fmt.Sprintf("metrics textfile %q not found", *metricsPath))
		default:
			info.Warnings = append(info.Warnings, fmt.Sprintf("unable to read metrics textfile %q: %v", *metricsPath, err))
		}
	}

	if *logsDir != "" {
		if _, err := os.Stat(*logsDir); err == nil {
			if err := addLogsDir(tw, *logsDir, logsDirName, *redactLogs); err != nil {
				info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include logs dir %q: %v", *logsDir, err))
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat logs dir %q: %v", *logsDir, err))
		}
	}
	info.LogsRedacted = *redactLogs

	if err := writeInfo(tw, info); err != nil {
		return err
	}

	return nil
}

// includeFile adds src under dir and reports whether it was included.
func includeFile(tw *tar.Writer, info *bundleInfo, kind, src, dir string) bool {
	fi, err := os.Stat(src)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat %s %q: %v", kind, src, err))
		} else {
			info.Warnings = append(info.Warnings, fmt.Sprintf("%s %q not found", kind, src))
		}
		return false
	}
	if !fi.Mode().IsRegular() {
		info.Warnings = append(info.Warnings, fmt.Sprintf("%s path %q is not a regular file", kind, src))
		return false
	}
	if err := addFile(tw, src, filepath.ToSlash(filepath.Join(dir, filepath.Base(src)))); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include %s %q: %v", kind, src, err))
		return false
	}
	return true
}

func writeInfo(tw *tar.Writer, info bundleInfo) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics info: %w", err)
	}
	return addBytes(tw, payload, infoFileName)
}

func addBytes(tw *tar.Writer, data []byte, name string) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %q: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar content for %q: %w", name, err)
	}
	return nil
}

func addFile(tw *tar.Writer, src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %q: %w", src, err)
	}
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer file.Close()

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %q: %w", src, err)
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %q: %w", src, err)
	}
	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("copy %q: %w", src, err)
	}
	return nil
}

func addLogsDir(tw *tar.Writer, dir, base string, redact bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		name := base
		if rel != "." {
			name = filepath.ToSlash(filepath.Join(base, rel))
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			if !strings.HasSuffix(name, "/") {
				name += "/"
			}
			header.Name = name
			if err := tw.WriteHeader(header); err != nil {
				return err
			}
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if redact && shouldRedactFile(path) {
			data = redactSensitive(path, data)
		}

		header := &tar.Header{
			Name:    name,
			Mode:    int64(info.Mode().Perm()),
			Size:    int64(len(data)),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
		return nil
	})
}

func shouldRedactFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".log", ".txt", ".json", ".ndjson", ".yaml", ".yml", ".csv":
		return true
	default:
		return false
	}
}

func redactSensitive(path string, data []byte) []byte {
	text := string(data)
	patterns := []*regexp.Regexp{
		tokenPattern,
		bearerPattern,
		apiKeyPattern,
		secretPattern,
		passwordPattern,
		accessTokenPattern,
		jsonSecretPattern,
	}
	for _, pattern := range patterns {
		text = applyRedaction(pattern, text)
	}
	return []byte(text)
}

func applyRedaction(pattern *regexp.Regexp, text string) string {
	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := pattern.FindStringSubmatch(match)
		if len(sub) >= 2 {
			return sub[1] + redactedMarker
		}
		return redactedMarker
	})
}

func summarizeMetrics(data []byte, path string) (*metricsSummary, []string) {
	summary := &metricsSummary{Path: path}
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(bytes.NewReader(data))
	if err != nil {
		return summary, []string{fmt.Sprintf("parse metrics textfile %q: %v", path, err)}
	}

	if mf, ok := families["stackprobe_overall_efficiency_score"]; ok && len(mf.GetMetric()) > 0 {
		val := mf.GetMetric()[0].GetGauge().GetValue()
		summary.OverallEfficiency = &val
	}
	if mf, ok := families["stackprobe_run_duration_seconds"]; ok && len(mf.GetMetric()) > 0 {
		val := mf.GetMetric()[0].GetGauge().GetValue()
		summary.RunDurationSeconds = &val
	}
	if mf, ok := families["stackprobe_runs_total"]; ok {
		for _, m := range mf.GetMetric() {
			count := uint64(m.GetCounter().GetValue())
			switch labelValue(m.GetLabel(), "outcome") {
			case "failed":
				summary.FailedRuns += count
			case "done":
				summary.CompletedRuns += count
			}
		}
	}
	return summary, nil
}

func labelValue(pairs []*dto.LabelPair, name string) string {
	for _, lp := range pairs {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

type bundleInfo struct {
	GeneratedAt  string          `json:"generated_at"`
	OutputPath   string          `json:"output_path"`
	ConfigPath   string          `json:"config_path,omitempty"`
	Config       *configSummary  `json:"config,omitempty"`
	Report       *reportSummary  `json:"report,omitempty"`
	Metrics      *metricsSummary `json:"metrics,omitempty"`
	LogsRedacted bool            `json:"logs_redacted"`
	Warnings     []string        `json:"warnings,omitempty"`
	GoVersion    string          `json:"go_version"`
}

type configSummary struct {
	Duration     string `json:"duration"`
	LayerTimeout string `json:"layer_timeout"`
	Output       string `json:"output"`
	UDPBind      string `json:"udp_bind"`
	TCPBind      string `json:"tcp_bind"`
	Tracing      bool   `json:"tracing"`
}

type reportSummary struct {
	Path              string  `json:"path"`
	RunID             string  `json:"run_id"`
	AnalysisTimestamp string  `json:"analysis_timestamp"`
	OverallEfficiency float64 `json:"overall_efficiency"`
	Recommendations   int     `json:"recommendations"`
}

type metricsSummary struct {
	Path               string   `json:"path"`
	OverallEfficiency  *float64 `json:"overall_efficiency,omitempty"`
	RunDurationSeconds *float64 `json:"run_duration_seconds,omitempty"`
	CompletedRuns      uint64   `json:"completed_runs"`
	FailedRuns         uint64   `json:"failed_runs"`
}
