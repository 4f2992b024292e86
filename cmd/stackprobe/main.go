package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/stackprobe/internal/config"
	"github.com/pingsantohq/stackprobe/internal/diag"
	"github.com/pingsantohq/stackprobe/internal/logging"
	"github.com/pingsantohq/stackprobe/internal/metrics"
	"github.com/pingsantohq/stackprobe/internal/report"
	"github.com/pingsantohq/stackprobe/internal/runtime"
	"github.com/pingsantohq/stackprobe/internal/tracing"
)

var version = "dev"

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	cmd := args[0]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, args[1:], stdout, stderr)
	case "diag":
		err = diag.Run(ctx, args[1:], diag.Dependencies{})
	case "config":
		err = configCmd(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "stackprobe %s\n", version)
		return 0
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "command %s failed: %v\n", cmd, err)
		return 1
	}
	return 0
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to stackprobe configuration file (default $STACKPROBE_CONFIG or built-in defaults)")
	duration := fs.Duration("duration", 0, "Overall run deadline (default 60s)")
	output := fs.String("output", "", "Report path (default matter_real_analysis.json)")
	metricsFile := fs.String("metrics-file", "", "Write a Prometheus textfile to this path")
	logFile := fs.String("log-file", "", "Also append JSON logs to this file")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	quiet := fs.Bool("quiet", false, "Only log warnings and skip the console summary")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *duration > 0 {
		cfg.Run.Duration = *duration
	}
	if *output != "" {
		cfg.Run.Output = *output
	}
	if *metricsFile != "" {
		cfg.Metrics.TextfilePath = *metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logOpts := logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: *verbose,
		Quiet:   *quiet,
		Output:  stderr,
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOpts.Extra = append(logOpts.Extra, f)
	}
	logger := logging.New(logOpts)
	defer func() { _ = logger.Sync() }()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewRecorder()
	rt := runtime.New(cfg,
		runtime.WithLogger(logger),
		runtime.WithTracer(tp.Tracer()),
		runtime.WithRecorder(recorder),
	)

	result, runErr := rt.Run(runCtx)

	var grp errgroup.Group
	if result != nil {
		grp.Go(func() error {
			return report.Write(cfg.Run.Output, result)
		})
	}
	if path := cfg.Metrics.TextfilePath; path != "" {
		grp.Go(func() error {
			return recorder.WriteTextfile(path)
		})
	}
	if err := grp.Wait(); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("report written", zap.String("path", cfg.Run.Output))
	if !*quiet {
		return report.PrintSummary(stdout, result)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if path != "" {
		return config.Load(ctx, path)
	}
	if os.Getenv("STACKPROBE_CONFIG") != "" {
		return config.LoadFromEnv(ctx)
	}
	return config.Default(), nil
}

func configCmd(args []string, stdout io.Writer) error {
	if len(args) < 1 || args[0] != "init" {
		return fmt.Errorf("usage: stackprobe config init [--output path]")
	}
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	output := fs.String("output", config.DefaultConfigPath, "Where to write the default configuration")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := config.Write(*output, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote default configuration to %s\n", *output)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "stackprobe: layered protocol performance probe")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  stackprobe run [--config path] [--duration 60s] [--output matter_real_analysis.json] [--metrics-file path] [--log-file path] [--verbose] [--quiet]")
	fmt.Fprintln(w, "  stackprobe diag [--config path] [--report file] [--metrics-file file] [--logs dir] [--output file] [--redact-logs]")
	fmt.Fprintln(w, "  stackprobe config init [--output path]")
	fmt.Fprintln(w, "  stackprobe version")
}
