// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Options select level and encoding. Output defaults to stderr.
type Options struct {
	Level   string
	Format  string
	Verbose bool
	Quiet   bool
	Output  io.Writer
	Extra   []io.Writer
}

// New returns a logger named "stackprobe". Console output is coloured only
// when written to a terminal.
func New(opts Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			level.SetLevel(zapcore.InfoLevel)
		}
	}
	if opts.Quiet {
		level.SetLevel(zapcore.WarnLevel)
	}
	if opts.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if opts.Format == "json" {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(out), level))
	} else {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if isTerminal(out) {
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(out), level))
	}
	// Extra sinks always receive JSON so they can be bundled and redacted later.
	for _, w := range opts.Extra {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level))
	}

	return zap.New(zapcore.NewTee(cores...)).Named("stackprobe")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
