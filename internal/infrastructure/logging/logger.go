package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/shellhost/internal/infrastructure/config"
)

// Destinations understood besides file paths.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// Logger is the process root logger. Components take a Named child.
type Logger struct {
	*zap.Logger
}

// New builds the root logger for one shellhost command from its log
// settings. Every entry carries the command name and the process id, so
// server and attach output can share a sink. An empty Output means stdout.
func New(cfg config.LogConfig, command string) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	output := cfg.Output
	if output == "" {
		output = Stdout
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig = productionEncoder()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{output}
	// A shell host logs per keystroke at debug; keep every entry.
	zapCfg.Sampling = nil

	logger, err := zapCfg.Build(zap.Fields(
		zap.String("command", command),
		zap.Int("pid", os.Getpid()),
	))
	if err != nil {
		return nil, fmt.Errorf("build logger for %s: %w", output, err)
	}
	return &Logger{Logger: logger}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func productionEncoder() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

// Named returns a child logger for one component.
func (l *Logger) Named(component string) *zap.Logger {
	return l.Logger.Named(component)
}

// Close flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Close() {
	_ = l.Sync()
}
