package monitoring

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
)

// Diagnostics logs and counts absorbed protocol failures.
type Diagnostics struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewDiagnostics creates a sink that reports to logger and metrics. Either may be nil.
func NewDiagnostics(logger *zap.Logger, metrics *Metrics) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostics{logger: logger.Named("diagnostics"), metrics: metrics}
}

// Report implements protocol.DiagnosticSink.
func (d *Diagnostics) Report(diag protocol.Diagnostic) {
	d.metrics.RecordDiagnostic(string(diag.Kind))

	fields := []zap.Field{
		zap.String("kind", string(diag.Kind)),
		zap.String("channel", diag.Channel),
		zap.String("action", string(diag.Action)),
		zap.String("ref", string(diag.Ref)),
		zap.Error(diag.Err),
	}
	switch diag.Kind {
	case protocol.SpawnFault, protocol.ProcessFault:
		d.logger.Warn("Shell fault absorbed", fields...)
	default:
		d.logger.Info("Protocol event absorbed", fields...)
	}
}
