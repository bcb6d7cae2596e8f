// Package reporting forwards failures that need operator follow-up to the
// error tracker.
package reporting

import (
	"context"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/pkg/config"
)

// Reporter records an error together with structured context.
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]interface{})
}

// RollbarReporter logs every report and forwards it to Rollbar when enabled.
type RollbarReporter struct {
	enabled bool
	logger  *zap.Logger
	send    func(args ...interface{})
}

// NewRollbarReporter configures the global Rollbar notifier.
func NewRollbarReporter(cfg config.RollbarConfig, env string, logger *zap.Logger) *RollbarReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := cfg.Enabled && cfg.Token != ""
	if enabled {
		rollbar.SetToken(cfg.Token)
		rollbar.SetEnvironment(env)
		rollbar.SetCodeVersion(cfg.CodeVersion)
		rollbar.SetServerHost(cfg.ServerHost)
	}
	rollbar.SetEnabled(enabled)
	return &RollbarReporter{enabled: enabled, logger: logger, send: rollbar.Error}
}

// Report logs the error and, when enabled, sends it to Rollbar.
func (r *RollbarReporter) Report(_ context.Context, err error, fields map[string]interface{}) {
	if err == nil {
		return
	}
	zfields := make([]zap.Field, 0, len(fields)+1)
	zfields = append(zfields, zap.Error(err))
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	r.logger.Error("reported error", zfields...)

	if r.enabled {
		r.send(err, fields)
	}
}

// Close flushes queued reports.
func (r *RollbarReporter) Close() {
	if r.enabled {
		rollbar.Wait()
	}
}
