package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/jobagent/internal/config"
	"github.com/nextlevelbuilder/jobagent/internal/tracing/otelexport"
)

// initTelemetry creates and installs the OpenTelemetry OTLP exporter when the
// telemetry config is enabled. The returned shutdown flushes pending spans.
func initTelemetry(ctx context.Context, cfg *config.Config) (shutdown func()) {
	noop := func() {}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		slog.Debug("OTel export available but not enabled (set telemetry.enabled + telemetry.endpoint)")
		return noop
	}

	exp, err := otelexport.New(ctx, cfg.OTelConfig())
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return noop
	}
	exp.Install()

	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.Telemetry.Endpoint,
		"protocol", cfg.Telemetry.Protocol,
	)
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := exp.Shutdown(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}
}
