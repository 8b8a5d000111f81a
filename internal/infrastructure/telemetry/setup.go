package telemetry

import (
	"context"
	"errors"

	"github.com/tavola/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Providers owns the trace, metric and log providers of one process
type Providers struct {
	Tracer *TracerProvider
	Meter  *MeterProvider
	Logs   *LoggerProvider
	cfg    config.TelemetryConfig
}

// Setup creates all providers from cfg. With telemetry disabled every
// provider is a no-op.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	tp, err := NewTracerProvider(ctx, Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		SamplingRatio:     cfg.SamplingRatio,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		return nil, err
	}

	mp, err := NewMeterProvider(ctx, MetricsConfig{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ExportInterval:    cfg.MetricsInterval,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	lp, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           cfg.Enabled && cfg.LogExport,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &Providers{Tracer: tp, Meter: mp, Logs: lp, cfg: cfg}, nil
}

// LogCore returns the core that ships zap logs over OTLP
func (p *Providers) LogCore(level zapcore.Level) zapcore.Core {
	return NewZapOTELCore(ZapBridgeConfig{
		ServiceName:    p.cfg.ServiceName,
		LoggerProvider: p.Logs,
		Level:          level,
	})
}

// DBTracing returns the gorm tracing plugin configured from cfg
func (p *Providers) DBTracing(dbSystem string, logger *zap.Logger) *DBTracingPlugin {
	return NewDBTracingPlugin(DBTracingConfig{
		Enabled:         p.cfg.Enabled && p.cfg.DBTraceEnabled,
		LogFullSQL:      p.cfg.DBLogFullSQL,
		SlowQueryThresh: p.cfg.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, logger)
}

// Shutdown stops the providers in reverse order of creation
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.Logs.Shutdown(ctx),
		p.Meter.Shutdown(ctx),
		p.Tracer.Shutdown(ctx),
	)
}
