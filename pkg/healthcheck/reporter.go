package healthcheck

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PublishFunc delivers an aggregated result somewhere (e.g. an MQTT topic).
type PublishFunc func(ctx context.Context, result *AggregatedResult) error

// Reporter periodically runs the engine and publishes the result.
type Reporter struct {
	engine    *Engine
	publisher PublishFunc
	logger    *zap.Logger
}

// NewReporter creates a reporter.
func NewReporter(engine *Engine, publisher PublishFunc, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		engine:    engine,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "health_reporter")),
	}
}

// Report runs all checks once and publishes the result.
func (r *Reporter) Report(ctx context.Context) error {
	result := r.engine.CheckAll(ctx)
	if r.publisher != nil {
		if err := r.publisher(ctx, result); err != nil {
			return err
		}
	}

	r.logger.Debug("Health report published",
		zap.String("status", string(result.OverallStatus)),
		zap.Int("components", len(result.Components)))
	return nil
}

// Run reports every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("Starting health reporter", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Health reporter stopped")
			return
		case <-ticker.C:
			if err := r.Report(ctx); err != nil {
				r.logger.Warn("Health report failed", zap.Error(err))
			}
		}
	}
}
