package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker watches ingestion run health while the API serves. Each pass
// refreshes the store gauges and forwards any triggered alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *Metrics
	cfg       config.MonitoringConfig
	log       *zap.Logger
}

// NewChecker wires a collector to an alerter. metrics may be nil.
func NewChecker(collector *Collector, alerter *Alerter, metrics *Metrics, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   metrics,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks once straight away so the gauges are populated before the
// first scrape, then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	every := c.interval()
	c.log.Info("monitoring: watching run health",
		zap.Duration("every", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	for {
		if _, err := c.Check(ctx); err != nil {
			c.log.Error("monitoring: run health check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.log.Info("monitoring: run health watch stopped")
			return
		case <-time.After(every):
		}
	}
}

// Check takes one snapshot and returns the number of alerts delivered.
func (c *Checker) Check(ctx context.Context) (int, error) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		return 0, err
	}
	if c.metrics != nil {
		c.metrics.SetSnapshot(snap)
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("monitoring: runs healthy",
			zap.Int("runs", snap.RunsTotal),
			zap.Int("eligible", snap.Eligible),
		)
		return 0, nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Warn("monitoring: run health degraded",
		zap.Int("runs", snap.RunsTotal),
		zap.Float64("fail_rate", snap.RunFailRate),
		zap.Int("runs_no_urls", snap.RunsNoURLs),
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", sent),
	)
	return sent, nil
}
