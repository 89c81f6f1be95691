package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector  *Collector
	alerter    *Alerter
	cfg        config.MonitoringConfig
	workspaces []string
}

// NewChecker creates a background alert checker over the given workspaces.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, workspaces []string) *Checker {
	return &Checker{
		collector:  collector,
		alerter:    alerter,
		cfg:        cfg,
		workspaces: workspaces,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("workspaces", len(c.workspaces)),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx, log)
		}
	}
}

// Check snapshots every workspace once and sends any alerts. It returns
// the number of alerts triggered.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) int {
	var alerts []Alert
	for _, ws := range c.workspaces {
		snap, err := c.collector.Snapshot(ctx, ws)
		if err != nil {
			log.Error("monitoring: failed to collect snapshot", zap.String("workspace_id", ws), zap.Error(err))
			continue
		}
		alerts = append(alerts, c.alerter.Evaluate(snap)...)
	}
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return len(alerts)
}
