package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/config"
	"github.com/sells-group/recruit-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStuckTasks       AlertType = "stuck_tasks"
	AlertStuckEmails      AlertType = "stuck_emails"
	AlertTaskFailureRate  AlertType = "task_failure_rate"
	AlertEmailFailureRate AlertType = "email_failure_rate"
	AlertCostOverrun      AlertType = "cost_overrun"
)

// minFinished is the sample below which failure rates are not alerted on.
const minFinished = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type        AlertType      `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	add := func(t AlertType, severity, msg string, details map[string]any) {
		alerts = append(alerts, Alert{
			Type:        t,
			WorkspaceID: snap.WorkspaceID,
			Severity:    severity,
			Message:     msg,
			Details:     details,
			Timestamp:   snap.CollectedAt,
		})
	}

	if snap.Tasks.Stuck > 0 {
		add(AlertStuckTasks, "medium",
			fmt.Sprintf("%d enrichment task(s) in progress for over %d min", snap.Tasks.Stuck, snap.StuckAfterMins),
			map[string]any{"stuck": snap.Tasks.Stuck})
	}
	if snap.Emails.Stuck > 0 {
		add(AlertStuckEmails, "medium",
			fmt.Sprintf("%d email(s) in progress for over %d min", snap.Emails.Stuck, snap.StuckAfterMins),
			map[string]any{"stuck": snap.Emails.Stuck})
	}

	if a.cfg.FailureRateThreshold > 0 {
		n := finished(snap.Tasks, string(model.TaskCompleted), string(model.TaskFailed))
		if n >= minFinished && snap.TaskFailRate > a.cfg.FailureRateThreshold {
			add(AlertTaskFailureRate, "high",
				fmt.Sprintf("Enrichment failure rate %.1f%% exceeds threshold %.1f%% (%d finished)",
					snap.TaskFailRate*100, a.cfg.FailureRateThreshold*100, n),
				map[string]any{"failure_rate": snap.TaskFailRate, "threshold": a.cfg.FailureRateThreshold, "finished": n})
		}
		n = finished(snap.Emails, string(model.EmailSent), string(model.EmailFailed))
		if n >= minFinished && snap.EmailFailRate > a.cfg.FailureRateThreshold {
			add(AlertEmailFailureRate, "high",
				fmt.Sprintf("Email failure rate %.1f%% exceeds threshold %.1f%% (%d finished)",
					snap.EmailFailRate*100, a.cfg.FailureRateThreshold*100, n),
				map[string]any{"failure_rate": snap.EmailFailRate, "threshold": a.cfg.FailureRateThreshold, "finished": n})
		}
	}

	if a.cfg.CostThresholdUSD > 0 && snap.Usage != nil && snap.Usage.CostUSD > a.cfg.CostThresholdUSD {
		add(AlertCostOverrun, "high",
			fmt.Sprintf("Provider cost $%.2f exceeds threshold $%.2f for %s",
				snap.Usage.CostUSD, a.cfg.CostThresholdUSD, snap.Usage.Month),
			map[string]any{"cost_usd": snap.Usage.CostUSD, "threshold_usd": a.cfg.CostThresholdUSD})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("workspace_id", alert.WorkspaceID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("workspace_id", alert.WorkspaceID),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
