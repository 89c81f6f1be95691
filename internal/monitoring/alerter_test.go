package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/config"
	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

func healthySnapshot() *Snapshot {
	return &Snapshot{
		WorkspaceID:    "ws1",
		Tasks:          store.QueueCounts{ByStatus: map[string]int{"completed": 95, "failed": 5}},
		Emails:         store.QueueCounts{ByStatus: map[string]int{"sent": 50}},
		Usage:          &model.UsageRecord{Month: "2026-05", CostUSD: 10},
		TaskFailRate:   0.05,
		StuckAfterMins: 30,
		CollectedAt:    t0,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, CostThresholdUSD: 100})
	assert.Empty(t, a.Evaluate(healthySnapshot()))
}

func TestAlerter_Evaluate_Stuck(t *testing.T) {
	snap := healthySnapshot()
	snap.Tasks.Stuck = 2
	snap.Emails.Stuck = 1

	alerts := NewAlerter(config.MonitoringConfig{}).Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertStuckTasks, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 enrichment task(s)")
	assert.Equal(t, AlertStuckEmails, alerts[1].Type)
	assert.Equal(t, "ws1", alerts[1].WorkspaceID)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	snap := healthySnapshot()
	snap.Tasks.ByStatus = map[string]int{"completed": 6, "failed": 4}
	snap.TaskFailRate = 0.4

	alerts := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25}).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTaskFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Equal(t, 10, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_FailureRateNeedsSample(t *testing.T) {
	snap := healthySnapshot()
	snap.Emails.ByStatus = map[string]int{"sent": 1, "failed": 2}
	snap.EmailFailRate = 2.0 / 3

	assert.Empty(t, NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25}).Evaluate(snap))
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	snap := healthySnapshot()
	snap.Usage.CostUSD = 250

	alerts := NewAlerter(config.MonitoringConfig{CostThresholdUSD: 200}).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2026-05")
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		assert.Equal(t, "ws1", a.WorkspaceID)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertStuckTasks, WorkspaceID: "ws1"},
		{Type: AlertCostOverrun, WorkspaceID: "ws1"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertStuckTasks}}))
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertStuckTasks}}))
}
