package model

import "time"

// Provider names used by the usage ledger and task records.
const (
	ProviderHunter    = "hunter"
	ProviderProxycurl = "proxycurl"
	ProviderAnthropic = "anthropic"
	ProviderSMTP      = "smtp"
)

// UsageRecord is a workspace's provider usage for one calendar month.
type UsageRecord struct {
	WorkspaceID string           `json:"workspace_id"`
	Month       string           `json:"month"` // YYYY-MM, UTC
	Calls       map[string]int64 `json:"calls"`
	CostUSD     float64          `json:"cost_usd"`
}

// MonthKey returns the UTC calendar month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextMonthStart returns the first instant of the UTC month after t.
func NextMonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
