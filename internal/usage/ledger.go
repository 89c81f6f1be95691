// Package usage meters provider calls per workspace and calendar month and
// enforces the provider limit table.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/resilience"
)

// ErrQuotaExhausted is wrapped in the RateLimited failure Reserve returns
// once a workspace has used its monthly budget for a provider.
var ErrQuotaExhausted = eris.New("monthly quota exhausted")

// Store is the persisted counter the ledger reads and increments.
type Store interface {
	IncrementUsage(ctx context.Context, workspaceID, month, provider string, calls int64, costUSD float64) error
	ProviderCalls(ctx context.Context, workspaceID, month, provider string) (int64, error)
	GetUsage(ctx context.Context, workspaceID, month string) (*model.UsageRecord, error)
}

// Ledger gates provider calls against the limit table. Monthly counts live
// in the store so quotas survive restarts and are shared across workers;
// per-second limiters are process-local.
type Ledger struct {
	store  Store
	limits Limits
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLedger creates a Ledger over st. A nil limits table uses the defaults.
func NewLedger(st Store, limits Limits) *Ledger {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Ledger{
		store:    st,
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetClock overrides the time source used to pick the month.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) limiterFor(provider string) *rate.Limiter {
	lim, ok := l.limits[provider]
	if !ok || lim.PerSecond <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rl, ok := l.limiters[provider]; ok {
		return rl
	}
	rl := rate.NewLimiter(rate.Limit(lim.PerSecond), max(1, lim.Burst))
	l.limiters[provider] = rl
	return rl
}

// Reserve waits for the provider's per-second limiter, then checks the
// workspace's monthly count. An exhausted quota is a RateLimited failure
// retrying at the start of the next UTC month.
func (l *Ledger) Reserve(ctx context.Context, workspaceID, provider string) error {
	if rl := l.limiterFor(provider); rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return eris.Wrapf(err, "usage: wait for %s limiter", provider)
		}
	}

	lim, ok := l.limits[provider]
	if !ok || lim.Monthly <= 0 {
		return nil
	}

	now := l.now()
	calls, err := l.store.ProviderCalls(ctx, workspaceID, model.MonthKey(now), provider)
	if err != nil {
		return eris.Wrapf(err, "usage: read %s calls", provider)
	}
	if calls >= lim.Monthly {
		zap.L().Warn("usage: monthly quota exhausted",
			zap.String("workspace_id", workspaceID),
			zap.String("provider", provider),
			zap.Int64("calls", calls),
			zap.Int64("limit", lim.Monthly),
		)
		pe := resilience.NewRateLimited(provider, ErrQuotaExhausted)
		pe.RetryAt = model.NextMonthStart(now)
		return pe
	}
	return nil
}

// Record counts one call to provider plus its cost. The flat per-call
// price from the limit table is added to extraCost.
func (l *Ledger) Record(ctx context.Context, workspaceID, provider string, extraCost float64) error {
	cost := l.limits[provider].CostPerCall + extraCost
	if err := l.store.IncrementUsage(ctx, workspaceID, model.MonthKey(l.now()), provider, 1, cost); err != nil {
		return eris.Wrapf(err, "usage: record %s call", provider)
	}
	return nil
}

// Get returns the workspace's usage for month (YYYY-MM). An empty month
// means the current one.
func (l *Ledger) Get(ctx context.Context, workspaceID, month string) (*model.UsageRecord, error) {
	if month == "" {
		month = model.MonthKey(l.now())
	}
	rec, err := l.store.GetUsage(ctx, workspaceID, month)
	if err != nil {
		return nil, eris.Wrap(err, "usage: get")
	}
	return rec, nil
}
