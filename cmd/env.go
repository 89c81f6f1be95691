package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/campaign"
	"github.com/sells-group/recruit-cli/internal/dedup"
	"github.com/sells-group/recruit-cli/internal/enrich"
	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/monitoring"
	"github.com/sells-group/recruit-cli/internal/outreach"
	"github.com/sells-group/recruit-cli/internal/schedule"
	"github.com/sells-group/recruit-cli/internal/store"
	"github.com/sells-group/recruit-cli/internal/usage"
	anthropicpkg "github.com/sells-group/recruit-cli/pkg/anthropic"
	"github.com/sells-group/recruit-cli/pkg/hunter"
	"github.com/sells-group/recruit-cli/pkg/proxycurl"
)

// appEnv holds the store and every service built on it, as needed by the
// queue, campaign, serve and worker commands.
type appEnv struct {
	Store      store.Store
	Ledger     *usage.Ledger
	Upserter   *dedup.Upserter
	Planner    *enrich.Planner
	Enrichment *enrich.Dispatcher
	Email      *outreach.Dispatcher
	Campaigns  *campaign.Service
	Events     *outreach.Events
	Tracker    *outreach.Tracker // nil when tracking is off
	Collector  *monitoring.Collector
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Runners exposes the batch entry points to the sweep.
func (e *appEnv) Runners() schedule.Runners {
	return schedule.Runners{
		Enrichment: e.Enrichment,
		Email:      e.Email,
		FollowUps:  e.Campaigns,
	}
}

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "recruit.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv opens and migrates the store and builds every service over it.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env, err := buildEnv(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildEnv wires the services over an open store.
func buildEnv(st store.Store) (*appEnv, error) {
	limits, err := usage.LoadLimits(cfg.Usage.LimitsFile)
	if err != nil {
		return nil, err
	}
	applyPricing(limits)
	ledger := usage.NewLedger(st, limits)

	planner := enrich.NewPlanner(st)
	planner.SetMaxAttempts(cfg.Enrichment.MaxAttempts)

	enrichment := enrich.NewDispatcher(st, buildRegistry(st), ledger, enrich.Config{
		BatchSize:         cfg.Enrichment.BatchSize,
		RateLimitCooldown: time.Duration(cfg.Enrichment.RateLimitCooldownMins) * time.Minute,
		SkillsCap:         cfg.Enrichment.SkillsCap,
	})

	var tracker *outreach.Tracker
	if cfg.Email.TrackingBaseURL != "" {
		tracker, err = outreach.NewTracker(cfg.Email.TrackingBaseURL, cfg.Email.UnsubscribeBaseURL, cfg.Email.TrackingSecret)
		if err != nil {
			return nil, eris.Wrap(err, "init tracker")
		}
		zap.L().Info("email tracking enabled", zap.String("base_url", cfg.Email.TrackingBaseURL))
	} else {
		zap.L().Debug("RECRUIT_EMAIL_TRACKING_BASE_URL not set, email tracking disabled")
	}

	email := outreach.NewDispatcher(st, outreach.SMTPTransport, tracker, ledger, outreach.Config{
		BatchSize:         cfg.Email.BatchSize,
		RateLimitCooldown: time.Duration(cfg.Email.RateLimitCooldownMins) * time.Minute,
	})

	campaigns := campaign.New(st)
	campaigns.SetMaxAttempts(cfg.Email.MaxAttempts)

	return &appEnv{
		Store:      st,
		Ledger:     ledger,
		Upserter:   dedup.New(st, dedup.WithQueuer(planner)),
		Planner:    planner,
		Enrichment: enrichment,
		Email:      email,
		Campaigns:  campaigns,
		Events:     outreach.NewEvents(st),
		Tracker:    tracker,
		Collector:  monitoring.NewCollector(st, time.Duration(cfg.Monitoring.StuckAfterMins)*time.Minute),
	}, nil
}

// applyPricing layers configured per-call prices over the limit table.
func applyPricing(limits usage.Limits) {
	for provider, price := range map[string]float64{
		model.ProviderHunter:    cfg.Pricing.HunterPerCall,
		model.ProviderProxycurl: cfg.Pricing.ProxycurlPerCall,
	} {
		if price <= 0 {
			continue
		}
		l := limits[provider]
		l.CostPerCall = price
		limits[provider] = l
	}
}

// claudeRates layers configured model pricing over the defaults.
func claudeRates() usage.Rates {
	rates := usage.DefaultRates()
	for name, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[name] = usage.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

// buildRegistry registers an executor for every provider with a key. Task
// types left without one are failed by the dispatcher.
func buildRegistry(st store.Store) enrich.Registry {
	var execs []enrich.Executor

	if cfg.Hunter.Key != "" {
		var opts []hunter.Option
		if cfg.Hunter.BaseURL != "" {
			opts = append(opts, hunter.WithBaseURL(cfg.Hunter.BaseURL))
		}
		hc := hunter.NewClient(cfg.Hunter.Key, opts...)
		execs = append(execs, enrich.EmailFinder{Client: hc}, enrich.EmailVerifier{Client: hc})
	} else {
		zap.L().Warn("hunter key not set, find-email and verify-email tasks will fail")
	}

	if cfg.Proxycurl.Key != "" {
		var opts []proxycurl.Option
		if cfg.Proxycurl.BaseURL != "" {
			opts = append(opts, proxycurl.WithBaseURL(cfg.Proxycurl.BaseURL))
		}
		pc := proxycurl.NewClient(cfg.Proxycurl.Key, opts...)
		execs = append(execs,
			enrich.PhoneFinder{Client: pc},
			enrich.ProfileScraper{Client: pc},
			enrich.CompanyEnricher{Client: pc},
		)
	} else {
		zap.L().Warn("proxycurl key not set, phone, profile and company tasks will fail")
	}

	if cfg.Anthropic.Key != "" {
		execs = append(execs, enrich.Scorer{
			Client:          anthropicpkg.NewClient(cfg.Anthropic.Key),
			Jobs:            st,
			Model:           cfg.Anthropic.Model,
			MaxTokens:       cfg.Anthropic.MaxTokens,
			DefaultCriteria: cfg.Enrichment.DefaultCriteria,
			Calc:            usage.NewCalculator(claudeRates()),
		})
	} else {
		zap.L().Warn("anthropic key not set, ai-score tasks will fail")
	}

	return enrich.NewRegistry(execs...)
}

// workspacesFlag resolves the workspaces a command acts on: the flag value
// when given, else the configured worker list.
func workspacesFlag(ws []string) ([]string, error) {
	if len(ws) == 0 {
		ws = cfg.Worker.Workspaces
	}
	if len(ws) == 0 {
		return nil, eris.New("no workspaces given (--workspace or worker.workspaces)")
	}
	return ws, nil
}
