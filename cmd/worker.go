package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/schedule"
)

var (
	workerTemporal bool
	workerOnce     bool
)

// newTicker builds the in-process sweep over the configured workspaces.
func newTicker(env *appEnv) (*schedule.Ticker, error) {
	if err := cfg.Validate("worker"); err != nil {
		return nil, err
	}
	if len(cfg.Worker.Workspaces) == 0 {
		return nil, eris.New("worker.workspaces is empty")
	}
	return schedule.NewTicker(env.Runners(), schedule.TickerConfig{
		Interval:         time.Duration(cfg.Worker.IntervalSecs) * time.Second,
		FollowUpInterval: time.Duration(cfg.FollowUp.IntervalMins) * time.Minute,
		Concurrency:      cfg.Worker.Concurrency,
		Workspaces:       cfg.Worker.Workspaces,
	}), nil
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the enrichment, email and follow-up sweep on a schedule",
	Long:  "Runs the sweep in-process on a ticker, or with --temporal registers it as a cron workflow on a Temporal task queue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if !workerTemporal {
			ticker, err := newTicker(env)
			if err != nil {
				return err
			}
			if workerOnce {
				return printJSON(cmd.OutOrStdout(), ticker.Sweep(ctx))
			}
			ticker.Run(ctx)
			return nil
		}

		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return eris.Wrap(err, "dial temporal")
		}
		defer c.Close()

		tcfg := schedule.TemporalConfig{TaskQueue: cfg.Temporal.TaskQueue, Cron: cfg.Temporal.Cron}
		w := schedule.NewWorker(c, tcfg, &schedule.Activities{Runners: env.Runners()})

		run, err := schedule.StartSweep(ctx, c, tcfg, schedule.SweepInput{WorkspaceIDs: cfg.Worker.Workspaces})
		if err != nil {
			return err
		}
		zap.L().Info("temporal sweep scheduled",
			zap.String("workflow_id", run.GetID()),
			zap.String("run_id", run.GetRunID()),
			zap.String("task_queue", tcfg.TaskQueue),
			zap.String("cron", tcfg.Cron),
		)

		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "temporal worker")
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerTemporal, "temporal", false, "run as a Temporal worker with a cron sweep workflow")
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run a single sweep and exit (ticker mode only)")
	rootCmd.AddCommand(workerCmd)
}
