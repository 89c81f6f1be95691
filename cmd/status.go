package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/recruit-cli/internal/monitoring"
)

var (
	statusWorkspaces []string
	statusAlerts     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts, stuck items, failure rates and usage per workspace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		workspaces, err := workspacesFlag(statusWorkspaces)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		type report struct {
			*monitoring.Snapshot
			Alerts []monitoring.Alert `json:"alerts,omitempty"`
		}
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		out := make([]report, 0, len(workspaces))
		for _, ws := range workspaces {
			snap, err := env.Collector.Snapshot(ctx, ws)
			if err != nil {
				return err
			}
			r := report{Snapshot: snap}
			if statusAlerts {
				r.Alerts = alerter.Evaluate(snap)
			}
			out = append(out, r)
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	statusCmd.Flags().StringSliceVar(&statusWorkspaces, "workspace", nil, "workspaces to report (default worker.workspaces)")
	statusCmd.Flags().BoolVar(&statusAlerts, "alerts", false, "include the alerts the snapshot would raise")
	rootCmd.AddCommand(statusCmd)
}
