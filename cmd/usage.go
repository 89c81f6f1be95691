package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recruit-cli/internal/model"
)

var (
	usageWorkspaces []string
	usageMonth      string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show provider calls and cost for a month",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		workspaces, err := workspacesFlag(usageWorkspaces)
		if err != nil {
			return err
		}
		month := usageMonth
		if month == "" {
			month = model.MonthKey(time.Now())
		} else if _, err := time.Parse("2006-01", month); err != nil {
			return eris.Errorf("--month %q must be YYYY-MM", month)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := make([]*model.UsageRecord, 0, len(workspaces))
		for _, ws := range workspaces {
			rec, err := env.Ledger.Get(ctx, ws, month)
			if err != nil {
				return eris.Wrapf(err, "usage for %s", ws)
			}
			out = append(out, rec)
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	usageCmd.Flags().StringSliceVar(&usageWorkspaces, "workspace", nil, "workspaces to report (default worker.workspaces)")
	usageCmd.Flags().StringVar(&usageMonth, "month", "", "month as YYYY-MM (default current UTC month)")
	rootCmd.AddCommand(usageCmd)
}
