package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var followUpCmd = &cobra.Command{
	Use:   "followup",
	Short: "Follow-up scheduling",
}

var followUpWorkspaces []string

var followUpRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Queue due follow-ups for every active campaign of the workspaces",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		workspaces, err := workspacesFlag(followUpWorkspaces)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := make(map[string]int, len(workspaces))
		for _, ws := range workspaces {
			n, err := env.Campaigns.ScheduleAll(ctx, ws)
			if err != nil {
				return eris.Wrapf(err, "schedule follow-ups for %s", ws)
			}
			out[ws] = n
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	followUpRunCmd.Flags().StringSliceVar(&followUpWorkspaces, "workspace", nil, "workspaces to schedule (default worker.workspaces)")
	followUpCmd.AddCommand(followUpRunCmd)
	rootCmd.AddCommand(followUpCmd)
}
