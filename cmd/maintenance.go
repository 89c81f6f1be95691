package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Queue maintenance tasks",
}

var (
	resetWorkspaces []string
	resetOlderThan  time.Duration
)

var resetStuckCmd = &cobra.Command{
	Use:   "reset-stuck",
	Short: "Return in-progress tasks and emails abandoned by a crashed worker to pending",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if resetOlderThan <= 0 {
			return eris.New("--older-than must be positive")
		}
		workspaces, err := workspacesFlag(resetWorkspaces)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		type counts struct {
			Tasks  int `json:"tasks"`
			Emails int `json:"emails"`
		}
		out := make(map[string]counts, len(workspaces))
		for _, ws := range workspaces {
			tasks, err := env.Enrichment.ResetStuck(ctx, ws, resetOlderThan)
			if err != nil {
				return eris.Wrapf(err, "reset stuck tasks in %s", ws)
			}
			emails, err := env.Email.ResetStuck(ctx, ws, resetOlderThan)
			if err != nil {
				return eris.Wrapf(err, "reset stuck emails in %s", ws)
			}
			zap.L().Info("stuck queue items reset",
				zap.String("workspace_id", ws),
				zap.Int("tasks", tasks),
				zap.Int("emails", emails),
			)
			out[ws] = counts{Tasks: tasks, Emails: emails}
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	resetStuckCmd.Flags().StringSliceVar(&resetWorkspaces, "workspace", nil, "workspaces to reset (default worker.workspaces)")
	resetStuckCmd.Flags().DurationVar(&resetOlderThan, "older-than", 30*time.Minute, "reset items in progress for longer than this")
	maintenanceCmd.AddCommand(resetStuckCmd)
	rootCmd.AddCommand(maintenanceCmd)
}
