package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage the jobs candidates are scored against",
}

var newJob model.Job

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job with scoring criteria",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if newJob.WorkspaceID == "" || newJob.Title == "" {
			return eris.New("--workspace and --title are required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		j := newJob
		if err := env.Store.CreateJob(ctx, &j); err != nil {
			return eris.Wrap(err, "create job")
		}
		zap.L().Info("job created", zap.String("job_id", j.ID))
		return printJSON(cmd.OutOrStdout(), j)
	},
}

func init() {
	jobCreateCmd.Flags().StringVar(&newJob.WorkspaceID, "workspace", "", "owning workspace (required)")
	jobCreateCmd.Flags().StringVar(&newJob.Title, "title", "", "job title (required)")
	jobCreateCmd.Flags().StringVar(&newJob.Criteria, "criteria", "", "free-text scoring criteria")
	jobCmd.AddCommand(jobCreateCmd)
	rootCmd.AddCommand(jobCmd)
}
