package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Queue and run candidate enrichment tasks",
}

var (
	enrichCandidates []string
	enrichWorkspaces []string
	enrichBatchSize  int
	enrichDrain      bool
)

var enrichQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue the missing enrichment tasks of candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if len(enrichCandidates) == 0 {
			return eris.New("--candidate is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		queued := make(map[string]int, len(enrichCandidates))
		for _, id := range enrichCandidates {
			n, err := env.Planner.QueueEnrichmentForCandidate(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "queue candidate %s", id)
			}
			queued[id] = n
			zap.L().Info("enrichment queued", zap.String("candidate_id", id), zap.Int("tasks", n))
		}
		return printJSON(cmd.OutOrStdout(), queued)
	},
}

var enrichRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Claim and execute due enrichment tasks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}
		workspaces, err := workspacesFlag(enrichWorkspaces)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := runBatches(ctx, "enrichment", env.Enrichment, workspaces, enrichBatchSize, enrichDrain)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	enrichQueueCmd.Flags().StringSliceVar(&enrichCandidates, "candidate", nil, "candidate ids to queue (repeatable)")

	enrichRunCmd.Flags().StringSliceVar(&enrichWorkspaces, "workspace", nil, "workspaces to process (default worker.workspaces)")
	enrichRunCmd.Flags().IntVar(&enrichBatchSize, "batch-size", 0, "tasks per batch (default enrichment.batch_size)")
	enrichRunCmd.Flags().BoolVar(&enrichDrain, "drain", false, "repeat batches until nothing is due")

	enrichCmd.AddCommand(enrichQueueCmd, enrichRunCmd)
	rootCmd.AddCommand(enrichCmd)
}
