package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/importer"
	"github.com/sells-group/recruit-cli/internal/model"
)

var (
	importFile      string
	importWorkspace string
	importSource    string
	importJobID     string
	importSheet     string
	importStrategy  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import candidates from CSV or XLSX with identity dedup",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importWorkspace == "" {
			return eris.New("--workspace is required")
		}
		strategy, err := model.ParseMergeStrategy(importStrategy)
		if err != nil {
			return err
		}

		inputs, err := importer.ReadFile(ctx, importFile, importer.Options{
			Source:    importSource,
			JobID:     importJobID,
			SheetName: importSheet,
		})
		if err != nil {
			return eris.Wrap(err, "read import file")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Upserter.ImportBatch(ctx, importWorkspace, inputs, strategy)
		if err != nil {
			return eris.Wrap(err, "import batch")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("inserted", sum.Inserted),
			zap.Int("updated", sum.Updated),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
		)
		sum.Results = nil
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV, TSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importWorkspace, "workspace", "", "workspace to import into (required)")
	importCmd.Flags().StringVar(&importSource, "source", "import", "source tag for rows without a source column")
	importCmd.Flags().StringVar(&importJobID, "job", "", "job id for rows without a job_id column")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importStrategy, "strategy", string(model.MergeBest), "merge strategy: keep_existing, prefer_new, merge_best")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
