package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "recruit-cli",
	Short: "Candidate dedup, enrichment and outreach queues",
	Long: `Maintains one deduplicated candidate record per person in each workspace and
drives the queues that fill and contact those records.

  import                 load a CSV/XLSX file through match + merge
  enrich queue|run       plan missing-data tasks, then work the enrichment queue
  email run              send due queue items through each sender account
  campaign ...           create, launch and follow up email sequences
  followup run           queue due follow-up steps for active campaigns
  worker | serve         run the sweeps on a ticker or Temporal, or over HTTP
  status | usage         queue health and this month's provider usage`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
