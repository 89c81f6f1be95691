package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Send queued email and manage sender accounts",
}

var (
	emailWorkspaces []string
	emailBatchSize  int
	emailDrain      bool
)

var emailRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Claim and send due queued email",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("email"); err != nil {
			return err
		}
		workspaces, err := workspacesFlag(emailWorkspaces)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := runBatches(ctx, "email", env.Email, workspaces, emailBatchSize, emailDrain)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

var senderAccount model.SenderAccount

var emailSenderAddCmd = &cobra.Command{
	Use:   "add-sender",
	Short: "Register an SMTP sender account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if senderAccount.WorkspaceID == "" || senderAccount.FromAddress == "" || senderAccount.SMTPHost == "" {
			return eris.New("--workspace, --from and --host are required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		acct := senderAccount
		if err := env.Store.CreateSenderAccount(ctx, &acct); err != nil {
			return eris.Wrap(err, "create sender account")
		}
		zap.L().Info("sender account created", zap.String("id", acct.ID), zap.String("from", acct.FromAddress))
		return printJSON(cmd.OutOrStdout(), acct)
	},
}

func init() {
	emailRunCmd.Flags().StringSliceVar(&emailWorkspaces, "workspace", nil, "workspaces to process (default worker.workspaces)")
	emailRunCmd.Flags().IntVar(&emailBatchSize, "batch-size", 0, "emails per batch (default email.batch_size)")
	emailRunCmd.Flags().BoolVar(&emailDrain, "drain", false, "repeat batches until nothing is due")

	f := emailSenderAddCmd.Flags()
	f.StringVar(&senderAccount.WorkspaceID, "workspace", "", "owning workspace (required)")
	f.StringVar(&senderAccount.FromAddress, "from", "", "from address (required)")
	f.StringVar(&senderAccount.SMTPHost, "host", "", "SMTP host (required)")
	f.IntVar(&senderAccount.SMTPPort, "port", 587, "SMTP port")
	f.StringVar(&senderAccount.Username, "username", "", "SMTP username")
	f.StringVar(&senderAccount.Password, "password", "", "SMTP password")

	emailCmd.AddCommand(emailRunCmd, emailSenderAddCmd)
	rootCmd.AddCommand(emailCmd)
}
