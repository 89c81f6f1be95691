package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Create, launch and schedule email campaigns",
}

// campaignFile is the YAML form of a campaign definition.
//
//	workspace: ws1
//	name: Backend hiring
//	sender: <sender account id>
//	subject: "Hi {{first_name}}"
//	body: "<p>Hello {{first_name|there}}</p>"
//	steps:
//	  - delay_days: 3
//	    subject: "Following up"
//	    body: "<p>Any thoughts?</p>"
type campaignFile struct {
	Workspace string `yaml:"workspace"`
	Name      string `yaml:"name"`
	Sender    string `yaml:"sender"`
	ReplyTo   string `yaml:"reply_to"`
	Subject   string `yaml:"subject"`
	Body      string `yaml:"body"`
	Steps     []struct {
		DelayDays int    `yaml:"delay_days"`
		Subject   string `yaml:"subject"`
		Body      string `yaml:"body"`
	} `yaml:"steps"`
}

// loadCampaignFile parses a definition into an unsaved draft campaign.
// Steps are numbered from 1 in file order.
func loadCampaignFile(path string) (*model.Campaign, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, eris.Wrapf(err, "read campaign file %s", path)
	}
	var f campaignFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse campaign file")
	}
	switch {
	case f.Workspace == "":
		return nil, eris.New("campaign file: workspace is required")
	case f.Sender == "":
		return nil, eris.New("campaign file: sender is required")
	case f.Subject == "" || f.Body == "":
		return nil, eris.New("campaign file: subject and body are required")
	}

	c := &model.Campaign{
		WorkspaceID:     f.Workspace,
		Name:            f.Name,
		Status:          model.CampaignDraft,
		SenderAccountID: f.Sender,
		ReplyTo:         f.ReplyTo,
		Subject:         f.Subject,
		Body:            f.Body,
	}
	for i, s := range f.Steps {
		if s.DelayDays <= 0 {
			return nil, eris.Errorf("campaign file: step %d delay_days must be > 0", i+1)
		}
		if s.Subject == "" || s.Body == "" {
			return nil, eris.Errorf("campaign file: step %d subject and body are required", i+1)
		}
		c.Steps = append(c.Steps, model.FollowUpStep{
			Step:      i + 1,
			DelayDays: s.DelayDays,
			Subject:   s.Subject,
			Body:      s.Body,
		})
	}
	return c, nil
}

// createCampaign resolves the sender's from address and saves c.
func createCampaign(ctx context.Context, st store.Store, c *model.Campaign) error {
	acct, err := st.GetSenderAccount(ctx, c.SenderAccountID)
	if err != nil {
		return eris.Wrapf(err, "load sender account %s", c.SenderAccountID)
	}
	if acct.WorkspaceID != c.WorkspaceID {
		return eris.Errorf("sender account %s belongs to another workspace", acct.ID)
	}
	c.FromAddress = acct.FromAddress
	return st.CreateCampaign(ctx, c)
}

var campaignFilePath string

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft campaign from a YAML definition",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := loadCampaignFile(campaignFilePath)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := createCampaign(ctx, env.Store, c); err != nil {
			return eris.Wrap(err, "create campaign")
		}
		zap.L().Info("campaign created", zap.String("campaign_id", c.ID), zap.Int("steps", len(c.Steps)))
		return printJSON(cmd.OutOrStdout(), c)
	},
}

var (
	campaignID         string
	campaignCandidates []string
)

var campaignLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Queue the initial send to candidates and activate the campaign",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if len(campaignCandidates) == 0 {
			return eris.New("--candidate is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Campaigns.Launch(ctx, campaignID, campaignCandidates)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]int{"queued": n})
	},
}

var campaignFollowUpsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Queue the follow-up steps that are due",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var n int
		if campaignID != "" {
			n, err = env.Campaigns.ScheduleFollowUps(ctx, campaignID)
		} else {
			n, err = env.Campaigns.ScheduleAll(ctx, followUpWorkspace)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]int{"scheduled": n})
	},
}

var followUpWorkspace string

var campaignStatusCmd = &cobra.Command{
	Use:       "set-status <draft|active|paused|completed>",
	Short:     "Change a campaign's status",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"draft", "active", "paused", "completed"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		status := model.CampaignStatus(args[0])
		switch status {
		case model.CampaignDraft, model.CampaignActive, model.CampaignPaused, model.CampaignCompleted:
		default:
			return eris.Errorf("unknown campaign status %q", args[0])
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.SetCampaignStatus(ctx, campaignID, status); err != nil {
			return eris.Wrap(err, "set campaign status")
		}
		zap.L().Info("campaign status changed", zap.String("campaign_id", campaignID), zap.String("status", string(status)))
		return nil
	},
}

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignFilePath, "file", "", "campaign YAML definition (required)")
	_ = campaignCreateCmd.MarkFlagRequired("file")

	campaignLaunchCmd.Flags().StringVar(&campaignID, "id", "", "campaign id (required)")
	campaignLaunchCmd.Flags().StringSliceVar(&campaignCandidates, "candidate", nil, "candidate ids to send to (repeatable)")
	_ = campaignLaunchCmd.MarkFlagRequired("id")

	campaignFollowUpsCmd.Flags().StringVar(&campaignID, "id", "", "campaign id (default every active campaign)")
	campaignFollowUpsCmd.Flags().StringVar(&followUpWorkspace, "workspace", "", "limit to one workspace when --id is not set")

	campaignStatusCmd.Flags().StringVar(&campaignID, "id", "", "campaign id (required)")
	_ = campaignStatusCmd.MarkFlagRequired("id")

	campaignCmd.AddCommand(campaignCreateCmd, campaignLaunchCmd, campaignFollowUpsCmd, campaignStatusCmd)
	rootCmd.AddCommand(campaignCmd)
}
