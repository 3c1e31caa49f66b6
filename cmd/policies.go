package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/reassessment"
	"github.com/xkilldash9x/trustscore/internal/service"
)

func newPoliciesCmd(factory service.ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List or override reassessment policies",
	}
	cmd.AddCommand(newPoliciesListCmd(factory), newPoliciesUpsertCmd(factory))
	return cmd
}

func newPoliciesListCmd(factory service.ComponentFactory) *cobra.Command {
	var assessmentType string
	cmd := &cobra.Command{
		Use:   "list ORG_ID",
		Short: "List an organisation's policies with their derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *schemas.AssessmentType
			if assessmentType != "" {
				t := schemas.AssessmentType(assessmentType)
				if !t.Valid() {
					return fmt.Errorf("unknown assessment type %q", assessmentType)
				}
				filter = &t
			}
			return withComponents(cmd, factory, func(ctx context.Context, _ config.Interface, c *service.Components) error {
				policies, err := c.Scheduler.ListPolicies(ctx, args[0], filter)
				if err != nil {
					return err
				}
				if policies == nil {
					policies = []schemas.ReassessmentPolicy{}
				}
				return printJSON(cmd.OutOrStdout(), policies)
			})
		},
	}
	cmd.Flags().StringVar(&assessmentType, "type", "", "filter by assessment type")
	return cmd
}

func newPoliciesUpsertCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		req           reassessment.UpsertRequest
		assessment    string
		lastCompleted string
	)
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or override a reassessment policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AssessmentType = schemas.AssessmentType(assessment)
			if lastCompleted != "" {
				ts, err := time.Parse(time.RFC3339, lastCompleted)
				if err != nil {
					return fmt.Errorf("invalid --last-completed: %w", err)
				}
				req.LastCompletedAt = &ts
			}
			return withComponents(cmd, factory, func(ctx context.Context, _ config.Interface, c *service.Components) error {
				policy, err := c.Scheduler.Upsert(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), policy)
			})
		},
	}
	cmd.Flags().StringVar(&req.OrgID, "org", "", "organisation id")
	cmd.Flags().StringVar(&req.TargetID, "target", "", "assessed target id")
	cmd.Flags().StringVar(&assessment, "type", "", "assessment type")
	cmd.Flags().IntVar(&req.FrequencyDays, "frequency", 0, "reassessment frequency in days")
	cmd.Flags().StringVar(&lastCompleted, "last-completed", "", "last completion time (RFC3339)")
	cmd.Flags().StringVar(&req.Actor, "actor", "", "operator identity recorded in the audit trail")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "reason recorded in the audit trail")
	for _, name := range []string{"org", "target", "type", "frequency", "actor", "reason"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
