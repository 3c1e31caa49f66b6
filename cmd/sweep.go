package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/service"
)

func newSweepCmd(factory service.ComponentFactory) *cobra.Command {
	var actor, reason string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the expiry and overdue action sweep once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, _ config.Interface, c *service.Components) error {
				result, err := c.Scheduler.SweepExpiry(ctx, actor, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "operator identity recorded in the audit trail")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
