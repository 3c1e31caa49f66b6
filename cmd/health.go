package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/service"
)

func newHealthCmd(factory service.ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Inspect or recompute organisation health",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show ORG_ID",
		Short: "Show the cached health snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, _ config.Interface, c *service.Components) error {
				view, err := c.Health.Get(ctx, args[0])
				if errors.Is(err, schemas.ErrNotFound) {
					return fmt.Errorf("health not yet computed for organisation %s", args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	})

	var all bool
	recompute := &cobra.Command{
		Use:   "recompute [ORG_ID]",
		Short: "Recompute health for one organisation, or all with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass either ORG_ID or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("requires ORG_ID or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, cfg config.Interface, c *service.Components) error {
				if all {
					n, err := c.Health.RecomputeAll(ctx, cfg.Worker().Concurrency)
					fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d organisation(s)\n", n)
					return err
				}
				snap, err := c.Health.Recompute(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snap)
			})
		},
	}
	recompute.Flags().BoolVar(&all, "all", false, "recompute every organisation")
	cmd.AddCommand(recompute)
	return cmd
}
