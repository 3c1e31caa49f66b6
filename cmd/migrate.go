package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/observability"
	"github.com/xkilldash9x/trustscore/internal/service"
	"github.com/xkilldash9x/trustscore/internal/store"
)

func newMigrateCmd(factory service.ComponentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, _ config.Interface, c *service.Components) error {
				if c.DBPool == nil {
					return errors.New("no database pool configured")
				}
				if err := store.Migrate(ctx, c.DBPool); err != nil {
					return err
				}
				observability.GetLogger().Info("Schema applied")
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}
