package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/observability"
	"github.com/xkilldash9x/trustscore/internal/server"
	"github.com/xkilldash9x/trustscore/internal/service"
	"github.com/xkilldash9x/trustscore/internal/worker"
)

func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		addr     string
		noWorker bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, cfg config.Interface, c *service.Components) error {
				if addr != "" {
					cfg.SetServerAddr(addr)
				}
				if noWorker {
					cfg.SetWorkerEnabled(false)
				}
				return serve(ctx, cfg, c)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "disable the periodic sweep and health jobs")
	return cmd
}

// serve blocks until ctx is cancelled or the HTTP server fails.
func serve(ctx context.Context, cfg config.Interface, c *service.Components) error {
	logger := observability.GetLogger()

	var runner *worker.Runner
	if cfg.Worker().Enabled {
		runner = worker.NewRunner(cfg.Worker(), c.Scheduler, c.Health, logger)
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		defer runner.Stop()
	}

	srv := server.New(c.Engine, c.Health, c.Scheduler, cfg.Server(), Version, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server().ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	if err := <-errCh; err != nil {
		logger.Warn("HTTP server exited with error", zap.Error(err))
	}
	return nil
}
