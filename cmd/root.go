// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/observability"
	"github.com/xkilldash9x/trustscore/internal/service"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// newRootCmd builds a fresh command tree. The factory is injected so tests can
// run commands without a database.
func newRootCmd(factory service.ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trustscore",
		Short:   "Trust scoring and organisational health engine.",
		Version: Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "trustscore"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting trustscore", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or $HOME/.trustscore/config.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newServeCmd(factory))
	cmd.AddCommand(newMigrateCmd(factory))
	cmd.AddCommand(newSweepCmd(factory))
	cmd.AddCommand(newHealthCmd(factory))
	cmd.AddCommand(newPoliciesCmd(factory))
	cmd.AddCommand(newQuestionsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) {
	err := newRootCmd(service.NewComponentFactory()).ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initializeConfig reads in the config file and TRUSTSCORE_* environment variables.
func initializeConfig(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.trustscore")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("TRUSTSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// withComponents loads config, builds components and tears them down after fn.
func withComponents(cmd *cobra.Command, factory service.ComponentFactory, fn func(ctx context.Context, cfg config.Interface, c *service.Components) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	return fn(ctx, cfg, components)
}
