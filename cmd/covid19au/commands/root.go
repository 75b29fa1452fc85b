package commands

import (
	"context"
	"covid19au/cmd/covid19au/globals"
	"covid19au/internal/components/chrono"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/keymap"
	"covid19au/lib/serviceutil"
	libtelemetry "covid19au/lib/telemetry"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "covid19au",
	Short: "covid19au keeps a daily dataset of the covid-19 figures published for Australia.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "Path of the config file, a .local variant next to it overrides it.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug reports.")
}

func setup(cmd *cobra.Command, _ []string) error {
	libtelemetry.InitSlog(verbose)

	config, err := globals.ReadConfig(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	clock, err := chrono.NewStandardImpl(config.Timezone)
	if err != nil {
		return err
	}
	registry, err := keymap.Load(config.Registry...)
	if err != nil {
		return err
	}
	slog.Debug("loaded key registry", "version", registry.Version)

	t, err := libtelemetry.SetupFromEnv(cmd.Context(), "covid19au")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	cmd.SetContext(globals.Set(cmd.Context(), &globals.Value{
		Config:    config,
		Chrono:    clock,
		Registry:  registry,
		Tel:       telemetry.NewSlogAPI(),
		Telemetry: t,
	}))
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	return globals.Get(cmd.Context()).Telemetry.Shutdown(context.Background())
}

func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		serviceutil.Fatal("command failed", err)
	}
}
