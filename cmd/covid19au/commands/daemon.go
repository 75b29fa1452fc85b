package commands

import (
	"context"
	"covid19au/cmd/covid19au/globals"
	"covid19au/internal/components/chrono"
	"covid19au/lib/alert"
	libtelemetry "covid19au/lib/telemetry"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

const report_daemon_run = "daemon.run"

var (
	daemonNow  bool
	daemonMode string
)

func init() {
	daemonCmd.Flags().BoolVar(&daemonNow, "now", false, "Also scrape once on startup.")
	daemonCmd.Flags().StringVar(&daemonMode, "mode", "", "Scrape mode, defaults to the configured mode.")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Scrapes on the configured schedule until interrupted, failures are mailed when alerts are configured.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g := globals.Get(ctx)

		fetcher, err := g.Fetcher(daemonMode, false)
		if err != nil {
			return err
		}
		runner := g.Runner()
		mailer := alert.NewMailer(g.Config.Alert)

		scrape := func() {
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()

			result, err := runner.Run(runCtx, fetcher)
			if err == nil {
				slog.Info("scheduled scrape finished", "run_id", result.RunID, "date", result.Date.String(), "keys", result.Keys)
				return
			}
			g.Tel.ReportBroken(report_daemon_run, err, result.RunID)

			subject, body := alert.Failure("scheduled scrape", err)
			err = mailer.Send(ctx, subject, body)
			if err != nil {
				g.Tel.ReportBroken(report_daemon_run, err)
			}
		}

		libtelemetry.InstrumentPerfStats(ctx, time.Minute)

		cron := chrono.NewStandardCron(g.Tel, g.Chrono)
		err = cron.Cron(g.Config.Schedule, scrape)
		if err != nil {
			return err
		}
		slog.Info("daemon started", "schedule", g.Config.Schedule, "timezone", g.Chrono.Location().String(), "alerts", mailer.Enabled())

		if daemonNow {
			scrape()
		}

		<-ctx.Done()
		<-cron.Stop().Done()
		return nil
	},
}
