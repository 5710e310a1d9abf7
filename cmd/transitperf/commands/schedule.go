package commands

import (
	"log/slog"
	"transitperf/internal/components/chrono"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/config"
	"transitperf/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	scheduleSpec string
	scheduleNow  bool
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "Override the cron spec, evaluated in the configured timezone.")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also scrape once immediately.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--cron <spec>] [--now]",
	Short: "Scrapes the dashboard on a cron schedule until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := loadEnv(ctx, func(cfg *config.Config) {
			if scheduleSpec != "" {
				cfg.Schedule = scheduleSpec
			}
		})
		if err != nil {
			return err
		}
		defer e.Close()

		telemetry.InstrumentPerfStats(ctx, e.tel)

		runner, closeDB, err := newRunner(ctx, e, false)
		if err != nil {
			return err
		}
		defer closeDB()

		scrape := func() {
			result, err := runner.Run(ctx)
			if err != nil {
				slog.Error("scheduled scrape failed", "run_id", result.RunID, "kind", pipeline.FailureKind(err), "err", err)
				return
			}
			slog.Info("scheduled scrape finished", "run_id", result.RunID, "metric_date", result.MetricDate.String(), "rows", len(result.Rows))
		}

		cron := chrono.NewStandardCron(e.clock, e.tel)
		defer cron.Stop()
		err = cron.Cron(e.cfg.Schedule, scrape)
		if err != nil {
			return err
		}
		slog.Info("scheduled", "cron", e.cfg.Schedule, "timezone", e.cfg.Timezone)

		if scheduleNow {
			go scrape()
		}
		<-ctx.Done()
		return nil
	},
}
