package commands

import (
	"context"
	"fmt"
	"log/slog"
	"transitperf/internal/config"
	"transitperf/internal/pipeline"
	"transitperf/internal/scrapers/dashboard"

	"github.com/spf13/cobra"
)

type scrapeFlags struct {
	dryRun      bool
	allowStale  bool
	driver      string
	dsn         string
	table       string
	concurrency int
	renderer    string
}

var scrapeOpts scrapeFlags

func init() {
	flags := scrapeCmd.Flags()
	flags.BoolVar(&scrapeOpts.dryRun, "dry-run", false, "Scrape and print the rows without writing them.")
	flags.BoolVar(&scrapeOpts.allowStale, "allow-stale", false, "Write rows even if the dashboard has not published yesterday's numbers; their date_updated is then more than one day after metric_date.")
	flags.StringVar(&scrapeOpts.driver, "db-driver", "", "Override the database driver (postgres, sqlite, libsql).")
	flags.StringVar(&scrapeOpts.dsn, "dsn", "", "Override the database connection string.")
	flags.StringVar(&scrapeOpts.table, "table", "", "Override the table rows are written to.")
	flags.IntVar(&scrapeOpts.concurrency, "concurrency", 0, "Override the number of pages rendered at once.")
	flags.StringVar(&scrapeOpts.renderer, "renderer", "", "Override the renderer (chrome, static).")
	rootCmd.AddCommand(scrapeCmd)
}

func (f scrapeFlags) apply(cfg *config.Config) {
	if f.allowStale {
		cfg.AllowStaleReport = true
	}
	if f.driver != "" {
		cfg.Database.Driver = f.driver
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if f.table != "" {
		cfg.Database.Table = f.table
	}
	if f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}
	if f.renderer != "" {
		cfg.Renderer.Kind = f.renderer
	}
}

// newRunner wires the configured renderer, scraper and store into a
// pipeline. The returned close func releases the database.
func newRunner(ctx context.Context, e env, dryRun bool) (pipeline.Runner, func(), error) {
	scraper := dashboard.NewScraper(
		e.cfg.NewRenderer(e.tel),
		e.cfg.Layout,
		e.clock.Location(),
		e.tel,
	)
	opts := pipeline.Options{
		RouteURLs:        e.cfg.RouteURLs(),
		TargetsURL:       e.cfg.TargetsURL,
		Concurrency:      e.cfg.Concurrency,
		AllowStaleReport: e.cfg.AllowStaleReport,
		DryRun:           dryRun,
	}

	if dryRun {
		return pipeline.NewRunner(scraper, nil, e.clock, opts, e.tel), func() {}, nil
	}

	sink, database, err := openStore(ctx, e)
	if err != nil {
		return pipeline.Runner{}, nil, err
	}
	runner := pipeline.NewRunner(scraper, sink, e.clock, opts, e.tel)
	return runner, func() { database.Close() }, nil
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--dry-run] [--db-driver <driver>] [--dsn <dsn>]",
	Short: "Scrapes the dashboard once and writes one row per route.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := loadEnv(ctx, scrapeOpts.apply)
		if err != nil {
			return err
		}
		defer e.Close()

		runner, closeDB, err := newRunner(ctx, e, scrapeOpts.dryRun)
		if err != nil {
			return err
		}
		defer closeDB()

		result, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %s failed (%s): %w", result.RunID, pipeline.FailureKind(err), err)
		}

		renderRows(result.Rows)
		slog.Info(
			"scrape finished",
			"run_id", result.RunID,
			"metric_date", result.MetricDate.String(),
			"written", result.Written,
			"stale", result.Stale,
			"seconds", result.Duration.Seconds(),
		)
		return nil
	},
}
