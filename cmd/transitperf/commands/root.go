package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"transitperf/internal/components/chrono"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/config"
	"transitperf/internal/db"
	"transitperf/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.FileName, "The json5 configuration file, <name>.local.json5 next to it is merged over it.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

var rootCmd = &cobra.Command{
	Use:           "transitperf",
	Short:         "transitperf scrapes the MBTA on-time performance dashboard into a database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(os.Stderr, verbose)
		if verbose {
			slog.Debug("verbose logging enabled")
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command shares once the configuration is read.
type env struct {
	cfg   config.Config
	clock chrono.StandardImpl
	tel   telemetry.API
	otel  telemetry.Telemetry
}

func (e env) Close() {
	err := e.otel.Shutdown(context.Background())
	if err != nil {
		slog.Warn("shutdown telemetry", "err", err)
	}
}

func loadEnv(ctx context.Context, mutate func(*config.Config)) (env, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return env{}, fmt.Errorf("read config: %w", err)
	}
	if mutate != nil {
		mutate(&cfg)
		err = cfg.Validate()
		if err != nil {
			return env{}, fmt.Errorf("flags: %w", err)
		}
	}

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return env{}, err
	}

	otel, err := telemetry.Setup(ctx, "transitperf", cfg.Telemetry)
	if err != nil {
		return env{}, fmt.Errorf("setup telemetry: %w", err)
	}

	return env{
		cfg:   cfg,
		clock: clock,
		tel:   telemetry.SlogAPI{},
		otel:  otel,
	}, nil
}

func openStore(ctx context.Context, e env) (store.Store, *sqlx.DB, error) {
	dsn, err := e.cfg.Database.GetDSN()
	if err != nil {
		return store.Store{}, nil, fmt.Errorf("database: %w", err)
	}
	database, err := db.Open(e.cfg.Database.Driver, dsn)
	if err != nil {
		return store.Store{}, nil, err
	}
	s, err := store.NewStore(database, e.cfg.Database.Table, e.tel)
	if err != nil {
		database.Close()
		return store.Store{}, nil, err
	}
	err = s.EnsureSchema(ctx)
	if err != nil {
		database.Close()
		return store.Store{}, nil, err
	}
	return s, database, nil
}
