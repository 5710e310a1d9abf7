package commands

import (
	"fmt"
	"transitperf/internal/performance"

	"github.com/spf13/cobra"
)

var (
	historyFrom string
	historyTo   string
)

func init() {
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "First metric date (YYYY-MM-DD), defaults to a week before --to.")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "Last metric date (YYYY-MM-DD), defaults to yesterday.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--from <date>] [--to <date>]",
	Short: "Prints the stored rows of a range of metric dates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := loadEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		to := performance.DateOf(e.clock.Now()).AddDays(-1)
		if historyTo != "" {
			to, err = performance.ParseDate(historyTo)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}
		from := to.AddDays(-7)
		if historyFrom != "" {
			from, err = performance.ParseDate(historyFrom)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
		}
		if to.Before(from) {
			return fmt.Errorf("--from %s is after --to %s", from, to)
		}

		s, database, err := openStore(ctx, e)
		if err != nil {
			return err
		}
		defer database.Close()

		rows, err := s.Pull(ctx, from, to)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Printf("no rows between %s and %s\n", from, to)
			return nil
		}
		renderRows(rows)
		return nil
	},
}
