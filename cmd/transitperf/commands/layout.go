package commands

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(layoutCmd)
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Prints the selectors and positions the scraper expects the dashboard to have.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer e.Close()

		l := e.cfg.Layout
		pos := l.TrailingPositions

		fmt.Printf("layout version %s\n", l.Version)
		t := newTable()
		t.AppendHeader(table.Row{"Field", "Selector", "Position"})
		t.AppendRows([]table.Row{
			{"heading", l.TrailingSelector, strconv.Itoa(pos.Heading)},
			{"report date", l.TrailingSelector, strconv.Itoa(pos.ReportDate)},
			{"past day", l.TrailingSelector, strconv.Itoa(pos.PastDay)},
			{"past 7", l.TrailingSelector, strconv.Itoa(pos.Past7)},
			{"past 30", l.TrailingSelector, strconv.Itoa(pos.Past30)},
			{"route cell", l.RouteCellSelector, "-"},
			{"series cell", l.SeriesCellSelector, "even: actual, odd: target"},
		})
		t.AppendFooter(table.Row{"", "minimum trailing nodes", strconv.Itoa(pos.MinNodes())})
		t.Render()
		return nil
	},
}
