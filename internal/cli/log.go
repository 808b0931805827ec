package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List recorded days in date order",
	RunE:  runLog,
}

var logLimit int

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVar(&logLimit, "limit", 0, "Show only the most recent N days")
}

func runLog(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	scope := a.identity.Scope()
	clog := a.local.ReadLog(scope)
	dates := clog.Dates()
	if logLimit > 0 && len(dates) > logLimit {
		dates = dates[len(dates)-logLimit:]
	}

	for _, date := range dates {
		rec, _ := clog.Get(date)
		items := make([]string, 0, len(rec.Outcomes))
		for id := range rec.Outcomes {
			items = append(items, id)
		}
		sort.Strings(items)
		pairs := make([]string, 0, len(items))
		for _, id := range items {
			pairs = append(pairs, fmt.Sprintf("%s=%s", id, rec.Outcomes[id]))
		}
		marker := " "
		if rec.BaselineMet {
			marker = "*"
		}
		fmt.Printf("%s %s reward=%-4d %s\n", marker, date, rec.Reward, strings.Join(pairs, " "))
	}
	return nil
}
