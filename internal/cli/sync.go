package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle against the remote store",
	Long: `Run a full reconciliation cycle: one-time migration if not yet done, drain
of queued writes, remote pull, non-destructive merge, aggregate recompute,
and republish of the converged state to both stores.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.controller.Start(cmd.Context(), a.identity); err != nil {
		return err
	}
	a.controller.Wait()

	clog, agg, _ := a.controller.GetState()
	fmt.Printf("state: %s, records: %d, reward: %d\n", a.controller.Status(), clog.Len(), agg.TotalReward)
	if notice := a.controller.Notice(); notice != "" {
		fmt.Printf("notice: %s\n", notice)
	}
	return nil
}

func sortedStreakIDs(streaks map[string]int) []string {
	ids := make([]string, 0, len(streaks))
	for id := range streaks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
