package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status and derived aggregates",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.controller.Start(cmd.Context(), a.identity); err != nil {
		return err
	}

	_, agg, _ := a.controller.GetState()
	scope := a.identity.Scope()
	pendingCount, _ := a.queue.Len(scope)

	fmt.Printf("identity:        %s", a.identity.ID)
	if a.identity.Anonymous {
		fmt.Printf(" (local-only)")
	}
	fmt.Println()
	fmt.Printf("sync state:      %s\n", a.controller.Status())
	fmt.Printf("migrated:        %t\n", a.local.MigratedGate(scope))
	fmt.Printf("pending writes:  %d\n", pendingCount)
	fmt.Printf("total reward:    %d (%s)\n", agg.TotalReward, agg.Tier)
	fmt.Printf("baseline streak: %d\n", agg.BaselineStreak)
	for _, id := range sortedStreakIDs(agg.ItemStreaks) {
		fmt.Printf("  %-14s %d\n", id, agg.ItemStreaks[id])
	}
	if notice := a.controller.Notice(); notice != "" {
		fmt.Printf("notice:          %s\n", notice)
	}
	return nil
}
