package cli

import (
	"fmt"
	"time"

	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save item=outcome [item=outcome...]",
	Short: "Record habit outcomes for a day",
	Long: `Record outcomes for one calendar date. The write lands in the local cache
immediately and is pushed to the remote opportunistically; when offline it is
queued for the next reconnect. Saving the same date again overwrites that
day's record.

Outcomes: done, partial, missed, skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSave,
}

var saveDate string

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().StringVar(&saveDate, "date", "", "Date to record (YYYY-MM-DD, default today)")
}

func runSave(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes, err := parseItemArgs(args)
	if err != nil {
		return err
	}

	date := saveDate
	if date == "" {
		date = time.Now().UTC().Format(domain.DateLayout)
	}

	if err := a.controller.Start(cmd.Context(), a.identity); err != nil {
		return err
	}

	clog, _, prefs := a.controller.GetState()
	// Corrections merge into the existing record for the date.
	if existing, ok := clog.Get(date); ok {
		for id, outcome := range existing.Outcomes {
			if _, overridden := outcomes[id]; !overridden {
				outcomes[id] = outcome
			}
		}
	}

	defs := defsFromState(clog, prefs)
	rec := domain.DayRecord{
		Date:        date,
		Outcomes:    outcomes,
		Reward:      rewardFor(outcomes, prefs),
		BaselineMet: baselineMet(outcomes, defs),
	}

	if err := a.controller.SaveDayRecord(rec); err != nil {
		return err
	}
	a.controller.Wait()

	_, agg, _ := a.controller.GetState()
	fmt.Printf("saved %s: reward %d, baseline streak %d\n", date, rec.Reward, agg.BaselineStreak)
	return nil
}
