package cli

import (
	"fmt"

	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload local-only history into the remote store",
	Long: `Run the one-time migration of a local-only installation's history into the
remote store. Safe to re-run: steps whose effect is already present remotely
are skipped, and an interrupted run resumes where it left off. Completion is
gated per identity.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.identity.Anonymous {
		return fmt.Errorf("migration requires a signed-in identity; pass --identity or set STREAKD_IDENTITY")
	}
	if a.local.MigratedGate(a.identity.Scope()) {
		fmt.Println("already migrated")
		return nil
	}

	records, err := a.runner.Run(cmd.Context(), a.identity, func(rec domain.MigrationRecord) {
		if rec.Status == domain.MigrationRunning {
			return
		}
		if rec.Detail != "" {
			fmt.Printf("%-20s %s (%s)\n", rec.Step, rec.Status, rec.Detail)
			return
		}
		fmt.Printf("%-20s %s\n", rec.Step, rec.Status)
	})
	if err != nil {
		return err
	}

	done := 0
	for _, rec := range records {
		if rec.Terminal() {
			done++
		}
	}
	fmt.Printf("migration complete: %d/%d steps finished\n", done, len(records))
	return nil
}
