package cli

import (
	"fmt"
	"time"

	"github.com/rgoodwin/streakd/internal/snapshot"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local state as a canonical JSON snapshot",
	RunE:  runExport,
}

var exportOut string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "streakd-snapshot.json", "Output file")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	scope := a.identity.Scope()
	snap := snapshot.FromState(
		a.identity,
		a.local.ReadLog(scope),
		a.local.ReadAggregate(scope),
		a.local.ReadPreferences(scope),
		time.Now(),
	)
	if err := snap.WriteFile(exportOut); err != nil {
		return err
	}
	fmt.Printf("exported %d records to %s (%s)\n", len(snap.Records), exportOut, snap.Meta.SnapshotRev)
	return nil
}
