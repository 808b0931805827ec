package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "streakd",
	Short: "Offline-first habit tracker with a reconciling sync engine",
	Long: `streakd tracks daily habit outcomes in a local SQLite cache and keeps it
consistent with an authoritative remote store. Writes always land locally
first; the engine reconciles with the remote opportunistically and never
lets a blank remote erase local history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides STREAKD_DB_PATH)")
	rootCmd.PersistentFlags().String("identity", "", "Identity to operate as (overrides STREAKD_IDENTITY)")
}
