package cli

import (
	"fmt"
	"time"

	"github.com/rgoodwin/streakd/internal/snapshot"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show a unified diff of local state against the remote store",
	Long: `Compare the local cache with the remote store's snapshot for the active
identity. Use before 'streakd upload' or 'streakd download' to inspect what a
manual overwrite would change.`,
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	scope := a.identity.Scope()
	now := time.Now()
	localSnap := snapshot.FromState(
		a.identity,
		a.local.ReadLog(scope),
		a.local.ReadAggregate(scope),
		a.local.ReadPreferences(scope),
		now,
	)

	pulled, err := a.remote.Pull(cmd.Context(), a.identity)
	if err != nil {
		return err
	}
	remoteLog := pulled.Log()
	var remoteAgg, remotePrefs = pulled.Aggregate, pulled.Preferences
	remoteSnap := snapshot.FromState(a.identity, remoteLog, deref(remoteAgg), derefPrefs(remotePrefs), now)

	text, err := snapshot.Diff(remoteSnap, localSnap, "remote", "local")
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("local and remote are identical")
		return nil
	}
	fmt.Print(text)
	return nil
}
