package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rgoodwin/streakd/internal/config"
	"github.com/rgoodwin/streakd/internal/connectivity"
	"github.com/rgoodwin/streakd/internal/controller"
	"github.com/rgoodwin/streakd/internal/db"
	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/rgoodwin/streakd/internal/localstore"
	"github.com/rgoodwin/streakd/internal/migrate"
	"github.com/rgoodwin/streakd/internal/pending"
	"github.com/rgoodwin/streakd/internal/remote"
	"github.com/spf13/cobra"
)

// defaultItemReward is the per-success reward used when a preference
// override does not set one.
const defaultItemReward int64 = 10

// app wires the engine's components for one CLI invocation.
type app struct {
	cfg        *config.Config
	database   *db.DB
	local      *localstore.Store
	queue      *pending.Queue
	remote     remote.Store
	monitor    *connectivity.Monitor
	runner     *migrate.Runner
	controller *controller.Controller
	identity   domain.Identity
}

// openApp builds the full component stack from config and flags.
func openApp(cmd *cobra.Command) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, err
	}

	local := localstore.New(database)
	queue := pending.New(database)
	remoteStore := remote.NewHTTPStore(cfg.RemoteURL, cfg.RemoteToken)
	// A configured remote is assumed reachable until a call proves
	// otherwise; the first failed call flips the monitor.
	monitor := connectivity.NewMonitor(cfg.RemoteURL != "")
	runner := migrate.New(local, remoteStore)

	identity := resolveIdentity(cmd, local)
	scope := identity.Scope()
	defs := defsFromState(local.ReadLog(scope), local.ReadPreferences(scope))

	ctrl, err := controller.New(controller.Options{
		Local:       local,
		Queue:       queue,
		Remote:      remoteStore,
		Monitor:     monitor,
		Migrator:    runner,
		Definitions: defs,
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	a := &app{
		cfg:        cfg,
		database:   database,
		local:      local,
		queue:      queue,
		remote:     remoteStore,
		monitor:    monitor,
		runner:     runner,
		controller: ctrl,
		identity:   identity,
	}
	cleanup := func() {
		ctrl.Close()
		database.Close()
	}
	return a, cleanup, nil
}

// resolveIdentity picks the active identity: --identity flag, then
// STREAKD_IDENTITY, then the last identity seen on this device, then an
// anonymous device-local identity.
func resolveIdentity(cmd *cobra.Command, local *localstore.Store) domain.Identity {
	id, _ := cmd.Flags().GetString("identity")
	if id == "" {
		id = os.Getenv("STREAKD_IDENTITY")
	}
	if id != "" {
		return domain.Identity{ID: id, Anonymous: strings.HasPrefix(id, "local-")}
	}
	m := local.ReadIdentityMap()
	if !m.LastIdentity.IsZero() {
		return m.LastIdentity
	}
	return domain.Identity{ID: "local-" + m.DeviceID, Anonymous: true}
}

// defsFromState derives tracked-item definitions from preferences plus every
// item id the log has seen. The business layer owns real definitions; the
// CLI reconstructs a workable set from recorded state.
func defsFromState(clog domain.CanonicalLog, prefs domain.UserPreferences) []domain.TrackedItemDefinition {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range prefs.ItemOrder {
		add(id)
	}
	overrideIDs := make([]string, 0, len(prefs.ItemOverrides))
	for id := range prefs.ItemOverrides {
		overrideIDs = append(overrideIDs, id)
	}
	sort.Strings(overrideIDs)
	for _, id := range overrideIDs {
		add(id)
	}
	for _, date := range clog.Dates() {
		rec, _ := clog.Get(date)
		recIDs := make([]string, 0, len(rec.Outcomes))
		for id := range rec.Outcomes {
			recIDs = append(recIDs, id)
		}
		sort.Strings(recIDs)
		for _, id := range recIDs {
			add(id)
		}
	}

	defs := make([]domain.TrackedItemDefinition, 0, len(ids))
	for _, id := range ids {
		def := domain.TrackedItemDefinition{ID: id, Title: id, Active: true}
		if ov, ok := prefs.ItemOverrides[id]; ok {
			if ov.Title != "" {
				def.Title = ov.Title
			}
			if ov.Active != nil {
				def.Active = *ov.Active
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// rewardFor is the CLI's reward producer: a flat per-success amount,
// overridable per item through preferences.
func rewardFor(outcomes map[string]domain.Outcome, prefs domain.UserPreferences) int64 {
	var total int64
	for id, outcome := range outcomes {
		if outcome != domain.OutcomeDone {
			continue
		}
		amount := defaultItemReward
		if ov, ok := prefs.ItemOverrides[id]; ok && ov.Reward != nil {
			amount = *ov.Reward
		}
		total += amount
	}
	return total
}

// baselineMet reports whether every active item has a successful outcome.
func baselineMet(outcomes map[string]domain.Outcome, defs []domain.TrackedItemDefinition) bool {
	any := false
	for _, def := range defs {
		if !def.Active {
			continue
		}
		any = true
		if !def.Satisfied(outcomes[def.ID]) {
			return false
		}
	}
	return any
}

func todayUTC() string {
	return time.Now().UTC().Format(domain.DateLayout)
}

func deref(a *domain.AggregateState) domain.AggregateState {
	if a == nil {
		return domain.AggregateState{}
	}
	return *a
}

func derefPrefs(p *domain.UserPreferences) domain.UserPreferences {
	if p == nil {
		return domain.UserPreferences{}
	}
	return *p
}

// parseItemArgs parses repeated "item=outcome" pairs.
func parseItemArgs(args []string) (map[string]domain.Outcome, error) {
	outcomes := make(map[string]domain.Outcome, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid item %q: expected item=outcome", arg)
		}
		outcome := domain.Outcome(parts[1])
		if err := domain.ValidateOutcome(outcome); err != nil {
			return nil, err
		}
		outcomes[parts[0]] = outcome
	}
	return outcomes, nil
}
