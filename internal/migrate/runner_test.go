package migrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/rgoodwin/streakd/internal/localstore"
	"github.com/rgoodwin/streakd/internal/remote"
	"github.com/rgoodwin/streakd/internal/testutil"
)

// fakeRemote is an in-memory remote.Store. Pushes apply to its state unless a
// failure is injected, so a rerun observes what an earlier run uploaded.
type fakeRemote struct {
	mu      sync.Mutex
	records map[string]domain.DayRecord
	prefs   *domain.UserPreferences
	agg     *domain.AggregateState

	pullErr      error
	failDates    map[string]error
	failPrefs    error
	failAgg      error
	recordPushes int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records:   make(map[string]domain.DayRecord),
		failDates: make(map[string]error),
	}
}

func (f *fakeRemote) Pull(ctx context.Context, identity domain.Identity) (*remote.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	snap := &remote.Snapshot{Aggregate: f.agg, Preferences: f.prefs}
	for _, rec := range f.records {
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

func (f *fakeRemote) PushRecord(ctx context.Context, identity domain.Identity, rec domain.DayRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordPushes++
	if err := f.failDates[rec.Date]; err != nil {
		return err
	}
	f.records[rec.Date] = rec
	return nil
}

func (f *fakeRemote) PushPreferences(ctx context.Context, identity domain.Identity, prefs domain.UserPreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrefs != nil {
		return f.failPrefs
	}
	f.prefs = &prefs
	return nil
}

func (f *fakeRemote) PushAggregate(ctx context.Context, identity domain.Identity, agg domain.AggregateState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAgg != nil {
		return f.failAgg
	}
	f.agg = &agg
	return nil
}

func seedLocal(t *testing.T, local *localstore.Store, scope string, dates ...string) {
	t.Helper()
	clog := domain.NewCanonicalLog()
	for _, date := range dates {
		clog.Upsert(domain.DayRecord{
			Date:     date,
			Outcomes: map[string]domain.Outcome{"exercise": domain.OutcomeDone},
			Reward:   10,
		})
	}
	local.WriteLog(scope, clog)
	local.WritePreferences(scope, domain.UserPreferences{Version: 1, ItemOrder: []string{"exercise"}})
	local.WriteAggregate(scope, domain.AggregateState{TotalReward: int64(10 * len(dates))})
}

func statusFor(records []domain.MigrationRecord, step string) domain.MigrationStatus {
	// The last entry for a step wins; running entries precede outcomes.
	var status domain.MigrationStatus
	for _, rec := range records {
		if rec.Step == step {
			status = rec.Status
		}
	}
	return status
}

var testIdentity = domain.Identity{ID: "user-a"}

func TestRunner_FullMigration(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))
	fake := newFakeRemote()
	seedLocal(t, local, testIdentity.Scope(), "2024-01-01", "2024-01-02")

	records, err := New(local, fake).Run(context.Background(), testIdentity, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, step := range []string{StepPreferences, StepLog, StepAggregates, StepComplete} {
		if got := statusFor(records, step); got != domain.MigrationDone {
			t.Errorf("step %s: expected done, got %s", step, got)
		}
	}
	if len(fake.records) != 2 {
		t.Errorf("expected 2 uploaded records, got %d", len(fake.records))
	}
	if fake.prefs == nil || fake.prefs.Version != 1 {
		t.Errorf("preferences not uploaded: %+v", fake.prefs)
	}
	if fake.agg == nil || fake.agg.TotalReward != 20 {
		t.Errorf("aggregate not uploaded: %+v", fake.agg)
	}
	if !local.MigratedGate(testIdentity.Scope()) {
		t.Error("expected migration gate set after a clean run")
	}
}

func TestRunner_GateShortCircuitsRerun(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))
	fake := newFakeRemote()
	seedLocal(t, local, testIdentity.Scope(), "2024-01-01")
	runner := New(local, fake)

	if _, err := runner.Run(context.Background(), testIdentity, nil); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	pushes := fake.recordPushes

	records, err := runner.Run(context.Background(), testIdentity, nil)
	if err != nil {
		t.Fatalf("gated rerun failed: %v", err)
	}
	if records != nil {
		t.Errorf("gated rerun must be a no-op, got %v", records)
	}
	if fake.recordPushes != pushes {
		t.Errorf("gated rerun must not push: %d -> %d", pushes, fake.recordPushes)
	}
}

func TestRunner_FailureAbortsAndLeavesGateUnset(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))
	fake := newFakeRemote()
	seedLocal(t, local, testIdentity.Scope(), "2024-01-01", "2024-01-02")
	fake.failDates["2024-01-02"] = &domain.TransientError{Op: "push", Err: errors.New("timeout")}

	records, err := New(local, fake).Run(context.Background(), testIdentity, nil)
	if err == nil {
		t.Fatal("expected Run to fail")
	}

	if got := statusFor(records, StepLog); got != domain.MigrationError {
		t.Errorf("expected log step error, got %s", got)
	}
	for _, step := range []string{StepAggregates, StepComplete} {
		if got := statusFor(records, step); got != domain.MigrationPending {
			t.Errorf("step %s after abort: expected pending, got %s", step, got)
		}
	}
	if local.MigratedGate(testIdentity.Scope()) {
		t.Error("gate must stay unset after a failed run")
	}
}

func TestRunner_ResumesWithoutDuplicates(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))
	fake := newFakeRemote()
	seedLocal(t, local, testIdentity.Scope(), "2024-01-01", "2024-01-02", "2024-01-03")
	fake.failDates["2024-01-03"] = &domain.TransientError{Op: "push", Err: errors.New("timeout")}
	runner := New(local, fake)

	if _, err := runner.Run(context.Background(), testIdentity, nil); err == nil {
		t.Fatal("expected interrupted run to fail")
	}

	// Connectivity restored; the rerun must skip what already landed and
	// upload only the missing record.
	delete(fake.failDates, "2024-01-03")
	pushesBefore := fake.recordPushes
	records, err := runner.Run(context.Background(), testIdentity, nil)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	if got := statusFor(records, StepPreferences); got != domain.MigrationSkipped {
		t.Errorf("preferences on resume: expected skipped, got %s", got)
	}
	if got := statusFor(records, StepLog); got != domain.MigrationDone {
		t.Errorf("log on resume: expected done, got %s", got)
	}
	if got := fake.recordPushes - pushesBefore; got != 1 {
		t.Errorf("expected exactly 1 record push on resume, got %d", got)
	}
	if len(fake.records) != 3 {
		t.Errorf("expected all 3 records remote, got %d", len(fake.records))
	}
	if !local.MigratedGate(testIdentity.Scope()) {
		t.Error("gate must be set once every step is done or skipped")
	}
}

func TestRunner_EmptyLocalSkipsEverything(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))
	fake := newFakeRemote()

	records, err := New(local, fake).Run(context.Background(), testIdentity, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, step := range []string{StepPreferences, StepLog, StepAggregates} {
		if got := statusFor(records, step); got != domain.MigrationSkipped {
			t.Errorf("step %s: expected skipped, got %s", step, got)
		}
	}
	if !local.MigratedGate(testIdentity.Scope()) {
		t.Error("an empty migration still completes and sets the gate")
	}
}

func TestRunner_RequiresIdentity(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))

	if _, err := New(local, newFakeRemote()).Run(context.Background(), domain.Identity{}, nil); err == nil {
		t.Error("expected error for zero identity")
	}
}

func TestRunner_ProgressCallbackObservesSteps(t *testing.T) {
	local := localstore.New(testutil.TempDB(t))
	fake := newFakeRemote()
	seedLocal(t, local, testIdentity.Scope(), "2024-01-01")

	var seen []string
	_, err := New(local, fake).Run(context.Background(), testIdentity, func(rec domain.MigrationRecord) {
		seen = append(seen, rec.Step+":"+string(rec.Status))
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(seen) == 0 {
		t.Fatal("expected progress callbacks")
	}
	last := seen[len(seen)-1]
	if last != StepComplete+":done" {
		t.Errorf("expected final callback %s:done, got %s", StepComplete, last)
	}
}
