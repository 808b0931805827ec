// Package migrate performs the one-time transfer of a local-only
// installation's history into the remote store. Every step is independently
// retryable and checked against the remote before writing, so an interrupted
// run resumes safely and a repeated run duplicates nothing.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/rgoodwin/streakd/internal/localstore"
	"github.com/rgoodwin/streakd/internal/remote"
)

// Step names, in execution order.
const (
	StepPreferences = "upload-preferences"
	StepLog         = "upload-log"
	StepAggregates  = "upload-aggregates"
	StepComplete    = "mark-complete"
)

// ErrAlreadyRunning is returned when a migration is requested while another
// run for any identity is still in flight on this device.
var ErrAlreadyRunning = errors.New("migration already in progress")

// Runner uploads local state to the remote store exactly once per identity,
// gated by the persisted migrated flag.
type Runner struct {
	local  *localstore.Store
	remote remote.Store

	mu      sync.Mutex
	running bool
}

// New creates a Runner.
func New(local *localstore.Store, remoteStore remote.Store) *Runner {
	return &Runner{local: local, remote: remoteStore}
}

// Run executes the fixed step list for the identity, streaming progress
// through onProgress (which may be nil). A step whose effect is already
// present remotely reports skipped. A failing step records error, aborts the
// remaining steps, and leaves the gate unset so the next attempt restarts
// from scratch. The gate is set only once every step is done or skipped.
func (r *Runner) Run(ctx context.Context, identity domain.Identity, onProgress func(domain.MigrationRecord)) ([]domain.MigrationRecord, error) {
	if identity.IsZero() {
		return nil, fmt.Errorf("migration requires an identity")
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	scope := identity.Scope()
	if r.local.MigratedGate(scope) {
		// Terminal; nothing to transfer.
		return nil, nil
	}

	emit := func(rec domain.MigrationRecord) domain.MigrationRecord {
		if onProgress != nil {
			onProgress(rec)
		}
		return rec
	}

	var records []domain.MigrationRecord
	fail := func(step string, err error) ([]domain.MigrationRecord, error) {
		records = append(records, emit(domain.MigrationRecord{
			Step:   step,
			Status: domain.MigrationError,
			Detail: err.Error(),
		}))
		for _, rest := range remainingSteps(step) {
			records = append(records, emit(domain.MigrationRecord{Step: rest, Status: domain.MigrationPending}))
		}
		return records, fmt.Errorf("migration step %s: %w", step, err)
	}

	// One pull up front provides the presence checks for every step.
	emit(domain.MigrationRecord{Step: StepPreferences, Status: domain.MigrationRunning})
	snap, err := r.remote.Pull(ctx, identity)
	if err != nil {
		return fail(StepPreferences, err)
	}

	// upload-preferences
	prefs := r.local.ReadPreferences(scope)
	switch {
	case snap.Preferences != nil && !snap.Preferences.IsZero():
		records = append(records, emit(domain.MigrationRecord{
			Step: StepPreferences, Status: domain.MigrationSkipped, Detail: "remote already has preferences",
		}))
	case prefs.IsZero():
		records = append(records, emit(domain.MigrationRecord{
			Step: StepPreferences, Status: domain.MigrationSkipped, Detail: "nothing to upload",
		}))
	default:
		if err := r.remote.PushPreferences(ctx, identity, prefs); err != nil {
			return fail(StepPreferences, err)
		}
		records = append(records, emit(domain.MigrationRecord{Step: StepPreferences, Status: domain.MigrationDone}))
	}

	// upload-log: push only the dates the remote is missing.
	emit(domain.MigrationRecord{Step: StepLog, Status: domain.MigrationRunning})
	clog := r.local.ReadLog(scope)
	remoteDates := make(map[string]bool, len(snap.Records))
	for _, rec := range snap.Records {
		remoteDates[rec.Date] = true
	}
	var missing []string
	for _, date := range clog.Dates() {
		if !remoteDates[date] {
			missing = append(missing, date)
		}
	}
	switch {
	case clog.IsEmpty():
		records = append(records, emit(domain.MigrationRecord{
			Step: StepLog, Status: domain.MigrationSkipped, Detail: "nothing to upload",
		}))
	case len(missing) == 0:
		records = append(records, emit(domain.MigrationRecord{
			Step: StepLog, Status: domain.MigrationSkipped, Detail: "remote already has every record",
		}))
	default:
		for _, date := range missing {
			rec, _ := clog.Get(date)
			if err := r.remote.PushRecord(ctx, identity, rec); err != nil {
				return fail(StepLog, err)
			}
		}
		records = append(records, emit(domain.MigrationRecord{
			Step: StepLog, Status: domain.MigrationDone,
			Detail: fmt.Sprintf("uploaded %d of %d records", len(missing), clog.Len()),
		}))
	}

	// upload-aggregates
	emit(domain.MigrationRecord{Step: StepAggregates, Status: domain.MigrationRunning})
	agg := r.local.ReadAggregate(scope)
	switch {
	case snap.Aggregate != nil && !snap.Aggregate.IsZero():
		records = append(records, emit(domain.MigrationRecord{
			Step: StepAggregates, Status: domain.MigrationSkipped, Detail: "remote already has aggregates",
		}))
	case agg.IsZero():
		records = append(records, emit(domain.MigrationRecord{
			Step: StepAggregates, Status: domain.MigrationSkipped, Detail: "nothing to upload",
		}))
	default:
		if err := r.remote.PushAggregate(ctx, identity, agg); err != nil {
			return fail(StepAggregates, err)
		}
		records = append(records, emit(domain.MigrationRecord{Step: StepAggregates, Status: domain.MigrationDone}))
	}

	// mark-complete: reached only when every prior step is done or skipped.
	r.local.SetMigratedGate(scope, true)
	records = append(records, emit(domain.MigrationRecord{Step: StepComplete, Status: domain.MigrationDone}))
	log.Printf("migrate: completed for %s (%d records local)", scope, clog.Len())

	return records, nil
}

func remainingSteps(after string) []string {
	order := []string{StepPreferences, StepLog, StepAggregates, StepComplete}
	for i, step := range order {
		if step == after {
			return order[i+1:]
		}
	}
	return nil
}
