// Package controller orchestrates the local cache, pending queue, remote
// adapter, migration runner, and recalculator into one reconciliation state
// machine. Every remote failure is caught at this boundary and degrades to
// serving the last known-good local snapshot.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rgoodwin/streakd/internal/connectivity"
	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/rgoodwin/streakd/internal/localstore"
	"github.com/rgoodwin/streakd/internal/migrate"
	"github.com/rgoodwin/streakd/internal/pending"
	"github.com/rgoodwin/streakd/internal/recalc"
	"github.com/rgoodwin/streakd/internal/remote"
)

// State is the controller's sync status, observable via OnSyncStatusChange.
type State string

const (
	StateColdStart State = "cold-start"
	StateLoading   State = "loading"
	StateSyncing   State = "syncing"
	StateConverged State = "converged"
	StateOffline   State = "offline"
	StateError     State = "error"
)

const remoteCallTimeout = 15 * time.Second

// Target keys for pending operations.
const (
	targetPreferences = "preferences"
	targetAggregate   = "aggregate"
)

func recordTargetKey(date string) string {
	return "record/" + date
}

// Options configures a Controller. Local, Queue, Remote, and Monitor are
// required; Migrator and Definitions may be nil/empty; Now defaults to
// time.Now.
type Options struct {
	Local       *localstore.Store
	Queue       *pending.Queue
	Remote      remote.Store
	Monitor     *connectivity.Monitor
	Migrator    *migrate.Runner
	Definitions []domain.TrackedItemDefinition
	Now         func() time.Time
}

// Controller is the engine's public contract. A single instance serializes
// all writes for the device.
type Controller struct {
	local    *localstore.Store
	queue    *pending.Queue
	remote   remote.Store
	monitor  *connectivity.Monitor
	migrator *migrate.Runner
	defs     []domain.TrackedItemDefinition
	now      func() time.Time

	mu           sync.Mutex
	state        State
	notice       string
	identity     domain.Identity
	prevIdentity domain.Identity
	clog         domain.CanonicalLog
	agg          domain.AggregateState
	prefs        domain.UserPreferences
	started      bool
	syncing      bool
	draining     bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	unsubMonitor func()
	wg           sync.WaitGroup
}

// New creates a Controller in the cold-start state and subscribes it to
// connectivity edges.
func New(opts Options) (*Controller, error) {
	if opts.Local == nil || opts.Queue == nil || opts.Remote == nil || opts.Monitor == nil {
		return nil, fmt.Errorf("controller requires local store, queue, remote store, and connectivity monitor")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Controller{
		local:    opts.Local,
		queue:    opts.Queue,
		remote:   opts.Remote,
		monitor:  opts.Monitor,
		migrator: opts.Migrator,
		defs:     opts.Definitions,
		now:      now,
		state:    StateColdStart,
		clog:     domain.NewCanonicalLog(),
		subs:     make(map[int]func(State)),
	}
	c.unsubMonitor = c.monitor.OnChange(func(online bool) {
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if !started {
			// No identity yet; Start will read the monitor itself.
			return
		}
		if online {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				if err := c.Sync(context.Background()); err != nil {
					log.Printf("sync: reconnect cycle failed: %v", err)
				}
			}()
			return
		}
		c.transition(StateOffline)
	})
	return c, nil
}

// Close detaches the controller from the connectivity monitor and waits for
// detached remote writes to settle.
func (c *Controller) Close() {
	if c.unsubMonitor != nil {
		c.unsubMonitor()
	}
	c.wg.Wait()
}

// Wait blocks until in-flight background pushes finish. Fire-and-forget
// writes stay invisible to callers; this exists for orderly shutdown.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Start performs the cold-start sequence: a synchronous local read for
// instant display, identity-switch detection against the persisted identity
// map, then a sync cycle when online.
func (c *Controller) Start(ctx context.Context, identity domain.Identity) error {
	c.transition(StateLoading)

	c.mu.Lock()
	m := c.local.ReadIdentityMap()
	prev := m.LastIdentity
	if isIdentitySwitch(prev, identity) {
		mismatch := &domain.IdentityMismatchError{Previous: prev.ID, Current: identity.ID}
		log.Printf("sync: %v", mismatch)
		c.local.Clear(prev.Scope())
	}
	m.LastIdentity = identity
	c.local.WriteIdentityMap(m)
	c.identity = identity
	c.prevIdentity = prev
	c.started = true
	c.loadLocalLocked()
	online := c.monitor.IsOnline()
	c.mu.Unlock()

	if !online {
		c.transition(StateOffline)
		return nil
	}
	return c.Sync(ctx)
}

// SetIdentity switches the active identity at runtime (sign-in, sign-out,
// account change). A switch between two distinct real identities clears the
// previous identity's local scope before the new identity's data loads; a
// transition from "no identity yet" is not a switch and never wipes.
func (c *Controller) SetIdentity(ctx context.Context, identity domain.Identity) error {
	c.mu.Lock()
	prev := c.identity
	if prev.ID == identity.ID && prev.Anonymous == identity.Anonymous {
		c.mu.Unlock()
		return nil
	}
	if isIdentitySwitch(prev, identity) {
		mismatch := &domain.IdentityMismatchError{Previous: prev.ID, Current: identity.ID}
		log.Printf("sync: %v", mismatch)
		c.local.Clear(prev.Scope())
	}
	m := c.local.ReadIdentityMap()
	m.LastIdentity = identity
	c.local.WriteIdentityMap(m)
	c.prevIdentity = prev
	c.identity = identity
	c.started = true
	c.loadLocalLocked()
	online := c.monitor.IsOnline()
	c.mu.Unlock()

	if !online {
		c.transition(StateOffline)
		return nil
	}
	return c.Sync(ctx)
}

// isIdentitySwitch reports whether moving from prev to next crosses two
// distinct real principals. Cold start (no previous identity) and
// anonymous-to-real transitions are not switches.
func isIdentitySwitch(prev, next domain.Identity) bool {
	if prev.IsZero() || next.IsZero() {
		return false
	}
	if prev.Anonymous || next.Anonymous {
		return false
	}
	return prev.ID != next.ID
}

// loadLocalLocked reads the active scope's cached state. Caller holds c.mu.
func (c *Controller) loadLocalLocked() {
	scope := c.identity.Scope()
	c.clog = c.local.ReadLog(scope)
	c.prefs = c.local.ReadPreferences(scope)
	c.agg = c.local.ReadAggregate(scope)
}

// GetState returns the latest converged-or-best-effort snapshot. It never
// blocks on the network.
func (c *Controller) GetState() (domain.CanonicalLog, domain.AggregateState, domain.UserPreferences) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clog.Clone(), c.agg, c.prefs
}

// Identity returns the active identity.
func (c *Controller) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Status returns the current sync state.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notice returns the current user-facing sync message, such as the
// empty-remote merge guard or a remote rejection. Empty when all is well.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// OnSyncStatusChange registers a status observer. The callback fires
// immediately with the current state, then on every transition edge. The
// returned handle unsubscribes.
func (c *Controller) OnSyncStatusChange(cb func(State)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = cb
	c.subMu.Unlock()

	cb(c.Status())

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// transition moves to a new state and notifies observers on the edge.
func (c *Controller) transition(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.subMu.Lock()
	cbs := make([]func(State), 0, len(c.subs))
	for _, cb := range c.subs {
		cbs = append(cbs, cb)
	}
	c.subMu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (c *Controller) setNotice(msg string) {
	c.mu.Lock()
	c.notice = msg
	c.mu.Unlock()
}

func (c *Controller) today() string {
	return c.now().UTC().Format(domain.DateLayout)
}

// SaveDayRecord applies an optimistic write: the local store and aggregates
// update synchronously before any remote call, so remote latency or failure
// never blocks the caller. The remote push is fire-and-forget; a transient
// failure lands the write in the pending queue.
func (c *Controller) SaveDayRecord(rec domain.DayRecord) error {
	if err := domain.ValidateRecord(rec); err != nil {
		return err
	}

	c.mu.Lock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = c.now().UTC()
	}
	c.clog.Upsert(rec)
	c.agg = recalc.Recompute(c.clog, c.defs, c.today())
	scope := c.identity.Scope()
	c.local.WriteLog(scope, c.clog)
	c.local.WriteAggregate(scope, c.agg)
	identity := c.identity
	c.mu.Unlock()

	if identity.IsZero() || identity.Anonymous {
		// Local-only installation; migration uploads this history later.
		return nil
	}
	if !c.monitor.IsOnline() {
		c.enqueueRecord(scope, rec)
		return nil
	}
	c.pushRecordAsync(identity, scope, rec)
	return nil
}

// SavePreferences applies an optimistic preferences write with the same
// local-first, fire-and-forget discipline as SaveDayRecord.
func (c *Controller) SavePreferences(prefs domain.UserPreferences) error {
	c.mu.Lock()
	if prefs.Version == 0 {
		prefs.Version = c.prefs.Version + 1
	}
	c.prefs = prefs
	scope := c.identity.Scope()
	c.local.WritePreferences(scope, prefs)
	identity := c.identity
	c.mu.Unlock()

	if identity.IsZero() || identity.Anonymous {
		return nil
	}
	if !c.monitor.IsOnline() {
		c.enqueuePreferences(scope, prefs)
		return nil
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
		defer cancel()
		if err := c.remote.PushPreferences(ctx, identity, prefs); err != nil {
			log.Printf("sync: push preferences failed: %v", err)
			if domain.IsTransient(err) {
				c.monitor.NoteFailure()
				c.enqueuePreferences(scope, prefs)
			} else {
				c.setNotice(err.Error())
			}
			return
		}
		c.monitor.NoteSuccess()
	}()
	return nil
}

func (c *Controller) pushRecordAsync(identity domain.Identity, scope string, rec domain.DayRecord) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
		defer cancel()
		if err := c.remote.PushRecord(ctx, identity, rec); err != nil {
			log.Printf("sync: push record %s failed: %v", rec.Date, err)
			if domain.IsTransient(err) {
				c.monitor.NoteFailure()
				c.enqueueRecord(scope, rec)
			} else {
				c.setNotice(err.Error())
			}
			return
		}
		c.monitor.NoteSuccess()
	}()
}

func (c *Controller) enqueueRecord(scope string, rec domain.DayRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("sync: encode pending record %s failed: %v", rec.Date, err)
		return
	}
	op := domain.PendingOperation{
		ID:        uuid.NewString(),
		Kind:      domain.OpKindLogRecord,
		TargetKey: recordTargetKey(rec.Date),
		Payload:   payload,
		CreatedAt: c.now().UTC(),
	}
	if err := c.queue.Enqueue(scope, op); err != nil {
		log.Printf("sync: enqueue record %s failed: %v", rec.Date, err)
	}
}

func (c *Controller) enqueuePreferences(scope string, prefs domain.UserPreferences) {
	payload, err := json.Marshal(prefs)
	if err != nil {
		log.Printf("sync: encode pending preferences failed: %v", err)
		return
	}
	op := domain.PendingOperation{
		ID:        uuid.NewString(),
		Kind:      domain.OpKindPreferences,
		TargetKey: targetPreferences,
		Payload:   payload,
		CreatedAt: c.now().UTC(),
	}
	if err := c.queue.Enqueue(scope, op); err != nil {
		log.Printf("sync: enqueue preferences failed: %v", err)
	}
}

// Sync runs one reconciliation cycle: migration if ungated, queue drain,
// remote pull, non-destructive merge, recompute, republish. Transient
// failures degrade to the offline state with the local store authoritative;
// only unrecoverable rejections produce the error state.
func (c *Controller) Sync(ctx context.Context) error {
	c.mu.Lock()
	if c.syncing {
		c.mu.Unlock()
		return nil
	}
	c.syncing = true
	identity := c.identity
	prev := c.state
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()

	if identity.IsZero() || identity.Anonymous {
		// Nothing remote to reconcile against.
		c.transition(StateConverged)
		return nil
	}

	c.transition(StateSyncing)

	if c.migrator != nil && !c.local.MigratedGate(identity.Scope()) {
		if _, err := c.migrator.Run(ctx, identity, nil); err != nil {
			if errors.Is(err, migrate.ErrAlreadyRunning) {
				// Another full upload owns the cycle; step back out and
				// try again later.
				c.transition(prev)
				return nil
			}
			return c.degrade("migration", err)
		}
	}

	if err := c.drain(ctx, identity); err != nil {
		return c.degrade("queue drain", err)
	}

	snap, err := c.remote.Pull(ctx, identity)
	if err != nil {
		return c.degrade("pull", err)
	}
	c.monitor.NoteSuccess()

	c.applySnapshot(ctx, identity, snap)
	c.transition(StateConverged)
	return nil
}

// degrade maps a failed cycle step onto the failure policy: keep
// serving the local store, go offline for transient errors, surface
// rejections as the error state.
func (c *Controller) degrade(step string, err error) error {
	log.Printf("sync: %s failed: %v", step, err)
	if domain.IsRejected(err) {
		c.setNotice(err.Error())
		c.transition(StateError)
		return err
	}
	c.monitor.NoteFailure()
	c.transition(StateOffline)
	return nil
}

// drain pushes queued operations in FIFO order. A drain in flight must
// finish before another begins; a transient failure stops the drain with the
// unsent remainder still queued.
func (c *Controller) drain(ctx context.Context, identity domain.Identity) error {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	scope := identity.Scope()
	ops, err := c.queue.Drain(scope)
	if err != nil {
		log.Printf("sync: read pending queue failed: %v", err)
		return nil
	}

	for _, op := range ops {
		err := c.applyPending(ctx, identity, op)
		if err == nil {
			if err := c.queue.Remove(scope, op.TargetKey, op.ID); err != nil {
				log.Printf("sync: confirm pending %s failed: %v", op.TargetKey, err)
			}
			continue
		}
		if domain.IsRejected(err) {
			// Surfaced, never auto-retried.
			log.Printf("sync: pending %s rejected: %v", op.TargetKey, err)
			c.setNotice(err.Error())
			if err := c.queue.Remove(scope, op.TargetKey, op.ID); err != nil {
				log.Printf("sync: drop rejected pending %s failed: %v", op.TargetKey, err)
			}
			continue
		}
		return err
	}
	return nil
}

func (c *Controller) applyPending(ctx context.Context, identity domain.Identity, op domain.PendingOperation) error {
	switch op.Kind {
	case domain.OpKindLogRecord:
		var rec domain.DayRecord
		if err := json.Unmarshal(op.Payload, &rec); err != nil {
			serr := &domain.SerializationError{Key: op.TargetKey, Err: err}
			log.Printf("sync: %v", serr)
			return nil // drop corrupt payload
		}
		return c.remote.PushRecord(ctx, identity, rec)
	case domain.OpKindPreferences:
		var prefs domain.UserPreferences
		if err := json.Unmarshal(op.Payload, &prefs); err != nil {
			serr := &domain.SerializationError{Key: op.TargetKey, Err: err}
			log.Printf("sync: %v", serr)
			return nil
		}
		return c.remote.PushPreferences(ctx, identity, prefs)
	case domain.OpKindAggregate:
		var agg domain.AggregateState
		if err := json.Unmarshal(op.Payload, &agg); err != nil {
			serr := &domain.SerializationError{Key: op.TargetKey, Err: err}
			log.Printf("sync: %v", serr)
			return nil
		}
		return c.remote.PushAggregate(ctx, identity, agg)
	default:
		log.Printf("sync: dropping pending operation of unknown kind %q", op.Kind)
		return nil
	}
}

// applySnapshot merges the pulled snapshot with local state, recomputes the
// aggregate, and republishes one converged state to both stores.
func (c *Controller) applySnapshot(ctx context.Context, identity domain.Identity, snap *remote.Snapshot) {
	c.mu.Lock()
	dec := decideMerge(c.clog, c.agg, snap)

	if dec.winner == winnerRemote {
		c.clog = snap.Log()
	}
	if dec.adoptRemotePrefs && snap.Preferences != nil {
		c.prefs = *snap.Preferences
	}

	oldAgg := c.agg
	c.agg = recalc.Recompute(c.clog, c.defs, c.today())
	aggChanged := !c.agg.Equal(oldAgg)

	scope := identity.Scope()
	c.local.WriteLog(scope, c.clog)
	c.local.WriteAggregate(scope, c.agg)
	c.local.WritePreferences(scope, c.prefs)

	mergedLog := c.clog.Clone()
	prefs := c.prefs
	agg := c.agg
	if dec.notice != "" {
		c.notice = dec.notice
	}
	c.mu.Unlock()

	if dec.pushLocal {
		// The anti-data-loss path: the remote was blank, so schedule the
		// populated local snapshot for upload.
		c.schedulePush(ctx, identity, scope, mergedLog, prefs, agg)
		return
	}
	if aggChanged {
		// Best-effort correction of the remote's cached aggregate.
		if err := c.remote.PushAggregate(ctx, identity, agg); err != nil {
			log.Printf("sync: push corrected aggregate failed: %v", err)
		}
	}
}

// schedulePush uploads the local snapshot record by record. Transient
// failures queue the remainder for the next online edge.
func (c *Controller) schedulePush(ctx context.Context, identity domain.Identity, scope string, clog domain.CanonicalLog, prefs domain.UserPreferences, agg domain.AggregateState) {
	for _, date := range clog.Dates() {
		rec, _ := clog.Get(date)
		if err := c.remote.PushRecord(ctx, identity, rec); err != nil {
			if domain.IsTransient(err) {
				log.Printf("sync: upload of local snapshot interrupted at %s: %v", date, err)
				c.monitor.NoteFailure()
				c.enqueueRecord(scope, rec)
				continue
			}
			log.Printf("sync: record %s rejected during upload: %v", date, err)
			c.setNotice(err.Error())
		}
	}
	if !prefs.IsZero() {
		if err := c.remote.PushPreferences(ctx, identity, prefs); err != nil {
			if domain.IsTransient(err) {
				c.enqueuePreferences(scope, prefs)
			} else {
				c.setNotice(err.Error())
			}
		}
	}
	if !agg.IsZero() {
		if err := c.remote.PushAggregate(ctx, identity, agg); err != nil {
			log.Printf("sync: push aggregate failed: %v", err)
		}
	}
}

// TriggerUpload is the explicit, user-initiated one-shot overwrite of the
// remote with the local snapshot, bypassing the merge policy. It reads the
// identity's scope directly, so it works without a prior Start.
func (c *Controller) TriggerUpload(ctx context.Context, identity domain.Identity) error {
	scope := identity.Scope()
	clog := c.local.ReadLog(scope)
	prefs := c.local.ReadPreferences(scope)
	agg := c.local.ReadAggregate(scope)

	c.transition(StateSyncing)
	for _, date := range clog.Dates() {
		rec, _ := clog.Get(date)
		if err := c.remote.PushRecord(ctx, identity, rec); err != nil {
			return c.degrade("manual upload", err)
		}
	}
	if !prefs.IsZero() {
		if err := c.remote.PushPreferences(ctx, identity, prefs); err != nil {
			return c.degrade("manual upload", err)
		}
	}
	if !agg.IsZero() {
		if err := c.remote.PushAggregate(ctx, identity, agg); err != nil {
			return c.degrade("manual upload", err)
		}
	}
	c.monitor.NoteSuccess()
	c.transition(StateConverged)
	return nil
}

// TriggerDownload is the explicit, user-initiated one-shot overwrite of the
// local cache with the remote snapshot, bypassing the merge policy. Unlike a
// reconciliation cycle it adopts even an empty remote.
func (c *Controller) TriggerDownload(ctx context.Context, identity domain.Identity) error {
	c.transition(StateSyncing)
	snap, err := c.remote.Pull(ctx, identity)
	if err != nil {
		return c.degrade("manual download", err)
	}
	c.monitor.NoteSuccess()

	clog := snap.Log()
	var prefs domain.UserPreferences
	if snap.Preferences != nil {
		prefs = *snap.Preferences
	}
	agg := recalc.Recompute(clog, c.defs, c.today())
	scope := identity.Scope()
	c.local.WriteLog(scope, clog)
	c.local.WriteAggregate(scope, agg)
	c.local.WritePreferences(scope, prefs)

	c.mu.Lock()
	if c.identity.ID == identity.ID {
		c.clog = clog
		c.agg = agg
		c.prefs = prefs
	}
	c.mu.Unlock()

	c.transition(StateConverged)
	return nil
}
