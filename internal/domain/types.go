// Package domain defines the core data model of the sync engine: the
// canonical day-record log, the derived aggregate state, user preferences,
// identities, and the durable pending-operation and migration records.
package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// DateLayout is the calendar-date key format used throughout the engine.
// Lexicographic order equals chronological order.
const DateLayout = "2006-01-02"

// Outcome represents the recorded result for a tracked item on a given day.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomePartial Outcome = "partial"
	OutcomeMissed  Outcome = "missed"
	OutcomeSkipped Outcome = "skipped"
)

// DayRecord holds everything recorded for one calendar date. Corrections
// overwrite the record for that date; records are never deleted.
type DayRecord struct {
	Date        string             `json:"date"`
	Outcomes    map[string]Outcome `json:"outcomes"`
	Reward      int64              `json:"reward"`
	BaselineMet bool               `json:"baseline_met"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r DayRecord) Clone() DayRecord {
	out := r
	out.Outcomes = make(map[string]Outcome, len(r.Outcomes))
	for k, v := range r.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// CanonicalLog is the append-oriented history of day records, at most one per
// date. It is the sole source of truth for derived aggregates.
type CanonicalLog struct {
	Records map[string]DayRecord `json:"records"`
}

// NewCanonicalLog returns an empty log.
func NewCanonicalLog() CanonicalLog {
	return CanonicalLog{Records: make(map[string]DayRecord)}
}

// Upsert stores the record under its date, replacing any existing record for
// that date.
func (l *CanonicalLog) Upsert(rec DayRecord) {
	if l.Records == nil {
		l.Records = make(map[string]DayRecord)
	}
	l.Records[rec.Date] = rec
}

// Get returns the record for a date, if present.
func (l CanonicalLog) Get(date string) (DayRecord, bool) {
	rec, ok := l.Records[date]
	return rec, ok
}

// Dates returns every record date in ascending calendar order.
func (l CanonicalLog) Dates() []string {
	dates := make([]string, 0, len(l.Records))
	for d := range l.Records {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Len returns the number of day records.
func (l CanonicalLog) Len() int {
	return len(l.Records)
}

// IsEmpty reports whether the log holds no records.
func (l CanonicalLog) IsEmpty() bool {
	return len(l.Records) == 0
}

// Clone returns a deep copy of the log.
func (l CanonicalLog) Clone() CanonicalLog {
	out := NewCanonicalLog()
	for _, rec := range l.Records {
		out.Records[rec.Date] = rec.Clone()
	}
	return out
}

// Tier represents the reward tier derived from the accumulated total.
type Tier string

const (
	TierNone     Tier = "none"
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// AggregateState is the recomputable summary derived from the canonical log.
// It is always a cache, never a ledger: recomputing from the same log must
// produce an identical value.
type AggregateState struct {
	TotalReward    int64          `json:"total_reward"`
	Tier           Tier           `json:"tier"`
	ItemStreaks    map[string]int `json:"item_streaks"`
	BaselineStreak int            `json:"baseline_streak"`
}

// IsZero reports whether the aggregate carries no derived data.
func (a AggregateState) IsZero() bool {
	return a.TotalReward == 0 && a.BaselineStreak == 0 && len(a.ItemStreaks) == 0
}

// Equal reports field-for-field equality with another aggregate.
func (a AggregateState) Equal(b AggregateState) bool {
	if a.TotalReward != b.TotalReward || a.Tier != b.Tier || a.BaselineStreak != b.BaselineStreak {
		return false
	}
	if len(a.ItemStreaks) != len(b.ItemStreaks) {
		return false
	}
	for k, v := range a.ItemStreaks {
		if b.ItemStreaks[k] != v {
			return false
		}
	}
	return true
}

// ItemOverride customizes a tracked item without redefining it.
type ItemOverride struct {
	Title  string `json:"title,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Reward *int64 `json:"reward,omitempty"`
}

// UserPreferences holds item overrides, ordering, and free-form settings.
// Versioned independently of the canonical log.
type UserPreferences struct {
	Version       int                     `json:"version"`
	ItemOrder     []string                `json:"item_order,omitempty"`
	ItemOverrides map[string]ItemOverride `json:"item_overrides,omitempty"`
	Extra         map[string]string       `json:"extra,omitempty"`
}

// IsZero reports whether the preferences carry no user data.
func (p UserPreferences) IsZero() bool {
	return p.Version == 0 && len(p.ItemOrder) == 0 && len(p.ItemOverrides) == 0 && len(p.Extra) == 0
}

// Identity is the principal scoping a local-store snapshot. An anonymous
// identity belongs to a device-local installation that has never signed in.
type Identity struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
}

// IsZero reports whether no identity is known yet.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Scope returns the local-store scope for this identity.
func (i Identity) Scope() string {
	if i.IsZero() {
		return "anonymous"
	}
	return i.ID
}

// OperationKind classifies a pending operation's target entity.
type OperationKind string

const (
	OpKindLogRecord   OperationKind = "log-record"
	OpKindPreferences OperationKind = "preferences"
	OpKindAggregate   OperationKind = "aggregate"
)

// PendingOperation is a queued write awaiting connectivity. Born when a write
// cannot reach the remote immediately, destroyed once confirmed applied.
type PendingOperation struct {
	ID        string          `json:"id"`
	Kind      OperationKind   `json:"kind"`
	TargetKey string          `json:"target_key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// MigrationStatus is the per-step outcome of a migration run.
type MigrationStatus string

const (
	MigrationPending MigrationStatus = "pending"
	MigrationRunning MigrationStatus = "running"
	MigrationDone    MigrationStatus = "done"
	MigrationError   MigrationStatus = "error"
	MigrationSkipped MigrationStatus = "skipped"
)

// MigrationRecord reports one step of the one-time local-to-remote upload.
type MigrationRecord struct {
	Step   string          `json:"step"`
	Status MigrationStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

// Terminal reports whether the step needs no further work.
func (m MigrationRecord) Terminal() bool {
	return m.Status == MigrationDone || m.Status == MigrationSkipped
}

// TrackedItemDefinition describes one habit item as supplied by the business
// layer. Succeeds decides whether an outcome counts toward the item's streak;
// nil means OutcomeDone.
type TrackedItemDefinition struct {
	ID       string
	Title    string
	Active   bool
	Succeeds func(Outcome) bool
}

// Satisfied applies the item's success predicate to an outcome.
func (d TrackedItemDefinition) Satisfied(o Outcome) bool {
	if d.Succeeds == nil {
		return o == OutcomeDone
	}
	return d.Succeeds(o)
}
