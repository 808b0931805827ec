// Package remote adapts the authoritative backend. Every push is an upsert
// keyed by the record's natural key, so retries are idempotent by
// construction. Failures classify as transient (safe to retry later) or
// rejected (surfaced to the user, never auto-retried).
package remote

import (
	"context"

	"github.com/rgoodwin/streakd/internal/domain"
)

// Store performs reads and writes against the authoritative remote backend.
type Store interface {
	// Pull fetches the identity's full remote snapshot. A fresh user with no
	// remote data yields an empty snapshot, not an error.
	Pull(ctx context.Context, identity domain.Identity) (*Snapshot, error)

	// PushRecord upserts one day record, keyed by its date.
	PushRecord(ctx context.Context, identity domain.Identity, rec domain.DayRecord) error

	// PushPreferences upserts the identity's preferences.
	PushPreferences(ctx context.Context, identity domain.Identity, prefs domain.UserPreferences) error

	// PushAggregate upserts the identity's derived aggregate cache.
	PushAggregate(ctx context.Context, identity domain.Identity, agg domain.AggregateState) error
}

// Snapshot is the remote store's view of one identity's data.
type Snapshot struct {
	Records     []domain.DayRecord      `json:"records"`
	Aggregate   *domain.AggregateState  `json:"aggregate,omitempty"`
	Preferences *domain.UserPreferences `json:"preferences,omitempty"`
}

// Log assembles the snapshot's records into a canonical log.
func (s *Snapshot) Log() domain.CanonicalLog {
	clog := domain.NewCanonicalLog()
	if s == nil {
		return clog
	}
	for _, rec := range s.Records {
		clog.Upsert(rec)
	}
	return clog
}

// IsEmpty reports whether the snapshot holds no log records and no aggregate.
// An empty snapshot must never be allowed to erase a populated local cache.
func (s *Snapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.Records) == 0 && (s.Aggregate == nil || s.Aggregate.IsZero())
}
