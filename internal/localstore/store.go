// Package localstore is the durable on-device cache and the buffer of last
// resort. Reads return defaults for absent or corrupt values; writes are
// best-effort and never surface a failure to the caller.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/rgoodwin/streakd/internal/db"
	"github.com/rgoodwin/streakd/internal/domain"
)

// Entity keys. One durable key per logical entity; an absent key always means
// "use default", never an error.
const (
	KeyLog           = "log"
	KeyPreferences   = "preferences"
	KeyAggregate     = "aggregate"
	KeyMigrationGate = "migration-gate"
	KeyIdentityMap   = "identity-map"
)

// ScopeGlobal holds device-level entries that survive identity switches.
const ScopeGlobal = "global"

// IdentityMap records the device id and the last identity seen on this
// device, used for switch detection across restarts.
type IdentityMap struct {
	DeviceID     string          `json:"device_id"`
	LastIdentity domain.Identity `json:"last_identity"`
}

// Store provides scoped key/value access over the SQLite cache.
type Store struct {
	db *db.DB
}

// New creates a Store wrapping the given database connection.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Read returns the raw value for a key, or ok=false when absent. Storage
// errors are logged and reported as absent.
func (s *Store) Read(scope, key string) ([]byte, bool) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM kv_cache WHERE scope = ? AND key = ?", scope, key,
	).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("localstore: read %s/%s failed: %v", scope, key, err)
		}
		return nil, false
	}
	return []byte(value), true
}

// Write stores a value under a key. Best-effort: failures are logged, never
// returned, so the caller's save path cannot be blocked by the cache.
func (s *Store) Write(scope, key string, value []byte) {
	_, err := s.db.Exec(`
		INSERT INTO kv_cache (scope, key, value, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, scope, key, string(value))
	if err != nil {
		log.Printf("localstore: write %s/%s failed: %v", scope, key, err)
	}
}

// Delete removes a key. Best-effort.
func (s *Store) Delete(scope, key string) {
	if _, err := s.db.Exec("DELETE FROM kv_cache WHERE scope = ? AND key = ?", scope, key); err != nil {
		log.Printf("localstore: delete %s/%s failed: %v", scope, key, err)
	}
}

// Clear wipes every entry for an identity scope, including its pending
// operations. The global scope is never cleared.
func (s *Store) Clear(scope string) {
	if scope == ScopeGlobal {
		log.Printf("localstore: refusing to clear global scope")
		return
	}
	if _, err := s.db.Exec("DELETE FROM kv_cache WHERE scope = ?", scope); err != nil {
		log.Printf("localstore: clear %s failed: %v", scope, err)
	}
	if _, err := s.db.Exec("DELETE FROM pending_ops WHERE scope = ?", scope); err != nil {
		log.Printf("localstore: clear pending ops for %s failed: %v", scope, err)
	}
}

// readJSON decodes a key into dst. Corrupt values are logged as a
// serialization error and reported as absent, per the degradation policy.
func (s *Store) readJSON(scope, key string, dst interface{}) bool {
	raw, ok := s.Read(scope, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		serr := &domain.SerializationError{Key: scope + "/" + key, Err: err}
		log.Printf("localstore: %v", serr)
		return false
	}
	return true
}

// writeJSON encodes src under a key. Best-effort.
func (s *Store) writeJSON(scope, key string, src interface{}) {
	raw, err := json.Marshal(src)
	if err != nil {
		log.Printf("localstore: encode %s/%s failed: %v", scope, key, err)
		return
	}
	s.Write(scope, key, raw)
}

// ReadLog returns the cached canonical log for a scope, or an empty log.
func (s *Store) ReadLog(scope string) domain.CanonicalLog {
	clog := domain.NewCanonicalLog()
	s.readJSON(scope, KeyLog, &clog)
	if clog.Records == nil {
		clog = domain.NewCanonicalLog()
	}
	return clog
}

// WriteLog caches the canonical log for a scope.
func (s *Store) WriteLog(scope string, clog domain.CanonicalLog) {
	s.writeJSON(scope, KeyLog, clog)
}

// ReadPreferences returns the cached preferences for a scope, or defaults.
func (s *Store) ReadPreferences(scope string) domain.UserPreferences {
	var prefs domain.UserPreferences
	s.readJSON(scope, KeyPreferences, &prefs)
	return prefs
}

// WritePreferences caches preferences for a scope.
func (s *Store) WritePreferences(scope string, prefs domain.UserPreferences) {
	s.writeJSON(scope, KeyPreferences, prefs)
}

// ReadAggregate returns the cached aggregate for a scope, or a zero value.
func (s *Store) ReadAggregate(scope string) domain.AggregateState {
	var agg domain.AggregateState
	s.readJSON(scope, KeyAggregate, &agg)
	return agg
}

// WriteAggregate caches the derived aggregate for a scope.
func (s *Store) WriteAggregate(scope string, agg domain.AggregateState) {
	s.writeJSON(scope, KeyAggregate, agg)
}

// MigratedGate reports whether the one-time migration completed for a scope.
func (s *Store) MigratedGate(scope string) bool {
	var migrated bool
	s.readJSON(scope, KeyMigrationGate, &migrated)
	return migrated
}

// SetMigratedGate persists the migration gate for a scope.
func (s *Store) SetMigratedGate(scope string, migrated bool) {
	s.writeJSON(scope, KeyMigrationGate, migrated)
}

// ReadIdentityMap returns the device identity map, minting a device id on
// first use.
func (s *Store) ReadIdentityMap() IdentityMap {
	var m IdentityMap
	s.readJSON(ScopeGlobal, KeyIdentityMap, &m)
	if m.DeviceID == "" {
		m.DeviceID = uuid.NewString()
		s.writeJSON(ScopeGlobal, KeyIdentityMap, m)
	}
	return m
}

// WriteIdentityMap persists the device identity map.
func (s *Store) WriteIdentityMap(m IdentityMap) {
	s.writeJSON(ScopeGlobal, KeyIdentityMap, m)
}
