// Package snapshot provides deterministic JSON exports of tracker state.
//
// Snapshots are canonical representations of one identity's converged state
// (log, aggregate, preferences), usable for backups, manual inspection, and
// diffing a local cache against the remote store.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rgoodwin/streakd/internal/domain"
)

// SchemaVersion is the current snapshot schema.
const SchemaVersion = 1

// Snapshot is the complete canonical state for one identity.
type Snapshot struct {
	Meta        Meta                        `json:"meta"`
	Records     map[string]domain.DayRecord `json:"records,omitempty"`
	Aggregate   *domain.AggregateState      `json:"aggregate,omitempty"`
	Preferences *domain.UserPreferences     `json:"preferences,omitempty"`
}

// Meta contains snapshot metadata.
type Meta struct {
	SchemaVersion int    `json:"schema_version"`
	SnapshotRev   string `json:"snapshot_rev,omitempty"`
	GeneratedAt   string `json:"generated_at,omitempty"`
	Identity      string `json:"identity,omitempty"`
}

// FromState builds a snapshot from converged engine state.
func FromState(identity domain.Identity, clog domain.CanonicalLog, agg domain.AggregateState, prefs domain.UserPreferences, generatedAt time.Time) *Snapshot {
	s := &Snapshot{
		Meta: Meta{
			SchemaVersion: SchemaVersion,
			GeneratedAt:   generatedAt.UTC().Format(time.RFC3339),
			Identity:      identity.ID,
		},
	}
	if !clog.IsEmpty() {
		s.Records = make(map[string]domain.DayRecord, clog.Len())
		for _, date := range clog.Dates() {
			rec, _ := clog.Get(date)
			s.Records[date] = rec
		}
	}
	if !agg.IsZero() {
		a := agg
		s.Aggregate = &a
	}
	if !prefs.IsZero() {
		p := prefs
		s.Preferences = &p
	}
	return s
}

// ToState unpacks a snapshot into engine state.
func (s *Snapshot) ToState() (domain.CanonicalLog, domain.AggregateState, domain.UserPreferences) {
	clog := domain.NewCanonicalLog()
	for _, rec := range s.Records {
		clog.Upsert(rec)
	}
	var agg domain.AggregateState
	if s.Aggregate != nil {
		agg = *s.Aggregate
	}
	var prefs domain.UserPreferences
	if s.Preferences != nil {
		prefs = *s.Preferences
	}
	return clog, agg, prefs
}

// CanonicalJSON produces a deterministic compact encoding: map keys sorted,
// no insignificant whitespace, HTML escaping off. The rev field itself is
// excluded from the bytes being hashed.
func CanonicalJSON(s *Snapshot) ([]byte, error) {
	stripped := *s
	stripped.Meta.SnapshotRev = ""

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(&stripped); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

// ComputeRev computes the sha256 of canonical JSON bytes in
// "sha256:<hex>" form.
func ComputeRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Seal computes and stamps the snapshot's rev.
func (s *Snapshot) Seal() error {
	data, err := CanonicalJSON(s)
	if err != nil {
		return err
	}
	s.Meta.SnapshotRev = ComputeRev(data)
	return nil
}

// WriteFile seals the snapshot and writes it as indented JSON.
func (s *Snapshot) WriteFile(path string) error {
	if err := s.Seal(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot and verifies its rev when present.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid snapshot format: %w", err)
	}
	if s.Meta.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported snapshot schema version %d", s.Meta.SchemaVersion)
	}
	if rev := s.Meta.SnapshotRev; rev != "" {
		canonical, err := CanonicalJSON(&s)
		if err != nil {
			return nil, err
		}
		if got := ComputeRev(canonical); got != rev {
			return nil, fmt.Errorf("snapshot rev mismatch: file says %s, content is %s", rev, got)
		}
	}
	return &s, nil
}
