// Package pending provides the durable queue of unsent remote writes.
// Enqueueing for a target key that already has a pending operation replaces
// it, bounding the queue to one write per record and keeping stale
// intermediate states out of replay.
package pending

import (
	"fmt"
	"time"

	"github.com/rgoodwin/streakd/internal/db"
	"github.com/rgoodwin/streakd/internal/domain"
)

// Queue is the persisted FIFO of pending operations, scoped by identity.
type Queue struct {
	db *db.DB
}

// New creates a Queue wrapping the given database connection.
func New(database *db.DB) *Queue {
	return &Queue{db: database}
}

// Enqueue stores an operation, replacing any pending operation for the same
// target key. A replacement keeps the original queue position so application
// order stays FIFO by first enqueue.
func (q *Queue) Enqueue(scope string, op domain.PendingOperation) error {
	if err := domain.ValidateOperationKind(op.Kind); err != nil {
		return err
	}
	if op.TargetKey == "" {
		return fmt.Errorf("pending operation missing target key")
	}
	_, err := q.db.Exec(`
		INSERT INTO pending_ops (scope, target_key, id, kind, payload, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_ops))
		ON CONFLICT(scope, target_key) DO UPDATE SET
			id = excluded.id,
			kind = excluded.kind,
			payload = excluded.payload,
			created_at = excluded.created_at
	`, scope, op.TargetKey, op.ID, string(op.Kind), string(op.Payload), op.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to enqueue operation for %s: %w", op.TargetKey, err)
	}
	return nil
}

// Drain returns every pending operation for a scope in FIFO order. Entries
// are not removed; callers confirm each applied operation with Remove.
func (q *Queue) Drain(scope string) ([]domain.PendingOperation, error) {
	rows, err := q.db.Query(`
		SELECT id, kind, target_key, payload, created_at
		FROM pending_ops WHERE scope = ? ORDER BY seq
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.PendingOperation
	for rows.Next() {
		var op domain.PendingOperation
		var kind, payload, createdAt string
		if err := rows.Scan(&op.ID, &kind, &op.TargetKey, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending operation: %w", err)
		}
		op.Kind = domain.OperationKind(kind)
		op.Payload = []byte(payload)
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			op.CreatedAt = ts
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending operations: %w", err)
	}
	return ops, nil
}

// Remove deletes one pending operation once its remote application is
// confirmed. The id guards against a replacement enqueued after the drain
// read: confirming an applied op must never delete a newer op that took over
// its target key and has not been pushed.
func (q *Queue) Remove(scope, targetKey, id string) error {
	_, err := q.db.Exec(
		"DELETE FROM pending_ops WHERE scope = ? AND target_key = ? AND id = ?",
		scope, targetKey, id,
	)
	if err != nil {
		return fmt.Errorf("failed to remove pending operation for %s: %w", targetKey, err)
	}
	return nil
}

// HasPending reports whether any operation is waiting for a scope.
func (q *Queue) HasPending(scope string) (bool, error) {
	n, err := q.Len(scope)
	return n > 0, err
}

// Len returns the number of pending operations for a scope.
func (q *Queue) Len(scope string) (int, error) {
	var n int
	err := q.db.QueryRow("SELECT COUNT(*) FROM pending_ops WHERE scope = ?", scope).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return n, nil
}
