package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff between two snapshots, typically the local
// cache against the remote store, for manual conflict inspection.
func Diff(from, to *Snapshot, fromLabel, toLabel string) (string, error) {
	a, err := indented(from)
	if err != nil {
		return "", err
	}
	b, err := indented(to)
	if err != nil {
		return "", err
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to compute diff: %w", err)
	}
	return text, nil
}

func indented(s *Snapshot) (string, error) {
	stripped := *s
	// Revs and timestamps differ between otherwise identical snapshots.
	stripped.Meta.SnapshotRev = ""
	stripped.Meta.GeneratedAt = ""
	data, err := json.MarshalIndent(&stripped, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(data) + "\n", nil
}
