package controller

import (
	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/rgoodwin/streakd/internal/remote"
)

// NoticeEmptyRemote is the user-facing message for the destructive-merge
// guard. It is surfaced explicitly and never followed by a silent auto-retry.
const NoticeEmptyRemote = "remote account is empty; keeping local history and scheduling an upload"

type mergeWinner string

const (
	winnerLocal  mergeWinner = "local"
	winnerRemote mergeWinner = "remote"
)

// mergeDecision captures the outcome of the non-destructive merge policy.
type mergeDecision struct {
	winner           mergeWinner
	pushLocal        bool
	adoptRemotePrefs bool
	notice           string
}

// decideMerge applies the merge policy to a pulled snapshot:
//
//   - A blank or half-initialized remote must never erase a populated local
//     cache: the empty remote snapshot is discarded, local is kept and
//     scheduled for push.
//   - When both sides are non-empty and disagree, the snapshot with strictly
//     more log records is treated as more complete and wins; ties keep local.
//     This count heuristic is a documented approximation, not a formal merge.
//   - Preferences take remote values whenever any remote data exists.
func decideMerge(localLog domain.CanonicalLog, localAgg domain.AggregateState, snap *remote.Snapshot) mergeDecision {
	localEmpty := localLog.IsEmpty() && localAgg.IsZero()
	remoteEmpty := snap.IsEmpty()
	remoteHasPrefs := snap != nil && snap.Preferences != nil && !snap.Preferences.IsZero()
	anyRemoteData := !remoteEmpty || remoteHasPrefs

	switch {
	case remoteEmpty && !localEmpty:
		return mergeDecision{
			winner:    winnerLocal,
			pushLocal: true,
			notice:    NoticeEmptyRemote,
		}
	case !remoteEmpty && localEmpty:
		return mergeDecision{winner: winnerRemote, adoptRemotePrefs: true}
	case remoteEmpty && localEmpty:
		return mergeDecision{winner: winnerLocal, adoptRemotePrefs: anyRemoteData}
	}

	if snap.Log().Len() > localLog.Len() {
		return mergeDecision{winner: winnerRemote, adoptRemotePrefs: true}
	}
	return mergeDecision{winner: winnerLocal, adoptRemotePrefs: true}
}
