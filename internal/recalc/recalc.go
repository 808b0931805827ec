// Package recalc derives aggregate state from the canonical log. Recompute is
// referentially transparent: identical inputs always produce an identical
// AggregateState, so the result is safe to treat as a throwaway cache.
package recalc

import (
	"sort"
	"time"

	"github.com/rgoodwin/streakd/internal/domain"
)

// Reward tier thresholds. Tier semantics belong to the business layer; these
// fixed cutoffs keep the aggregate a total function of the log.
const (
	bronzeThreshold   = 50
	silverThreshold   = 200
	goldThreshold     = 500
	platinumThreshold = 1000
)

// Recompute walks the log in date order and produces the full aggregate:
// per-item streaks, baseline streak, total reward, and tier.
//
// Streak rules: a success on a date extends the streak when the date directly
// follows the previous success (or is the first ever); any fully-elapsed day
// that is absent or unsuccessful resets the streak. The current day (today)
// has not elapsed, so its absence is a grace case and never breaks a streak.
func Recompute(clog domain.CanonicalLog, defs []domain.TrackedItemDefinition, today string) domain.AggregateState {
	agg := domain.AggregateState{
		ItemStreaks: make(map[string]int),
	}

	for _, rec := range clog.Records {
		agg.TotalReward += rec.Reward
	}
	agg.Tier = tierFor(agg.TotalReward)

	active := make([]domain.TrackedItemDefinition, 0, len(defs))
	for _, def := range defs {
		if def.Active {
			active = append(active, def)
			agg.ItemStreaks[def.ID] = 0
		}
	}

	dates := clog.Dates()
	if len(dates) == 0 {
		return agg
	}

	start, err := time.Parse(domain.DateLayout, dates[0])
	if err != nil {
		return agg
	}
	end, err := time.Parse(domain.DateLayout, today)
	if err != nil {
		return agg
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(domain.DateLayout)
		rec, present := clog.Get(date)
		grace := date == today

		for _, def := range active {
			success := present && def.Satisfied(rec.Outcomes[def.ID])
			switch {
			case success:
				agg.ItemStreaks[def.ID]++
			case grace:
				// Not yet elapsed; the streak holds.
			default:
				agg.ItemStreaks[def.ID] = 0
			}
		}

		baselineMet := present && rec.BaselineMet
		switch {
		case baselineMet:
			agg.BaselineStreak++
		case grace:
		default:
			agg.BaselineStreak = 0
		}
	}

	return agg
}

// ActiveItemIDs returns the ids of active definitions in a stable order.
func ActiveItemIDs(defs []domain.TrackedItemDefinition) []string {
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Active {
			ids = append(ids, def.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func tierFor(total int64) domain.Tier {
	switch {
	case total >= platinumThreshold:
		return domain.TierPlatinum
	case total >= goldThreshold:
		return domain.TierGold
	case total >= silverThreshold:
		return domain.TierSilver
	case total >= bronzeThreshold:
		return domain.TierBronze
	default:
		return domain.TierNone
	}
}
