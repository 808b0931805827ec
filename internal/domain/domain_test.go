package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateDate(t *testing.T) {
	valid := []string{"2024-01-01", "2024-12-31", "2000-02-29"}
	for _, date := range valid {
		if err := ValidateDate(date); err != nil {
			t.Errorf("expected %q valid: %v", date, err)
		}
	}

	invalid := []string{"", "2024-1-1", "01-01-2024", "2024-13-01", "2024-01-32", "yesterday", "2024-01-01T00:00:00Z"}
	for _, date := range invalid {
		if err := ValidateDate(date); err == nil {
			t.Errorf("expected %q invalid", date)
		}
	}
}

func TestValidateOutcome(t *testing.T) {
	for _, o := range []Outcome{OutcomeDone, OutcomePartial, OutcomeMissed, OutcomeSkipped} {
		if err := ValidateOutcome(o); err != nil {
			t.Errorf("expected %q valid: %v", o, err)
		}
	}
	if err := ValidateOutcome("almost"); err == nil {
		t.Error("expected invalid outcome to fail")
	}
}

func TestValidateRecord(t *testing.T) {
	good := DayRecord{
		Date:     "2024-01-01",
		Outcomes: map[string]Outcome{"exercise": OutcomeDone},
		Reward:   10,
	}
	if err := ValidateRecord(good); err != nil {
		t.Errorf("expected valid record: %v", err)
	}

	tests := []struct {
		name string
		rec  DayRecord
	}{
		{"bad date", DayRecord{Date: "not-a-date"}},
		{"bad outcome", DayRecord{Date: "2024-01-01", Outcomes: map[string]Outcome{"x": "meh"}}},
		{"empty item id", DayRecord{Date: "2024-01-01", Outcomes: map[string]Outcome{"": OutcomeDone}}},
		{"negative reward", DayRecord{Date: "2024-01-01", Reward: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRecord(tt.rec); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCanonicalLog_UpsertReplacesByDate(t *testing.T) {
	clog := NewCanonicalLog()
	clog.Upsert(DayRecord{Date: "2024-01-01", Reward: 10})
	clog.Upsert(DayRecord{Date: "2024-01-01", Reward: 25})

	if clog.Len() != 1 {
		t.Fatalf("expected one record per date, got %d", clog.Len())
	}
	rec, _ := clog.Get("2024-01-01")
	if rec.Reward != 25 {
		t.Errorf("expected correction to win, got reward %d", rec.Reward)
	}
}

func TestCanonicalLog_DatesSorted(t *testing.T) {
	clog := NewCanonicalLog()
	for _, date := range []string{"2024-03-01", "2024-01-15", "2024-02-01"} {
		clog.Upsert(DayRecord{Date: date})
	}

	dates := clog.Dates()
	want := []string{"2024-01-15", "2024-02-01", "2024-03-01"}
	for i, date := range want {
		if dates[i] != date {
			t.Fatalf("expected %v, got %v", want, dates)
		}
	}
}

func TestCanonicalLog_CloneIsDeep(t *testing.T) {
	clog := NewCanonicalLog()
	clog.Upsert(DayRecord{Date: "2024-01-01", Outcomes: map[string]Outcome{"exercise": OutcomeDone}})

	clone := clog.Clone()
	rec, _ := clone.Get("2024-01-01")
	rec.Outcomes["exercise"] = OutcomeMissed

	orig, _ := clog.Get("2024-01-01")
	if orig.Outcomes["exercise"] != OutcomeDone {
		t.Error("mutating a clone leaked into the original")
	}
}

func TestAggregateState_Equal(t *testing.T) {
	a := AggregateState{TotalReward: 10, Tier: TierNone, ItemStreaks: map[string]int{"x": 2}, BaselineStreak: 1}
	b := AggregateState{TotalReward: 10, Tier: TierNone, ItemStreaks: map[string]int{"x": 2}, BaselineStreak: 1}
	if !a.Equal(b) {
		t.Error("expected equal aggregates")
	}

	c := b
	c.ItemStreaks = map[string]int{"x": 3}
	if a.Equal(c) {
		t.Error("expected streak difference to break equality")
	}
}

func TestIdentity_Scope(t *testing.T) {
	if got := (Identity{}).Scope(); got != "anonymous" {
		t.Errorf("expected anonymous scope, got %q", got)
	}
	if got := (Identity{ID: "user-a"}).Scope(); got != "user-a" {
		t.Errorf("expected user-a scope, got %q", got)
	}
}

func TestErrorClassification(t *testing.T) {
	transient := &TransientError{Op: "pull", Err: fmt.Errorf("timeout")}
	rejected := &RejectedError{Op: "push", Status: 422, Reason: "Unprocessable Entity"}

	if !IsTransient(transient) || IsRejected(transient) {
		t.Error("transient error misclassified")
	}
	if !IsRejected(rejected) || IsTransient(rejected) {
		t.Error("rejected error misclassified")
	}

	wrapped := fmt.Errorf("sync cycle: %w", transient)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped transient error to classify")
	}
	if IsTransient(errors.New("plain")) || IsRejected(errors.New("plain")) {
		t.Error("plain error must not classify")
	}
}

func TestTrackedItemDefinition_Satisfied(t *testing.T) {
	def := TrackedItemDefinition{ID: "x"}
	if !def.Satisfied(OutcomeDone) {
		t.Error("default predicate must accept done")
	}
	if def.Satisfied(OutcomePartial) {
		t.Error("default predicate must reject partial")
	}

	lenient := TrackedItemDefinition{ID: "y", Succeeds: func(o Outcome) bool { return o != OutcomeMissed }}
	if !lenient.Satisfied(OutcomePartial) {
		t.Error("custom predicate not applied")
	}
}

func TestMigrationRecord_Terminal(t *testing.T) {
	tests := []struct {
		status MigrationStatus
		want   bool
	}{
		{MigrationDone, true},
		{MigrationSkipped, true},
		{MigrationPending, false},
		{MigrationRunning, false},
		{MigrationError, false},
	}
	for _, tt := range tests {
		rec := MigrationRecord{Step: "upload-log", Status: tt.status}
		if rec.Terminal() != tt.want {
			t.Errorf("status %s: expected Terminal=%v", tt.status, tt.want)
		}
	}
}
