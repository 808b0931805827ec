package domain

import (
	"fmt"
	"time"
)

// ValidateDate validates a calendar-date key in DateLayout form.
func ValidateDate(date string) error {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("invalid date %q: must be YYYY-MM-DD", date)
	}
	// time.Parse accepts some normalized forms; require the round trip.
	if t.Format(DateLayout) != date {
		return fmt.Errorf("invalid date %q: must be YYYY-MM-DD", date)
	}
	return nil
}

// ValidateOutcome validates a tracked-item outcome.
func ValidateOutcome(o Outcome) error {
	switch o {
	case OutcomeDone, OutcomePartial, OutcomeMissed, OutcomeSkipped:
		return nil
	default:
		return fmt.Errorf("invalid outcome %q: must be one of: done, partial, missed, skipped", o)
	}
}

// ValidateOperationKind validates a pending-operation kind.
func ValidateOperationKind(k OperationKind) error {
	switch k {
	case OpKindLogRecord, OpKindPreferences, OpKindAggregate:
		return nil
	default:
		return fmt.Errorf("invalid operation kind %q: must be one of: log-record, preferences, aggregate", k)
	}
}

// ValidateMigrationStatus validates a migration step status.
func ValidateMigrationStatus(s MigrationStatus) error {
	switch s {
	case MigrationPending, MigrationRunning, MigrationDone, MigrationError, MigrationSkipped:
		return nil
	default:
		return fmt.Errorf("invalid migration status %q", s)
	}
}

// ValidateRecord validates a day record before it enters the canonical log.
func ValidateRecord(rec DayRecord) error {
	if err := ValidateDate(rec.Date); err != nil {
		return err
	}
	for itemID, outcome := range rec.Outcomes {
		if itemID == "" {
			return fmt.Errorf("record %s: empty item id", rec.Date)
		}
		if err := ValidateOutcome(outcome); err != nil {
			return fmt.Errorf("record %s, item %s: %w", rec.Date, itemID, err)
		}
	}
	if rec.Reward < 0 {
		return fmt.Errorf("record %s: reward must not be negative", rec.Date)
	}
	return nil
}
