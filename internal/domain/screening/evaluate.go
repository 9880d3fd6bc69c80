package screening

import "time"

// DueSoonWindowDays is the default number of days ahead of the due date
// within which a screening counts as due soon. The boundary is inclusive:
// exactly DueSoonWindowDays days remaining is still Due Soon.
const DueSoonWindowDays = 30

// Evaluate derives a compliance status and due date from the most recent
// completion, the recurrence rule, and a reference date, using the default
// due-soon window.
func Evaluate(lastCompleted *time.Time, rule *FrequencyRule, ref time.Time) (Status, *time.Time) {
	return EvaluateWindow(lastCompleted, rule, ref, DueSoonWindowDays)
}

// EvaluateWindow is Evaluate with an explicit due-soon window in days.
// It is pure: same inputs always yield the same output.
//
//  1. no usable rule -> Incomplete, no due date
//  2. never completed -> Due, no due date
//  3. once-only rules are satisfied by any completion
//  4. otherwise due = lastCompleted + interval; overdue -> Due,
//     within the window (inclusive) -> Due Soon, beyond it -> Complete
func EvaluateWindow(lastCompleted *time.Time, rule *FrequencyRule, ref time.Time, windowDays int) (Status, *time.Time) {
	if !rule.valid() {
		return StatusIncomplete, nil
	}
	if lastCompleted == nil {
		return StatusDue, nil
	}
	if rule.Once {
		return StatusComplete, nil
	}

	due := addInterval(*lastCompleted, rule.Count, rule.Unit)
	remaining := daysBetween(ref, due)
	switch {
	case remaining < 0:
		return StatusDue, &due
	case remaining <= windowDays:
		return StatusDueSoon, &due
	default:
		return StatusComplete, &due
	}
}

// addInterval advances t by count units. Month and year arithmetic clamps to
// the last valid day of the target month (Jan 31 + 1 month -> Feb 28/29)
// rather than overflowing like time.AddDate does.
func addInterval(t time.Time, count int, unit FrequencyUnit) time.Time {
	switch unit {
	case UnitDay:
		return t.AddDate(0, 0, count)
	case UnitMonth:
		return addMonthsClamped(t, count)
	case UnitYear:
		return addMonthsClamped(t, count*12)
	}
	return t
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	year += total / 12
	month = time.Month(total%12 + 1)
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// day 0 of the next month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysBetween counts whole calendar days from a to b, ignoring time of day.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
