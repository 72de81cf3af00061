// internal/domain/rewardcycle/cycle.go
package rewardcycle

import "time"

// CycleState is the activity state of a reward cycle.
type CycleState int

const (
	StateInactive CycleState = 0
	StateActive   CycleState = 1
)

func (s CycleState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// PublishState tells whether the results of a cycle have been announced.
// Published is terminal for a row.
type PublishState int

const (
	Unpublished PublishState = 0
	Published   PublishState = 1
)

func (p PublishState) String() string {
	if p == Published {
		return "published"
	}
	return "unpublished"
}

// OccurrenceType selects the recurrence termination policy of a recurring cycle.
type OccurrenceType int

const (
	OccurrenceNoEndDate OccurrenceType = 0 // roll over forever
	OccurrenceEndBy     OccurrenceType = 1 // roll over until RangeOfOccurrenceEndDate
	OccurrenceEndAfter  OccurrenceType = 2 // roll over NumberOfOccurrences more times
)

func (o OccurrenceType) String() string {
	switch o {
	case OccurrenceNoEndDate:
		return "no_end_date"
	case OccurrenceEndBy:
		return "end_by"
	case OccurrenceEndAfter:
		return "end_after"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the recognised policies.
func (o OccurrenceType) Valid() bool {
	return o >= OccurrenceNoEndDate && o <= OccurrenceEndAfter
}

// Cycle is one reward cycle row. A team has at most one current (not superseded,
// not published) cycle; rollovers leave the old row behind as history.
type Cycle struct {
	CycleID string
	TeamID  string

	StartDate time.Time
	EndDate   time.Time

	IsRecurring              bool
	RangeOfOccurrence        OccurrenceType
	RangeOfOccurrenceEndDate *time.Time // only meaningful for OccurrenceEndBy
	NumberOfOccurrences      int        // only meaningful for OccurrenceEndAfter

	State             CycleState
	ResultPublished   PublishState
	ResultPublishedOn *time.Time

	// SupersededBy holds the id of the cycle that replaced this one at rollover.
	// Empty for the current cycle.
	SupersededBy string

	CreatedOn              time.Time
	CreatedByObjectID      string
	CreatedByPrincipalName string
}

// Clone returns a deep copy of c.
func (c Cycle) Clone() Cycle {
	out := c
	if c.RangeOfOccurrenceEndDate != nil {
		d := *c.RangeOfOccurrenceEndDate
		out.RangeOfOccurrenceEndDate = &d
	}
	if c.ResultPublishedOn != nil {
		d := *c.ResultPublishedOn
		out.ResultPublishedOn = &d
	}
	return out
}

// InWindow reports whether now falls within [StartDate, EndDate], comparing dates only.
func (c Cycle) InWindow(now time.Time) bool {
	today := DateOnly(now)
	return !today.Before(DateOnly(c.StartDate)) && !today.After(DateOnly(c.EndDate))
}

// DurationDays is the whole number of days between the start and end dates.
func (c Cycle) DurationDays() int {
	return DaysBetween(c.StartDate, c.EndDate)
}

// IsCurrent reports whether the row is a team's live cycle: Active, or Inactive
// and unpublished, and not superseded. A published cycle stays current until it
// goes Inactive so its results can still be shown.
func (c Cycle) IsCurrent() bool {
	if c.SupersededBy != "" {
		return false
	}
	return c.State == StateActive || c.ResultPublished == Unpublished
}

// IsSchedulable reports whether the periodic evaluation has to look at the row.
func (c Cycle) IsSchedulable() bool {
	return c.SupersededBy == "" && c.ResultPublished == Unpublished
}

const secondsPerDay = 24 * 60 * 60

// DateOnly truncates t to midnight UTC of its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int((DateOnly(b).Unix() - DateOnly(a).Unix()) / secondsPerDay)
}
