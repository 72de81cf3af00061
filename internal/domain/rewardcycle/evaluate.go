package rewardcycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// rolloverNamespace seeds the UUIDv5 ids of rolled-over cycles.
var rolloverNamespace = uuid.MustParse("3f1c6a52-8d0e-5b7a-9c41-2e6d9f0a7b13")

// Outcome is the result of evaluating one cycle at a point in time.
type Outcome struct {
	// Current is the evaluated row with its new state. When a rollover happened it
	// is closed: Inactive and SupersededBy set to Next.CycleID.
	Current Cycle
	// Next is the freshly rolled cycle that must be stored as an additional row.
	Next *Cycle
	// Misconfigured is set when RangeOfOccurrence is not a known policy. Current
	// is then forced Inactive.
	Misconfigured bool
}

// RolledOver reports whether the evaluation minted a new cycle.
func (o Outcome) RolledOver() bool {
	return o.Next != nil
}

// Evaluate decides the state of c at now and whether it rolls over into a new
// cycle. It reads no clock and keeps no state: the same input always produces
// the same Outcome. All comparisons use UTC calendar dates.
func Evaluate(c Cycle, now time.Time) (Outcome, error) {
	if c.ResultPublished == Published {
		return Outcome{}, fmt.Errorf("evaluate cycle %s: %w", c.CycleID, ErrCyclePublished)
	}
	if c.StartDate.IsZero() {
		return Outcome{}, &DataIntegrityError{TeamID: c.TeamID, CycleID: c.CycleID, Field: "start date"}
	}
	if c.EndDate.IsZero() {
		return Outcome{}, &DataIntegrityError{TeamID: c.TeamID, CycleID: c.CycleID, Field: "end date"}
	}

	now = now.UTC()
	cur := c.Clone()
	today := DateOnly(now)
	end := DateOnly(cur.EndDate)

	if !cur.IsRecurring {
		if cur.InWindow(now) {
			cur.State = StateActive
		} else {
			cur.State = StateInactive
		}
		return Outcome{Current: cur}, nil
	}

	switch cur.RangeOfOccurrence {
	case OccurrenceNoEndDate:
		if today.After(end) {
			return rollOver(cur, now), nil
		}
		// inside or before the window: state is left as stored

	case OccurrenceEndBy:
		duration := cur.DurationDays()
		switch {
		case cur.InWindow(now):
			cur.State = StateActive
		case today.After(end) && hasRunway(cur, now, duration):
			return rollOver(cur, now), nil
		default:
			cur.State = StateInactive
		}

	case OccurrenceEndAfter:
		switch {
		case cur.NumberOfOccurrences > 0 && today.After(end):
			out := rollOver(cur, now)
			out.Next.NumberOfOccurrences = cur.NumberOfOccurrences - 1
			return out, nil
		case cur.NumberOfOccurrences >= 0 && !today.After(end):
			// also true at zero remaining occurrences; kept as is
			cur.State = StateActive
		default:
			cur.State = StateInactive
		}

	default:
		cur.State = StateInactive
		return Outcome{Current: cur, Misconfigured: true}, nil
	}

	return Outcome{Current: cur}, nil
}

// hasRunway reports whether an EndBy cycle has room for one more full cycle before
// its end-by date. The remaining days must be strictly greater than the duration.
func hasRunway(c Cycle, now time.Time, durationDays int) bool {
	if c.RangeOfOccurrenceEndDate == nil {
		return false
	}
	endBy := DateOnly(*c.RangeOfOccurrenceEndDate)
	if DateOnly(now).After(endBy) {
		return false
	}
	return DaysBetween(now, endBy) > durationDays
}

// rollOver closes cur and derives the next cycle with the same duration starting at now.
func rollOver(cur Cycle, now time.Time) Outcome {
	duration := cur.DurationDays()

	next := cur.Clone()
	next.CycleID = RolloverID(cur.TeamID, cur.CycleID, now)
	next.CreatedOn = now
	next.StartDate = now
	next.EndDate = now.AddDate(0, 0, duration)
	next.State = StateActive
	next.ResultPublished = Unpublished
	next.ResultPublishedOn = nil
	next.SupersededBy = ""

	cur.State = StateInactive
	cur.SupersededBy = next.CycleID

	return Outcome{Current: cur, Next: &next}
}

// RolloverID derives the id of the cycle that replaces cycleID on the date of now.
func RolloverID(teamID, cycleID string, now time.Time) string {
	key := fmt.Sprintf("%s:%s:%s", teamID, cycleID, DateOnly(now).Format("2006-01-02"))
	return uuid.NewSHA1(rolloverNamespace, []byte(key)).String()
}

// NewID returns a random id for a cycle created by a user.
func NewID() string {
	return uuid.NewString()
}
