package rewardcycle

import (
	"strings"
	"time"
)

var (
	minCycleDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	maxCycleDate = time.Date(2199, 12, 31, 0, 0, 0, 0, time.UTC)
)

func inDateRange(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(minCycleDate) && !d.After(maxCycleDate)
}

// SetCycleInput is what an admin submits to configure a team's cycle.
type SetCycleInput struct {
	TeamID                   string
	StartDate                time.Time
	EndDate                  time.Time
	IsRecurring              bool
	RangeOfOccurrence        OccurrenceType
	RangeOfOccurrenceEndDate *time.Time
	NumberOfOccurrences      int
	CreatedByObjectID        string
	CreatedByPrincipalName   string
}

// Validate checks the input the same way the cycle form does.
func (in SetCycleInput) Validate() error {
	if strings.TrimSpace(in.TeamID) == "" {
		return ErrTeamIDRequired
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return ErrDatesRequired
	}
	if !inDateRange(in.StartDate) || !inDateRange(in.EndDate) {
		return ErrDateOutOfRange
	}
	if DateOnly(in.EndDate).Before(DateOnly(in.StartDate)) {
		return ErrEndBeforeStart
	}
	if !in.IsRecurring {
		return nil
	}
	switch in.RangeOfOccurrence {
	case OccurrenceNoEndDate:
	case OccurrenceEndBy:
		if in.RangeOfOccurrenceEndDate == nil || in.RangeOfOccurrenceEndDate.IsZero() {
			return ErrEndByDateRequired
		}
		if !inDateRange(*in.RangeOfOccurrenceEndDate) {
			return ErrDateOutOfRange
		}
	case OccurrenceEndAfter:
		if in.NumberOfOccurrences <= 0 {
			return ErrInvalidOccurrences
		}
	default:
		return ErrUnknownOccurrence
	}
	return nil
}

// NewCycle creates a fresh cycle for a team from validated input.
func NewCycle(in SetCycleInput, now time.Time) (Cycle, error) {
	c := Cycle{
		CycleID:         NewID(),
		TeamID:          in.TeamID,
		ResultPublished: Unpublished,
		CreatedOn:       now.UTC(),
	}
	if err := c.Apply(in, now); err != nil {
		return Cycle{}, err
	}
	return c, nil
}

// Apply overwrites the schedule and recurrence configuration of c in place,
// keeping its id and creation time. The state is recomputed from the window.
func (c *Cycle) Apply(in SetCycleInput, now time.Time) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if c.ResultPublished == Published {
		return ErrCyclePublished
	}

	c.StartDate = in.StartDate.UTC()
	c.EndDate = in.EndDate.UTC()
	c.IsRecurring = in.IsRecurring
	c.RangeOfOccurrence = OccurrenceNoEndDate
	c.RangeOfOccurrenceEndDate = nil
	c.NumberOfOccurrences = 0

	if in.IsRecurring {
		c.RangeOfOccurrence = in.RangeOfOccurrence
		switch in.RangeOfOccurrence {
		case OccurrenceEndBy:
			d := in.RangeOfOccurrenceEndDate.UTC()
			c.RangeOfOccurrenceEndDate = &d
		case OccurrenceEndAfter:
			c.NumberOfOccurrences = in.NumberOfOccurrences
		}
	}

	if in.CreatedByObjectID != "" {
		c.CreatedByObjectID = in.CreatedByObjectID
	}
	if in.CreatedByPrincipalName != "" {
		c.CreatedByPrincipalName = in.CreatedByPrincipalName
	}

	if c.InWindow(now) {
		c.State = StateActive
	} else {
		c.State = StateInactive
	}
	return nil
}

// Publish marks the cycle results as announced. The activity state is not touched.
func Publish(c Cycle, now time.Time) (Cycle, error) {
	if c.ResultPublished == Published {
		return c, ErrCyclePublished
	}
	out := c.Clone()
	publishedOn := now.UTC()
	out.ResultPublished = Published
	out.ResultPublishedOn = &publishedOn
	return out, nil
}
