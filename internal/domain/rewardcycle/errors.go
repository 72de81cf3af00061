package rewardcycle

import (
	"errors"
	"fmt"
)

var (
	ErrCycleNotFound  = errors.New("reward cycle not found")
	ErrCyclePublished = errors.New("reward cycle results are already published")

	// Set-cycle validation errors.
	ErrTeamIDRequired     = errors.New("team id is required")
	ErrDatesRequired      = errors.New("cycle start and end dates are required")
	ErrEndBeforeStart     = errors.New("cycle end date is before start date")
	ErrInvalidOccurrences = errors.New("number of occurrences must be greater than zero")
	ErrEndByDateRequired  = errors.New("end-by date is required for this recurrence")
	ErrUnknownOccurrence  = errors.New("unknown range of occurrence")
	ErrDateOutOfRange     = errors.New("cycle dates must fall between 2000-01-01 and 2199-12-31")
)

// DataIntegrityError reports a stored cycle that cannot be evaluated because a
// required field is missing.
type DataIntegrityError struct {
	TeamID  string
	CycleID string
	Field   string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("reward cycle %s (team %s): missing %s", e.CycleID, e.TeamID, e.Field)
}
