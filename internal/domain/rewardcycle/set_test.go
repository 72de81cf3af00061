package rewardcycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() SetCycleInput {
	return SetCycleInput{
		TeamID:                 "team-1",
		StartDate:              day(2023, 3, 1),
		EndDate:                day(2023, 3, 14),
		CreatedByObjectID:      "obj-1",
		CreatedByPrincipalName: "admin@example.com",
	}
}

func Test_SetCycleInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *SetCycleInput)
		want   error
	}{
		{name: "valid one-shot", mutate: func(in *SetCycleInput) {}},
		{name: "missing team", mutate: func(in *SetCycleInput) { in.TeamID = "  " }, want: ErrTeamIDRequired},
		{name: "missing start", mutate: func(in *SetCycleInput) { in.StartDate = time.Time{} }, want: ErrDatesRequired},
		{name: "missing end", mutate: func(in *SetCycleInput) { in.EndDate = time.Time{} }, want: ErrDatesRequired},
		{name: "end before start", mutate: func(in *SetCycleInput) { in.EndDate = day(2023, 2, 28) }, want: ErrEndBeforeStart},
		{name: "same day", mutate: func(in *SetCycleInput) { in.EndDate = in.StartDate.Add(time.Hour) }},
		{name: "end after zero", mutate: func(in *SetCycleInput) {
			in.IsRecurring = true
			in.RangeOfOccurrence = OccurrenceEndAfter
		}, want: ErrInvalidOccurrences},
		{name: "end after positive", mutate: func(in *SetCycleInput) {
			in.IsRecurring = true
			in.RangeOfOccurrence = OccurrenceEndAfter
			in.NumberOfOccurrences = 3
		}},
		{name: "end by without date", mutate: func(in *SetCycleInput) {
			in.IsRecurring = true
			in.RangeOfOccurrence = OccurrenceEndBy
		}, want: ErrEndByDateRequired},
		{name: "unknown policy", mutate: func(in *SetCycleInput) {
			in.IsRecurring = true
			in.RangeOfOccurrence = OccurrenceType(9)
		}, want: ErrUnknownOccurrence},
		{name: "start before supported range", mutate: func(in *SetCycleInput) {
			in.StartDate = time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)
		}, want: ErrDateOutOfRange},
		{name: "end far in the future", mutate: func(in *SetCycleInput) {
			in.EndDate = time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC)
		}, want: ErrDateOutOfRange},
		{name: "end by date far in the future", mutate: func(in *SetCycleInput) {
			in.IsRecurring = true
			in.RangeOfOccurrence = OccurrenceEndBy
			in.RangeOfOccurrenceEndDate = datePtr(time.Date(2500, 6, 1, 0, 0, 0, 0, time.UTC))
		}, want: ErrDateOutOfRange},
		{name: "last supported day", mutate: func(in *SetCycleInput) {
			in.EndDate = time.Date(2199, 12, 31, 23, 0, 0, 0, time.UTC)
		}},
		{name: "unknown policy ignored when not recurring", mutate: func(in *SetCycleInput) {
			in.RangeOfOccurrence = OccurrenceType(9)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := in.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func Test_NewCycle_ActiveWhenTodayInWindow(t *testing.T) {
	c, err := NewCycle(validInput(), day(2023, 3, 1).Add(9*time.Hour))
	require.NoError(t, err)

	assert.NotEmpty(t, c.CycleID)
	assert.Equal(t, "team-1", c.TeamID)
	assert.Equal(t, StateActive, c.State)
	assert.Equal(t, Unpublished, c.ResultPublished)
	assert.Equal(t, "obj-1", c.CreatedByObjectID)
	assert.Equal(t, 13, c.DurationDays())
}

func Test_NewCycle_InactiveWhenStartInFuture(t *testing.T) {
	c, err := NewCycle(validInput(), day(2023, 2, 20))
	require.NoError(t, err)
	assert.Equal(t, StateInactive, c.State)
}

func Test_NewCycle_GeneratesDistinctIDs(t *testing.T) {
	a, err := NewCycle(validInput(), day(2023, 3, 1))
	require.NoError(t, err)
	b, err := NewCycle(validInput(), day(2023, 3, 1))
	require.NoError(t, err)
	assert.NotEqual(t, a.CycleID, b.CycleID)
}

func Test_Cycle_Apply_KeepsOnlyRelevantRecurrenceFields(t *testing.T) {
	c, err := NewCycle(validInput(), day(2023, 3, 1))
	require.NoError(t, err)
	id, createdOn := c.CycleID, c.CreatedOn

	in := validInput()
	in.IsRecurring = true
	in.RangeOfOccurrence = OccurrenceEndBy
	in.RangeOfOccurrenceEndDate = datePtr(day(2023, 6, 1))
	in.NumberOfOccurrences = 5
	require.NoError(t, c.Apply(in, day(2023, 3, 2)))

	assert.Equal(t, id, c.CycleID)
	assert.Equal(t, createdOn, c.CreatedOn)
	assert.Equal(t, OccurrenceEndBy, c.RangeOfOccurrence)
	require.NotNil(t, c.RangeOfOccurrenceEndDate)
	assert.Equal(t, day(2023, 6, 1), *c.RangeOfOccurrenceEndDate)
	assert.Zero(t, c.NumberOfOccurrences)

	in.IsRecurring = false
	require.NoError(t, c.Apply(in, day(2023, 3, 2)))
	assert.False(t, c.IsRecurring)
	assert.Equal(t, OccurrenceNoEndDate, c.RangeOfOccurrence)
	assert.Nil(t, c.RangeOfOccurrenceEndDate)
}

func Test_Cycle_Apply_RejectsPublished(t *testing.T) {
	c, err := NewCycle(validInput(), day(2023, 3, 1))
	require.NoError(t, err)
	c.ResultPublished = Published

	assert.ErrorIs(t, c.Apply(validInput(), day(2023, 3, 2)), ErrCyclePublished)
}

func Test_Publish(t *testing.T) {
	c, err := NewCycle(validInput(), day(2023, 3, 1))
	require.NoError(t, err)

	published, err := Publish(c, day(2023, 3, 15).Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Published, published.ResultPublished)
	require.NotNil(t, published.ResultPublishedOn)
	assert.Equal(t, day(2023, 3, 15).Add(10*time.Hour), *published.ResultPublishedOn)
	assert.Equal(t, c.State, published.State)
	assert.Equal(t, Unpublished, c.ResultPublished)

	_, err = Publish(published, day(2023, 3, 16))
	assert.ErrorIs(t, err, ErrCyclePublished)
}

func Test_Cycle_IsCurrent(t *testing.T) {
	c := weekCycle(false, OccurrenceNoEndDate)
	assert.True(t, c.IsCurrent())
	assert.True(t, c.IsSchedulable())

	c.ResultPublished = Published
	assert.True(t, c.IsCurrent(), "active published cycle stays current")
	assert.False(t, c.IsSchedulable())

	c.State = StateInactive
	assert.False(t, c.IsCurrent())

	c = weekCycle(false, OccurrenceNoEndDate)
	c.SupersededBy = "next"
	assert.False(t, c.IsCurrent())
	assert.False(t, c.IsSchedulable())
}
