package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reward_cycle_bot/internal/app"
	"reward_cycle_bot/internal/domain/rewardcycle"
)

const dateLayout = "2006-01-02"

var errUsage = errors.New("invalid command format")

// parseSetCycleArgs parses "/set_cycle <teamID> <start> <end> [once|noend|endby:<date>|after:<n>]".
func parseSetCycleArgs(args []string) (rewardcycle.SetCycleInput, error) {
	var in rewardcycle.SetCycleInput
	if len(args) < 3 || len(args) > 4 {
		return in, errUsage
	}

	in.TeamID = strings.TrimSpace(args[0])
	var err error
	if in.StartDate, err = time.Parse(dateLayout, args[1]); err != nil {
		return in, fmt.Errorf("start date %q is not YYYY-MM-DD", args[1])
	}
	if in.EndDate, err = time.Parse(dateLayout, args[2]); err != nil {
		return in, fmt.Errorf("end date %q is not YYYY-MM-DD", args[2])
	}

	recurrence := "once"
	if len(args) == 4 {
		recurrence = strings.ToLower(args[3])
	}

	switch {
	case recurrence == "once":
	case recurrence == "noend":
		in.IsRecurring = true
		in.RangeOfOccurrence = rewardcycle.OccurrenceNoEndDate
	case strings.HasPrefix(recurrence, "endby:"):
		endBy, err := time.Parse(dateLayout, strings.TrimPrefix(recurrence, "endby:"))
		if err != nil {
			return in, fmt.Errorf("end-by date in %q is not YYYY-MM-DD", args[3])
		}
		in.IsRecurring = true
		in.RangeOfOccurrence = rewardcycle.OccurrenceEndBy
		in.RangeOfOccurrenceEndDate = &endBy
	case strings.HasPrefix(recurrence, "after:"):
		n, err := strconv.Atoi(strings.TrimPrefix(recurrence, "after:"))
		if err != nil {
			return in, fmt.Errorf("occurrence count in %q is not a number", args[3])
		}
		in.IsRecurring = true
		in.RangeOfOccurrence = rewardcycle.OccurrenceEndAfter
		in.NumberOfOccurrences = n
	default:
		return in, fmt.Errorf("unknown recurrence %q", args[3])
	}

	return in, nil
}

// parseTeamArg parses the single team id argument of /cycle, /publish and /published.
func parseTeamArg(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errUsage
	}
	return strings.TrimSpace(args[0]), nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}

func describeRecurrence(c *rewardcycle.Cycle) string {
	if !c.IsRecurring {
		return "once"
	}
	switch c.RangeOfOccurrence {
	case rewardcycle.OccurrenceNoEndDate:
		return "repeats with no end date"
	case rewardcycle.OccurrenceEndBy:
		return "repeats until " + formatDate(c.RangeOfOccurrenceEndDate)
	case rewardcycle.OccurrenceEndAfter:
		return fmt.Sprintf("repeats %d more time(s)", c.NumberOfOccurrences)
	default:
		return "unknown recurrence"
	}
}

// formatCycle renders a cycle for a chat reply.
func formatCycle(title string, c *rewardcycle.Cycle) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- %s ---\n", title))
	b.WriteString(fmt.Sprintf("Team: %s\n", c.TeamID))
	b.WriteString(fmt.Sprintf("Cycle: %s\n", c.CycleID))
	b.WriteString(fmt.Sprintf("Dates: %s .. %s\n", formatDate(&c.StartDate), formatDate(&c.EndDate)))
	b.WriteString(fmt.Sprintf("Recurrence: %s\n", describeRecurrence(c)))
	b.WriteString(fmt.Sprintf("State: %s, results %s", c.State, c.ResultPublished))
	if c.ResultPublishedOn != nil {
		b.WriteString(" on " + formatDate(c.ResultPublishedOn))
	}
	return b.String()
}

func formatReport(r app.TickReport) string {
	return fmt.Sprintf(
		"Cycle check finished.\nEvaluated: %d (active %d, inactive %d)\nRolled over: %d\nMisconfigured: %d\nSkipped: %d\nFailed: %d",
		r.Evaluated, r.Active, r.Inactive, r.RolledOver, r.Misconfigured, r.Skipped, r.Failed,
	)
}
