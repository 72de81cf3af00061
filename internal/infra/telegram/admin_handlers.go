package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"reward_cycle_bot/internal/app"
	"reward_cycle_bot/internal/domain/rewardcycle"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgUnauthorized = "Error: you are not allowed to run this command."

// CycleCheckRunner runs a reward cycle status pass on demand.
type CycleCheckRunner interface {
	RunNow(ctx context.Context) (app.TickReport, bool, error)
}

// errorReply maps a service error to the message shown to the admin.
func errorReply(err error) string {
	var integrity *rewardcycle.DataIntegrityError
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return msgUnauthorized
	case errors.Is(err, rewardcycle.ErrCycleNotFound):
		return "No reward cycle found for this team."
	case errors.Is(err, rewardcycle.ErrCyclePublished):
		return "The results of this cycle are already published."
	case errors.Is(err, rewardcycle.ErrTeamIDRequired),
		errors.Is(err, rewardcycle.ErrDatesRequired),
		errors.Is(err, rewardcycle.ErrEndBeforeStart),
		errors.Is(err, rewardcycle.ErrDateOutOfRange),
		errors.Is(err, rewardcycle.ErrInvalidOccurrences),
		errors.Is(err, rewardcycle.ErrEndByDateRequired),
		errors.Is(err, rewardcycle.ErrUnknownOccurrence):
		return "Error: " + err.Error() + "."
	case errors.As(err, &integrity):
		return "Error: " + err.Error() + "."
	default:
		return "Something went wrong, please try again later."
	}
}

// RegisterAdminHandlers registers handlers for the cycle admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, runner CycleCheckRunner, baseLogger *logrus.Entry) {
	b.Handle("/cycle", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/cycle",
			"sender_id": c.Sender().ID,
		})
		teamID, err := parseTeamArg(c.Args())
		if err != nil {
			return c.Send("Invalid command format. Use: /cycle <teamID>")
		}

		cycle, err := adminService.CurrentCycle(ctx, c.Sender().ID, teamID)
		if err != nil {
			handlerLogger.WithError(err).WithField("team_id", teamID).Warn("Failed to get current cycle")
			return c.Send(errorReply(err))
		}
		return c.Send(formatCycle("Current reward cycle", cycle))
	})

	b.Handle("/published", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/published",
			"sender_id": c.Sender().ID,
		})
		teamID, err := parseTeamArg(c.Args())
		if err != nil {
			return c.Send("Invalid command format. Use: /published <teamID>")
		}

		cycle, err := adminService.PublishedCycle(ctx, c.Sender().ID, teamID)
		if err != nil {
			handlerLogger.WithError(err).WithField("team_id", teamID).Warn("Failed to get published cycle")
			return c.Send(errorReply(err))
		}
		return c.Send(formatCycle("Last published reward cycle", cycle))
	})

	b.Handle("/set_cycle", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/set_cycle",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := adminService.Authorize(c.Sender().ID); err != nil {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}

		in, err := parseSetCycleArgs(c.Args())
		if err != nil {
			handlerLogger.WithError(err).Warn("Invalid command format")
			if errors.Is(err, errUsage) {
				return c.Send("Invalid command format. Use: /set_cycle <teamID> <YYYY-MM-DD start> <YYYY-MM-DD end> [once|noend|endby:<YYYY-MM-DD>|after:<n>]")
			}
			return c.Send("Error: " + err.Error() + ".")
		}
		in.CreatedByObjectID = strconv.FormatInt(c.Sender().ID, 10)
		in.CreatedByPrincipalName = c.Sender().Username

		cycle, err := adminService.SetCycle(ctx, c.Sender().ID, in)
		if err != nil {
			handlerLogger.WithError(err).WithField("team_id", in.TeamID).Warn("Failed to set cycle")
			return c.Send(errorReply(err))
		}

		handlerLogger.WithFields(logrus.Fields{
			"team_id":  cycle.TeamID,
			"cycle_id": cycle.CycleID,
		}).Info("Reward cycle set")
		return c.Send(formatCycle("Reward cycle saved", cycle))
	})

	b.Handle("/publish", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/publish",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		teamID, err := parseTeamArg(c.Args())
		if err != nil {
			return c.Send("Invalid command format. Use: /publish <teamID>")
		}

		cycle, err := adminService.PublishResults(ctx, c.Sender().ID, teamID)
		if err != nil {
			handlerLogger.WithError(err).WithField("team_id", teamID).Warn("Failed to publish results")
			return c.Send(errorReply(err))
		}
		return c.Send(formatCycle("Results published", cycle))
	})

	b.Handle("/run_cycle_check", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/run_cycle_check",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := adminService.Authorize(c.Sender().ID); err != nil {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}

		report, ran, err := runner.RunNow(ctx)
		if !ran {
			return c.Send("A cycle check is already running, try again later.")
		}
		if err != nil {
			handlerLogger.WithError(err).Error("Manual cycle check failed")
			return c.Send(fmt.Sprintf("Cycle check failed: %s", err.Error()))
		}
		return c.Send(formatReport(report))
	})
}
