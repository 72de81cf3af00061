// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"reward_cycle_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func adminHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Available admin commands:\n\n")
	helpText.WriteString("`/cycle <teamID>`\n - Show the team's current reward cycle.\n\n")
	helpText.WriteString("`/set_cycle <teamID> <start> <end> [once|noend|endby:<date>|after:<n>]`\n - Configure the team's cycle. Dates are YYYY-MM-DD.\n\n")
	helpText.WriteString("`/publish <teamID>`\n - Publish the results of the current cycle.\n\n")
	helpText.WriteString("`/published <teamID>`\n - Show the last published cycle.\n\n")
	helpText.WriteString("`/run_cycle_check`\n - Evaluate all unpublished cycles now.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func RegisterBotCommands(b *telebot.Bot, cfg *config.AppConfig, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == cfg.AdminTelegramID {
			return c.Send(fmt.Sprintf("Hello, %s! Reward cycles are ready to manage. Use /help for the list of commands.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("Hello! This bot manages reward cycles and only talks to its administrator.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID).Info("Processing /help command")

		if senderID == cfg.AdminTelegramID {
			return c.Send(adminHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		return c.Send("No commands are available to you.")
	})
}
