// internal/infra/telegram/client.go
package telegram

import (
	"reward_cycle_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// MessageSender sends a text message to a chat.
type MessageSender interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements MessageSender using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified recipient.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID}
	_, err := tba.bot.Send(recipient, text, options)
	return err
}

// NewPassReporter returns a callback for scheduled passes that tells the admin
// about passes which rolled cycles over or hit problems. Quiet passes are not reported.
func NewPassReporter(sender MessageSender, adminTelegramID int64, logger *logrus.Entry) func(app.TickReport, error) {
	return func(report app.TickReport, err error) {
		var text string
		switch {
		case err != nil:
			text = "Scheduled cycle check failed: " + err.Error()
		case report.RolledOver > 0 || report.Misconfigured > 0 || report.Skipped > 0 || report.Failed > 0:
			text = formatReport(report)
		default:
			return
		}
		if sendErr := sender.SendMessage(adminTelegramID, text, nil); sendErr != nil {
			logger.WithError(sendErr).Warn("Failed to send cycle check report to admin")
		}
	}
}
