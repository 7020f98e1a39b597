package bot

import (
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/orgassist/internal/assistant"
	"github.com/tazhate/orgassist/internal/logging"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	}
}

// handleMessage serves the boss in their private chat. Replies always go to
// the boss, whatever chat the update names.
func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	boss := b.cfg.Boss.TelegramID

	if !b.cfg.IsBoss(msg.From.ID) {
		logging.Warn("bot", "message from stranger %d (@%s)", msg.From.ID, msg.From.UserName)
		if msg.Chat.ID == msg.From.ID {
			b.SendMessage(msg.Chat.ID, assistant.PhraseDontKnow)
		}
		return
	}
	if msg.Chat.ID != boss {
		logging.Warn("bot", "ignoring boss message in chat %d", msg.Chat.ID)
		return
	}

	text := commandText(msg)
	if text == "" {
		return
	}
	if text == "start" {
		b.sendWelcome(boss)
		return
	}

	logging.Debug("bot", "got %q", logging.Truncate(text, 80))
	m := assistant.NewMessage(text, senderName(msg.From), func(reply string) error {
		return b.SendMessage(boss, reply)
	})
	if err := b.a.Dispatch(m); err != nil {
		log.Printf("Error handling message: %v", err)
	}
}

func senderName(u *tgbotapi.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.UserName
	}
	return name
}

func (b *Bot) sendWelcome(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Hi "+b.cfg.Boss.Name+", "+b.a.Name+" here. Send \"help\" to see what I can do.")
	msg.ReplyMarkup = menuKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending welcome: %v", err)
	}
}

// commandText turns "/agenda@my_bot" into "agenda". Plain text is kept.
func commandText(msg *tgbotapi.Message) string {
	if msg.IsCommand() {
		return strings.TrimSpace(msg.Command() + " " + msg.CommandArguments())
	}
	return strings.TrimSpace(msg.Text)
}
