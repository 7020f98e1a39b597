package bot

import (
	"log"
	"regexp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram only accepts these as menu commands.
var menuCommand = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// menuCommands lists the dispatcher commands Telegram can show in its menu.
func (b *Bot) menuCommands() []tgbotapi.BotCommand {
	var commands []tgbotapi.BotCommand
	for _, name := range b.a.Dispatcher().Commands() {
		if !menuCommand.MatchString(name) {
			continue
		}
		commands = append(commands, tgbotapi.BotCommand{Command: name, Description: "Run " + name})
	}
	return commands
}

func (b *Bot) setCommands() {
	commands := b.menuCommands()
	if len(commands) == 0 {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}
