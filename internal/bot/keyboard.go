package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// menuKeyboard offers the everyday commands as buttons.
func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("agenda"),
			tgbotapi.NewKeyboardButton("help"),
			tgbotapi.NewKeyboardButton("."),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}
