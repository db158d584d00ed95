package handlers

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender sends pipeline output through the Telegram bot API.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender wraps a bot API client.
func NewTelegramSender(bot *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// SendText sends a plain text message. Replies are post-filtered plain text,
// no parse mode is set so stray markup never breaks delivery.
func (s *TelegramSender) SendText(externalID int64, text string) error {
	msg := tgbotapi.NewMessage(externalID, text)
	_, err := s.bot.Send(msg)
	return err
}

// SendTyping shows the typing indicator. Telegram expires it after a few
// seconds, callers re-send it for longer stretches.
func (s *TelegramSender) SendTyping(externalID int64) error {
	action := tgbotapi.NewChatAction(externalID, tgbotapi.ChatTyping)
	_, err := s.bot.Request(action)
	return err
}
