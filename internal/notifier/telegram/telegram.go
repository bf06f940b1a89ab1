// Package telegram delivers alerts to Telegram chats through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
)

const channel = "telegram"

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatRecipient sends alerts to one chat.
type ChatRecipient struct {
	sender Sender
	chat   string
	id     int64
}

// NewBot authenticates token against the Bot API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// ParseChatIDs splits a comma-separated list, dropping blanks.
func ParseChatIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Recipients builds one recipient per chat. Chats are numeric ids or
// @channel usernames.
func Recipients(sender Sender, chats []string) ([]notifier.Recipient, error) {
	out := make([]notifier.Recipient, 0, len(chats))
	for _, chat := range chats {
		r, err := NewChatRecipient(sender, chat)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// NewChatRecipient validates chat and builds a recipient.
func NewChatRecipient(sender Sender, chat string) (*ChatRecipient, error) {
	chat = strings.TrimSpace(chat)
	if strings.HasPrefix(chat, "@") && len(chat) > 1 {
		return &ChatRecipient{sender: sender, chat: chat}, nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat id %q must be numeric or an @channel", chat)
	}
	return &ChatRecipient{sender: sender, chat: chat, id: id}, nil
}

// Channel implements notifier.Recipient.
func (r *ChatRecipient) Channel() string { return channel }

// Target implements notifier.Recipient.
func (r *ChatRecipient) Target() string { return r.chat }

// Send posts the formatted alert.
func (r *ChatRecipient) Send(_ context.Context, alert notifier.Alert) error {
	text := notifier.FormatHTML(alert)
	var msg tgbotapi.MessageConfig
	if r.id != 0 {
		msg = tgbotapi.NewMessage(r.id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(r.chat, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := r.sender.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %s: %w", r.chat, err)
	}
	return nil
}
