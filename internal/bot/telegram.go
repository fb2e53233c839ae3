package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/khmerdict/dictbot/internal/logctx"
)

//go:generate mockgen -source=telegram.go -destination=../mocks/bot/mock_telegram.go -package=mock_bot

// Sender is the part of *tgbotapi.BotAPI the replier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramReplier implements Replier with the Bot API.
type TelegramReplier struct {
	sender Sender
}

// NewTelegramReplier creates a TelegramReplier.
func NewTelegramReplier(sender Sender) *TelegramReplier {
	return &TelegramReplier{sender: sender}
}

// Send posts a new message. A Markdown reply the API rejects is sent again as plain text.
func (t *TelegramReplier) Send(ctx context.Context, chatID int64, reply Reply) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(chatID, truncate(reply.Text))
	if markup := inlineKeyboard(reply.Buttons); markup != nil {
		msg.ReplyMarkup = *markup
	}
	if reply.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}

	sent, err := t.sender.Send(msg)
	if err != nil && reply.Markdown {
		logctx.From(ctx).Warn("markdown reply rejected, sending plain text", "error", err)
		msg.ParseMode = ""
		sent, err = t.sender.Send(msg)
	}
	if err != nil {
		return MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text and keyboard of a message.
func (t *TelegramReplier) Edit(ctx context.Context, ref MessageRef, reply Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, truncate(reply.Text))
	edit.ReplyMarkup = inlineKeyboard(reply.Buttons)
	if reply.Markdown {
		edit.ParseMode = tgbotapi.ModeMarkdown
	}

	_, err := t.sender.Send(edit)
	if err != nil && reply.Markdown && !isNotModified(err) {
		logctx.From(ctx).Warn("markdown edit rejected, sending plain text", "error", err)
		edit.ParseMode = ""
		_, err = t.sender.Send(edit)
	}
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// AnswerCallback stops the client's loading indicator on a pressed button.
func (t *TelegramReplier) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.sender.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

func inlineKeyboard(rows [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, string(b.Callback)))
			}
		}
		keyboard = append(keyboard, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return &markup
}

// truncate cuts text to MaxMessageLength UTF-16 code units, ending with an ellipsis when cut.
// Telegram measures message length in UTF-16, so a rune outside the BMP counts twice.
func truncate(text string) string {
	units := 0
	for _, r := range text {
		units += utf16.RuneLen(r)
	}
	if units <= MaxMessageLength {
		return text
	}

	budget := MaxMessageLength - 1
	for i, r := range text {
		n := utf16.RuneLen(r)
		if n > budget {
			return text[:i] + "…"
		}
		budget -= n
	}
	return text
}
