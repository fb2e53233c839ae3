// Package bot decodes Telegram updates into events and answers them.
package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrDecode is returned for updates the bot does not handle.
var ErrDecode = errors.New("undecodable update")

// User is the sender of an update.
type User struct {
	ID        int64
	FirstName string
	Username  string
}

// Origin identifies who sent an event and the message to answer.
type Origin struct {
	UpdateID  int
	User      User
	ChatID    int64
	MessageID int
}

// Event is one of Command, FreeText or CallbackAction.
type Event interface {
	EventOrigin() Origin
	isEvent()
}

// CommandName is the closed set of commands the router knows.
type CommandName string

const (
	CommandStart   CommandName = "start"
	CommandHelp    CommandName = "help"
	CommandAbout   CommandName = "about"
	CommandStats   CommandName = "stats"
	CommandUnknown CommandName = ""
)

// CallbackTag is the closed set of inline button payloads.
type CallbackTag string

const (
	CallbackStart CallbackTag = "start"
	CallbackHelp  CallbackTag = "help"
	CallbackAbout CallbackTag = "about"
)

// Command is a message starting with "/".
type Command struct {
	Origin
	Name CommandName
	// Raw is the command as typed, without the leading slash or bot mention.
	Raw  string
	Args string
}

// FreeText is any other text message.
type FreeText struct {
	Origin
	Text string
}

// CallbackAction is a press on one of the bot's inline buttons.
type CallbackAction struct {
	Origin
	CallbackID string
	Tag        CallbackTag
}

func (o Origin) EventOrigin() Origin { return o }

func (Command) isEvent()        {}
func (FreeText) isEvent()       {}
func (CallbackAction) isEvent() {}

var knownCommands = map[string]CommandName{
	"start": CommandStart,
	"help":  CommandHelp,
	"about": CommandAbout,
	"stats": CommandStats,
}

var knownCallbacks = map[string]CallbackTag{
	"start": CallbackStart,
	"help":  CallbackHelp,
	"about": CallbackAbout,
}

// Decode turns a webhook body into an Event. Every failure wraps ErrDecode.
func Decode(raw []byte) (Event, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	switch {
	case update.Message != nil:
		return decodeMessage(update.UpdateID, update.Message)
	case update.CallbackQuery != nil:
		return decodeCallback(update.UpdateID, update.CallbackQuery)
	default:
		return nil, fmt.Errorf("%w: update %d has no message or callback query", ErrDecode, update.UpdateID)
	}
}

func newUser(u *tgbotapi.User) User {
	return User{ID: u.ID, FirstName: u.FirstName, Username: u.UserName}
}

func decodeMessage(updateID int, msg *tgbotapi.Message) (Event, error) {
	if msg.From == nil || msg.From.ID == 0 {
		return nil, fmt.Errorf("%w: message %d has no sender", ErrDecode, msg.MessageID)
	}
	if msg.Chat == nil {
		return nil, fmt.Errorf("%w: message %d has no chat", ErrDecode, msg.MessageID)
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message %d has no text", ErrDecode, msg.MessageID)
	}

	origin := Origin{
		UpdateID:  updateID,
		User:      newUser(msg.From),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}
	if !strings.HasPrefix(text, "/") {
		return FreeText{Origin: origin, Text: text}, nil
	}

	head, args := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, args = head[:i], head[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	raw := strings.ToLower(head)
	return Command{
		Origin: origin,
		Name:   knownCommands[raw],
		Raw:    raw,
		Args:   strings.TrimSpace(args),
	}, nil
}

func decodeCallback(updateID int, cq *tgbotapi.CallbackQuery) (Event, error) {
	if cq.From == nil || cq.From.ID == 0 {
		return nil, fmt.Errorf("%w: callback %s has no sender", ErrDecode, cq.ID)
	}
	if cq.Message == nil || cq.Message.Chat == nil {
		return nil, fmt.Errorf("%w: callback %s has no message", ErrDecode, cq.ID)
	}
	tag, ok := knownCallbacks[cq.Data]
	if !ok {
		return nil, fmt.Errorf("%w: unknown callback data %q", ErrDecode, cq.Data)
	}
	return CallbackAction{
		Origin: Origin{
			UpdateID:  updateID,
			User:      newUser(cq.From),
			ChatID:    cq.Message.Chat.ID,
			MessageID: cq.Message.MessageID,
		},
		CallbackID: cq.ID,
		Tag:        tag,
	}, nil
}
