// Package transport defines the platform-neutral types and the client
// interface the bot core uses to talk to the chat platform. The Telegram
// implementation lives in transport/telegram.
package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an inbound message. At most one of PhotoID/VideoID is set;
// Caption accompanies media, Text accompanies plain messages.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	PhotoID      string
	VideoID      string
	Caption      string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyMarkup    any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// MemberStatus is the platform's membership role for a (chat, user) pair.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// Subscribed reports whether the status counts as "joined".
func (s MemberStatus) Subscribed() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	}
	return false
}

type ChatInfo struct {
	ID       int64
	Username string // without "@", empty for private chats without a handle
	Title    string
}

// Error categories. The core never branches on these beyond logging; every
// failed call is simply "operation failed".
var (
	ErrForbidden = errors.New("transport: forbidden")
	ErrNotFound  = errors.New("transport: not found")
)

// Category maps an error to a short tag for structured logs.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transport"
	}
}

// Client is the chat-platform surface the core issues calls against.
type Client interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, fileID, caption string, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, fileID, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error

	// BotID is the bot's own user id, for self-membership checks.
	BotID() int64
	// ChatMember resolves the membership status of userID in the chat named
	// by an external identifier (numeric id or "@handle").
	ChatMember(ctx context.Context, chat string, userID int64) (MemberStatus, error)
	// ChatInfo resolves an external identifier to chat metadata.
	ChatInfo(ctx context.Context, idOrHandle string) (ChatInfo, error)
}
