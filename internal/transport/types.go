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

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	FromIsBot    bool
	Text         string
	// HTML is the message text with its formatting entities pre-rendered as
	// Telegram HTML. Empty when the message carries no formatting.
	HTML        string
	Attachments []AttachmentRef
	IsGroup     bool
}

// AttachmentRef points at a platform-hosted file that can be fetched
// with Adapter.Download.
type AttachmentRef struct {
	FileID string
	Name   string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// User identifies a directly addressable account. A private chat with a
// Telegram user shares the user's ID, so DMTarget is a plain conversion.
func DMTarget(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// File is an outgoing attachment. Data is immutable; the adapter opens a
// fresh reader over it for every send.
type File struct {
	Name string
	Data []byte
}

// Outgoing is a composed message: text (optionally already-safe HTML) plus
// any number of attachments.
type Outgoing struct {
	Text           string
	ParseMode      string
	DisablePreview bool
	Files          []File
	MarkupAdapter  any
}

// ErrRecipientUnreachable marks a delivery failure caused by the recipient
// side (closed DMs, blocked bot, deactivated account) rather than by the
// transport. Adapters wrap platform errors so callers can classify with
// errors.Is.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMessage(ctx context.Context, to ChatTarget, out Outgoing) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	Download(ctx context.Context, ref AttachmentRef) ([]byte, error)
}
