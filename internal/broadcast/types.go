// Package broadcast implements the admin broadcast pipeline: a per-admin
// composition state machine (capture → preview → optional buttons → confirm)
// and a sequential dispatcher with per-destination failure isolation.
package broadcast

import (
	"gatebot/internal/transport"
	"gatebot/pkg/tgui"
)

// Audience is the target population of a broadcast.
type Audience string

const (
	AudienceUsers    Audience = "users"
	AudienceChannels Audience = "channels"
)

// SettingLastBroadcast is the settings key holding the most recently
// dispatched content for an audience. Overwritten on each dispatch.
func SettingLastBroadcast(a Audience) string {
	return "last_" + string(a) + "_broadcast"
}

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentPhoto ContentKind = "photo"
	ContentVideo ContentKind = "video"
)

// ContentItem is one broadcastable unit: either a text body or a single
// media reference with an optional caption. HTML formatting is preserved
// verbatim and rendered with ParseMode=HTML.
type ContentItem struct {
	Kind    ContentKind `json:"kind"`
	Text    string      `json:"text,omitempty"`
	FileID  string      `json:"file_id,omitempty"`
	Caption string      `json:"caption,omitempty"`
}

// Button is one link button rendered beneath a broadcast.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ButtonRow is the ordered button list; empty means "no buttons" and is valid.
type ButtonRow []Button

// Markup renders the buttons as an inline keyboard, one button per row.
// Returns nil for an empty row so the platform omits the keyboard entirely.
func (r ButtonRow) Markup() any {
	if len(r) == 0 {
		return nil
	}
	kb := tgui.NewInline()
	for _, b := range r {
		kb.Row(tgui.URLBtn(b.Label, b.URL))
	}
	return kb.Markup()
}

// Report is the dispatch outcome summary.
type Report struct {
	Sent   int
	Failed int
}

// SessionState tags the composer's per-admin state machine.
type SessionState int

const (
	StateAwaitingContent SessionState = iota
	StateAwaitingConfirmation
	StateAwaitingButtons
)

// Session is the ephemeral per-admin composition state. It lives for one
// composition and is discarded on dispatch, cancel, or navigation away.
type Session struct {
	Audience   Audience
	State      SessionState
	Content    *ContentItem
	PromptRef  transport.MessageRef // current instruction/confirmation message
	PreviewRef transport.MessageRef
	ChatID     int64
}
