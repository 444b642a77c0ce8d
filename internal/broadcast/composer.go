package broadcast

import (
	"context"
	"fmt"
	"sync"

	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

// Callback data handled by the composer. Cancel/navigation is the router's
// panel callback, injected via Config.PanelData.
const (
	CallbackSend    = "bcast:send"
	CallbackButtons = "bcast:buttons"
)

const (
	msgPromptContent = "📨 <b>New broadcast</b>\n\nSend the message to broadcast: text, or a photo with an optional caption."
	msgRejectContent = "⚠️ That message type is not supported. Send text or a photo (with an optional caption)."
	msgConfirm       = "🗂️ <b>Preview above.</b>\n\nSend it like this?"
	msgPromptButtons = "🔗 Send the button list as text, one button per line:\n\n<code>Label - https://example.com</code>\n\nLines without \" - \" or without an http(s) link are skipped."
)

// Composer drives the per-admin broadcast composition state machine. At most
// one session exists per admin; starting a new one discards the old.
type Composer struct {
	client kit.Client
	disp   *Dispatcher
	log    logx.Logger

	// panelData is the callback data of the "back to admin panel" button;
	// pressing it anywhere cancels the session via the router.
	panelData string

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewComposer(client kit.Client, disp *Dispatcher, panelData string, log logx.Logger) *Composer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Composer{
		client:    client,
		disp:      disp,
		log:       log,
		panelData: panelData,
		sessions:  make(map[int64]*Session),
	}
}

func (c *Composer) session(adminID int64) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[adminID]
}

// Active reports whether the admin has a composition in flight.
func (c *Composer) Active(adminID int64) bool { return c.session(adminID) != nil }

// SessionState returns the state tag of the admin's session, if any.
func (c *Composer) SessionState(adminID int64) (SessionState, bool) {
	s := c.session(adminID)
	if s == nil {
		return 0, false
	}
	return s.State, true
}

// Begin starts a composition targeting the given audience, discarding any
// previous session for this admin.
func (c *Composer) Begin(ctx context.Context, adminID, chatID int64, audience Audience) error {
	if old := c.session(adminID); old != nil {
		c.dropMessages(ctx, old)
	}

	kb := tgui.NewInline().Row(tgui.Btn("⬅️ Cancel", c.panelData))
	ref, err := c.client.SendText(ctx, kit.ChatTarget{ChatID: chatID}, msgPromptContent, &kit.SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: kb.Markup(),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sessions[adminID] = &Session{
		Audience:  audience,
		State:     StateAwaitingContent,
		PromptRef: ref,
		ChatID:    chatID,
	}
	c.mu.Unlock()
	return nil
}

// Cancel discards the admin's session. Safe to call when none exists.
func (c *Composer) Cancel(adminID int64) {
	c.mu.Lock()
	delete(c.sessions, adminID)
	c.mu.Unlock()
}

// dropMessages deletes a discarded session's prompt and preview, best-effort.
// Leaving them behind means dead keyboards in the admin chat.
func (c *Composer) dropMessages(ctx context.Context, sess *Session) {
	for _, ref := range []kit.MessageRef{sess.PromptRef, sess.PreviewRef} {
		if ref.MessageID == 0 {
			continue
		}
		if err := c.client.DeleteMessage(ctx, ref); err != nil {
			c.log.Debug("stale message delete failed", logx.Err(err))
		}
	}
}

// OnMessage feeds an inbound admin message into the session, if one exists.
// Returns false when the message was not for the composer.
func (c *Composer) OnMessage(ctx context.Context, msg *kit.Message) (bool, error) {
	sess := c.session(msg.FromID)
	if sess == nil {
		return false, nil
	}

	switch sess.State {
	case StateAwaitingContent:
		return true, c.captureContent(ctx, sess, msg)

	case StateAwaitingButtons:
		if msg.Text == "" {
			_, err := c.client.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, msgPromptButtons, &kit.SendOptions{ParseMode: "HTML"})
			return true, err
		}
		return true, c.dispatch(ctx, msg.FromID, sess, ParseButtons(msg.Text))

	default:
		// Messages while a confirmation is pending are ignored; the admin
		// is expected to press a button.
		return true, nil
	}
}

// captureContent accepts exactly one content message: text, or photo with
// optional caption. Everything else gets a retry prompt; state is unchanged.
func (c *Composer) captureContent(ctx context.Context, sess *Session, msg *kit.Message) error {
	var content ContentItem
	switch {
	case msg.PhotoID != "":
		content = ContentItem{Kind: ContentPhoto, FileID: msg.PhotoID, Caption: msg.Caption}
	case msg.Text != "":
		content = ContentItem{Kind: ContentText, Text: msg.Text}
	default:
		_, err := c.client.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, msgRejectContent, &kit.SendOptions{ParseMode: "HTML"})
		return err
	}

	// The instruction prompt is stale now; drop it, best-effort.
	if err := c.client.DeleteMessage(ctx, sess.PromptRef); err != nil {
		c.log.Debug("prompt delete failed", logx.Err(err))
	}

	// Live preview: exactly what the audience would receive.
	to := kit.ChatTarget{ChatID: sess.ChatID}
	previewRef, err := sendContent(ctx, c.client, to, content, nil)
	if err != nil {
		return err
	}

	kb := tgui.NewInline().
		Row(tgui.Btn("🚀 Send without buttons", CallbackSend)).
		Row(tgui.Btn("➕ Attach buttons", CallbackButtons)).
		Row(tgui.Btn("⬅️ Cancel", c.panelData))
	confirmRef, err := c.client.SendText(ctx, to, msgConfirm, &kit.SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: kb.Markup(),
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	sess.Content = &content
	sess.PreviewRef = previewRef
	sess.PromptRef = confirmRef
	sess.State = StateAwaitingConfirmation
	c.mu.Unlock()
	return nil
}

// OnCallback feeds a callback into the session. Returns false when the data
// is not a composer action.
func (c *Composer) OnCallback(ctx context.Context, cb *kit.Callback) (bool, error) {
	sess := c.session(cb.FromID)
	if sess == nil {
		return false, nil
	}

	switch cb.Data {
	case CallbackSend:
		if sess.State != StateAwaitingConfirmation {
			return true, c.client.AnswerCallback(ctx, cb.ID, "", false)
		}
		if err := c.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
			c.log.Debug("callback answer failed", logx.Err(err))
		}
		return true, c.dispatch(ctx, cb.FromID, sess, nil)

	case CallbackButtons:
		if sess.State != StateAwaitingConfirmation {
			return true, c.client.AnswerCallback(ctx, cb.ID, "", false)
		}
		ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
		kb := tgui.NewInline().Row(tgui.Btn("⬅️ Cancel", c.panelData))
		if err := c.client.EditText(ctx, ref, msgPromptButtons, &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: kb.Markup()}); err != nil {
			return true, err
		}
		c.mu.Lock()
		sess.State = StateAwaitingButtons
		sess.PromptRef = ref
		c.mu.Unlock()
		return true, c.client.AnswerCallback(ctx, cb.ID, "", false)
	}
	return false, nil
}

// dispatch is the terminal transition: the session is discarded regardless
// of the dispatch outcome, then the summary is reported to the admin.
func (c *Composer) dispatch(ctx context.Context, adminID int64, sess *Session, buttons ButtonRow) error {
	c.Cancel(adminID)

	if err := c.client.EditText(ctx, sess.PromptRef, "⏳ Broadcasting…", &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		c.log.Debug("confirm edit failed", logx.Err(err))
	}

	rep, err := c.disp.Dispatch(ctx, *sess.Content, buttons, sess.Audience)

	summary := fmt.Sprintf("📬 <b>Broadcast complete</b>\n\n✅ Sent: %d\n⚠️ Failed: %d", rep.Sent, rep.Failed)
	if err != nil {
		c.log.Error("dispatch aborted", logx.Err(err))
		summary = "❌ <b>Broadcast failed</b>\n\nNothing was sent. Check the logs and try again."
		if rep.Sent > 0 || rep.Failed > 0 {
			summary = fmt.Sprintf("⚠️ <b>Broadcast aborted</b>\n\n✅ Sent: %d\n⚠️ Failed: %d", rep.Sent, rep.Failed)
		}
	}
	kb := tgui.NewInline().Row(tgui.Btn("⬅️ Admin panel", c.panelData))
	_, sendErr := c.client.SendText(ctx, kit.ChatTarget{ChatID: sess.ChatID}, summary, &kit.SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: kb.Markup(),
	})
	if err != nil {
		return err
	}
	return sendErr
}
