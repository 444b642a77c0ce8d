package router

import (
	"context"
	"strconv"
	"strings"

	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

// pendingKind tags which textual answer the admin owes after a panel prompt.
type pendingKind int

const (
	pendingChannelAdd pendingKind = iota + 1
	pendingChannelDel
	pendingAddlistURL
	pendingAddlistName
	pendingAddlistDel
	pendingRewardAdd
	pendingRewardDel
	pendingWelcome
	pendingAdminAdd
	pendingAdminDel
)

type pendingInput struct {
	kind      pendingKind
	promptRef kit.MessageRef
	// addlistURL carries the first answer of the two-step addlist flow.
	addlistURL string
}

// promptInput edits the panel message into an instruction and records what
// answer is expected next from this admin.
func (r *Router) promptInput(ctx context.Context, cb *kit.Callback, kind pendingKind, text string) error {
	if err := r.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := r.client.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: backMarkup().Markup()}); err != nil {
		return err
	}
	r.mu.Lock()
	r.pending[cb.FromID] = &pendingInput{kind: kind, promptRef: ref}
	r.mu.Unlock()
	return nil
}

func (r *Router) handlePendingInput(ctx context.Context, msg *kit.Message) error {
	r.mu.Lock()
	p := r.pending[msg.FromID]
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	input := strings.TrimSpace(msg.Text)
	if input == "" {
		return nil
	}

	// The typed answer clutters the panel chat; drop it, best-effort.
	if err := r.client.DeleteMessage(ctx, kit.MessageRef{ChatID: msg.ChatID, MessageID: msg.ID}); err != nil {
		r.log.Debug("input delete failed", logx.Err(err))
	}

	switch p.kind {
	case pendingChannelAdd:
		return r.finishChannelAdd(ctx, msg.FromID, p, input)

	case pendingChannelDel:
		removed, err := r.store.RemoveChannel(ctx, input)
		if err != nil {
			return err
		}
		if removed {
			return r.finish(ctx, msg.FromID, p, "✅ Channel removed: "+tgui.Code(input).String())
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ No such channel: "+tgui.Code(input).String())

	case pendingAddlistURL:
		if !strings.HasPrefix(input, "https://") && !strings.HasPrefix(input, "http://") {
			return r.report(ctx, p, "⚠️ That does not look like a link. Send an <code>https://…</code> URL.")
		}
		r.mu.Lock()
		p.addlistURL = input
		p.kind = pendingAddlistName
		r.mu.Unlock()
		return r.report(ctx, p, "📁 Now send a display name for this link.")

	case pendingAddlistName:
		inserted, err := r.store.AddAddlist(ctx, input, p.addlistURL)
		if err != nil {
			return err
		}
		if inserted {
			return r.finish(ctx, msg.FromID, p, "✅ Addlist added: "+tgui.Esc(input).String())
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ This link already exists.")

	case pendingAddlistDel:
		id, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return r.report(ctx, p, "⚠️ Send the addlist's number from the list.")
		}
		removed, err := r.store.RemoveAddlist(ctx, id)
		if err != nil {
			return err
		}
		if removed {
			return r.finish(ctx, msg.FromID, p, "✅ Addlist removed.")
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ No addlist with that number.")

	case pendingRewardAdd:
		inserted, err := r.store.AddReward(ctx, input)
		if err != nil {
			return err
		}
		if inserted {
			return r.finish(ctx, msg.FromID, p, "✅ Reward added to the pool.")
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ This reward already exists.")

	case pendingRewardDel:
		id, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return r.report(ctx, p, "⚠️ Send the reward's number from the list.")
		}
		removed, err := r.store.RemoveReward(ctx, id)
		if err != nil {
			return err
		}
		if removed {
			return r.finish(ctx, msg.FromID, p, "✅ Reward removed.")
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ No reward with that number.")

	case pendingWelcome:
		if err := r.store.PutSetting(ctx, storage.SettingWelcome, msg.Text); err != nil {
			return err
		}
		return r.finish(ctx, msg.FromID, p, "✅ Welcome message updated.")

	case pendingAdminAdd:
		id, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return r.report(ctx, p, "⚠️ Send a numeric Telegram user id.")
		}
		inserted, err := r.store.AddAdmin(ctx, id)
		if err != nil {
			return err
		}
		if inserted {
			return r.finish(ctx, msg.FromID, p, "✅ Admin added: "+tgui.Code(input).String())
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ Already an admin: "+tgui.Code(input).String())

	case pendingAdminDel:
		id, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return r.report(ctx, p, "⚠️ Send a numeric Telegram user id.")
		}
		removed, err := r.store.RemoveAdmin(ctx, id)
		if err != nil {
			return err
		}
		if removed {
			return r.finish(ctx, msg.FromID, p, "✅ Admin removed: "+tgui.Code(input).String())
		}
		return r.finish(ctx, msg.FromID, p, "⚠️ Not a store-backed admin: "+tgui.Code(input).String())
	}
	return nil
}

// finishChannelAdd resolves the typed identifier against the platform and
// stores "@username" when available (survives channel id migrations),
// otherwise the numeric id.
func (r *Router) finishChannelAdd(ctx context.Context, adminID int64, p *pendingInput, input string) error {
	if err := r.report(ctx, p, "⏳ Checking channel…"); err != nil {
		r.log.Debug("progress edit failed", logx.Err(err))
	}

	info, err := r.client.ChatInfo(ctx, input)
	if err != nil {
		r.log.Warn("channel lookup failed",
			logx.String("input", input),
			logx.String("category", kit.Category(err)),
			logx.Err(err))
		return r.finish(ctx, adminID, p,
			"❌ <b>Error:</b> channel not found, or the bot is not a member.\n\nTried: "+tgui.Code(input).String())
	}

	externalID := strconv.FormatInt(info.ID, 10)
	if info.Username != "" {
		externalID = "@" + info.Username
	}

	// The bot must administrate the channel, or every later membership
	// lookup fails and the requirement can never be met.
	status, err := r.client.ChatMember(ctx, externalID, r.client.BotID())
	if err != nil {
		r.log.Warn("bot membership lookup failed",
			logx.String("channel", externalID),
			logx.String("category", kit.Category(err)),
			logx.Err(err))
	}
	if status != kit.StatusAdministrator && status != kit.StatusCreator {
		return r.finish(ctx, adminID, p,
			"❌ <b>Error:</b> the bot is not an administrator of this channel.\n\nTried: "+tgui.Code(externalID).String())
	}

	inserted, err := r.store.AddChannel(ctx, storage.Channel{ExternalID: externalID, Name: info.Title})
	if err != nil {
		return err
	}
	if inserted {
		return r.finish(ctx, adminID, p,
			"✅ Channel added: <b>"+tgui.Esc(info.Title).String()+"</b> ("+tgui.Code(externalID).String()+")")
	}
	return r.finish(ctx, adminID, p,
		"⚠️ This channel already exists: <b>"+tgui.Esc(info.Title).String()+"</b> ("+tgui.Code(externalID).String()+")")
}

// report updates the prompt message in place, keeping the pending state.
func (r *Router) report(ctx context.Context, p *pendingInput, text string) error {
	return r.client.EditText(ctx, p.promptRef, text, &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: backMarkup().Markup()})
}

// finish reports the outcome and clears the pending state.
func (r *Router) finish(ctx context.Context, adminID int64, p *pendingInput, text string) error {
	r.mu.Lock()
	delete(r.pending, adminID)
	r.mu.Unlock()
	return r.report(ctx, p, text)
}
