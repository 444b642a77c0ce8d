package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gatebot/internal/broadcast"
	"gatebot/internal/gate"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) error {
	if cb.Data == gate.CallbackJoined {
		return r.gate.OnJoined(ctx, cb)
	}

	ok, err := r.isAdmin(ctx, cb.FromID)
	if err != nil {
		return err
	}
	if !ok {
		return r.client.AnswerCallback(ctx, cb.ID, msgDenied, true)
	}

	// Composer actions (send / attach buttons) take priority while a
	// composition is in flight.
	if handled, err := r.composer.OnCallback(ctx, cb); handled {
		return err
	}

	switch cb.Data {
	case CallbackPanel:
		return r.showPanel(ctx, cb)
	case cbStats:
		return r.statsAlert(ctx, cb)
	case cbExit:
		r.clearAdminState(cb.FromID)
		if err := r.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
			r.log.Debug("callback answer failed", logx.Err(err))
		}
		return r.client.DeleteMessage(ctx, kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID})

	case cbChannelAdd:
		return r.promptInput(ctx, cb, pendingChannelAdd,
			"📡 <b>Add channel</b>\n\nSend the channel's <code>@username</code> or numeric id.\n\n<i>The bot must be an administrator of the channel.</i>")
	case cbChannelDel:
		return r.promptChannelRemoval(ctx, cb)
	case cbChannelList:
		return r.listChannels(ctx, cb)

	case cbAddlistAdd:
		return r.promptInput(ctx, cb, pendingAddlistURL,
			"📁 <b>Add addlist</b>\n\nSend the invite link (<code>https://…</code>).")
	case cbAddlistDel:
		return r.promptAddlistRemoval(ctx, cb)

	case cbRewardAdd:
		return r.promptInput(ctx, cb, pendingRewardAdd,
			"🔑 <b>Add reward</b>\n\nSend the access code text to add to the pool.")
	case cbRewardDel:
		return r.promptRewardRemoval(ctx, cb)

	case cbWelcome:
		return r.promptInput(ctx, cb, pendingWelcome,
			"✏️ <b>Edit welcome message</b>\n\nSend the new welcome text (HTML allowed).")

	case cbAdminAdd, cbAdminDel, cbAdminList:
		if cb.FromID != r.cfg.SuperAdminID {
			return r.client.AnswerCallback(ctx, cb.ID, msgDenied, true)
		}
		switch cb.Data {
		case cbAdminAdd:
			return r.promptInput(ctx, cb, pendingAdminAdd,
				"👮 <b>Add admin</b>\n\nSend the numeric Telegram user id.")
		case cbAdminDel:
			return r.promptInput(ctx, cb, pendingAdminDel,
				"🚫 <b>Remove admin</b>\n\nSend the numeric Telegram user id to revoke.")
		default:
			return r.listAdmins(ctx, cb)
		}

	case cbBcastUsers, cbBcastChans:
		audience := broadcast.AudienceUsers
		if cb.Data == cbBcastChans {
			audience = broadcast.AudienceChannels
		}
		r.clearAdminState(cb.FromID)
		if err := r.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
			r.log.Debug("callback answer failed", logx.Err(err))
		}
		// The old panel message stays behind; drop it so the composer
		// prompt is the only actionable message.
		if err := r.client.DeleteMessage(ctx, kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}); err != nil {
			r.log.Debug("panel delete failed", logx.Err(err))
		}
		return r.composer.Begin(ctx, cb.FromID, cb.ChatID, audience)
	}

	return r.client.AnswerCallback(ctx, cb.ID, "", false)
}

// showPanel is the universal "back" action: every flow cancels into it.
func (r *Router) showPanel(ctx context.Context, cb *kit.Callback) error {
	r.clearAdminState(cb.FromID)
	if err := r.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	opt := &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: r.panelMarkup(cb.FromID).Markup()}
	if err := r.client.EditText(ctx, ref, msgPanel, opt); err == nil {
		return nil
	}
	// Some messages cannot be edited (e.g. media previews); replace instead.
	if err := r.client.DeleteMessage(ctx, ref); err != nil {
		r.log.Debug("panel replace delete failed", logx.Err(err))
	}
	_, err := r.client.SendText(ctx, kit.ChatTarget{ChatID: cb.ChatID}, msgPanel, opt)
	return err
}

func (r *Router) statsAlert(ctx context.Context, cb *kit.Callback) error {
	st, err := r.store.Stats(ctx)
	if err != nil {
		return err
	}
	status := "running"
	if st.Rewards == 0 {
		status = "NO REWARDS LEFT!"
	}
	text := fmt.Sprintf("📊 Bot stats:\n👤 Users: %d\n📢 Channels: %d\n📁 Addlists: %d\n🔑 Rewards: %d\n👮 Admins: %d\n⚙️ Status: %s",
		st.Users, st.Channels, st.Addlists, st.Rewards, st.Admins, status)
	return r.client.AnswerCallback(ctx, cb.ID, text, true)
}

func (r *Router) listChannels(ctx context.Context, cb *kit.Callback) error {
	channels, err := r.store.Channels(ctx)
	if err != nil {
		return err
	}
	if err := r.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
	var b strings.Builder
	b.WriteString("📜 <b>Required channels</b>\n\n")
	if len(channels) == 0 {
		b.WriteString("<i>none configured</i>")
	}
	for _, ch := range channels {
		b.WriteString("▫️ " + tgui.Esc(ch.Name).String() + " (" + tgui.Code(ch.ExternalID).String() + ")\n")
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return r.client.EditText(ctx, ref, b.String(), &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: backMarkup().Markup()})
}

func (r *Router) listAdmins(ctx context.Context, cb *kit.Callback) error {
	admins, err := r.store.Admins(ctx)
	if err != nil {
		return err
	}
	if err := r.client.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
	var b strings.Builder
	b.WriteString("👮 <b>Admins</b>\n\n")
	b.WriteString("▫️ " + tgui.Code(strconv.FormatInt(r.cfg.SuperAdminID, 10)).String() + " (super admin)\n")
	for _, id := range admins {
		b.WriteString("▫️ " + tgui.Code(strconv.FormatInt(id, 10)).String() + "\n")
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return r.client.EditText(ctx, ref, b.String(), &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: backMarkup().Markup()})
}

func (r *Router) promptChannelRemoval(ctx context.Context, cb *kit.Callback) error {
	channels, err := r.store.Channels(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("➖ <b>Remove channel</b>\n\nSend the channel id to remove:\n\n")
	for _, ch := range channels {
		b.WriteString("▫️ " + tgui.Esc(ch.Name).String() + " — " + tgui.Code(ch.ExternalID).String() + "\n")
	}
	return r.promptInput(ctx, cb, pendingChannelDel, b.String())
}

func (r *Router) promptAddlistRemoval(ctx context.Context, cb *kit.Callback) error {
	addlists, err := r.store.Addlists(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("🗑 <b>Remove addlist</b>\n\nSend the number to remove:\n\n")
	for _, a := range addlists {
		b.WriteString("▫️ " + tgui.Code(strconv.FormatInt(a.ID, 10)).String() + " — " + tgui.Esc(a.Name).String() + "\n")
	}
	return r.promptInput(ctx, cb, pendingAddlistDel, b.String())
}

func (r *Router) promptRewardRemoval(ctx context.Context, cb *kit.Callback) error {
	rewards, err := r.store.Rewards(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("🗑 <b>Remove reward</b>\n\nSend the number to remove:\n\n")
	for _, rw := range rewards {
		b.WriteString("▫️ " + tgui.Code(strconv.FormatInt(rw.ID, 10)).String() + " — " + tgui.Code(truncate(rw.Payload, 40)).String() + "\n")
	}
	return r.promptInput(ctx, cb, pendingRewardDel, b.String())
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
