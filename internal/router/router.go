// Package router wires inbound platform updates to the onboarding flow, the
// admin panel, and the broadcast composer. It owns the per-admin
// pending-input states (answers typed after a panel prompt).
package router

import (
	"context"
	"strings"
	"sync"

	"gatebot/internal/broadcast"
	"gatebot/internal/gate"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

// Callback data of panel actions. The "section:action" layout keeps dispatch
// a prefix match.
const (
	CallbackPanel = "admin:panel"

	cbStats       = "admin:stats"
	cbExit        = "admin:exit"
	cbChannelAdd  = "admin:channel:add"
	cbChannelDel  = "admin:channel:del"
	cbChannelList = "admin:channel:list"
	cbAddlistAdd  = "admin:addlist:add"
	cbAddlistDel  = "admin:addlist:del"
	cbRewardAdd   = "admin:reward:add"
	cbRewardDel   = "admin:reward:del"
	cbWelcome     = "admin:welcome"
	cbAdminAdd    = "admin:admin:add"
	cbAdminDel    = "admin:admin:del"
	cbAdminList   = "admin:admin:list"
	cbBcastUsers  = "bcast:users"
	cbBcastChans  = "bcast:channels"
)

const (
	msgDenied    = "⛔ You are not allowed to use this."
	msgPanel     = "⚙️ <b>Admin panel</b>\n\nPick an action:"
	panelBackBtn = "⬅️ Admin panel"
)

type Config struct {
	SuperAdminID int64
}

type Router struct {
	cfg      Config
	store    storage.Store
	client   kit.Client
	gate     *gate.Service
	composer *broadcast.Composer
	log      logx.Logger

	mu      sync.Mutex
	pending map[int64]*pendingInput
}

func New(cfg Config, store storage.Store, client kit.Client, g *gate.Service, c *broadcast.Composer, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:      cfg,
		store:    store,
		client:   client,
		gate:     g,
		composer: c,
		log:      log,
		pending:  make(map[int64]*pendingInput),
	}
}

// HandleUpdate is the single entry point for inbound platform events.
// Handler errors are logged, never fatal: the worst outcome is one stalled
// session.
func (r *Router) HandleUpdate(ctx context.Context, up kit.Update) {
	var err error
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			err = r.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			err = r.handleCallback(ctx, up.Callback)
		}
	}
	if err != nil {
		r.log.Warn("update handling failed",
			logx.String("kind", string(up.Kind)),
			logx.String("category", kit.Category(err)),
			logx.Err(err))
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *kit.Message) error {
	switch strings.TrimSpace(msg.Text) {
	case "/start":
		r.clearAdminState(msg.FromID)
		return r.gate.Start(ctx, msg.FromID, msg.ChatID)
	case "/admin":
		return r.adminCommand(ctx, msg)
	}

	ok, err := r.isAdmin(ctx, msg.FromID)
	if err != nil {
		return err
	}
	if !ok {
		return nil // non-command chatter from regular users is ignored
	}

	if handled, err := r.composer.OnMessage(ctx, msg); handled {
		return err
	}
	return r.handlePendingInput(ctx, msg)
}

func (r *Router) adminCommand(ctx context.Context, msg *kit.Message) error {
	ok, err := r.isAdmin(ctx, msg.FromID)
	if err != nil {
		return err
	}
	if !ok {
		_, err := r.client.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, msgDenied, nil)
		return err
	}
	r.clearAdminState(msg.FromID)
	_, err = r.client.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, msgPanel, &kit.SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: r.panelMarkup(msg.FromID).Markup(),
	})
	return err
}

// isAdmin: the super admin from config is implicitly an admin forever;
// everyone else is checked against the store.
func (r *Router) isAdmin(ctx context.Context, userID int64) (bool, error) {
	if userID == r.cfg.SuperAdminID {
		return true, nil
	}
	admins, err := r.store.Admins(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range admins {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// clearAdminState tears down any in-flight composition or pending prompt for
// the user; every terminal transition funnels through here so sessions never
// leak.
func (r *Router) clearAdminState(userID int64) {
	r.composer.Cancel(userID)
	r.mu.Lock()
	delete(r.pending, userID)
	r.mu.Unlock()
}

func (r *Router) panelMarkup(userID int64) *tgui.Inline {
	kb := tgui.NewInline().
		Row(tgui.Btn("📊 Bot stats", cbStats)).
		Row(tgui.Btn("🚀 Broadcast to users", cbBcastUsers), tgui.Btn("📢 Broadcast to channels", cbBcastChans)).
		Row(tgui.Btn("➕ Add channel", cbChannelAdd), tgui.Btn("➖ Remove channel", cbChannelDel)).
		Row(tgui.Btn("📜 List channels", cbChannelList)).
		Row(tgui.Btn("📁 Add addlist", cbAddlistAdd), tgui.Btn("🗑 Remove addlist", cbAddlistDel)).
		Row(tgui.Btn("🔑 Add reward", cbRewardAdd), tgui.Btn("🗑 Remove reward", cbRewardDel)).
		Row(tgui.Btn("✏️ Edit welcome message", cbWelcome))
	if userID == r.cfg.SuperAdminID {
		kb.Row(tgui.Btn("👮 Add admin", cbAdminAdd), tgui.Btn("🚫 Remove admin", cbAdminDel)).
			Row(tgui.Btn("👮 List admins", cbAdminList))
	}
	kb.Row(tgui.Btn("⬅️ Close panel", cbExit))
	return kb
}

func backMarkup() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn(panelBackBtn, CallbackPanel))
}
