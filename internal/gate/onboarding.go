// Package gate implements the subscription-gated unlock flow: it verifies
// channel membership, renders the outstanding requirements, and hands out a
// randomly chosen reward once everything is satisfied.
package gate

import (
	"context"
	"math/rand/v2"
	"sync"

	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

// CallbackJoined is the callback data of the "✅ I joined" button.
const CallbackJoined = "gate:joined"

// State of one user's onboarding flow. Unlocked is not persisted; every
// /start re-enters StateIdle.
type State int

const (
	StateIdle State = iota
	StateAwaitingSubscription
)

const (
	msgUnavailable = "😔 No access codes are available right now. Please try again later."
	msgAllJoined   = "🎉 You have joined everything on the list!"
	msgThanks      = "✨ Thank you for joining!"
	msgWarnUnmet   = "⚠️ Please join everything on the list first!"
	msgConfirmed   = "✅ Subscription confirmed!"
)

type Service struct {
	store  storage.Store
	client kit.Client
	log    logx.Logger

	// pickIndex selects a reward index; swapped in tests.
	pickIndex func(n int) int

	mu     sync.Mutex
	states map[int64]State
}

func New(store storage.Store, client kit.Client, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		client:    client,
		log:       log,
		pickIndex: rand.IntN,
		states:    make(map[int64]State),
	}
}

// State reports the user's current onboarding state.
func (s *Service) State(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

func (s *Service) setState(userID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == StateIdle {
		delete(s.states, userID)
		return
	}
	s.states[userID] = st
}

// Start handles /start: register the user, short-circuit on an empty reward
// pool, unlock immediately when nothing pends, otherwise render the
// requirement prompt and await the "I joined" action.
func (s *Service) Start(ctx context.Context, userID, chatID int64) error {
	if err := s.store.AddUser(ctx, userID); err != nil {
		return err
	}
	s.setState(userID, StateIdle)

	rewards, err := s.store.Rewards(ctx)
	if err != nil {
		return err
	}
	if len(rewards) == 0 {
		_, err := s.client.SendText(ctx, kit.ChatTarget{ChatID: chatID}, msgUnavailable, &kit.SendOptions{ParseMode: "HTML"})
		return err
	}

	unmet, err := s.UnmetChannels(ctx, userID)
	if err != nil {
		return err
	}
	addlists, err := s.store.Addlists(ctx)
	if err != nil {
		return err
	}

	if len(unmet) == 0 && len(addlists) == 0 {
		return s.deliverReward(ctx, chatID, rewards, msgThanks)
	}

	welcome, ok, err := s.store.Setting(ctx, storage.SettingWelcome)
	if err != nil {
		return err
	}
	if !ok {
		welcome = "👋 <b>Welcome!</b>"
	}

	lines := make([]tgui.H, 0, len(unmet)+len(addlists))
	kb := tgui.NewInline()
	for _, ch := range unmet {
		url := tgui.ChannelURL(ch.ExternalID)
		lines = append(lines, "▫️ "+tgui.Link(ch.Name, url))
		kb.Row(tgui.URLBtn(ch.Name, url))
	}
	for _, a := range addlists {
		lines = append(lines, "▫️ "+tgui.Link(a.Name, a.URL))
		kb.Row(tgui.URLBtn(a.Name, a.URL))
	}
	kb.Row(tgui.Btn("✅ I joined", CallbackJoined))

	text := welcome + "\n\nJoin these to receive your access code:\n\n" +
		tgui.JoinH("\n", lines...).String()

	_, err = s.client.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		ReplyMarkup:    kb.Markup(),
	})
	if err != nil {
		return err
	}
	s.setState(userID, StateAwaitingSubscription)
	return nil
}

// OnJoined handles the "✅ I joined" button. Only channel requirements are
// re-checked; addlists are accepted on faith at this checkpoint.
func (s *Service) OnJoined(ctx context.Context, cb *kit.Callback) error {
	rewards, err := s.store.Rewards(ctx)
	if err != nil {
		return err
	}
	if len(rewards) == 0 {
		s.setState(cb.FromID, StateIdle)
		return s.client.AnswerCallback(ctx, cb.ID, msgUnavailable, true)
	}

	unmet, err := s.UnmetChannels(ctx, cb.FromID)
	if err != nil {
		return err
	}
	if len(unmet) > 0 {
		// Non-blocking warning; the user stays in the flow.
		return s.client.AnswerCallback(ctx, cb.ID, msgWarnUnmet, true)
	}

	reward := rewards[s.pickIndex(len(rewards))]
	text := msgAllJoined + "\n\n🔑 <b>Your access code:</b>\n" + tgui.Pre(reward.Payload).String()
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := s.client.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		// Editing can fail when the prompt is gone; the unlock already
		// happened, so log and keep going.
		s.log.Warn("prompt edit failed", logx.Int64("user_id", cb.FromID), logx.Err(err))
	}
	s.setState(cb.FromID, StateIdle)
	return s.client.AnswerCallback(ctx, cb.ID, msgConfirmed, false)
}

func (s *Service) deliverReward(ctx context.Context, chatID int64, rewards []storage.Reward, prefix string) error {
	reward := rewards[s.pickIndex(len(rewards))]
	text := prefix + "\n\n🔑 <b>Your access code:</b>\n" + tgui.Pre(reward.Payload).String()
	_, err := s.client.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{ParseMode: "HTML"})
	return err
}
