// Package telegram implements transport.Client on top of telebot.v4
// long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Client struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Reported periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	c.out.Store(nilOut)
	c.registerHandlers()
	return c, nil
}

func (c *Client) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	c.bot.Handle(tele.OnText, func(tc tele.Context) error {
		m := tc.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		c.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
			},
		})
		return nil
	})

	c.bot.Handle(tele.OnPhoto, func(tc tele.Context) error {
		m := tc.Message()
		if m == nil || m.Sender == nil || m.Photo == nil {
			return nil
		}
		c.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				PhotoID:      m.Photo.FileID,
				Caption:      m.Caption,
			},
		})
		return nil
	})

	c.bot.Handle(tele.OnVideo, func(tc tele.Context) error {
		m := tc.Message()
		if m == nil || m.Sender == nil || m.Video == nil {
			return nil
		}
		c.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				VideoID:      m.Video.FileID,
				Caption:      m.Caption,
			},
		})
		return nil
	})

	c.bot.Handle(tele.OnCallback, func(tc tele.Context) error {
		cb := tc.Callback()
		m := tc.Message()
		if cb == nil || m == nil {
			return nil
		}
		c.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				// telebot prefixes callback data with "\f" for unique-name
				// buttons; raw Data buttons arrive as-is.
				Data: strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})
}

func (c *Client) sendUpdate(up kit.Update) {
	v := c.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&c.droppedUpdates, 1)
	}
}

func (c *Client) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = true
	c.out.Store(out)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.runMu.Unlock()

	go func() {
		<-runCtx.Done()
		c.bot.Stop()
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				if n := atomic.SwapUint64(&c.droppedUpdates, 0); n > 0 {
					c.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&c.droppedUpdates, 0); n > 0 {
					c.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	go func() {
		defer close(done)
		c.log.Info("polling started")
		// Start blocks until Stop() is called.
		c.bot.Start()
		c.log.Info("polling stopped")
	}()

	return nil
}

func (c *Client) Stop(ctx context.Context) error {
	c.runMu.Lock()
	cancel := c.cancel
	done := c.done
	wasRunning := c.running
	c.running = false
	c.cancel = nil
	var nilOut chan<- kit.Update
	c.out.Store(nilOut)
	c.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
	case <-time.After(grace):
		c.log.Warn("telegram stop timed out")
	}
	return nil
}

const textLimit = 4000

// splitText splits long messages into chunks safe for Telegram's 4096-char
// limit, preferring newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if opt.ReplyMarkup != nil {
		if rm, ok := opt.ReplyMarkup.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

func (c *Client) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chunks := splitText(text, textLimit)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			return first, err
		}
		so := sendOptions(opt)
		if i > 0 {
			// Markup only on the first chunk.
			so.ReplyMarkup = nil
		}
		msg, err := c.bot.Send(chat, chunk, so)
		if err != nil {
			return first, categorize(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (c *Client) SendPhoto(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	p := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	msg, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, p, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, categorize(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (c *Client) SendVideo(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	v := &tele.Video{File: tele.File{FileID: fileID}, Caption: caption}
	msg, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, v, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, categorize(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (c *Client) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	chunks := splitText(text, textLimit)
	if _, err := c.bot.Edit(m, chunks[0], sendOptions(opt)); err != nil {
		return categorize(err)
	}
	// Overflow chunks become fresh messages; Telegram cannot edit in more.
	for _, chunk := range chunks[1:] {
		so := sendOptions(opt)
		so.ReplyMarkup = nil
		if _, err := c.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk, so); err != nil {
			return categorize(err)
		}
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	return categorize(c.bot.Delete(m))
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return categorize(c.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert}))
}

func (c *Client) BotID() int64 {
	if c.bot.Me == nil {
		return 0
	}
	return c.bot.Me.ID
}

func (c *Client) ChatMember(ctx context.Context, chat string, userID int64) (kit.MemberStatus, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}
	member, err := c.bot.ChatMemberOf(recipient(chat), recipient(strconv.FormatInt(userID, 10)))
	if err != nil {
		return "", categorize(err)
	}
	return kit.MemberStatus(member.Role), nil
}

func (c *Client) ChatInfo(ctx context.Context, idOrHandle string) (kit.ChatInfo, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.ChatInfo{}, err
	}
	ch, err := c.bot.ChatByUsername(strings.TrimSpace(idOrHandle))
	if err != nil {
		return kit.ChatInfo{}, categorize(err)
	}
	return kit.ChatInfo{ID: ch.ID, Username: ch.Username, Title: ch.Title}, nil
}

// recipient adapts an external chat identifier (numeric id or "@handle")
// to telebot's Recipient interface.
type recipient string

func (r recipient) Recipient() string { return string(r) }

func categorize(err error) error {
	if err == nil {
		return nil
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == 403:
			return fmt.Errorf("%w: %s", kit.ErrForbidden, te.Description)
		case te.Code == 400 || te.Code == 404:
			return fmt.Errorf("%w: %s", kit.ErrNotFound, te.Description)
		}
	}
	return err
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
