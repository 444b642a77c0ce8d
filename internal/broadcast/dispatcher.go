package broadcast

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
)

// Dispatcher sends a composed content item to every member of an audience.
// Sends run sequentially: Telegram enforces per-destination rate limits that
// make unbounded concurrency counterproductive, so the only pacing is a
// token-bucket limiter.
type Dispatcher struct {
	store   storage.Store
	client  kit.Client
	log     logx.Logger
	limiter *rate.Limiter
}

func NewDispatcher(store storage.Store, client kit.Client, ratePerSec int, log logx.Logger) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		store:   store,
		client:  client,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

type lastBroadcast struct {
	Content ContentItem `json:"content"`
	Buttons ButtonRow   `json:"buttons,omitempty"`
	At      time.Time   `json:"at"`
}

// Dispatch persists (content, buttons) as the audience's last broadcast, then
// sends to every destination. Per-destination failures are counted and
// logged; they never abort the remaining sends. There is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, content ContentItem, buttons ButtonRow, audience Audience) (Report, error) {
	jobID := uuid.NewString()
	log := d.log.With(logx.String("job", jobID), logx.String("audience", string(audience)))

	// Persist before sending so a crash mid-broadcast does not lose the
	// composed content.
	if b, err := json.Marshal(lastBroadcast{Content: content, Buttons: buttons, At: time.Now()}); err == nil {
		if err := d.store.PutSetting(ctx, SettingLastBroadcast(audience), string(b)); err != nil {
			log.Warn("persisting last broadcast failed", logx.Err(err))
		}
	}

	targets, err := d.resolveTargets(ctx, audience, log)
	if err != nil {
		return Report{}, err
	}

	start := time.Now()
	log.Info("broadcast started", logx.Int("total", len(targets)))

	var rep Report
	markup := buttons.Markup()
	for _, t := range targets {
		if err := d.limiter.Wait(ctx); err != nil {
			// Context gone; report what we have.
			rep.Failed += len(targets) - rep.Sent - rep.Failed
			return rep, err
		}
		if _, err := sendContent(ctx, d.client, t, content, markup); err != nil {
			rep.Failed++
			log.Warn("broadcast send failed",
				logx.Int64("chat_id", t.ChatID),
				logx.String("category", kit.Category(err)),
				logx.Err(err))
			continue
		}
		rep.Sent++
	}

	fields := []logx.Field{
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", time.Since(start)),
	}
	if rep.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	return rep, nil
}

// resolveTargets expands an audience into chat targets. For the channel
// audience, "@handle" entries are resolved via the platform; a handle that
// fails to resolve is counted as one failed destination by the caller's
// accounting, so it is returned as an unreachable zero target.
func (d *Dispatcher) resolveTargets(ctx context.Context, audience Audience, log logx.Logger) ([]kit.ChatTarget, error) {
	switch audience {
	case AudienceUsers:
		users, err := d.store.Users(ctx)
		if err != nil {
			return nil, err
		}
		targets := make([]kit.ChatTarget, 0, len(users))
		for _, id := range users {
			targets = append(targets, kit.ChatTarget{ChatID: id})
		}
		return targets, nil

	case AudienceChannels:
		channels, err := d.store.Channels(ctx)
		if err != nil {
			return nil, err
		}
		targets := make([]kit.ChatTarget, 0, len(channels))
		for _, ch := range channels {
			if id, err := strconv.ParseInt(ch.ExternalID, 10, 64); err == nil {
				targets = append(targets, kit.ChatTarget{ChatID: id})
				continue
			}
			info, err := d.client.ChatInfo(ctx, ch.ExternalID)
			if err != nil {
				log.Warn("channel resolution failed",
					logx.String("channel", ch.ExternalID),
					logx.String("category", kit.Category(err)),
					logx.Err(err))
				// Unresolvable destination still counts as a failed send.
				targets = append(targets, kit.ChatTarget{})
				continue
			}
			targets = append(targets, kit.ChatTarget{ChatID: info.ID})
		}
		return targets, nil
	}
	return nil, nil
}

// sendContent renders one content item to one destination. Shared by the
// dispatcher and the composer's live preview.
func sendContent(ctx context.Context, client kit.Client, to kit.ChatTarget, content ContentItem, markup any) (kit.MessageRef, error) {
	if to.ChatID == 0 {
		return kit.MessageRef{}, kit.ErrNotFound
	}
	opt := &kit.SendOptions{ParseMode: "HTML", ReplyMarkup: markup}
	switch content.Kind {
	case ContentPhoto:
		return client.SendPhoto(ctx, to, content.FileID, content.Caption, opt)
	case ContentVideo:
		return client.SendVideo(ctx, to, content.FileID, content.Caption, opt)
	default:
		return client.SendText(ctx, to, content.Text, opt)
	}
}
