package gate

import (
	"context"
	"sync"

	"gatebot/internal/storage"
	"gatebot/internal/transport"
	"gatebot/pkg/logx"
)

// UnmetChannels resolves which configured channels the user has NOT joined.
// One membership lookup runs per channel, concurrently; the call returns only
// after every lookup finished. A channel counts as unmet when the user's
// status is not member/administrator/creator, or when the lookup fails for
// any reason. An unverifiable requirement must never unlock the reward, so
// errors are logged and treated as "not joined".
//
// Addlist requirements are never checked here; they cannot be verified
// programmatically and stay unmet until the user self-attests.
func (s *Service) UnmetChannels(ctx context.Context, userID int64) ([]storage.Channel, error) {
	channels, err := s.store.Channels(ctx)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, nil
	}

	met := make([]bool, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch storage.Channel) {
			defer wg.Done()
			status, err := s.client.ChatMember(ctx, ch.ExternalID, userID)
			if err != nil {
				s.log.Warn("membership lookup failed",
					logx.Int64("user_id", userID),
					logx.String("channel", ch.ExternalID),
					logx.String("category", transport.Category(err)),
					logx.Err(err))
				return
			}
			met[i] = status.Subscribed()
		}(i, ch)
	}
	wg.Wait()

	// Store order is the display order; keep it.
	var unmet []storage.Channel
	for i, ch := range channels {
		if !met[i] {
			unmet = append(unmet, ch)
		}
	}
	return unmet, nil
}
