package gate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
)

type fakeStore struct {
	mu       sync.Mutex
	rewards  []storage.Reward
	channels []storage.Channel
	addlists []storage.Addlist
	settings map[string]string
	users    map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]string), users: make(map[int64]bool)}
}

func (s *fakeStore) Setting(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.settings[key]
	return v, ok, nil
}
func (s *fakeStore) PutSetting(ctx context.Context, key, value string) error {
	s.settings[key] = value
	return nil
}

func (s *fakeStore) Channels(ctx context.Context) ([]storage.Channel, error) {
	return s.channels, nil
}
func (s *fakeStore) AddChannel(ctx context.Context, ch storage.Channel) (bool, error) {
	return true, nil
}
func (s *fakeStore) RemoveChannel(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (s *fakeStore) Addlists(ctx context.Context) ([]storage.Addlist, error) {
	return s.addlists, nil
}
func (s *fakeStore) AddAddlist(ctx context.Context, name, url string) (bool, error) {
	return true, nil
}
func (s *fakeStore) RemoveAddlist(ctx context.Context, id int64) (bool, error) { return false, nil }

func (s *fakeStore) Rewards(ctx context.Context) ([]storage.Reward, error) { return s.rewards, nil }
func (s *fakeStore) AddReward(ctx context.Context, p string) (bool, error) { return true, nil }
func (s *fakeStore) RemoveReward(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

func (s *fakeStore) Users(ctx context.Context) ([]int64, error) { return nil, nil }
func (s *fakeStore) AddUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = true
	return nil
}

func (s *fakeStore) Admins(ctx context.Context) ([]int64, error)             { return nil, nil }
func (s *fakeStore) AddAdmin(ctx context.Context, id int64) (bool, error)    { return true, nil }
func (s *fakeStore) RemoveAdmin(ctx context.Context, id int64) (bool, error) { return false, nil }

func (s *fakeStore) Stats(ctx context.Context) (storage.Stats, error) { return storage.Stats{}, nil }
func (s *fakeStore) Close() error                                     { return nil }

type answer struct {
	Text  string
	Alert bool
}

type fakeClient struct {
	mu      sync.Mutex
	members map[string]kit.MemberStatus // per-channel status
	memErr  map[string]error
	sent    []string // text of sent messages
	edits   []string // text of edits
	answers []answer
}

func newFakeClient() *fakeClient {
	return &fakeClient{members: make(map[string]kit.MemberStatus), memErr: make(map[string]error)}
}

func (c *fakeClient) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (c *fakeClient) Stop(ctx context.Context) error                         { return nil }

func (c *fakeClient) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.sent)}, nil
}

func (c *fakeClient) SendPhoto(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (c *fakeClient) SendVideo(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (c *fakeClient) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, text)
	return nil
}

func (c *fakeClient) DeleteMessage(ctx context.Context, ref kit.MessageRef) error { return nil }

func (c *fakeClient) AnswerCallback(ctx context.Context, id, text string, alert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, answer{Text: text, Alert: alert})
	return nil
}

func (c *fakeClient) BotID() int64 { return 900 }

func (c *fakeClient) ChatMember(ctx context.Context, chat string, userID int64) (kit.MemberStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.memErr[chat]; err != nil {
		return "", err
	}
	if st, ok := c.members[chat]; ok {
		return st, nil
	}
	return kit.StatusLeft, nil
}

func (c *fakeClient) ChatInfo(ctx context.Context, idOrHandle string) (kit.ChatInfo, error) {
	return kit.ChatInfo{}, kit.ErrNotFound
}

func newTestService(store *fakeStore, client *fakeClient) *Service {
	return New(store, client, logx.Nop())
}

func TestUnmetChannels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channels []storage.Channel
		members  map[string]kit.MemberStatus
		memErr   map[string]error
		want     []string // external ids expected unmet, in order
	}{
		{
			name: "no channels configured",
			want: nil,
		},
		{
			name: "all joined",
			channels: []storage.Channel{
				{ExternalID: "@a"}, {ExternalID: "@b"},
			},
			members: map[string]kit.MemberStatus{"@a": kit.StatusMember, "@b": kit.StatusAdministrator},
			want:    nil,
		},
		{
			name: "left and kicked are unmet",
			channels: []storage.Channel{
				{ExternalID: "@a"}, {ExternalID: "@b"}, {ExternalID: "@c"},
			},
			members: map[string]kit.MemberStatus{"@a": kit.StatusMember, "@b": kit.StatusKicked, "@c": kit.StatusLeft},
			want:    []string{"@b", "@c"},
		},
		{
			name: "lookup failure counts as unmet",
			channels: []storage.Channel{
				{ExternalID: "@a"}, {ExternalID: "@b"},
			},
			members: map[string]kit.MemberStatus{"@a": kit.StatusMember, "@b": kit.StatusMember},
			memErr:  map[string]error{"@b": errors.New("api timeout")},
			want:    []string{"@b"},
		},
		{
			name: "restricted is unmet",
			channels: []storage.Channel{
				{ExternalID: "@a"},
			},
			members: map[string]kit.MemberStatus{"@a": kit.StatusRestricted},
			want:    []string{"@a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			store.channels = tt.channels
			client := newFakeClient()
			for k, v := range tt.members {
				client.members[k] = v
			}
			for k, v := range tt.memErr {
				client.memErr[k] = v
			}

			got, err := newTestService(store, client).UnmetChannels(context.Background(), 42)
			if err != nil {
				t.Fatalf("UnmetChannels: %v", err)
			}
			var ids []string
			for _, ch := range got {
				ids = append(ids, ch.ExternalID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("unmet = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("unmet = %v, want %v (order must follow the store)", ids, tt.want)
				}
			}
		})
	}
}

func TestStartEmptyRewardPool(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.channels = []storage.Channel{{ExternalID: "@a", Name: "A"}}
	client := newFakeClient()

	svc := newTestService(store, client)
	if err := svc.Start(context.Background(), 42, 100); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(client.sent) != 1 || !strings.Contains(client.sent[0], "No access codes") {
		t.Fatalf("sent = %v, want single unavailability notice", client.sent)
	}
	if svc.State(42) != StateIdle {
		t.Fatal("state advanced despite empty pool")
	}
	if !store.users[42] {
		t.Fatal("user not registered")
	}
}

func TestStartImmediateUnlock(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rewards = []storage.Reward{{ID: 1, Payload: "code-one"}}
	client := newFakeClient()

	svc := newTestService(store, client)
	if err := svc.Start(context.Background(), 42, 100); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(client.sent) != 1 || !strings.Contains(client.sent[0], "code-one") {
		t.Fatalf("sent = %v, want immediate reward delivery", client.sent)
	}
	if svc.State(42) != StateIdle {
		t.Fatal("no requirements pending, state must stay idle")
	}
}

func TestStartRendersRequirements(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rewards = []storage.Reward{{ID: 1, Payload: "code"}}
	store.channels = []storage.Channel{{ExternalID: "@a", Name: "Alpha"}}
	store.addlists = []storage.Addlist{{ID: 1, Name: "Pack", URL: "https://t.me/addlist/x"}}
	store.settings[storage.SettingWelcome] = "Hi there"
	client := newFakeClient()

	svc := newTestService(store, client)
	if err := svc.Start(context.Background(), 42, 100); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent = %v, want one prompt", client.sent)
	}
	prompt := client.sent[0]
	for _, frag := range []string{"Hi there", "Alpha", "Pack"} {
		if !strings.Contains(prompt, frag) {
			t.Fatalf("prompt %q missing %q", prompt, frag)
		}
	}
	if strings.Contains(prompt, "code") {
		t.Fatal("prompt leaked the reward payload")
	}
	if svc.State(42) != StateAwaitingSubscription {
		t.Fatal("state != AwaitingSubscription after prompt")
	}
}

func TestOnJoinedWarnsWhileUnmet(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rewards = []storage.Reward{{ID: 1, Payload: "code"}}
	store.channels = []storage.Channel{{ExternalID: "@a", Name: "Alpha"}}
	client := newFakeClient() // @a defaults to "left"

	svc := newTestService(store, client)
	svc.setState(42, StateAwaitingSubscription)

	cb := &kit.Callback{ID: "cb1", FromID: 42, ChatID: 100, MessageID: 5, Data: CallbackJoined}
	if err := svc.OnJoined(context.Background(), cb); err != nil {
		t.Fatalf("OnJoined: %v", err)
	}
	if len(client.answers) != 1 || !client.answers[0].Alert {
		t.Fatalf("answers = %+v, want one alert", client.answers)
	}
	if len(client.edits) != 0 {
		t.Fatal("prompt edited despite unmet requirements")
	}
	if svc.State(42) != StateAwaitingSubscription {
		t.Fatal("user dropped out of the flow on a warning")
	}
}

func TestOnJoinedUnlocks(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rewards = []storage.Reward{{ID: 1, Payload: "alpha"}, {ID: 2, Payload: "beta"}}
	store.channels = []storage.Channel{{ExternalID: "@a", Name: "Alpha"}}
	client := newFakeClient()
	client.members["@a"] = kit.StatusMember

	svc := newTestService(store, client)
	svc.pickIndex = func(n int) int { return 1 } // deterministic: pick "beta"
	svc.setState(42, StateAwaitingSubscription)

	cb := &kit.Callback{ID: "cb1", FromID: 42, ChatID: 100, MessageID: 5, Data: CallbackJoined}
	if err := svc.OnJoined(context.Background(), cb); err != nil {
		t.Fatalf("OnJoined: %v", err)
	}
	if len(client.edits) != 1 || !strings.Contains(client.edits[0], "beta") {
		t.Fatalf("edits = %v, want reward in edited prompt", client.edits)
	}
	if svc.State(42) != StateIdle {
		t.Fatal("state not cleared after unlock")
	}

	// The pool is not consumed: the same rewards remain available.
	rewards, _ := store.Rewards(context.Background())
	if len(rewards) != 2 {
		t.Fatalf("pool size = %d after unlock, want 2", len(rewards))
	}
}

func TestOnJoinedPoolDrained(t *testing.T) {
	t.Parallel()

	store := newFakeStore() // empty pool
	client := newFakeClient()

	svc := newTestService(store, client)
	svc.setState(42, StateAwaitingSubscription)

	cb := &kit.Callback{ID: "cb1", FromID: 42, ChatID: 100, MessageID: 5, Data: CallbackJoined}
	if err := svc.OnJoined(context.Background(), cb); err != nil {
		t.Fatalf("OnJoined: %v", err)
	}
	if len(client.answers) != 1 || !client.answers[0].Alert {
		t.Fatalf("answers = %+v, want alert about drained pool", client.answers)
	}
	if svc.State(42) != StateIdle {
		t.Fatal("state not cleared after drained-pool exit")
	}
}
