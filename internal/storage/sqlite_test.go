package storage

import (
	"context"
	"path/filepath"
	"testing"

	"gatebot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestWelcomeSeededAndEditable(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	v, ok, err := st.Setting(ctx, SettingWelcome)
	if err != nil || !ok || v == "" {
		t.Fatalf("welcome after open = (%q, %v, %v), want seeded default", v, ok, err)
	}

	if err := st.PutSetting(ctx, SettingWelcome, "custom"); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}
	v, _, err = st.Setting(ctx, SettingWelcome)
	if err != nil || v != "custom" {
		t.Fatalf("welcome after edit = (%q, %v)", v, err)
	}
}

func TestSettingMissingKey(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	_, ok, err := st.Setting(context.Background(), "no_such_key")
	if err != nil || ok {
		t.Fatalf("missing key = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestChannelIdempotence(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	ins, err := st.AddChannel(ctx, Channel{ExternalID: "@alpha", Name: "Alpha"})
	if err != nil || !ins {
		t.Fatalf("first insert = (%v, %v)", ins, err)
	}
	ins, err = st.AddChannel(ctx, Channel{ExternalID: "@alpha", Name: "Alpha Again"})
	if err != nil || ins {
		t.Fatalf("duplicate insert = (%v, %v), want (false, nil)", ins, err)
	}

	chs, err := st.Channels(ctx)
	if err != nil || len(chs) != 1 {
		t.Fatalf("channels = (%v, %v), want one entry", chs, err)
	}

	rem, err := st.RemoveChannel(ctx, "@alpha")
	if err != nil || !rem {
		t.Fatalf("remove = (%v, %v)", rem, err)
	}
	rem, err = st.RemoveChannel(ctx, "@alpha")
	if err != nil || rem {
		t.Fatalf("second remove = (%v, %v), want (false, nil)", rem, err)
	}
}

func TestRewardPool(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"code-a", "code-b"} {
		if ins, err := st.AddReward(ctx, p); err != nil || !ins {
			t.Fatalf("AddReward(%q) = (%v, %v)", p, ins, err)
		}
	}
	if ins, err := st.AddReward(ctx, "code-a"); err != nil || ins {
		t.Fatalf("duplicate reward = (%v, %v), want (false, nil)", ins, err)
	}

	rewards, err := st.Rewards(ctx)
	if err != nil || len(rewards) != 2 {
		t.Fatalf("rewards = (%v, %v)", rewards, err)
	}

	if rem, err := st.RemoveReward(ctx, rewards[0].ID); err != nil || !rem {
		t.Fatalf("RemoveReward = (%v, %v)", rem, err)
	}
	if rem, err := st.RemoveReward(ctx, 9999); err != nil || rem {
		t.Fatalf("RemoveReward(unknown) = (%v, %v), want (false, nil)", rem, err)
	}
}

func TestAddlists(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if ins, err := st.AddAddlist(ctx, "Pack", "https://t.me/addlist/x"); err != nil || !ins {
		t.Fatalf("AddAddlist = (%v, %v)", ins, err)
	}
	// URL is the unique key; a different name with the same link is a dupe.
	if ins, err := st.AddAddlist(ctx, "Other", "https://t.me/addlist/x"); err != nil || ins {
		t.Fatalf("duplicate url = (%v, %v), want (false, nil)", ins, err)
	}

	lists, err := st.Addlists(ctx)
	if err != nil || len(lists) != 1 {
		t.Fatalf("addlists = (%v, %v)", lists, err)
	}
	if rem, err := st.RemoveAddlist(ctx, lists[0].ID); err != nil || !rem {
		t.Fatalf("RemoveAddlist = (%v, %v)", rem, err)
	}
}

func TestUsersAndAdmins(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := st.AddUser(ctx, 42); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
	}
	users, err := st.Users(ctx)
	if err != nil || len(users) != 1 || users[0] != 42 {
		t.Fatalf("users = (%v, %v)", users, err)
	}

	if ins, err := st.AddAdmin(ctx, 7); err != nil || !ins {
		t.Fatalf("AddAdmin = (%v, %v)", ins, err)
	}
	if ins, err := st.AddAdmin(ctx, 7); err != nil || ins {
		t.Fatalf("duplicate admin = (%v, %v)", ins, err)
	}
	if rem, err := st.RemoveAdmin(ctx, 7); err != nil || !rem {
		t.Fatalf("RemoveAdmin = (%v, %v)", rem, err)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	_ = st.AddUser(ctx, 1)
	_ = st.AddUser(ctx, 2)
	_, _ = st.AddChannel(ctx, Channel{ExternalID: "@a", Name: "A"})
	_, _ = st.AddReward(ctx, "code")
	_, _ = st.AddAdmin(ctx, 9)

	got, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{Users: 2, Channels: 1, Addlists: 0, Rewards: 1, Admins: 1}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}
