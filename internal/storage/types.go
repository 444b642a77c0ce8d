// Package storage persists bot state in SQLite: settings, the channel and
// addlist requirement lists, the reward pool, and the user/admin registries.
//
// All inserts are idempotent on their natural unique key: a duplicate insert
// is a benign no-op reported through the returned bool, never an error.
package storage

import "context"

// Channel is a membership requirement: a Telegram channel the user must join.
// ExternalID is either "@handle" or a numeric chat id rendered as a string.
type Channel struct {
	ExternalID string
	Name       string
}

// Addlist is a join-link requirement that cannot be verified programmatically.
type Addlist struct {
	ID   int64
	Name string
	URL  string
}

// Reward is one distributable payload from the unlock pool.
type Reward struct {
	ID      int64
	Payload string
}

// Stats is a snapshot of registry sizes for the admin panel.
type Stats struct {
	Users    int
	Channels int
	Addlists int
	Rewards  int
	Admins   int
}

// Store is the persistence API used by the core.
type Store interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error

	Channels(ctx context.Context) ([]Channel, error)
	AddChannel(ctx context.Context, ch Channel) (inserted bool, err error)
	RemoveChannel(ctx context.Context, externalID string) (removed bool, err error)

	Addlists(ctx context.Context) ([]Addlist, error)
	AddAddlist(ctx context.Context, name, url string) (inserted bool, err error)
	RemoveAddlist(ctx context.Context, id int64) (removed bool, err error)

	Rewards(ctx context.Context) ([]Reward, error)
	AddReward(ctx context.Context, payload string) (inserted bool, err error)
	RemoveReward(ctx context.Context, id int64) (removed bool, err error)

	Users(ctx context.Context) ([]int64, error)
	AddUser(ctx context.Context, userID int64) error

	Admins(ctx context.Context) ([]int64, error)
	AddAdmin(ctx context.Context, userID int64) (inserted bool, err error)
	RemoveAdmin(ctx context.Context, userID int64) (removed bool, err error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
