// Package config loads and watches the bot configuration. Files may be YAML
// or JSON; YAML is coerced to JSON so one strict decoder (unknown fields
// rejected) covers both.
package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Digest    DigestConfig    `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// SuperAdminID is configured out-of-band and is implicitly an admin
	// forever; all other admin rights are store-backed and revocable.
	SuperAdminID int64 `json:"super_admin_id"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// DigestConfig controls the optional scheduled stats digest sent to the
// super admin.
type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a standard 5-field cron spec. Defaults to 09:00 daily.
	Cron string `json:"cron,omitempty"`
}
