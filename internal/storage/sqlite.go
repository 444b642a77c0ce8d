package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gatebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SettingWelcome holds the greeting shown at the top of the requirement
// prompt. Seeded with a default on first open, editable from the admin panel.
const SettingWelcome = "welcome_message"

const defaultWelcome = "👋 <b>Welcome!</b>\n\nTo receive your access code, join the channels below and then press \"✅ I joined\"."

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store at cfg.Path, creating the schema and
// seeding defaults on first run.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if log.IsZero() {
		log = logx.Nop()
	}
	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(key, value) VALUES(?, ?)`,
		SettingWelcome, defaultWelcome,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *sqliteStore) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id, name FROM channels ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ExternalID, &ch.Name); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddChannel(ctx context.Context, ch Channel) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channels(external_id, name) VALUES(?, ?)`,
		ch.ExternalID, ch.Name,
	)
	return inserted(res, err)
}

func (s *sqliteStore) RemoveChannel(ctx context.Context, externalID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE external_id = ?`, externalID)
	return inserted(res, err)
}

func (s *sqliteStore) Addlists(ctx context.Context) ([]Addlist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, url FROM addlists ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Addlist
	for rows.Next() {
		var a Addlist
		if err := rows.Scan(&a.ID, &a.Name, &a.URL); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddAddlist(ctx context.Context, name, url string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO addlists(name, url) VALUES(?, ?)`, name, url)
	return inserted(res, err)
}

func (s *sqliteStore) RemoveAddlist(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM addlists WHERE id = ?`, id)
	return inserted(res, err)
}

func (s *sqliteStore) Rewards(ctx context.Context) ([]Reward, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM rewards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reward
	for rows.Next() {
		var r Reward
		if err := rows.Scan(&r.ID, &r.Payload); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddReward(ctx context.Context, payload string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rewards(payload) VALUES(?)`, payload)
	return inserted(res, err)
}

func (s *sqliteStore) RemoveReward(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	return inserted(res, err)
}

func (s *sqliteStore) Users(ctx context.Context) ([]int64, error) {
	return s.idColumn(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

func (s *sqliteStore) AddUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users(user_id) VALUES(?)`, userID)
	return err
}

func (s *sqliteStore) Admins(ctx context.Context) ([]int64, error) {
	return s.idColumn(ctx, `SELECT user_id FROM admins ORDER BY user_id`)
}

func (s *sqliteStore) AddAdmin(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO admins(user_id) VALUES(?)`, userID)
	return inserted(res, err)
}

func (s *sqliteStore) RemoveAdmin(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = ?`, userID)
	return inserted(res, err)
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM channels),
			(SELECT COUNT(*) FROM addlists),
			(SELECT COUNT(*) FROM rewards),
			(SELECT COUNT(*) FROM admins)`)
	if err := row.Scan(&st.Users, &st.Channels, &st.Addlists, &st.Rewards, &st.Admins); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *sqliteStore) idColumn(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func inserted(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
