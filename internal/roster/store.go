// Package roster is the recipient directory: which communities the bot has
// seen, and which members of each community it can address directly. It is
// populated passively from observed group traffic and from users opening a
// private chat with the bot.
package roster

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

	logx "heraldbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrCommunityUnknown is returned by Resolve for a community the store has
// never seen. Distinct from a known community that simply has no addressable
// members yet.
var ErrCommunityUnknown = errors.New("community unknown")

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Member is one addressable recipient.
type Member struct {
	UserID   int64
	Username string
	Name     string
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("roster path is required")
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
	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertCommunity records that a community exists (first sight creates it,
// later sights refresh last_seen and a non-empty title).
func (s *Store) UpsertCommunity(ctx context.Context, chatID int64, title string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO communities(chat_id, title, first_seen, last_seen) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		     last_seen = excluded.last_seen,
		     title = CASE WHEN excluded.title != '' THEN excluded.title ELSE communities.title END`,
		chatID, title, now, now,
	)
	return err
}

// UpsertMember records an observed member of a community. joined_at is set on
// first sight only, so Resolve order is stable across refreshes.
func (s *Store) UpsertMember(ctx context.Context, chatID int64, m Member, isBot bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members(chat_id, user_id, username, name, is_bot, joined_at, last_seen)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET
		     username  = excluded.username,
		     name      = excluded.name,
		     is_bot    = excluded.is_bot,
		     last_seen = excluded.last_seen`,
		chatID, m.UserID, m.Username, m.Name, boolInt(isBot), now, now,
	)
	return err
}

// RemoveMember drops a member (e.g. observed leaving the group).
func (s *Store) RemoveMember(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return err
}

// Resolve returns the community's non-bot members in the order they were
// first seen. ErrCommunityUnknown when the community itself was never seen;
// an empty slice when it is known but has no addressable members.
func (s *Store) Resolve(ctx context.Context, chatID int64) ([]Member, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM communities WHERE chat_id = ?`, chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommunityUnknown
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, name FROM members
		 WHERE chat_id = ? AND is_bot = 0
		 ORDER BY joined_at, user_id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Member, 0, 16)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MemberCount reports the number of addressable (non-bot) members.
func (s *Store) MemberCount(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE chat_id = ? AND is_bot = 0`, chatID).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
