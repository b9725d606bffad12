package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"stagebot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    user_id           INTEGER PRIMARY KEY,
    publish_channel_id INTEGER NOT NULL DEFAULT 0,
    review_channel_id INTEGER NOT NULL DEFAULT 0,
    auto_publish      INTEGER NOT NULL DEFAULT 1,
    invite_link       TEXT NOT NULL DEFAULT '',
    language          TEXT NOT NULL DEFAULT '',
    hyperlink_on      INTEGER NOT NULL DEFAULT 1,
    last_published_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pending_posts (
    post_key      TEXT PRIMARY KEY,
    user_id       INTEGER NOT NULL,
    position      INTEGER NOT NULL,
    body          TEXT NOT NULL DEFAULT '',
    file_id       TEXT NOT NULL DEFAULT '',
    file_kind     TEXT NOT NULL DEFAULT '',
    review_msg_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS referral_edges (
    referrer_id INTEGER NOT NULL,
    referred_id INTEGER NOT NULL,
    position    INTEGER NOT NULL,
    PRIMARY KEY (referrer_id, referred_id)
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
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
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info("sqlite storage ready", logx.String("path", cfg.Path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) LoadUsers(ctx context.Context) (map[int64]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, publish_channel_id, review_channel_id,
		auto_publish, invite_link, language, hyperlink_on, last_published_at FROM users`)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	out := map[int64]UserRecord{}
	for rows.Next() {
		var u UserRecord
		if err := rows.Scan(&u.ID, &u.PublishChannelID, &u.ReviewChannelID,
			&u.AutoPublish, &u.InviteLink, &u.Language, &u.HyperlinkOn, &u.LastPublishedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveUsers(ctx context.Context, users map[int64]UserRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			_, err := tx.ExecContext(ctx, `INSERT INTO users (user_id, publish_channel_id, review_channel_id,
				auto_publish, invite_link, language, hyperlink_on, last_published_at)
				VALUES (?,?,?,?,?,?,?,?)
				ON CONFLICT(user_id) DO UPDATE SET
					publish_channel_id = excluded.publish_channel_id,
					review_channel_id  = excluded.review_channel_id,
					auto_publish       = excluded.auto_publish,
					invite_link        = excluded.invite_link,
					language           = excluded.language,
					hyperlink_on       = excluded.hyperlink_on,
					last_published_at  = excluded.last_published_at`,
				u.ID, u.PublishChannelID, u.ReviewChannelID,
				u.AutoPublish, u.InviteLink, u.Language, u.HyperlinkOn, u.LastPublishedAt)
			if err != nil {
				return fmt.Errorf("upsert user %d: %w", u.ID, err)
			}
		}
		return nil
	})
}

func (s *sqliteStore) LoadPending(ctx context.Context) ([]PendingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT post_key, user_id, body, file_id, file_kind, review_msg_id
		FROM pending_posts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}
	defer rows.Close()

	var out []PendingRecord
	for rows.Next() {
		var p PendingRecord
		if err := rows.Scan(&p.Key, &p.UserID, &p.Body, &p.FileID, &p.FileKind, &p.ReviewMsgID); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SavePending(ctx context.Context, posts []PendingRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_posts`); err != nil {
			return fmt.Errorf("clear pending: %w", err)
		}
		for i, p := range posts {
			_, err := tx.ExecContext(ctx, `INSERT INTO pending_posts
				(post_key, user_id, position, body, file_id, file_kind, review_msg_id)
				VALUES (?,?,?,?,?,?,?)`,
				p.Key, p.UserID, i, p.Body, p.FileID, p.FileKind, p.ReviewMsgID)
			if err != nil {
				return fmt.Errorf("insert pending %s: %w", p.Key, err)
			}
		}
		return nil
	})
}

func (s *sqliteStore) LoadReferrals(ctx context.Context) (map[int64][]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT referrer_id, referred_id FROM referral_edges ORDER BY referrer_id, position`)
	if err != nil {
		return nil, fmt.Errorf("load referrals: %w", err)
	}
	defer rows.Close()

	out := map[int64][]int64{}
	for rows.Next() {
		var referrer, referred int64
		if err := rows.Scan(&referrer, &referred); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out[referrer] = append(out[referrer], referred)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveReferrals(ctx context.Context, refs map[int64][]int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM referral_edges`); err != nil {
			return fmt.Errorf("clear referrals: %w", err)
		}
		for referrer, referred := range refs {
			for i, id := range referred {
				_, err := tx.ExecContext(ctx, `INSERT INTO referral_edges (referrer_id, referred_id, position)
					VALUES (?,?,?)`, referrer, id, i)
				if err != nil {
					return fmt.Errorf("insert referral %d->%d: %w", referrer, id, err)
				}
			}
		}
		return nil
	})
}

func (s *sqliteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
