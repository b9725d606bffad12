package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stagebot/pkg/logx"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
    user_id           BIGINT PRIMARY KEY,
    publish_channel_id BIGINT NOT NULL DEFAULT 0,
    review_channel_id BIGINT NOT NULL DEFAULT 0,
    auto_publish      BOOLEAN NOT NULL DEFAULT TRUE,
    invite_link       TEXT NOT NULL DEFAULT '',
    language          TEXT NOT NULL DEFAULT '',
    hyperlink_on      BOOLEAN NOT NULL DEFAULT TRUE,
    last_published_at BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pending_posts (
    post_key      TEXT PRIMARY KEY,
    user_id       BIGINT NOT NULL,
    position      BIGINT NOT NULL,
    body          TEXT NOT NULL DEFAULT '',
    file_id       TEXT NOT NULL DEFAULT '',
    file_kind     TEXT NOT NULL DEFAULT '',
    review_msg_id BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS referral_edges (
    referrer_id BIGINT NOT NULL,
    referred_id BIGINT NOT NULL,
    position    BIGINT NOT NULL,
    PRIMARY KEY (referrer_id, referred_id)
);
`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info("postgres storage ready")
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) LoadUsers(ctx context.Context) (map[int64]UserRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, publish_channel_id, review_channel_id,
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

func (s *postgresStore) SaveUsers(ctx context.Context, users map[int64]UserRecord) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, u := range users {
			_, err := tx.Exec(ctx, `INSERT INTO users (user_id, publish_channel_id, review_channel_id,
				auto_publish, invite_link, language, hyperlink_on, last_published_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (user_id) DO UPDATE SET
					publish_channel_id = EXCLUDED.publish_channel_id,
					review_channel_id  = EXCLUDED.review_channel_id,
					auto_publish       = EXCLUDED.auto_publish,
					invite_link        = EXCLUDED.invite_link,
					language           = EXCLUDED.language,
					hyperlink_on       = EXCLUDED.hyperlink_on,
					last_published_at  = EXCLUDED.last_published_at`,
				u.ID, u.PublishChannelID, u.ReviewChannelID,
				u.AutoPublish, u.InviteLink, u.Language, u.HyperlinkOn, u.LastPublishedAt)
			if err != nil {
				return fmt.Errorf("upsert user %d: %w", u.ID, err)
			}
		}
		return nil
	})
}

func (s *postgresStore) LoadPending(ctx context.Context) ([]PendingRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT post_key, user_id, body, file_id, file_kind, review_msg_id
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

func (s *postgresStore) SavePending(ctx context.Context, posts []PendingRecord) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pending_posts`); err != nil {
			return fmt.Errorf("clear pending: %w", err)
		}
		for i, p := range posts {
			_, err := tx.Exec(ctx, `INSERT INTO pending_posts
				(post_key, user_id, position, body, file_id, file_kind, review_msg_id)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				p.Key, p.UserID, i, p.Body, p.FileID, p.FileKind, p.ReviewMsgID)
			if err != nil {
				return fmt.Errorf("insert pending %s: %w", p.Key, err)
			}
		}
		return nil
	})
}

func (s *postgresStore) LoadReferrals(ctx context.Context) (map[int64][]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT referrer_id, referred_id FROM referral_edges ORDER BY referrer_id, position`)
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

func (s *postgresStore) SaveReferrals(ctx context.Context, refs map[int64][]int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM referral_edges`); err != nil {
			return fmt.Errorf("clear referrals: %w", err)
		}
		for referrer, referred := range refs {
			for i, id := range referred {
				_, err := tx.Exec(ctx, `INSERT INTO referral_edges (referrer_id, referred_id, position)
					VALUES ($1,$2,$3)`, referrer, id, i)
				if err != nil {
					return fmt.Errorf("insert referral %d->%d: %w", referrer, id, err)
				}
			}
		}
		return nil
	})
}

func (s *postgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
