package storage

import (
	"context"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "postgres": pgx connection pool, DSN required
//   - "sqlite": database file, Path required
type Config struct {
	Driver      string
	DSN         string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserRecord mirrors one user's settings row.
type UserRecord struct {
	ID               int64
	PublishChannelID int64
	ReviewChannelID  int64
	AutoPublish      bool
	InviteLink       string
	Language         string
	HyperlinkOn      bool
	LastPublishedAt  int64 // epoch seconds, 0 = never
}

// PendingRecord mirrors one staged post. Records are ordered: Load returns
// them oldest first and Save persists the given order, so the per-user FIFO
// survives restarts.
type PendingRecord struct {
	Key         string
	UserID      int64
	Body        string
	FileID      string
	FileKind    string
	ReviewMsgID int
}

// Store is the persistence gateway. All writes are synchronous: when a call
// returns nil the data is durable. Saves are full replacements; there are
// no partial updates.
type Store interface {
	LoadUsers(ctx context.Context) (map[int64]UserRecord, error)
	SaveUsers(ctx context.Context, users map[int64]UserRecord) error

	LoadPending(ctx context.Context) ([]PendingRecord, error)
	SavePending(ctx context.Context, posts []PendingRecord) error

	LoadReferrals(ctx context.Context) (map[int64][]int64, error)
	SaveReferrals(ctx context.Context, refs map[int64][]int64) error

	Close() error
}
