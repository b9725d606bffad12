package state

import (
	"context"
	"errors"
	"sync"

	"stagebot/internal/storage"
)

// ErrUnknownUser is returned when a mutation targets a user that was never
// registered.
var ErrUnknownUser = errors.New("unknown user")

// User are the per-user bot settings. Channel IDs of 0 mean "not set".
type User struct {
	ID               int64
	PublishChannelID int64
	ReviewChannelID  int64
	AutoPublish      bool
	InviteLink       string
	Language         string
	HyperlinkOn      bool
	LastPublishedAt  int64 // epoch seconds, 0 = never published
}

// Users is the authoritative in-memory user registry with write-through
// persistence. Every mutation is saved before the call returns; a save
// failure means the in-memory change is applied but not guaranteed durable,
// and the caller must surface the error.
type Users struct {
	store storage.Store

	mu sync.Mutex
	m  map[int64]User
}

func NewUsers(store storage.Store) *Users {
	return &Users{store: store, m: map[int64]User{}}
}

// Load replaces the cache with the persisted record set.
func (r *Users) Load(ctx context.Context) error {
	recs, err := r.store.LoadUsers(ctx)
	if err != nil {
		return err
	}
	m := make(map[int64]User, len(recs))
	for id, rec := range recs {
		m[id] = User(rec)
	}
	r.mu.Lock()
	r.m = m
	r.mu.Unlock()
	return nil
}

func (r *Users) Get(id int64) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.m[id]
	return u, ok
}

// Ensure registers the user with default settings if unknown. It reports
// whether the user was created.
func (r *Users) Ensure(ctx context.Context, id int64) (User, bool, error) {
	r.mu.Lock()
	if u, ok := r.m[id]; ok {
		r.mu.Unlock()
		return u, false, nil
	}
	u := User{ID: id, AutoPublish: true, HyperlinkOn: true}
	r.m[id] = u
	recs := r.snapshotLocked()
	r.mu.Unlock()

	return u, true, r.store.SaveUsers(ctx, recs)
}

// Update applies fn to the user's settings and persists the result.
func (r *Users) Update(ctx context.Context, id int64, fn func(*User)) (User, error) {
	r.mu.Lock()
	u, ok := r.m[id]
	if !ok {
		r.mu.Unlock()
		return User{}, ErrUnknownUser
	}
	fn(&u)
	u.ID = id
	r.m[id] = u
	recs := r.snapshotLocked()
	r.mu.Unlock()

	return u, r.store.SaveUsers(ctx, recs)
}

// All returns a copy of every user.
func (r *Users) All() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.m))
	for _, u := range r.m {
		out = append(out, u)
	}
	return out
}

func (r *Users) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func (r *Users) snapshotLocked() map[int64]storage.UserRecord {
	recs := make(map[int64]storage.UserRecord, len(r.m))
	for id, u := range r.m {
		recs[id] = storage.UserRecord(u)
	}
	return recs
}
