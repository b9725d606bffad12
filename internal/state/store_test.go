package state

import (
	"context"
	"sync"

	"stagebot/internal/storage"
)

// fakeStore records the last saved snapshot of each record set and can be
// made to fail saves.
type fakeStore struct {
	mu sync.Mutex

	users   map[int64]storage.UserRecord
	pending []storage.PendingRecord
	refs    map[int64][]int64

	saveErr      error
	pendingSaves int
	userSaves    int
	refSaves     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]storage.UserRecord{},
		refs:  map[int64][]int64{},
	}
}

func (f *fakeStore) LoadUsers(context.Context) (map[int64]storage.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]storage.UserRecord, len(f.users))
	for id, u := range f.users {
		out[id] = u
	}
	return out, nil
}

func (f *fakeStore) SaveUsers(_ context.Context, users map[int64]storage.UserRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userSaves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.users = users
	return nil
}

func (f *fakeStore) LoadPending(context.Context) ([]storage.PendingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.PendingRecord(nil), f.pending...), nil
}

func (f *fakeStore) SavePending(_ context.Context, posts []storage.PendingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingSaves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.pending = posts
	return nil
}

func (f *fakeStore) LoadReferrals(context.Context) (map[int64][]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64][]int64, len(f.refs))
	for id, v := range f.refs {
		out[id] = append([]int64(nil), v...)
	}
	return out, nil
}

func (f *fakeStore) SaveReferrals(_ context.Context, refs map[int64][]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refSaves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.refs = refs
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) setSaveErr(err error) {
	f.mu.Lock()
	f.saveErr = err
	f.mu.Unlock()
}

func (f *fakeStore) savedPending() []storage.PendingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.PendingRecord(nil), f.pending...)
}
