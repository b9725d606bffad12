package state

import (
	"context"
	"sort"
	"sync"

	"stagebot/internal/storage"
)

// RefCount is one leaderboard row.
type RefCount struct {
	UserID int64
	Count  int
}

// Referrals tracks who invited whom. An edge is recorded at most once per
// (referrer, referred) pair and never removed.
type Referrals struct {
	store storage.Store

	mu sync.Mutex
	m  map[int64][]int64
}

func NewReferrals(store storage.Store) *Referrals {
	return &Referrals{store: store, m: map[int64][]int64{}}
}

func (r *Referrals) Load(ctx context.Context) error {
	m, err := r.store.LoadReferrals(ctx)
	if err != nil {
		return err
	}
	if m == nil {
		m = map[int64][]int64{}
	}
	r.mu.Lock()
	r.m = m
	r.mu.Unlock()
	return nil
}

// Add records the edge unless it already exists or is a self-referral. It
// reports whether a new edge was stored.
func (r *Referrals) Add(ctx context.Context, referrer, referred int64) (bool, error) {
	if referrer == referred {
		return false, nil
	}
	r.mu.Lock()
	for _, id := range r.m[referrer] {
		if id == referred {
			r.mu.Unlock()
			return false, nil
		}
	}
	r.m[referrer] = append(r.m[referrer], referred)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	return true, r.store.SaveReferrals(ctx, snap)
}

func (r *Referrals) CountFor(referrer int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m[referrer])
}

func (r *Referrals) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.m {
		n += len(v)
	}
	return n
}

// Leaderboard returns referrers sorted by invite count, descending. Ties
// break on user id for a stable order.
func (r *Referrals) Leaderboard() []RefCount {
	r.mu.Lock()
	out := make([]RefCount, 0, len(r.m))
	for id, v := range r.m {
		out = append(out, RefCount{UserID: id, Count: len(v)})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// PositionOf returns the 1-based leaderboard rank, or 0 when the user has
// no referrals.
func (r *Referrals) PositionOf(userID int64) int {
	for i, rc := range r.Leaderboard() {
		if rc.UserID == userID {
			return i + 1
		}
	}
	return 0
}

func (r *Referrals) snapshotLocked() map[int64][]int64 {
	snap := make(map[int64][]int64, len(r.m))
	for k, v := range r.m {
		snap[k] = append([]int64(nil), v...)
	}
	return snap
}
