package state

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"stagebot/internal/storage"
)

// Attachment kinds accepted for a staged post.
const (
	KindPhoto    = "photo"
	KindVideo    = "video"
	KindAudio    = "audio"
	KindVoice    = "voice"
	KindDocument = "document"
)

// Post is one staged unit of content, keyed by (owner, originating message).
type Post struct {
	Key         string
	UserID      int64
	Body        string
	FileID      string
	FileKind    string
	ReviewMsgID int // message placed in the review channel
}

// PostKey builds the composite pending key.
func PostKey(userID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", userID, messageID)
}

// ParsePostKey splits a pending key back into its parts.
func ParsePostKey(key string) (userID int64, messageID int, err error) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return 0, 0, fmt.Errorf("malformed post key %q", key)
	}
	userID, err = strconv.ParseInt(key[:i], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed post key %q: %w", key, err)
	}
	messageID, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed post key %q: %w", key, err)
	}
	return userID, messageID, nil
}

type pendingEntry struct {
	post Post
	seq  uint64
}

// Claimed is a post atomically taken out of the queue. The holder either
// commits the removal after a successful delivery or releases the post back
// into its original queue position.
type Claimed struct {
	Post Post
	seq  uint64
}

// Pending is the staged-post queue: an insertion-ordered set of posts shared
// by the drain loops and the manual handlers. Claim is the single
// linearization point that decides which actor handles a post; the loser
// simply observes the key as missing.
type Pending struct {
	store storage.Store

	mu      sync.Mutex
	m       map[string]pendingEntry
	nextSeq uint64
}

func NewPending(store storage.Store) *Pending {
	return &Pending{store: store, m: map[string]pendingEntry{}}
}

// Load replaces the queue with the persisted record set, preserving order.
func (r *Pending) Load(ctx context.Context) error {
	recs, err := r.store.LoadPending(ctx)
	if err != nil {
		return err
	}
	m := make(map[string]pendingEntry, len(recs))
	var seq uint64
	for _, rec := range recs {
		seq++
		m[rec.Key] = pendingEntry{
			post: Post{
				Key:         rec.Key,
				UserID:      rec.UserID,
				Body:        rec.Body,
				FileID:      rec.FileID,
				FileKind:    rec.FileKind,
				ReviewMsgID: rec.ReviewMsgID,
			},
			seq: seq,
		}
	}
	r.mu.Lock()
	r.m = m
	r.nextSeq = seq
	r.mu.Unlock()
	return nil
}

// Insert stages a post at the tail of its owner's queue and persists.
func (r *Pending) Insert(ctx context.Context, p Post) error {
	r.mu.Lock()
	r.nextSeq++
	r.m[p.Key] = pendingEntry{post: p, seq: r.nextSeq}
	recs := r.snapshotLocked()
	r.mu.Unlock()

	return r.store.SavePending(ctx, recs)
}

// Get returns the post without removing it.
func (r *Pending) Get(key string) (Post, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[key]
	return e.post, ok
}

// Claim atomically removes the post from the in-memory queue. It does not
// touch the durable copy: Commit persists the removal once the post has
// actually been handled, Release undoes the claim.
func (r *Pending) Claim(key string) (*Claimed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[key]
	if !ok {
		return nil, false
	}
	delete(r.m, key)
	return &Claimed{Post: e.post, seq: e.seq}, true
}

// Release puts a claimed post back, keeping its original FIFO position. The
// durable copy never saw the claim, so nothing is persisted.
func (r *Pending) Release(c *Claimed) {
	r.mu.Lock()
	r.m[c.Post.Key] = pendingEntry{post: c.Post, seq: c.seq}
	r.mu.Unlock()
}

// Commit persists the removal of a claimed post.
func (r *Pending) Commit(ctx context.Context, c *Claimed) error {
	r.mu.Lock()
	recs := r.snapshotLocked()
	r.mu.Unlock()
	return r.store.SavePending(ctx, recs)
}

// OldestFor returns the key of the oldest queued post for the user.
func (r *Pending) OldestFor(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		bestKey string
		bestSeq uint64
		found   bool
	)
	for key, e := range r.m {
		if e.post.UserID != userID {
			continue
		}
		if !found || e.seq < bestSeq {
			bestKey, bestSeq, found = key, e.seq, true
		}
	}
	return bestKey, found
}

// ListFor returns the user's queued keys oldest first.
func (r *Pending) ListFor(userID int64) []string {
	r.mu.Lock()
	entries := make([]pendingEntry, 0, 4)
	for _, e := range r.m {
		if e.post.UserID == userID {
			entries = append(entries, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.post.Key
	}
	return keys
}

func (r *Pending) CountFor(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.m {
		if e.post.UserID == userID {
			n++
		}
	}
	return n
}

func (r *Pending) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// UserIDs returns the distinct owners of queued posts.
func (r *Pending) UserIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]struct{}{}
	var out []int64
	for _, e := range r.m {
		if _, ok := seen[e.post.UserID]; ok {
			continue
		}
		seen[e.post.UserID] = struct{}{}
		out = append(out, e.post.UserID)
	}
	return out
}

// snapshotLocked renders the queue as an ordered record list for the store.
func (r *Pending) snapshotLocked() []storage.PendingRecord {
	entries := make([]pendingEntry, 0, len(r.m))
	for _, e := range r.m {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	recs := make([]storage.PendingRecord, len(entries))
	for i, e := range entries {
		recs[i] = storage.PendingRecord{
			Key:         e.post.Key,
			UserID:      e.post.UserID,
			Body:        e.post.Body,
			FileID:      e.post.FileID,
			FileKind:    e.post.FileKind,
			ReviewMsgID: e.post.ReviewMsgID,
		}
	}
	return recs
}
