package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagebot/internal/runtime/supervisor"
	"stagebot/internal/state"
	"stagebot/internal/storage"
	"stagebot/pkg/logx"
)

// memStore is an in-memory storage.Store for wiring the repositories in
// tests.
type memStore struct {
	mu      sync.Mutex
	users   map[int64]storage.UserRecord
	pending []storage.PendingRecord
	refs    map[int64][]int64
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]storage.UserRecord{}, refs: map[int64][]int64{}}
}

func (m *memStore) LoadUsers(context.Context) (map[int64]storage.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]storage.UserRecord, len(m.users))
	for id, u := range m.users {
		out[id] = u
	}
	return out, nil
}

func (m *memStore) SaveUsers(_ context.Context, users map[int64]storage.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
	return nil
}

func (m *memStore) LoadPending(context.Context) ([]storage.PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.PendingRecord(nil), m.pending...), nil
}

func (m *memStore) SavePending(_ context.Context, posts []storage.PendingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = posts
	return nil
}

func (m *memStore) LoadReferrals(context.Context) (map[int64][]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs, nil
}

func (m *memStore) SaveReferrals(_ context.Context, refs map[int64][]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = refs
	return nil
}

func (m *memStore) Close() error { return nil }

type delivery struct {
	chatID int64
	text   string
	att    *Attachment
}

// fakeChannel records deliveries and can fail a number of them.
type fakeChannel struct {
	mu         sync.Mutex
	deliveries []delivery
	deletes    []int
	failNext   int
	anchor     string

	delivered chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{delivered: make(chan struct{}, 64)}
}

func (f *fakeChannel) Deliver(_ context.Context, chatID int64, text string, att *Attachment) (int, error) {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return 0, errors.New("remote unavailable")
	}
	f.deliveries = append(f.deliveries, delivery{chatID: chatID, text: text, att: att})
	n := len(f.deliveries)
	f.mu.Unlock()
	f.delivered <- struct{}{}
	return n, nil
}

func (f *fakeChannel) Delete(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeChannel) ChatAnchor(context.Context, int64, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anchor, nil
}

func (f *fakeChannel) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deliveries))
	for i, d := range f.deliveries {
		out[i] = d.text
	}
	return out
}

func (f *fakeChannel) setFailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

type fixture struct {
	users   *state.Users
	pending *state.Pending
	ch      *fakeChannel
	sup     *supervisor.Supervisor
	svc     *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := newMemStore()
	users := state.NewUsers(store)
	pending := state.NewPending(store)
	ch := newFakeChannel()
	sup := supervisor.New(context.Background(), logx.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sup.Stop(ctx); err != nil {
			t.Errorf("supervisor stop: %v", err)
		}
	})
	svc := New(cfg, users, pending, ch, sup, logx.Nop())
	return &fixture{users: users, pending: pending, ch: ch, sup: sup, svc: svc}
}

// addUser registers a user with both channels bound and the hyperlink
// suffix off so delivered texts stay comparable.
func (fx *fixture) addUser(t *testing.T, id int64) state.User {
	t.Helper()
	ctx := context.Background()
	if _, _, err := fx.users.Ensure(ctx, id); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	u, err := fx.users.Update(ctx, id, func(u *state.User) {
		u.PublishChannelID = -100200
		u.ReviewChannelID = -100300
		u.HyperlinkOn = false
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return u
}

func (fx *fixture) stage(t *testing.T, userID int64, msgID int, body string) string {
	t.Helper()
	key := state.PostKey(userID, msgID)
	err := fx.pending.Insert(context.Background(), state.Post{
		Key: key, UserID: userID, Body: body, ReviewMsgID: msgID + 1000,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return key
}

func waitDeliveries(t *testing.T, ch *fakeChannel, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch.delivered:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fastCfg() Config {
	return Config{CooldownMin: time.Millisecond, CooldownMax: 2 * time.Millisecond}
}

func TestDrainPublishesInOrder(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, fastCfg())
	fx.addUser(t, 7)
	fx.stage(t, 7, 1, "first")
	fx.stage(t, 7, 2, "second")
	fx.stage(t, 7, 3, "third")

	fx.svc.EnsureRunning(7)
	waitDeliveries(t, fx.ch, 3)

	got := fx.ch.texts()
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order %v, want %v", got, want)
		}
	}

	// Queue drained, loop must terminate and deregister.
	waitFor(t, "loop exit", func() bool { return !fx.svc.Running(7) })
	if fx.pending.CountFor(7) != 0 {
		t.Fatalf("queue not empty: %d", fx.pending.CountFor(7))
	}
}

func TestLateInsertKeepsLoopRegistered(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	fx.addUser(t, 7)

	// Stand in for a loop that just read its queue as empty and is about
	// to settle its exit.
	fx.svc.mu.Lock()
	fx.svc.running[7] = struct{}{}
	fx.svc.mu.Unlock()

	// A post staged before the exit settles must keep the registration:
	// the staging handler's EnsureRunning saw the loop alive and no-oped,
	// so the loop itself has to pick the post up.
	key := fx.stage(t, 7, 1, "late")
	if fx.svc.exitIfDrained(7) {
		t.Fatal("loop exited with a queued post")
	}
	if !fx.svc.Running(7) {
		t.Fatal("registration dropped with a queued post")
	}

	// With the queue actually empty the exit goes through.
	if err := fx.svc.Remove(context.Background(), 7, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !fx.svc.exitIfDrained(7) {
		t.Fatal("loop kept registered with an empty queue")
	}
	if fx.svc.Running(7) {
		t.Fatal("registration survived the exit")
	}
}

func TestCooldownSpacesAutomaticPublications(t *testing.T) {
	t.Parallel()
	const cooldown = 120 * time.Millisecond
	fx := newFixture(t, Config{CooldownMin: cooldown, CooldownMax: cooldown})
	fx.addUser(t, 7)

	// Freeze the clock so every cycle measures zero elapsed time since
	// the last publication and waits the full cooldown.
	base := time.Unix(1_700_000_000, 0)
	fx.svc.now = func() time.Time { return base }
	if _, err := fx.users.Update(context.Background(), 7, func(u *state.User) {
		u.LastPublishedAt = base.Unix()
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fx.stage(t, 7, 1, "first")
	fx.stage(t, 7, 2, "second")

	start := time.Now()
	fx.svc.EnsureRunning(7)
	waitDeliveries(t, fx.ch, 1)
	firstAt := time.Now()
	if got := firstAt.Sub(start); got < cooldown {
		t.Fatalf("first publication after %v, want at least %v", got, cooldown)
	}
	waitDeliveries(t, fx.ch, 1)
	if got := time.Since(firstAt); got < cooldown {
		t.Fatalf("publications %v apart, want at least %v", got, cooldown)
	}
}

func TestGateCloseDuringCooldownFinishesCycle(t *testing.T) {
	t.Parallel()
	const cooldown = 100 * time.Millisecond
	fx := newFixture(t, Config{CooldownMin: cooldown, CooldownMax: cooldown})
	fx.addUser(t, 7)

	// The loop consults the clock right before its cooldown sleep; the
	// first call marks that it is past the gate.
	base := time.Unix(1_700_000_000, 0)
	pastGate := make(chan struct{}, 1)
	fx.svc.now = func() time.Time {
		select {
		case pastGate <- struct{}{}:
		default:
		}
		return base
	}
	if _, err := fx.users.Update(context.Background(), 7, func(u *state.User) {
		u.LastPublishedAt = base.Unix()
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fx.stage(t, 7, 1, "in flight")

	fx.svc.EnsureRunning(7)
	select {
	case <-pastGate:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never reached its cooldown wait")
	}

	// Closing the gate mid-cooldown does not cancel the cycle already in
	// flight; the post still goes out.
	fx.svc.SetAuto(7, false)
	waitDeliveries(t, fx.ch, 1)

	// From the next cycle on the closed gate holds.
	fx.stage(t, 7, 2, "held")
	select {
	case <-fx.ch.delivered:
		t.Fatal("post delivered through a gate closed before its cycle")
	case <-time.After(3 * cooldown):
	}
	fx.svc.SetAuto(7, true)
	waitDeliveries(t, fx.ch, 1)
}

func TestEnsureRunningIsIdempotent(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	u := fx.addUser(t, 7)
	// Recent publication keeps the loop in its cooldown wait.
	if _, err := fx.users.Update(context.Background(), u.ID, func(u *state.User) {
		u.LastPublishedAt = time.Now().Unix()
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fx.stage(t, 7, 1, "queued")

	for i := 0; i < 5; i++ {
		fx.svc.EnsureRunning(7)
	}
	waitFor(t, "loop registration", func() bool { return fx.svc.Running(7) })
	if n := fx.svc.ActiveLoops(); n != 1 {
		t.Fatalf("ActiveLoops = %d, want 1", n)
	}
}

func TestClosedGatePausesUntilAutoOn(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, fastCfg())
	fx.addUser(t, 7)
	if _, err := fx.users.Update(context.Background(), 7, func(u *state.User) {
		u.AutoPublish = false
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fx.stage(t, 7, 1, "held")

	fx.svc.EnsureRunning(7)
	select {
	case <-fx.ch.delivered:
		t.Fatal("post delivered through a closed gate")
	case <-time.After(50 * time.Millisecond):
	}

	fx.svc.SetAuto(7, true)
	waitDeliveries(t, fx.ch, 1)
}

func TestManualPublishDuringCooldown(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	fx.addUser(t, 7)
	if _, err := fx.users.Update(context.Background(), 7, func(u *state.User) {
		u.LastPublishedAt = time.Now().Unix()
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	key := fx.stage(t, 7, 1, "urgent")
	fx.svc.EnsureRunning(7)

	// Manual publish bypasses gate and cooldown.
	if err := fx.svc.PublishNow(context.Background(), 7, key); err != nil {
		t.Fatalf("PublishNow: %v", err)
	}
	waitDeliveries(t, fx.ch, 1)

	// The post is gone for everyone, including a second button press.
	if err := fx.svc.PublishNow(context.Background(), 7, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second PublishNow error = %v, want ErrNotFound", err)
	}
	if fx.pending.CountFor(7) != 0 {
		t.Fatal("post still queued after manual publish")
	}

	// Manual publication advances the cooldown mark.
	u, _ := fx.users.Get(7)
	if u.LastPublishedAt == 0 {
		t.Fatal("LastPublishedAt not set by manual publish")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	fx.addUser(t, 7)
	key := fx.stage(t, 7, 1, "unwanted")

	if err := fx.svc.Remove(context.Background(), 7, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fx.svc.Remove(context.Background(), 7, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove error = %v, want ErrNotFound", err)
	}

	// Never delivered, review copy cleaned up.
	if n := len(fx.ch.texts()); n != 0 {
		t.Fatalf("%d deliveries after Remove, want 0", n)
	}
	fx.ch.mu.Lock()
	deletes := len(fx.ch.deletes)
	fx.ch.mu.Unlock()
	if deletes != 1 {
		t.Fatalf("%d review deletes, want 1", deletes)
	}
}

func TestManualOpsCheckOwnership(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	fx.addUser(t, 7)
	key := fx.stage(t, 7, 1, "mine")

	if err := fx.svc.PublishNow(context.Background(), 8, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign PublishNow error = %v, want ErrNotFound", err)
	}
	if err := fx.svc.Remove(context.Background(), 8, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign Remove error = %v, want ErrNotFound", err)
	}
	// The failed attempts must not have consumed the post.
	if _, ok := fx.pending.Get(key); !ok {
		t.Fatal("post vanished after foreign manual ops")
	}
}

func TestDeliveryFailureKeepsPostQueued(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, fastCfg())
	fx.addUser(t, 7)
	fx.stage(t, 7, 1, "flaky")
	fx.ch.setFailNext(1)

	fx.svc.EnsureRunning(7)
	// First attempt fails and re-queues; the retry lands after the re-arm
	// delay.
	waitDeliveries(t, fx.ch, 1)
	if got := fx.ch.texts(); len(got) != 1 || got[0] != "flaky" {
		t.Fatalf("deliveries = %v", got)
	}
	waitFor(t, "queue drained", func() bool { return fx.pending.CountFor(7) == 0 })
}

func TestResumeSpawnsLoopsForQueuedUsersOnly(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	for _, id := range []int64{7, 8, 9} {
		u := fx.addUser(t, id)
		if _, err := fx.users.Update(context.Background(), u.ID, func(u *state.User) {
			u.LastPublishedAt = time.Now().Unix()
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	// Only users 7 and 8 have queued work.
	fx.stage(t, 7, 1, "a")
	fx.stage(t, 8, 1, "b")

	fx.svc.Resume()
	waitFor(t, "loops for queued users", func() bool {
		return fx.svc.Running(7) && fx.svc.Running(8)
	})
	if fx.svc.Running(9) {
		t.Fatal("loop spawned for user with empty queue")
	}
	if n := fx.svc.ActiveLoops(); n != 2 {
		t.Fatalf("ActiveLoops = %d, want 2", n)
	}
}

func TestPublishAppendsChannelAnchor(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: time.Hour, CooldownMax: time.Hour})
	fx.addUser(t, 7)
	if _, err := fx.users.Update(context.Background(), 7, func(u *state.User) {
		u.HyperlinkOn = true
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fx.ch.anchor = `<a href="https://t.me/c/200">My Channel</a>`
	key := fx.stage(t, 7, 1, "body")

	if err := fx.svc.PublishNow(context.Background(), 7, key); err != nil {
		t.Fatalf("PublishNow: %v", err)
	}
	got := fx.ch.texts()
	want := "body\n\n" + fx.ch.anchor
	if len(got) != 1 || got[0] != want {
		t.Fatalf("delivered %q, want %q", got, want)
	}
}

func TestRearmDelayStaysInWindow(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{CooldownMin: 30 * time.Minute, CooldownMax: 60 * time.Minute})
	cfg := fx.svc.config()
	for i := 0; i < 1000; i++ {
		d := fx.svc.rearmDelay(cfg)
		if d < cfg.CooldownMin || d > cfg.CooldownMax {
			t.Fatalf("rearmDelay = %v outside [%v, %v]", d, cfg.CooldownMin, cfg.CooldownMax)
		}
	}
}
