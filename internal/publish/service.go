package publish

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"stagebot/internal/runtime/supervisor"
	"stagebot/internal/state"
	"stagebot/pkg/logx"
)

type Config struct {
	// CooldownMin is the minimum spacing between two publications for one
	// user. The re-arm delay is drawn uniformly from
	// [CooldownMin, CooldownMax].
	CooldownMin time.Duration
	CooldownMax time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.CooldownMin <= 0 {
		out.CooldownMin = 30 * time.Minute
	}
	if out.CooldownMax < out.CooldownMin {
		out.CooldownMax = out.CooldownMin
	}
	return out
}

// Service owns the per-user drain loops: one gate and at most one live loop
// per user. Loops are created on demand and exit on their own when the
// user's queue drains; there is no explicit cancellation beyond process
// shutdown.
type Service struct {
	users   *state.Users
	pending *state.Pending
	ch      Channel
	sup     *supervisor.Supervisor
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	gates   map[int64]*Gate
	running map[int64]struct{}

	// now is swappable for tests.
	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config, users *state.Users, pending *state.Pending, ch Channel, sup *supervisor.Supervisor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		users:   users,
		pending: pending,
		ch:      ch,
		sup:     sup,
		log:     log,
		cfg:     cfg.withDefaults(),
		gates:   map[int64]*Gate{},
		running: map[int64]struct{}{},
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply retunes the cooldown window. Running loops pick the new values up
// on their next cycle.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// EnsureRunning spawns a drain loop for the user unless one is already
// alive. Idempotent.
func (s *Service) EnsureRunning(userID int64) {
	s.mu.Lock()
	if _, ok := s.running[userID]; ok {
		s.mu.Unlock()
		return
	}
	s.running[userID] = struct{}{}
	gate := s.gateLocked(userID)
	s.mu.Unlock()

	s.sup.Go(loopName(userID), func(ctx context.Context) {
		s.drain(ctx, userID, gate)
	})
}

// SetAuto reflects the user's auto-publish preference into the gate,
// releasing or pausing a running loop immediately. Turning it on also
// ensures a loop exists so queued posts start draining.
func (s *Service) SetAuto(userID int64, on bool) {
	s.mu.Lock()
	gate := s.gateLocked(userID)
	s.mu.Unlock()

	if on {
		gate.Open()
		s.EnsureRunning(userID)
	} else {
		gate.Close()
	}
}

// Resume recreates drain loops for every user with queued work. Called once
// at boot after the queue has been loaded from storage.
func (s *Service) Resume() {
	ids := s.pending.UserIDs()
	for _, id := range ids {
		s.EnsureRunning(id)
	}
	if len(ids) > 0 {
		s.log.Info("drain loops resumed", logx.Int("users", len(ids)))
	}
}

// Running reports whether the user currently has a live loop.
func (s *Service) Running(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[userID]
	return ok
}

// ActiveLoops counts live drain loops.
func (s *Service) ActiveLoops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// deregister drops the loop registration unconditionally. Shutdown paths
// only; the empty-queue exit goes through exitIfDrained.
func (s *Service) deregister(userID int64) {
	s.mu.Lock()
	delete(s.running, userID)
	s.mu.Unlock()
}

// exitIfDrained settles a loop's empty-queue exit. The queue re-check and
// the deregistration share the registry lock, so an Insert+EnsureRunning
// pair can never slip between them: either the insert is visible here and
// the loop keeps running, or the registration is already gone and
// EnsureRunning spawns a fresh loop.
func (s *Service) exitIfDrained(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending.OldestFor(userID); ok {
		return false
	}
	delete(s.running, userID)
	return true
}

// gateLocked returns the user's gate, creating it from the persisted
// auto-publish preference on first use. Caller holds s.mu.
func (s *Service) gateLocked(userID int64) *Gate {
	if g, ok := s.gates[userID]; ok {
		return g
	}
	open := true
	if u, ok := s.users.Get(userID); ok {
		open = u.AutoPublish
	}
	g := NewGate(open)
	s.gates[userID] = g
	return g
}

// sleep waits for d, returning false when ctx ended first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Service) rearmDelay(cfg Config) time.Duration {
	span := cfg.CooldownMax - cfg.CooldownMin
	if span <= 0 {
		return cfg.CooldownMin
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return cfg.CooldownMin + time.Duration(s.rng.Int63n(int64(span)+1))
}

func loopName(userID int64) string {
	return "drain." + strconv.FormatInt(userID, 10)
}
