// Package broadcast fans an admin message out to every known user at a
// bounded rate.
package broadcast

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stagebot/internal/runtime/supervisor"
	"stagebot/pkg/logx"
)

type Config struct {
	RatePerSec int
}

// Content is one broadcast payload: plain text or a media file with an
// optional caption.
type Content struct {
	Text     string
	FileID   string
	FileKind string
	Caption  string
}

// Sender delivers a broadcast payload to one user's private chat.
type Sender interface {
	SendUser(ctx context.Context, userID int64, c Content) error
}

type JobStatus struct {
	ID        string
	Total     int
	Done      int
	Failed    int
	Running   bool
	StartedAt time.Time
	DoneAt    time.Time
}

type job struct {
	id      string
	targets []int64
	content Content
	done    func(sent, failed int)
}

type Service struct {
	sender Sender
	log    logx.Logger
	queue  chan job

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	status  map[string]*JobStatus
	nextID  uint64
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		sender:  sender,
		log:     log,
		queue:   make(chan job, 16),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		status:  map[string]*JobStatus{},
	}
}

// Start launches the single delivery worker under the supervisor.
func (s *Service) Start(sup *supervisor.Supervisor) {
	sup.Go("broadcast.worker", s.worker)
}

// Apply retunes the send rate.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Enqueue schedules a broadcast and returns its job id. done (optional) is
// invoked from the worker once the job finishes.
func (s *Service) Enqueue(targets []int64, content Content, done func(sent, failed int)) (string, error) {
	s.mu.Lock()
	s.nextID++
	id := "bc-" + strconv.FormatUint(s.nextID, 10)
	s.status[id] = &JobStatus{ID: id, Total: len(targets)}
	s.mu.Unlock()

	select {
	case s.queue <- job{id: id, targets: targets, content: content, done: done}:
		return id, nil
	default:
		s.mu.Lock()
		delete(s.status, id)
		s.mu.Unlock()
		return "", errors.New("broadcast queue full")
	}
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.execJob(ctx, j)
		}
	}
}

func (s *Service) execJob(ctx context.Context, j job) {
	start := time.Now()
	s.update(j.id, func(st *JobStatus) {
		st.Running = true
		st.StartedAt = start
	})
	s.log.Info("broadcast started", logx.String("job", j.id), logx.Int("total", len(j.targets)))

	sent, failed := 0, 0
	for _, uid := range j.targets {
		s.mu.Lock()
		lim := s.limiter
		s.mu.Unlock()
		if err := lim.Wait(ctx); err != nil {
			return
		}
		if err := s.sender.SendUser(ctx, uid, j.content); err != nil {
			failed++
			s.log.Debug("broadcast send failed", logx.String("job", j.id), logx.Int64("user_id", uid), logx.Err(err))
		} else {
			sent++
		}
		s.update(j.id, func(st *JobStatus) {
			st.Done = sent
			st.Failed = failed
		})
	}

	s.update(j.id, func(st *JobStatus) {
		st.Running = false
		st.DoneAt = time.Now()
	})
	if failed > 0 {
		s.log.Warn("broadcast finished with failures", logx.String("job", j.id),
			logx.Int("sent", sent), logx.Int("failed", failed), logx.Duration("dur", time.Since(start)))
	} else {
		s.log.Info("broadcast finished", logx.String("job", j.id),
			logx.Int("sent", sent), logx.Duration("dur", time.Since(start)))
	}
	if j.done != nil {
		j.done(sent, failed)
	}
}

func (s *Service) update(id string, fn func(*JobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.status[id]; st != nil {
		fn(st)
	}
}
