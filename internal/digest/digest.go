// Package digest sends administrators a periodic operational summary.
package digest

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"stagebot/internal/broadcast"
	"stagebot/internal/state"
	"stagebot/pkg/logx"
)

type Config struct {
	Enabled bool
	Spec    string // cron spec, 5-field or 6-field with seconds
}

// ActiveCounter reports how many drain loops are currently running.
type ActiveCounter interface {
	ActiveLoops() int
}

type Service struct {
	cfg     Config
	users   *state.Users
	pending *state.Pending
	refs    *state.Referrals
	active  ActiveCounter
	sender  broadcast.Sender
	admins  []int64
	log     logx.Logger

	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
}

func New(cfg Config, users *state.Users, pending *state.Pending, refs *state.Referrals, active ActiveCounter, sender broadcast.Sender, admins []int64, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		users:   users,
		pending: pending,
		refs:    refs,
		active:  active,
		sender:  sender,
		admins:  admins,
		log:     log,
		// SecondOptional allows both 5-field and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start validates the spec and begins the cron schedule. A disabled service
// or an empty admin list is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled || len(s.admins) == 0 {
		return nil
	}
	sched, err := s.parser.Parse(s.cfg.Spec)
	if err != nil {
		return fmt.Errorf("digest: bad cron spec %q: %w", s.cfg.Spec, err)
	}
	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser))
	s.c.Schedule(sched, cron.FuncJob(s.run))
	s.c.Start()
	s.log.Info("digest scheduled", logx.String("spec", s.cfg.Spec), logx.Int("admins", len(s.admins)))
	return nil
}

// Stop halts the schedule and waits for an in-flight run.
func (s *Service) Stop() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
}

func (s *Service) run() {
	text := fmt.Sprintf(
		"Daily digest\nUsers: %d\nQueued posts: %d\nActive loops: %d\nReferral edges: %d",
		s.users.Count(), s.pending.Count(), s.active.ActiveLoops(), s.refs.Total(),
	)
	for _, id := range s.admins {
		if err := s.sender.SendUser(s.ctx, id, broadcast.Content{Text: text}); err != nil {
			s.log.Warn("digest not delivered", logx.Int64("admin", id), logx.Err(err))
		}
	}
}
