// Package supervisor runs named goroutines tied to a shared context, with
// panic recovery and timeout-aware shutdown.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"stagebot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	active   int64
	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{ctx: ctx, cancel: cancel, log: log, doneCh: make(chan struct{})}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Active reports the number of running goroutines. Operational signal only,
// not a synchronization primitive.
func (s *Supervisor) Active() int64 { return atomic.LoadInt64(&s.active) }

// Go starts fn under the supervisor context. Panics are recovered and
// logged; they never take down the process or sibling goroutines.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	atomic.AddInt64(&s.active, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer atomic.AddInt64(&s.active, -1)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.log.Debug("goroutine started", logx.String("name", name))
		fn(s.ctx)
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// GoRestart runs fn and restarts it with backoff until the context is
// cancelled. Intended for long-running loops (pollers, watchers) where
// transient failures should self-heal.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) {
		backoff := 500 * time.Millisecond
		const maxBackoff = 30 * time.Second
		for {
			started := time.Now()
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("goroutine panicked (will restart)",
							logx.String("name", name),
							logx.Any("panic", r),
							logx.String("stack", string(debug.Stack())))
					}
				}()
				fn(ctx)
			}()
			if ctx.Err() != nil {
				return
			}
			// A run that lasted a while resets the backoff so rare failures
			// don't accumulate long restart delays.
			if time.Since(started) >= 30*time.Second {
				backoff = 500 * time.Millisecond
			}
			s.log.Warn("goroutine exited; restarting",
				logx.String("name", name), logx.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

// Stop cancels the context and waits for goroutines, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return nil
	}
}
