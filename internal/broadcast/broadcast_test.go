package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagebot/internal/runtime/supervisor"
	"stagebot/pkg/logx"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []int64
	failIDs map[int64]bool
}

func (f *fakeSender) SendUser(_ context.Context, userID int64, _ Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[userID] {
		return errors.New("blocked")
	}
	f.sent = append(f.sent, userID)
	return nil
}

func (f *fakeSender) sentIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

func TestBroadcastDeliversAndCounts(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{failIDs: map[int64]bool{3: true}}
	svc := New(Config{RatePerSec: 1000}, sender, logx.Nop())

	sup := supervisor.New(context.Background(), logx.Nop())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	}()
	svc.Start(sup)

	type result struct{ sent, failed int }
	done := make(chan result, 1)
	id, err := svc.Enqueue([]int64{1, 2, 3, 4}, Content{Text: "hello"}, func(sent, failed int) {
		done <- result{sent, failed}
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var got result
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast did not finish")
	}
	if got.sent != 3 || got.failed != 1 {
		t.Fatalf("done(%d, %d), want (3, 1)", got.sent, got.failed)
	}

	ids := sender.sentIDs()
	if len(ids) != 3 {
		t.Fatalf("sent to %v, want 3 users", ids)
	}

	st, ok := svc.Status(id)
	if !ok {
		t.Fatalf("Status(%q) missing", id)
	}
	if st.Running || st.Done != 3 || st.Failed != 1 || st.Total != 4 {
		t.Fatalf("Status = %+v", st)
	}
}

func TestBroadcastQueueFull(t *testing.T) {
	t.Parallel()
	svc := New(Config{RatePerSec: 1000}, &fakeSender{}, logx.Nop())
	// Worker never started: the queue fills and overflow is rejected.
	var lastErr error
	for i := 0; i < 64; i++ {
		if _, err := svc.Enqueue([]int64{1}, Content{Text: "x"}, nil); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		t.Fatal("expected a queue-full rejection")
	}
}

func TestApplyRetunesRate(t *testing.T) {
	t.Parallel()
	svc := New(Config{RatePerSec: 0}, &fakeSender{}, logx.Nop())
	if svc.cfg.RatePerSec != 25 {
		t.Fatalf("default rate = %d, want 25", svc.cfg.RatePerSec)
	}
	svc.Apply(Config{RatePerSec: 5})
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.cfg.RatePerSec != 5 {
		t.Fatalf("rate after Apply = %d, want 5", svc.cfg.RatePerSec)
	}
}
