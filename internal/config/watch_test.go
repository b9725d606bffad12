package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stagebot/pkg/logx"
)

func TestWatchAppliesValidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(token string) {
		t.Helper()
		body := "telegram:\n  token: " + token + "\nstorage:\n  driver: sqlite\n  path: /tmp/x.db\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("first")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, logx.Nop(), func(c *Config) { applied <- c })
	}()

	// Give the watcher a moment to register before the first rewrite.
	time.Sleep(100 * time.Millisecond)

	// A broken intermediate state must be ignored...
	if err := os.WriteFile(path, []byte("telegram: ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	select {
	case c := <-applied:
		t.Fatalf("broken config applied: %+v", c)
	default:
	}

	// ...and the next valid write picked up.
	write("second")
	select {
	case c := <-applied:
		if c.Telegram.Token != "second" {
			t.Fatalf("applied token %q, want %q", c.Telegram.Token, "second")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid reload never applied")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
