package state

import (
	"context"
	"errors"
	"testing"
)

func TestUsersEnsureDefaults(t *testing.T) {
	t.Parallel()
	r := NewUsers(newFakeStore())
	ctx := context.Background()

	u, created, err := r.Ensure(ctx, 7)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatal("first Ensure should create")
	}
	if !u.AutoPublish || !u.HyperlinkOn {
		t.Fatalf("defaults wrong: %+v", u)
	}

	u2, created, err := r.Ensure(ctx, 7)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if created {
		t.Fatal("second Ensure should not create")
	}
	if u2 != u {
		t.Fatalf("second Ensure returned %+v, want %+v", u2, u)
	}
}

func TestUsersUpdate(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	r := NewUsers(store)
	ctx := context.Background()

	if _, err := r.Update(ctx, 7, func(u *User) { u.Language = "en" }); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("Update of unknown user: err = %v, want ErrUnknownUser", err)
	}

	if _, _, err := r.Ensure(ctx, 7); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	u, err := r.Update(ctx, 7, func(u *User) {
		u.PublishChannelID = -100123
		u.AutoPublish = false
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.PublishChannelID != -100123 || u.AutoPublish {
		t.Fatalf("update not applied: %+v", u)
	}

	got, ok := r.Get(7)
	if !ok || got != u {
		t.Fatalf("Get = %+v, %v; want %+v", got, ok, u)
	}
}

func TestUsersSaveErrorStillApplies(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	r := NewUsers(store)
	ctx := context.Background()

	if _, _, err := r.Ensure(ctx, 7); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	boom := errors.New("save failed")
	store.setSaveErr(boom)

	_, err := r.Update(ctx, 7, func(u *User) { u.Language = "uz" })
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want %v", err, boom)
	}
	// Applied in memory regardless; the caller decides what to tell the user.
	if got, _ := r.Get(7); got.Language != "uz" {
		t.Fatalf("Language = %q, want uz", got.Language)
	}
}

func TestReferrals(t *testing.T) {
	t.Parallel()
	r := NewReferrals(newFakeStore())
	ctx := context.Background()

	added, err := r.Add(ctx, 1, 10)
	if err != nil || !added {
		t.Fatalf("Add = %v, %v", added, err)
	}
	// Duplicate edge and self-referral are both rejected.
	if added, _ := r.Add(ctx, 1, 10); added {
		t.Fatal("duplicate edge accepted")
	}
	if added, _ := r.Add(ctx, 5, 5); added {
		t.Fatal("self-referral accepted")
	}

	for _, ref := range []int64{11, 12} {
		if _, err := r.Add(ctx, 2, ref); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if got := r.CountFor(2); got != 2 {
		t.Fatalf("CountFor(2) = %d, want 2", got)
	}
	board := r.Leaderboard()
	if len(board) != 2 || board[0].UserID != 2 || board[0].Count != 2 {
		t.Fatalf("Leaderboard = %+v", board)
	}
	if pos := r.PositionOf(1); pos != 2 {
		t.Fatalf("PositionOf(1) = %d, want 2", pos)
	}
	if pos := r.PositionOf(99); pos != 0 {
		t.Fatalf("PositionOf(99) = %d, want 0", pos)
	}
	if total := r.Total(); total != 3 {
		t.Fatalf("Total = %d, want 3", total)
	}
}
