package publish

import (
	"context"
	"fmt"
	"time"

	"stagebot/internal/state"
	"stagebot/pkg/logx"
)

// drain is one user's publish loop. Per cycle it waits for the gate,
// enforces the cooldown, publishes the user's oldest queued post and
// re-arms with a randomized delay. It exits only when the queue is found
// empty at the top of a cycle (or on process shutdown); the supervisor
// registry entry is dropped on the way out so a later EnsureRunning can
// spawn a fresh loop.
func (s *Service) drain(ctx context.Context, userID int64, gate *Gate) {
	log := s.log.With(logx.Int64("user_id", userID))
	for {
		if err := gate.Wait(ctx); err != nil {
			s.deregister(userID)
			return
		}

		key, ok := s.pending.OldestFor(userID)
		if !ok {
			if !s.exitIfDrained(userID) {
				// A post landed between the empty read and the exit; keep
				// draining.
				continue
			}
			log.Debug("queue empty; drain loop exiting")
			return
		}

		u, ok := s.users.Get(userID)
		if !ok {
			// Queue entries without a user record should not happen; drop the
			// loop rather than spin.
			s.deregister(userID)
			log.Warn("drain loop for unknown user; exiting")
			return
		}

		cfg := s.config()

		// Cooldown. Deliberately not re-checked against the gate: a Close()
		// arriving during this wait pauses the loop only from the next cycle
		// on, matching the established rate-limit behavior.
		if elapsed := s.now().Sub(time.Unix(u.LastPublishedAt, 0)); elapsed < cfg.CooldownMin {
			if !s.sleep(ctx, cfg.CooldownMin-elapsed) {
				s.deregister(userID)
				return
			}
		}

		claimed, ok := s.pending.Claim(key)
		if !ok {
			// Handled manually while we waited; recompute from the top.
			continue
		}

		delivered, err := s.publishClaimed(ctx, claimed)
		switch {
		case !delivered:
			// Transient remote failure: the post stays queued in its original
			// position and is retried after the normal re-arm delay.
			s.pending.Release(claimed)
			log.Warn("publish failed; post stays queued", logx.String("key", key), logx.Err(err))
		case err != nil:
			// Delivered but a durable write failed. Never re-publish; the
			// worst case is a stale persisted copy until the next save.
			log.Error("post delivered but not acknowledged", logx.String("key", key), logx.Err(err))
		default:
			log.Info("post published", logx.String("key", key))
		}

		if !s.sleep(ctx, s.rearmDelay(cfg)) {
			s.deregister(userID)
			return
		}
	}
}

// publishClaimed delivers a claimed post and settles its bookkeeping.
//
// delivered=false means the delivery itself failed and the caller should put
// the post back. delivered=true with a non-nil error means the post went out
// but a follow-up step (review-copy bookkeeping aside, a durable write)
// failed; the post must not be re-published.
func (s *Service) publishClaimed(ctx context.Context, c *state.Claimed) (delivered bool, err error) {
	post := c.Post
	u, ok := s.users.Get(post.UserID)
	if !ok {
		return false, fmt.Errorf("user %d not registered", post.UserID)
	}

	if u.PublishChannelID != 0 {
		text := post.Body
		if u.HyperlinkOn {
			anchor, aerr := s.ch.ChatAnchor(ctx, u.PublishChannelID, u.InviteLink)
			if aerr != nil {
				return false, fmt.Errorf("resolve channel link: %w", aerr)
			}
			if anchor != "" {
				text += "\n\n" + anchor
			}
		}
		var att *Attachment
		if post.FileID != "" {
			att = &Attachment{FileID: post.FileID, Kind: post.FileKind}
		}
		if _, derr := s.ch.Deliver(ctx, u.PublishChannelID, text, att); derr != nil {
			return false, fmt.Errorf("deliver: %w", derr)
		}
	} else {
		// No publish channel configured: the post drains to nowhere, same as
		// removing it.
		s.log.Warn("publish channel unset; dropping post",
			logx.Int64("user_id", post.UserID), logx.String("key", post.Key))
	}

	// Best-effort cleanup of the review-channel copy. An orphaned review
	// message is an accepted residual cost.
	if u.ReviewChannelID != 0 && post.ReviewMsgID != 0 {
		if derr := s.ch.Delete(ctx, u.ReviewChannelID, post.ReviewMsgID); derr != nil {
			s.log.Debug("review copy delete failed",
				logx.String("key", post.Key), logx.Err(derr))
		}
	}

	if cerr := s.pending.Commit(ctx, c); cerr != nil {
		return true, fmt.Errorf("persist queue: %w", cerr)
	}
	if _, uerr := s.users.Update(ctx, post.UserID, func(u *state.User) {
		u.LastPublishedAt = s.now().Unix()
	}); uerr != nil {
		return true, fmt.Errorf("persist last-published mark: %w", uerr)
	}
	return true, nil
}
