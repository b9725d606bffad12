package publish

import (
	"context"
	"errors"

	"stagebot/pkg/logx"
)

// ErrNotFound reports that the post was already handled by the drain loop
// or another actor. Callers surface it as a benign notice, not a failure.
var ErrNotFound = errors.New("pending post not found")

// PublishNow delivers the post immediately, bypassing gate and cooldown.
// The claim on the queue decides the race against the drain loop: whoever
// claims the key first handles the post, the other sees ErrNotFound.
func (s *Service) PublishNow(ctx context.Context, userID int64, key string) error {
	c, ok := s.pending.Claim(key)
	if !ok {
		return ErrNotFound
	}
	if c.Post.UserID != userID {
		s.pending.Release(c)
		return ErrNotFound
	}

	delivered, err := s.publishClaimed(ctx, c)
	if !delivered {
		s.pending.Release(c)
		return err
	}
	return err
}

// Remove drops the post without delivering it, deleting the review-channel
// copy best-effort.
func (s *Service) Remove(ctx context.Context, userID int64, key string) error {
	c, ok := s.pending.Claim(key)
	if !ok {
		return ErrNotFound
	}
	if c.Post.UserID != userID {
		s.pending.Release(c)
		return ErrNotFound
	}

	if u, ok := s.users.Get(userID); ok && u.ReviewChannelID != 0 && c.Post.ReviewMsgID != 0 {
		if err := s.ch.Delete(ctx, u.ReviewChannelID, c.Post.ReviewMsgID); err != nil {
			s.log.Debug("review copy delete failed", logx.String("key", c.Post.Key), logx.Err(err))
		}
	}
	return s.pending.Commit(ctx, c)
}
