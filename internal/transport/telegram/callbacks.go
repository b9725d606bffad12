package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"stagebot/internal/broadcast"
	"stagebot/internal/i18n"
	"stagebot/internal/publish"
	"stagebot/internal/state"
	"stagebot/pkg/logx"
)

func (h *Handler) onSetLanguage(c tele.Context) error {
	uid := c.Sender().ID
	lang := strings.TrimSpace(c.Data())
	if !i18n.Known(lang) {
		return c.Respond(&tele.CallbackResponse{})
	}
	u, err := h.users.Update(h.ctx(), uid, func(cu *state.User) { cu.Language = lang })
	if err != nil {
		h.log.Error("language not persisted", logx.Int64("user", uid), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "storage_error")})
	}
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	if err := c.Send(i18n.Tf(lang, "language_changed", i18n.T(lang, "language_name")), mainKeyboard(lang)); err != nil {
		return err
	}
	if u.PublishChannelID == 0 || u.ReviewChannelID == 0 {
		return c.Send(i18n.T(lang, "add_channels"), menuKeyboard(u))
	}
	return nil
}

func (h *Handler) onAddPublishPrompt(c tele.Context) error {
	lang := h.lang(c.Sender().ID)
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Send(i18n.T(lang, "add_publish_channel_prompt"))
}

func (h *Handler) onAddReviewPrompt(c tele.Context) error {
	lang := h.lang(c.Sender().ID)
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Send(i18n.T(lang, "add_review_channel_prompt"))
}

func (h *Handler) onSettings(c tele.Context) error {
	uid := c.Sender().ID
	u, ok := h.users.Get(uid)
	if !ok {
		return c.Respond(&tele.CallbackResponse{})
	}
	lang := u.Language
	text := i18n.Tf(lang, "settings",
		channelLabel(lang, u.PublishChannelID),
		channelLabel(lang, u.ReviewChannelID),
		onOff(lang, u.AutoPublish),
		onOff(lang, u.HyperlinkOn),
	)
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Send(text)
}

func channelLabel(lang string, id int64) string {
	if id == 0 {
		return i18n.T(lang, "channel_not_set")
	}
	return strconv.FormatInt(id, 10)
}

func (h *Handler) onResetAsk(c tele.Context) error {
	lang := h.lang(c.Sender().ID)
	return c.Edit(i18n.T(lang, "confirm_reset_channels"), resetConfirmKeyboard(lang))
}

func (h *Handler) onResetYes(c tele.Context) error {
	uid := c.Sender().ID
	lang := h.lang(uid)
	u, err := h.users.Update(h.ctx(), uid, func(cu *state.User) {
		cu.PublishChannelID = 0
		cu.ReviewChannelID = 0
		cu.InviteLink = ""
	})
	if err != nil {
		h.log.Error("channel reset not persisted", logx.Int64("user", uid), logx.Err(err))
		return c.Edit(i18n.T(lang, "storage_error"))
	}
	if err := c.Edit(i18n.T(lang, "channels_reset")); err != nil {
		return err
	}
	return c.Send(i18n.T(lang, "menu_appeared"), menuKeyboard(u))
}

func (h *Handler) onResetNo(c tele.Context) error {
	return c.Edit(i18n.T(h.lang(c.Sender().ID), "reset_cancelled"))
}

func (h *Handler) onToggleAuto(c tele.Context) error {
	uid := c.Sender().ID
	u, err := h.users.Update(h.ctx(), uid, func(cu *state.User) { cu.AutoPublish = !cu.AutoPublish })
	if err != nil {
		if errors.Is(err, state.ErrUnknownUser) {
			return c.Respond(&tele.CallbackResponse{})
		}
		h.log.Error("auto toggle not persisted", logx.Int64("user", uid), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(h.lang(uid), "storage_error")})
	}
	h.pub.SetAuto(uid, u.AutoPublish)
	if err := c.Respond(&tele.CallbackResponse{Text: i18n.T(u.Language, "auto_publish_toggled")}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Edit(i18n.T(u.Language, "menu_appeared"), menuKeyboard(u))
}

func (h *Handler) onToggleHyperlink(c tele.Context) error {
	uid := c.Sender().ID
	u, err := h.users.Update(h.ctx(), uid, func(cu *state.User) { cu.HyperlinkOn = !cu.HyperlinkOn })
	if err != nil {
		if errors.Is(err, state.ErrUnknownUser) {
			return c.Respond(&tele.CallbackResponse{})
		}
		h.log.Error("hyperlink toggle not persisted", logx.Int64("user", uid), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(h.lang(uid), "storage_error")})
	}
	if err := c.Respond(&tele.CallbackResponse{Text: i18n.T(u.Language, "hyperlink_toggled")}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Edit(i18n.T(u.Language, "menu_appeared"), menuKeyboard(u))
}

// onPublishNow handles the review-channel button. Whoever the post belongs
// to (encoded in the key) is the owner; losing the race to the drain loop or
// a concurrent press just reports the post as already handled.
func (h *Handler) onPublishNow(c tele.Context) error {
	key := strings.TrimSpace(c.Data())
	owner, _, err := state.ParsePostKey(key)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{})
	}
	lang := h.lang(owner)
	switch err := h.pub.PublishNow(h.ctx(), owner, key); {
	case err == nil:
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "published_now")})
	case errors.Is(err, publish.ErrNotFound):
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "post_not_found")})
	default:
		h.log.Warn("manual publish failed", logx.String("key", key), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "storage_error")})
	}
}

func (h *Handler) onRemovePost(c tele.Context) error {
	key := strings.TrimSpace(c.Data())
	owner, _, err := state.ParsePostKey(key)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{})
	}
	lang := h.lang(owner)
	switch err := h.pub.Remove(h.ctx(), owner, key); {
	case err == nil:
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "post_removed")})
	case errors.Is(err, publish.ErrNotFound):
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "post_not_found")})
	default:
		h.log.Warn("manual remove failed", logx.String("key", key), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: i18n.T(lang, "storage_error")})
	}
}

func (h *Handler) onRefLink(c tele.Context) error {
	uid := c.Sender().ID
	lang := h.lang(uid)
	link := h.ad.DeepLink(strconv.FormatInt(uid, 10))
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Send(i18n.Tf(lang, "ref_link", link))
}

func (h *Handler) onRefTop(c tele.Context) error {
	uid := c.Sender().ID
	lang := h.lang(uid)
	board := h.refs.Leaderboard()
	if len(board) == 0 {
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			h.log.Debug("callback ack failed", logx.Err(err))
		}
		return c.Send(i18n.T(lang, "no_referrals"))
	}
	var b strings.Builder
	for i, rc := range board {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "%d. %s — %d %s\n", i+1, i18n.Tf(lang, "user_fallback", rc.UserID), rc.Count, i18n.T(lang, "invitations"))
	}
	text := i18n.Tf(lang, "top_referrers", b.String())
	if pos := h.refs.PositionOf(uid); pos > 0 {
		text += "\n" + i18n.Tf(lang, "your_position", pos)
	}
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Send(text)
}

// onDonate sends a Telegram Stars invoice for the chosen amount.
func (h *Handler) onDonate(c tele.Context) error {
	uid := c.Sender().ID
	lang := h.lang(uid)
	amount, err := strconv.Atoi(strings.TrimSpace(c.Data()))
	if err != nil || amount <= 0 {
		return c.Respond(&tele.CallbackResponse{})
	}
	inv := &tele.Invoice{
		Title:       i18n.T(lang, "donate_invoice_title"),
		Description: i18n.T(lang, "donate_invoice_desc"),
		Payload:     "donate:" + strconv.Itoa(amount),
		Currency:    "XTR",
		Prices:      []tele.Price{{Label: i18n.T(lang, "donate_label"), Amount: amount}},
	}
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	if err := c.Send(inv); err != nil {
		h.log.Warn("invoice send failed", logx.Int64("user", uid), logx.Err(err))
		return c.Send(i18n.T(lang, "donation_error"))
	}
	return nil
}

func (h *Handler) onCheckout(c tele.Context) error {
	return c.Accept()
}

func (h *Handler) onPayment(c tele.Context) error {
	uid := c.Sender().ID
	p := c.Message().Payment
	if p != nil {
		h.log.Info("donation received",
			logx.Int64("user", uid),
			logx.Int("amount", p.Total),
			logx.String("currency", p.Currency))
	}
	return c.Send(i18n.T(h.lang(uid), "donation_success"))
}

// Broadcast flow: the admin presses the button, the next message they send
// becomes the draft, and a confirm step hands it to the broadcaster.

func (h *Handler) awaitingBroadcast(uid int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	draft, ok := h.drafts[uid]
	return ok && draft == nil
}

func (h *Handler) onBroadcastStart(c tele.Context) error {
	uid := c.Sender().ID
	if !h.isAdmin(uid) {
		return c.Respond(&tele.CallbackResponse{})
	}
	h.mu.Lock()
	h.drafts[uid] = nil
	h.mu.Unlock()
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	return c.Send(i18n.T(h.lang(uid), "broadcast_prompt"))
}

func (h *Handler) captureBroadcastDraft(c tele.Context, uid int64) error {
	body, fileID, kind := extractContent(c.Message())
	content := &broadcast.Content{Text: body}
	if fileID != "" {
		content = &broadcast.Content{FileID: fileID, FileKind: kind, Caption: body}
	}
	h.mu.Lock()
	h.drafts[uid] = content
	h.mu.Unlock()
	return c.Send(i18n.T(h.lang(uid), "broadcast_ready"), broadcastConfirmKeyboard(h.lang(uid)))
}

func (h *Handler) onBroadcastConfirm(c tele.Context) error {
	uid := c.Sender().ID
	lang := h.lang(uid)
	if !h.isAdmin(uid) {
		return c.Respond(&tele.CallbackResponse{})
	}
	h.mu.Lock()
	content := h.drafts[uid]
	delete(h.drafts, uid)
	h.mu.Unlock()
	if content == nil {
		return c.Edit(i18n.T(lang, "broadcast_error"))
	}

	targets := make([]int64, 0, h.users.Count())
	for _, u := range h.users.All() {
		targets = append(targets, u.ID)
	}
	admin := &tele.User{ID: uid}
	_, err := h.bc.Enqueue(targets, *content, func(sent, failed int) {
		if _, serr := h.ad.Bot().Send(admin, i18n.Tf(lang, "broadcast_done", sent, failed)); serr != nil {
			h.log.Warn("broadcast summary not delivered", logx.Err(serr))
		}
	})
	if err != nil {
		h.log.Error("broadcast enqueue failed", logx.Err(err))
		return c.Edit(i18n.T(lang, "broadcast_error"))
	}
	return c.Edit(i18n.T(lang, "broadcast_started"))
}

func (h *Handler) onBroadcastCancel(c tele.Context) error {
	uid := c.Sender().ID
	h.mu.Lock()
	delete(h.drafts, uid)
	h.mu.Unlock()
	return c.Edit(i18n.T(h.lang(uid), "broadcast_cancelled"))
}

// onReport probes every known user with a chat action and reports
// reachable/blocked counts. Runs off the handler goroutine since the probes
// are paced.
func (h *Handler) onReport(c tele.Context) error {
	uid := c.Sender().ID
	lang := h.lang(uid)
	if !h.isAdmin(uid) {
		return c.Respond(&tele.CallbackResponse{})
	}
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		h.log.Debug("callback ack failed", logx.Err(err))
	}
	users := h.users.All()
	admin := &tele.User{ID: uid}
	h.sup.Go("admin.report", func(ctx context.Context) {
		reachable := 0
		for _, u := range users {
			select {
			case <-ctx.Done():
				return
			case <-time.After(40 * time.Millisecond):
			}
			if h.ad.Reachable(u.ID) {
				reachable++
			}
		}
		text := i18n.Tf(lang, "report", len(users), reachable, len(users)-reachable)
		if _, err := h.ad.Bot().Send(admin, text); err != nil {
			h.log.Warn("report not delivered", logx.Err(err))
		}
	})
	return nil
}
