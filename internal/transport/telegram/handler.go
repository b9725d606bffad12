package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"stagebot/internal/broadcast"
	"stagebot/internal/i18n"
	"stagebot/internal/publish"
	"stagebot/internal/runtime/supervisor"
	"stagebot/internal/state"
	"stagebot/pkg/logx"
)

// Handler owns all chat-facing behavior: commands, the reply keyboard,
// content staging, channel setup and the admin surface. It talks to the
// repositories and the publisher; the drain loops never call back into it.
type Handler struct {
	ad      *Adapter
	users   *state.Users
	pending *state.Pending
	refs    *state.Referrals
	pub     *publish.Service
	bc      *broadcast.Service
	sup     *supervisor.Supervisor
	isAdmin func(int64) bool
	log     logx.Logger

	mu     sync.Mutex
	drafts map[int64]*broadcast.Content // admin id -> awaiting/captured broadcast draft
}

type HandlerDeps struct {
	Adapter   *Adapter
	Users     *state.Users
	Pending   *state.Pending
	Referrals *state.Referrals
	Publisher *publish.Service
	Broadcast *broadcast.Service
	Sup       *supervisor.Supervisor
	IsAdmin   func(int64) bool
	Log       logx.Logger
}

func NewHandler(d HandlerDeps) *Handler {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	isAdmin := d.IsAdmin
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Handler{
		ad:      d.Adapter,
		users:   d.Users,
		pending: d.Pending,
		refs:    d.Referrals,
		pub:     d.Publisher,
		bc:      d.Broadcast,
		sup:     d.Sup,
		isAdmin: isAdmin,
		log:     log,
		drafts:  map[int64]*broadcast.Content{},
	}
}

// Register wires every route on the bot.
func (h *Handler) Register() {
	b := h.ad.Bot()

	b.Handle("/start", h.onStart)
	b.Handle("/menu", h.onMenu)
	b.Handle("/sheri", h.onAdminMenu)

	b.Handle(tele.OnText, h.onText)
	for _, ev := range []string{tele.OnPhoto, tele.OnVideo, tele.OnAudio, tele.OnVoice, tele.OnDocument} {
		b.Handle(ev, h.onContent)
	}

	b.Handle(&btnSetLang, h.onSetLanguage)
	b.Handle(&btnAddPub, h.onAddPublishPrompt)
	b.Handle(&btnAddRev, h.onAddReviewPrompt)
	b.Handle(&btnSettings, h.onSettings)
	b.Handle(&btnResetAsk, h.onResetAsk)
	b.Handle(&btnResetYes, h.onResetYes)
	b.Handle(&btnResetNo, h.onResetNo)
	b.Handle(&btnToggleAuto, h.onToggleAuto)
	b.Handle(&btnToggleLink, h.onToggleHyperlink)
	b.Handle(&btnPublishNow, h.onPublishNow)
	b.Handle(&btnRemovePost, h.onRemovePost)
	b.Handle(&btnRefLink, h.onRefLink)
	b.Handle(&btnRefTop, h.onRefTop)
	b.Handle(&btnDonate, h.onDonate)
	b.Handle(&btnBroadcast, h.onBroadcastStart)
	b.Handle(&btnBcYes, h.onBroadcastConfirm)
	b.Handle(&btnBcNo, h.onBroadcastCancel)
	b.Handle(&btnReport, h.onReport)

	b.Handle(tele.OnCheckout, h.onCheckout)
	b.Handle(tele.OnPayment, h.onPayment)
}

func (h *Handler) ctx() context.Context { return h.sup.Context() }

// lang returns the sender's language, defaulting when unset.
func (h *Handler) lang(userID int64) string {
	if u, ok := h.users.Get(userID); ok && u.Language != "" {
		return u.Language
	}
	return i18n.DefaultLang
}

func (h *Handler) onStart(c tele.Context) error {
	uid := c.Sender().ID
	_, created, err := h.users.Ensure(h.ctx(), uid)
	if err != nil {
		h.log.Error("ensure user failed", logx.Int64("user", uid), logx.Err(err))
		return c.Send(i18n.T(i18n.DefaultLang, "storage_error"))
	}
	if created {
		if ref, perr := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64); perr == nil && ref != uid {
			if _, rerr := h.refs.Add(h.ctx(), ref, uid); rerr != nil {
				h.log.Warn("referral not persisted", logx.Int64("referrer", ref), logx.Int64("referred", uid), logx.Err(rerr))
			}
		}
	}
	return c.Send(i18n.T(h.lang(uid), "select_language"), languageKeyboard())
}

func (h *Handler) onMenu(c tele.Context) error {
	uid := c.Sender().ID
	u, _, err := h.users.Ensure(h.ctx(), uid)
	if err != nil {
		return c.Send(i18n.T(h.lang(uid), "storage_error"))
	}
	return c.Send(i18n.T(u.Language, "menu_appeared"), menuKeyboard(u))
}

func (h *Handler) onAdminMenu(c tele.Context) error {
	uid := c.Sender().ID
	if !h.isAdmin(uid) {
		return c.Send(i18n.T(h.lang(uid), "not_admin_cmd"))
	}
	return c.Send(i18n.T(h.lang(uid), "admin_menu"), adminKeyboard(h.lang(uid)))
}

// onText routes free-form text: broadcast drafts, channel identifiers, the
// reply-keyboard labels, and finally post staging.
func (h *Handler) onText(c tele.Context) error {
	if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
		return nil
	}
	uid := c.Sender().ID
	text := strings.TrimSpace(c.Text())

	u, _, err := h.users.Ensure(h.ctx(), uid)
	if err != nil {
		return c.Send(i18n.T(h.lang(uid), "storage_error"))
	}

	if h.isAdmin(uid) && h.awaitingBroadcast(uid) {
		return h.captureBroadcastDraft(c, uid)
	}

	if strings.HasPrefix(text, "@") || strings.HasPrefix(text, "-100") {
		return h.setupChannel(c, u, text)
	}

	if key, ok := labelKey(text); ok {
		switch key {
		case "btn_menu":
			return h.onMenu(c)
		case "btn_share":
			return h.onShare(c, u)
		case "btn_language":
			return c.Send(i18n.T(u.Language, "select_language"), languageKeyboard())
		case "btn_donate":
			return c.Send(i18n.T(u.Language, "donate_message"), donateKeyboard(u.Language))
		}
	}

	return h.stagePost(c, u)
}

// onContent stages media messages (and intercepts admin broadcast drafts).
func (h *Handler) onContent(c tele.Context) error {
	if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
		return nil
	}
	uid := c.Sender().ID
	u, _, err := h.users.Ensure(h.ctx(), uid)
	if err != nil {
		return c.Send(i18n.T(h.lang(uid), "storage_error"))
	}
	if h.isAdmin(uid) && h.awaitingBroadcast(uid) {
		return h.captureBroadcastDraft(c, uid)
	}
	return h.stagePost(c, u)
}

// labelKey maps a reply-keyboard label in any supported language back to its
// catalog key.
func labelKey(text string) (string, bool) {
	for _, key := range []string{"btn_menu", "btn_share", "btn_language", "btn_donate"} {
		for _, lang := range i18n.Langs {
			if text == i18n.T(lang, key) {
				return key, true
			}
		}
	}
	return "", false
}

func (h *Handler) onShare(c tele.Context, u state.User) error {
	count := h.refs.CountFor(u.ID)
	return c.Send(i18n.Tf(u.Language, "share_info", count), shareKeyboard(u.Language))
}

// setupChannel binds the next unset channel (publish first, then review) to
// the chat the user named, after verifying the chat exists, the user
// administers it and the bot can post into it.
func (h *Handler) setupChannel(c tele.Context, u state.User, ident string) error {
	lang := u.Language
	if u.PublishChannelID != 0 && u.ReviewChannelID != 0 {
		return c.Send(i18n.T(lang, "channels_already_set"))
	}

	chat, err := h.ad.ResolveChat(ident)
	if err != nil || chat.Type != tele.ChatChannel {
		return c.Send(i18n.T(lang, "channel_not_found"))
	}
	if !h.ad.UserIsAdmin(u.ID, chat.ID) {
		return c.Send(i18n.T(lang, "not_channel_admin"))
	}

	forPublish := u.PublishChannelID == 0
	if !h.ad.BotCanPost(chat.ID) {
		if forPublish {
			return c.Send(i18n.T(lang, "bot_cant_post_publish"))
		}
		return c.Send(i18n.T(lang, "bot_cant_post_review"))
	}

	var invite string
	var inviteErr error
	if forPublish {
		invite, inviteErr = h.ad.CreateInviteLink(chat.ID, "stagebot")
		if inviteErr != nil {
			h.log.Warn("invite link not created", logx.Int64("chat", chat.ID), logx.Err(inviteErr))
		}
	}

	updated, err := h.users.Update(h.ctx(), u.ID, func(cu *state.User) {
		if forPublish {
			cu.PublishChannelID = chat.ID
			cu.InviteLink = invite
		} else {
			cu.ReviewChannelID = chat.ID
		}
	})
	if err != nil {
		h.log.Error("channel binding not persisted", logx.Int64("user", u.ID), logx.Err(err))
		return c.Send(i18n.T(lang, "storage_error"))
	}

	msgKey := "review_channel_added"
	if forPublish {
		msgKey = "publish_channel_added"
		if inviteErr != nil {
			msgKey = "publish_channel_added_no_link"
		}
	}
	return c.Send(i18n.T(lang, msgKey), menuKeyboard(updated))
}

// stagePost copies the message into the review channel with manual-action
// buttons, records it in the queue and wakes the user's drain loop.
func (h *Handler) stagePost(c tele.Context, u state.User) error {
	lang := u.Language
	if u.PublishChannelID == 0 || u.ReviewChannelID == 0 {
		return c.Send(i18n.T(lang, "draft_error"))
	}

	msg := c.Message()
	body, fileID, kind := extractContent(msg)
	if body == "" && fileID == "" {
		return c.Send(i18n.T(lang, "draft_error"))
	}

	key := state.PostKey(u.ID, msg.ID)
	review := &tele.Chat{ID: u.ReviewChannelID}
	markup := reviewKeyboard(lang, key)

	var reviewMsg *tele.Message
	var err error
	if fileID == "" {
		reviewMsg, err = h.ad.Bot().Send(review, body, markup)
	} else {
		reviewMsg, err = h.ad.Bot().Send(review, media(fileID, kind, body), markup)
	}
	if err != nil {
		h.log.Warn("review copy failed", logx.Int64("user", u.ID), logx.Err(err))
		return c.Send(i18n.T(lang, "draft_error"))
	}

	err = h.pending.Insert(h.ctx(), state.Post{
		Key:         key,
		UserID:      u.ID,
		Body:        body,
		FileID:      fileID,
		FileKind:    kind,
		ReviewMsgID: reviewMsg.ID,
	})
	if err != nil {
		h.log.Error("pending insert not persisted", logx.String("key", key), logx.Err(err))
		return c.Send(i18n.T(lang, "storage_error"))
	}

	h.pub.EnsureRunning(u.ID)

	if derr := h.ad.Bot().Delete(msg); derr != nil {
		h.log.Debug("original message not deleted", logx.String("key", key), logx.Err(derr))
	}
	return c.Send(i18n.T(lang, "post_scheduled"))
}

// extractContent pulls the text body and any single attachment out of a
// private-chat message.
func extractContent(m *tele.Message) (body, fileID, kind string) {
	switch {
	case m.Photo != nil:
		return m.Caption, m.Photo.FileID, state.KindPhoto
	case m.Video != nil:
		return m.Caption, m.Video.FileID, state.KindVideo
	case m.Audio != nil:
		return m.Caption, m.Audio.FileID, state.KindAudio
	case m.Voice != nil:
		return m.Caption, m.Voice.FileID, state.KindVoice
	case m.Document != nil:
		return m.Caption, m.Document.FileID, state.KindDocument
	default:
		return m.Text, "", ""
	}
}
