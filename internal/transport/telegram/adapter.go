package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"stagebot/internal/broadcast"
	"stagebot/internal/publish"
	"stagebot/internal/runtime/supervisor"
	"stagebot/internal/state"
	"stagebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter wraps the telebot client. It is both the chat-platform boundary
// the publisher consumes (publish.Channel) and the transport the handlers
// and the broadcaster send through.
type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:     cfg.Token,
		Poller:    &tele.LongPoller{Timeout: timeout},
		ParseMode: tele.ModeHTML,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{bot: b, log: log}, nil
}

func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start runs the long-poll loop under the supervisor and stops telebot when
// the supervisor context ends. Telebot's Start() can exit unexpectedly in
// some failure modes, so it runs under a restart loop.
func (a *Adapter) Start(sup *supervisor.Supervisor) {
	sup.Go("telebot.stop_on_cancel", func(ctx context.Context) {
		<-ctx.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(ctx context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	})
}

var _ publish.Channel = (*Adapter)(nil)

// Deliver implements publish.Channel.
func (a *Adapter) Deliver(ctx context.Context, chatID int64, text string, att *publish.Attachment) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	chat := &tele.Chat{ID: chatID}

	var (
		msg *tele.Message
		err error
	)
	if att == nil {
		msg, err = a.bot.Send(chat, text)
	} else {
		msg, err = a.bot.Send(chat, media(att.FileID, att.Kind, text))
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Delete implements publish.Channel.
func (a *Adapter) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Delete(&tele.Message{ID: messageID, Chat: &tele.Chat{ID: chatID}})
}

// ChatAnchor implements publish.Channel: an HTML link to the chat,
// preferring the stored invite link over the public address.
func (a *Adapter) ChatAnchor(ctx context.Context, chatID int64, inviteLink string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return "", err
	}
	link := inviteLink
	if link == "" {
		link = publicChatLink(chat.ID, chat.Username)
	}
	return fmt.Sprintf("<a href=\"%s\">%s</a>", link, html.EscapeString(chat.Title)), nil
}

// publicChatLink builds a t.me address for a chat. Private channels use the
// /c/ form with the -100 prefix stripped from the id.
func publicChatLink(chatID int64, username string) string {
	if username != "" {
		return "https://t.me/" + username
	}
	s := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(s, "-100") {
		s = s[4:]
	}
	return "https://t.me/c/" + s
}

// ResolveChat looks a channel up by "@username" or its numeric id.
func (a *Adapter) ResolveChat(ident string) (*tele.Chat, error) {
	ident = strings.TrimSpace(ident)
	if strings.HasPrefix(ident, "@") {
		return a.bot.ChatByUsername(ident)
	}
	id, err := strconv.ParseInt(ident, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad chat identifier %q: %w", ident, err)
	}
	return a.bot.ChatByID(id)
}

// UserIsAdmin reports whether the user administers the chat.
func (a *Adapter) UserIsAdmin(userID, chatID int64) bool {
	admins, err := a.bot.AdminsOf(&tele.Chat{ID: chatID})
	if err != nil {
		return false
	}
	for _, m := range admins {
		if m.User != nil && m.User.ID == userID {
			return true
		}
	}
	return false
}

// BotCanPost reports whether the bot can post into the chat.
func (a *Adapter) BotCanPost(chatID int64) bool {
	me := a.bot.Me
	if me == nil {
		return false
	}
	m, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, me)
	if err != nil {
		return false
	}
	return m.Role == tele.Administrator || m.Role == tele.Creator || m.CanPostMessages
}

// CreateInviteLink asks Telegram for a fresh invite link to the chat.
func (a *Adapter) CreateInviteLink(chatID int64, name string) (string, error) {
	link, err := a.bot.CreateInviteLink(&tele.Chat{ID: chatID}, &tele.ChatInviteLink{Name: name})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// DeepLink builds the bot's t.me start link carrying a referral payload.
func (a *Adapter) DeepLink(payload string) string {
	me := a.bot.Me
	if me == nil || me.Username == "" {
		return ""
	}
	return "https://t.me/" + me.Username + "?start=" + payload
}

// Reachable probes whether the bot can still message the user.
func (a *Adapter) Reachable(userID int64) bool {
	return a.bot.Notify(&tele.User{ID: userID}, tele.Typing) == nil
}

var _ broadcast.Sender = (*Adapter)(nil)

// SendUser implements broadcast.Sender.
func (a *Adapter) SendUser(ctx context.Context, userID int64, c broadcast.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := &tele.User{ID: userID}
	if c.FileID != "" {
		_, err := a.bot.Send(to, media(c.FileID, c.FileKind, c.Caption))
		return err
	}
	_, err := a.bot.Send(to, c.Text)
	return err
}

// media maps an attachment kind onto the matching telebot sendable.
func media(fileID, kind, caption string) tele.Sendable {
	f := tele.File{FileID: fileID}
	switch kind {
	case state.KindPhoto:
		return &tele.Photo{File: f, Caption: caption}
	case state.KindVideo:
		return &tele.Video{File: f, Caption: caption}
	case state.KindAudio:
		return &tele.Audio{File: f, Caption: caption}
	case state.KindVoice:
		return &tele.Voice{File: f, Caption: caption}
	default:
		return &tele.Document{File: f, Caption: caption}
	}
}
