package telegram

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"stagebot/internal/i18n"
	"stagebot/internal/state"
)

// Callback button templates. Registered once with matching uniques; per-post
// data is attached when a markup is built.
var (
	btnSetLang    = tele.Btn{Unique: "set_lang"}
	btnAddPub     = tele.Btn{Unique: "add_pub"}
	btnAddRev     = tele.Btn{Unique: "add_rev"}
	btnSettings   = tele.Btn{Unique: "settings"}
	btnResetAsk   = tele.Btn{Unique: "reset_ask"}
	btnPublishNow = tele.Btn{Unique: "pub_now"}
	btnRemovePost = tele.Btn{Unique: "rm_post"}
	btnResetYes   = tele.Btn{Unique: "reset_yes"}
	btnResetNo    = tele.Btn{Unique: "reset_no"}
	btnToggleAuto = tele.Btn{Unique: "toggle_auto"}
	btnToggleLink = tele.Btn{Unique: "toggle_link"}
	btnRefLink    = tele.Btn{Unique: "ref_link"}
	btnRefTop     = tele.Btn{Unique: "ref_top"}
	btnDonate     = tele.Btn{Unique: "donate"}
	btnBroadcast  = tele.Btn{Unique: "bc_start"}
	btnBcYes      = tele.Btn{Unique: "bc_yes"}
	btnBcNo       = tele.Btn{Unique: "bc_no"}
	btnReport     = tele.Btn{Unique: "report"}
)

func languageKeyboard() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(i18n.Langs))
	for _, lang := range i18n.Langs {
		rows = append(rows, m.Row(m.Data(i18n.T(lang, "language_name"), btnSetLang.Unique, lang)))
	}
	m.Inline(rows...)
	return m
}

// mainKeyboard is the persistent reply keyboard shown in the private chat.
func mainKeyboard(lang string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.Reply(
		m.Row(m.Text(i18n.T(lang, "btn_menu")), m.Text(i18n.T(lang, "btn_share"))),
		m.Row(m.Text(i18n.T(lang, "btn_language")), m.Text(i18n.T(lang, "btn_donate"))),
	)
	return m
}

// menuKeyboard is the inline channel/settings menu. Its rows depend on how
// far the user got through setup.
func menuKeyboard(u state.User) *tele.ReplyMarkup {
	lang := u.Language
	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	if u.PublishChannelID == 0 {
		rows = append(rows, m.Row(m.Data(i18n.T(lang, "btn_add_publish_channel"), btnAddPub.Unique)))
	} else if u.ReviewChannelID == 0 {
		rows = append(rows, m.Row(m.Data(i18n.T(lang, "btn_add_review_channel"), btnAddRev.Unique)))
	}
	if u.PublishChannelID != 0 && u.ReviewChannelID != 0 {
		rows = append(rows,
			m.Row(m.Data(fmt.Sprintf(i18n.T(lang, "btn_auto_publish"), onOff(lang, u.AutoPublish)), btnToggleAuto.Unique)),
			m.Row(m.Data(fmt.Sprintf(i18n.T(lang, "btn_hyperlink"), onOff(lang, u.HyperlinkOn)), btnToggleLink.Unique)),
		)
	}
	rows = append(rows,
		m.Row(m.Data(i18n.T(lang, "btn_settings"), btnSettings.Unique)),
		m.Row(m.Data(i18n.T(lang, "btn_reset_channels"), btnResetAsk.Unique)),
	)
	m.Inline(rows...)
	return m
}

func resetConfirmKeyboard(lang string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(
		m.Data(i18n.T(lang, "yes"), btnResetYes.Unique),
		m.Data(i18n.T(lang, "no"), btnResetNo.Unique),
	))
	return m
}

// reviewKeyboard carries the post key so the manual handlers can find the
// exact staged post.
func reviewKeyboard(lang, key string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(
		m.Data(i18n.T(lang, "btn_publish_now"), btnPublishNow.Unique, key),
		m.Data(i18n.T(lang, "btn_remove"), btnRemovePost.Unique, key),
	))
	return m
}

func shareKeyboard(lang string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data(i18n.T(lang, "btn_ref_link"), btnRefLink.Unique)),
		m.Row(m.Data(i18n.T(lang, "btn_top_referrers"), btnRefTop.Unique)),
	)
	return m
}

func donateKeyboard(lang string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(
		m.Data("⭐ 50", btnDonate.Unique, "50"),
		m.Data("⭐ 100", btnDonate.Unique, "100"),
		m.Data("⭐ 500", btnDonate.Unique, "500"),
	))
	return m
}

func adminKeyboard(lang string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data(i18n.T(lang, "btn_broadcast"), btnBroadcast.Unique)),
		m.Row(m.Data(i18n.T(lang, "btn_report"), btnReport.Unique)),
	)
	return m
}

func broadcastConfirmKeyboard(lang string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(
		m.Data(i18n.T(lang, "yes"), btnBcYes.Unique),
		m.Data(i18n.T(lang, "no"), btnBcNo.Unique),
	))
	return m
}

func onOff(lang string, v bool) string {
	if v {
		return i18n.T(lang, "state_on")
	}
	return i18n.T(lang, "state_off")
}
