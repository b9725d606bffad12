// Package i18n holds the static user-facing message catalog (ru/en/uz).
package i18n

import "fmt"

// DefaultLang is used when a user has no language set or a key is missing
// from their language's table.
const DefaultLang = "ru"

// Langs lists the supported language codes.
var Langs = []string{"ru", "en", "uz"}

// Known reports whether the code is a supported language.
func Known(lang string) bool {
	_, ok := tables[lang]
	return ok
}

// T resolves a message key for a language, falling back to the default
// language and finally to the key itself.
func T(lang, key string) string {
	if t, ok := tables[lang]; ok {
		if s, ok := t[key]; ok {
			return s
		}
	}
	if s, ok := tables[DefaultLang][key]; ok {
		return s
	}
	return key
}

// Tf is T plus Sprintf formatting.
func Tf(lang, key string, args ...any) string {
	return fmt.Sprintf(T(lang, key), args...)
}

var tables = map[string]map[string]string{
	"en": {
		"select_language":           "Choose a language:",
		"language_changed":          "Language set: %s",
		"language_name":             "English",
		"menu_appeared":             "The menu is ready — use the buttons below.",
		"add_channels":              "Add a publish channel and a review channel to start scheduling posts.",
		"btn_menu":                  "Menu",
		"btn_share":                 "Share bot",
		"btn_language":              "Language",
		"btn_donate":                "Donate",
		"btn_add_publish_channel":   "Add publish channel",
		"btn_add_review_channel":    "Add review channel",
		"btn_settings":              "Settings",
		"btn_reset_channels":        "Reset channels",
		"btn_auto_publish":          "Auto-publish: %s",
		"btn_hyperlink":             "Hyperlink: %s",
		"state_on":                  "ON",
		"state_off":                 "OFF",
		"settings":                  "Publish channel: %s\nReview channel: %s\nAuto-publish: %s\nHyperlink: %s",
		"channel_not_set":           "not set",
		"add_publish_channel_prompt": "Send the publish channel's @username or its -100… id.",
		"add_review_channel_prompt":  "Send the review channel's @username or its -100… id.",
		"confirm_reset_channels":    "Remove both channels from your settings?",
		"yes":                       "Yes",
		"no":                        "No",
		"channels_reset":            "Channels reset.",
		"reset_cancelled":           "Reset cancelled.",
		"auto_publish_toggled":      "Auto-publish updated",
		"hyperlink_toggled":         "Hyperlink updated",
		"channel_not_found":         "Channel not found. Check the @username or id.",
		"not_channel_admin":         "You must be an administrator of that channel.",
		"bot_cant_post_publish":     "Make the bot an administrator of the publish channel first.",
		"bot_cant_post_review":      "Make the bot an administrator of the review channel first.",
		"publish_channel_added":     "Publish channel added.",
		"publish_channel_added_no_link": "Publish channel added (no invite link, the bot could not create one).",
		"review_channel_added":      "Review channel added.",
		"channels_already_set":      "Both channels are already set. Reset them first to change.",
		"post_scheduled":            "Post staged for publication.",
		"draft_error":               "Could not stage the post. Check that both channels are set.",
		"btn_publish_now":           "Publish now",
		"btn_remove":                "Remove",
		"published_now":             "Published",
		"post_removed":              "Removed",
		"post_not_found":            "Already handled",
		"share_info":                "You invited %d user(s). Share your link to invite more.",
		"btn_ref_link":              "My invite link",
		"btn_top_referrers":         "Top inviters",
		"ref_link":                  "Your invite link:\n%s",
		"top_referrers":             "Top inviters:\n%s",
		"your_position":             "Your position: %d",
		"no_referrals":              "You have no invitations yet.",
		"user_fallback":             "User %d",
		"invitations":               "invitations",
		"donate_message":            "Support the bot with Telegram Stars:",
		"donate_invoice_title":      "Bot support",
		"donate_invoice_desc":       "Donation to keep the bot servers running",
		"donate_label":              "Donation",
		"donation_error":            "Could not create the invoice, try again later.",
		"donation_success":          "Thank you for the support!",
		"not_admin_cmd":             "This command is for administrators.",
		"admin_menu":                "Admin menu:",
		"btn_broadcast":             "Broadcast",
		"btn_report":                "Report",
		"broadcast_prompt":          "Send the message to broadcast to every user.",
		"broadcast_ready":           "Send this to every user?",
		"broadcast_started":         "Broadcast started.",
		"broadcast_done":            "Broadcast finished: %d delivered, %d failed.",
		"broadcast_cancelled":       "Broadcast cancelled.",
		"broadcast_error":           "Broadcast state lost, start again.",
		"report":                    "Users: %d\nReachable: %d\nBlocked: %d",
		"storage_error":             "Something went wrong saving your data. Try again.",
	},
	"ru": {
		"select_language":           "Выберите язык:",
		"language_changed":          "Язык установлен: %s",
		"language_name":             "Русский",
		"menu_appeared":             "Меню готово — используйте кнопки ниже.",
		"add_channels":              "Добавьте канал публикации и канал отложки, чтобы планировать посты.",
		"btn_menu":                  "Меню",
		"btn_share":                 "Поделиться ботом",
		"btn_language":              "Язык",
		"btn_donate":                "Поддержать",
		"btn_add_publish_channel":   "Добавить канал публикации",
		"btn_add_review_channel":    "Добавить канал отложки",
		"btn_settings":              "Настройки",
		"btn_reset_channels":        "Сбросить каналы",
		"btn_auto_publish":          "Автопубликация: %s",
		"btn_hyperlink":             "Гиперссылка: %s",
		"state_on":                  "ВКЛ",
		"state_off":                 "ВЫКЛ",
		"settings":                  "Канал публикации: %s\nКанал отложки: %s\nАвтопубликация: %s\nГиперссылка: %s",
		"channel_not_set":           "не задан",
		"add_publish_channel_prompt": "Отправьте @username канала публикации или его id вида -100…",
		"add_review_channel_prompt":  "Отправьте @username канала отложки или его id вида -100…",
		"confirm_reset_channels":    "Убрать оба канала из настроек?",
		"yes":                       "Да",
		"no":                        "Нет",
		"channels_reset":            "Каналы сброшены.",
		"reset_cancelled":           "Сброс отменён.",
		"auto_publish_toggled":      "Автопубликация обновлена",
		"hyperlink_toggled":         "Гиперссылка обновлена",
		"channel_not_found":         "Канал не найден. Проверьте @username или id.",
		"not_channel_admin":         "Вы должны быть администратором этого канала.",
		"bot_cant_post_publish":     "Сначала сделайте бота администратором канала публикации.",
		"bot_cant_post_review":      "Сначала сделайте бота администратором канала отложки.",
		"publish_channel_added":     "Канал публикации добавлен.",
		"publish_channel_added_no_link": "Канал публикации добавлен (без инвайт-ссылки: бот не смог её создать).",
		"review_channel_added":      "Канал отложки добавлен.",
		"channels_already_set":      "Оба канала уже заданы. Сначала сбросьте их.",
		"post_scheduled":            "Пост поставлен в очередь на публикацию.",
		"draft_error":               "Не удалось отложить пост. Проверьте, что оба канала заданы.",
		"btn_publish_now":           "Опубликовать сейчас",
		"btn_remove":                "Удалить",
		"published_now":             "Опубликовано",
		"post_removed":              "Удалено",
		"post_not_found":            "Уже обработано",
		"share_info":                "Вы пригласили %d пользователей. Поделитесь ссылкой, чтобы пригласить ещё.",
		"btn_ref_link":              "Моя ссылка-приглашение",
		"btn_top_referrers":         "Топ приглашающих",
		"ref_link":                  "Ваша ссылка-приглашение:\n%s",
		"top_referrers":             "Топ приглашающих:\n%s",
		"your_position":             "Ваше место: %d",
		"no_referrals":              "У вас пока нет приглашений.",
		"user_fallback":             "Пользователь %d",
		"invitations":               "приглашений",
		"donate_message":            "Поддержите бота с помощью Telegram Stars:",
		"donate_invoice_title":      "Поддержка бота",
		"donate_invoice_desc":       "Пожертвование на серверы бота",
		"donate_label":              "Пожертвование",
		"donation_error":            "Не удалось создать счёт, попробуйте позже.",
		"donation_success":          "Спасибо за поддержку!",
		"not_admin_cmd":             "Эта команда только для администраторов.",
		"admin_menu":                "Меню администратора:",
		"btn_broadcast":             "Рассылка",
		"btn_report":                "Отчёт",
		"broadcast_prompt":          "Отправьте сообщение для рассылки всем пользователям.",
		"broadcast_ready":           "Отправить это всем пользователям?",
		"broadcast_started":         "Рассылка запущена.",
		"broadcast_done":            "Рассылка завершена: доставлено %d, ошибок %d.",
		"broadcast_cancelled":       "Рассылка отменена.",
		"broadcast_error":           "Состояние рассылки потеряно, начните заново.",
		"report":                    "Пользователей: %d\nДоступно: %d\nЗаблокировали: %d",
		"storage_error":             "Не удалось сохранить данные. Попробуйте ещё раз.",
	},
	"uz": {
		"select_language":           "Tilni tanlang:",
		"language_changed":          "Til o'rnatildi: %s",
		"language_name":             "O'zbek",
		"menu_appeared":             "Menyu tayyor — quyidagi tugmalardan foydalaning.",
		"add_channels":              "Postlarni rejalashtirish uchun nashr kanali va ko'rik kanalini qo'shing.",
		"btn_menu":                  "Menyu",
		"btn_share":                 "Botni ulashish",
		"btn_language":              "Til",
		"btn_donate":                "Qo'llab-quvvatlash",
		"btn_add_publish_channel":   "Nashr kanalini qo'shish",
		"btn_add_review_channel":    "Ko'rik kanalini qo'shish",
		"btn_settings":              "Sozlamalar",
		"btn_reset_channels":        "Kanallarni tiklash",
		"btn_auto_publish":          "Avto-nashr: %s",
		"btn_hyperlink":             "Giperhavola: %s",
		"state_on":                  "YONIQ",
		"state_off":                 "O'CHIQ",
		"settings":                  "Nashr kanali: %s\nKo'rik kanali: %s\nAvto-nashr: %s\nGiperhavola: %s",
		"channel_not_set":           "o'rnatilmagan",
		"add_publish_channel_prompt": "Nashr kanalining @username yoki -100… ko'rinishidagi id sini yuboring.",
		"add_review_channel_prompt":  "Ko'rik kanalining @username yoki -100… ko'rinishidagi id sini yuboring.",
		"confirm_reset_channels":    "Ikkala kanalni sozlamalardan olib tashlaysizmi?",
		"yes":                       "Ha",
		"no":                        "Yo'q",
		"channels_reset":            "Kanallar tiklandi.",
		"reset_cancelled":           "Tiklash bekor qilindi.",
		"auto_publish_toggled":      "Avto-nashr yangilandi",
		"hyperlink_toggled":         "Giperhavola yangilandi",
		"channel_not_found":         "Kanal topilmadi. @username yoki id ni tekshiring.",
		"not_channel_admin":         "Bu kanal administratori bo'lishingiz kerak.",
		"bot_cant_post_publish":     "Avval botni nashr kanali administratori qiling.",
		"bot_cant_post_review":      "Avval botni ko'rik kanali administratori qiling.",
		"publish_channel_added":     "Nashr kanali qo'shildi.",
		"publish_channel_added_no_link": "Nashr kanali qo'shildi (taklif havolasisiz: bot uni yarata olmadi).",
		"review_channel_added":      "Ko'rik kanali qo'shildi.",
		"channels_already_set":      "Ikkala kanal allaqachon o'rnatilgan. Avval ularni tiklang.",
		"post_scheduled":            "Post nashr navbatiga qo'yildi.",
		"draft_error":               "Postni kechiktirib bo'lmadi. Ikkala kanal o'rnatilganini tekshiring.",
		"btn_publish_now":           "Hozir nashr qilish",
		"btn_remove":                "O'chirish",
		"published_now":             "Nashr qilindi",
		"post_removed":              "O'chirildi",
		"post_not_found":            "Allaqachon bajarilgan",
		"share_info":                "Siz %d foydalanuvchini taklif qildingiz. Ko'proq taklif qilish uchun havolani ulashing.",
		"btn_ref_link":              "Mening taklif havolam",
		"btn_top_referrers":         "Eng faol taklifchilar",
		"ref_link":                  "Sizning taklif havolangiz:\n%s",
		"top_referrers":             "Eng faol taklifchilar:\n%s",
		"your_position":             "Sizning o'rningiz: %d",
		"no_referrals":              "Sizda hali takliflar yo'q.",
		"user_fallback":             "Foydalanuvchi %d",
		"invitations":               "takliflar",
		"donate_message":            "Botni Telegram Stars bilan qo'llab-quvvatlang:",
		"donate_invoice_title":      "Botni qo'llab-quvvatlash",
		"donate_invoice_desc":       "Bot serverlari uchun xayriya",
		"donate_label":              "Xayriya",
		"donation_error":            "Hisob yaratib bo'lmadi, keyinroq urinib ko'ring.",
		"donation_success":          "Qo'llab-quvvatlaganingiz uchun rahmat!",
		"not_admin_cmd":             "Bu buyruq faqat administratorlar uchun.",
		"admin_menu":                "Administrator menyusi:",
		"btn_broadcast":             "Xabar tarqatish",
		"btn_report":                "Hisobot",
		"broadcast_prompt":          "Barcha foydalanuvchilarga tarqatiladigan xabarni yuboring.",
		"broadcast_ready":           "Buni barcha foydalanuvchilarga yuborasizmi?",
		"broadcast_started":         "Tarqatish boshlandi.",
		"broadcast_done":            "Tarqatish tugadi: %d yetkazildi, %d xato.",
		"broadcast_cancelled":       "Tarqatish bekor qilindi.",
		"broadcast_error":           "Tarqatish holati yo'qoldi, qaytadan boshlang.",
		"report":                    "Foydalanuvchilar: %d\nYetkazish mumkin: %d\nBloklagan: %d",
		"storage_error":             "Ma'lumotlarni saqlab bo'lmadi. Qaytadan urinib ko'ring.",
	},
}
