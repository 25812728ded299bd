package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-store-bot/locale"
	"telegram-store-bot/logging"
	"telegram-store-bot/notify"
)

// Notify renders n in the recipient's language and sends it. Prompts are
// sent as force-reply messages and remembered so the admin's answer can
// be routed back to their target.
func (b *Bot) Notify(ctx context.Context, n notify.Notification) error {
	loc := b.localeFor(ctx, n.Recipient)
	text, err := loc.Message(n.Key, n.Args)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.Recipient, text)
	switch {
	case n.Prompt != nil:
		msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}
	case len(n.Menu) > 0:
		msg.ReplyMarkup = b.menuKeyboard(loc, n.Menu, n.Actions)
	case len(n.Actions) > 0:
		if kb, ok := b.inlineKeyboard(ctx, loc, n.Actions); ok {
			msg.ReplyMarkup = kb
		}
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("telegram: send %s to %d: %w", n.Key, n.Recipient, err)
	}
	if n.Prompt != nil {
		if err := b.store.SavePrompt(ctx, n.Recipient, sent.MessageID, *n.Prompt); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) localeFor(ctx context.Context, userID int64) *locale.Locale {
	u, ok, err := b.store.User(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Warn("could not load user language", "user_id", userID, "error", err)
	}
	if !ok {
		return b.locales.Match("", "")
	}
	return b.locales.Match(u.Language, u.ClientLanguage)
}

func (b *Bot) label(loc *locale.Locale, a notify.Action) (string, error) {
	if a.Kind == notify.SetLanguage {
		if !b.locales.Has(a.Language) {
			return "", fmt.Errorf("telegram: unknown language %q", a.Language)
		}
		return b.locales.Get(a.Language).Name, nil
	}
	return loc.Button(a)
}

// inlineKeyboard lays out one button per row. Buttons that cannot be
// encoded are logged and left out; ok is false when none remain.
func (b *Bot) inlineKeyboard(ctx context.Context, loc *locale.Locale, actions []notify.Action) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range actions {
		data, err := EncodeAction(a)
		if err != nil {
			logging.FromContext(ctx).Warn("button dropped", "kind", string(a.Kind), "error", err)
			continue
		}
		text, err := b.label(loc, a)
		if err != nil {
			logging.FromContext(ctx).Warn("button dropped", "kind", string(a.Kind), "error", err)
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data)))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// menuKeyboard is the main reply keyboard: menu entries two per row,
// then one row per action label.
func (b *Bot) menuKeyboard(loc *locale.Locale, menu []string, actions []notify.Action) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(menu); i += 2 {
		row := tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menu[i]))
		if i+1 < len(menu) {
			row = append(row, tgbotapi.NewKeyboardButton(menu[i+1]))
		}
		rows = append(rows, row)
	}
	for _, a := range actions {
		if text, err := b.label(loc, a); err == nil {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(text)))
		}
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}
