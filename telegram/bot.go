// Package telegram is the Telegram transport: it long-polls updates,
// decodes them into bot events and renders notification intents as
// localized messages with keyboards.
package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-store-bot/bot"
	"telegram-store-bot/catalog"
	"telegram-store-bot/locale"
	"telegram-store-bot/logging"
	"telegram-store-bot/notify"
	"telegram-store-bot/store"
)

// Client is the part of *tgbotapi.BotAPI the bot uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Store holds users and admin prompts.
type Store interface {
	TouchUser(ctx context.Context, id int64, username, clientLanguage string) error
	User(ctx context.Context, id int64) (store.User, bool, error)
	SavePrompt(ctx context.Context, chatID int64, messageID int, p notify.Prompt) error
	Prompt(ctx context.Context, chatID int64, messageID int) (notify.Prompt, bool, error)
}

// Handler consumes decoded events.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) error
}

type Config struct {
	Client  Client
	Store   Store
	Catalog catalog.Catalog
	Locales *locale.Bundle
	AdminID int64
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	Logger      *slog.Logger
}

type Bot struct {
	api         Client
	store       Store
	catalog     catalog.Catalog
	locales     *locale.Bundle
	adminID     int64
	pollTimeout int
	logger      *slog.Logger

	// keyboard maps reply-keyboard labels in every locale to the action
	// they stand for.
	keyboard map[string]notify.ActionKind
}

func New(cfg Config) (*Bot, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		api:         cfg.Client,
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		locales:     cfg.Locales,
		adminID:     cfg.AdminID,
		pollTimeout: cfg.PollTimeout,
		logger:      logger,
		keyboard:    make(map[string]notify.ActionKind),
	}
	for _, l := range cfg.Locales.Locales() {
		label, err := l.Button(notify.Action{Kind: notify.ReportProblem})
		if err != nil {
			return nil, err
		}
		b.keyboard[label] = notify.ReportProblem
	}
	return b, nil
}

// Run polls for updates and hands each one to h, one at a time, until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, h, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, h Handler, u tgbotapi.Update) {
	from := sender(u)
	if from == nil || from.IsBot {
		return
	}
	logger := b.logger.With("event_id", logging.NewEventID(), "update_id", u.UpdateID, "user_id", from.ID)
	ctx = logging.WithLogger(ctx, logger)

	if err := b.store.TouchUser(ctx, from.ID, from.UserName, from.LanguageCode); err != nil {
		logger.Error("could not record user", "error", err)
	}
	if cq := u.CallbackQuery; cq != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			logger.Warn("could not answer callback", "error", err)
		}
	}

	ev, err := b.decode(ctx, u)
	if err != nil {
		logger.Warn("could not decode update", "error", err)
		return
	}
	if ev == nil {
		return
	}
	logger.Debug("event decoded", "event", ev.Name())
	if err := h.Handle(ctx, ev); err != nil {
		logger.Error("event not applied", "event", ev.Name(), "error", err)
	}
}
