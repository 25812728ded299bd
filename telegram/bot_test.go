package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-store-bot/bot"
	"telegram-store-bot/catalog"
	"telegram-store-bot/locale"
	"telegram-store-bot/logging"
	"telegram-store-bot/notify"
	"telegram-store-bot/orders"
	"telegram-store-bot/store"
	"telegram-store-bot/tickets"
)

const (
	adminID = int64(1)
	buyerID = int64(42)
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	nextID   int
	fail     bool
}

func (c *fakeClient) Send(m tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	c.sent = append(c.sent, m)
	c.nextID++
	return tgbotapi.Message{MessageID: c.nextID}, nil
}

func (c *fakeClient) Request(m tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, m)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (c *fakeClient) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.updates
}

func (c *fakeClient) StopReceivingUpdates() {}

func (c *fakeClient) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	msg, ok := c.sent[len(c.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	return msg
}

type handlerFunc func(ctx context.Context, ev bot.Event) error

func (f handlerFunc) Handle(ctx context.Context, ev bot.Event) error { return f(ctx, ev) }

func newBot(t *testing.T) (*Bot, *fakeClient, *store.SQLite) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "telegram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	products, err := catalog.Parse([]byte(`{"VPN": {"1 month": "5"}}`))
	require.NoError(t, err)
	_, err = s.SeedCatalog(context.Background(), products)
	require.NoError(t, err)

	bundle, err := locale.Load("en")
	require.NoError(t, err)

	client := &fakeClient{updates: make(chan tgbotapi.Update, 8)}
	b, err := New(Config{
		Client:      client,
		Store:       s,
		Catalog:     s,
		Locales:     bundle,
		AdminID:     adminID,
		PollTimeout: 60,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	return b, client, s
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from, UserName: "buyer"},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}
}

func command(from int64, cmd string) *tgbotapi.Message {
	m := textMessage(from, "/"+cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return m
}

func TestDecodeCommands(t *testing.T) {
	b, _, _ := newBot(t)
	ctx := context.Background()

	cases := map[string]bot.Event{
		"start":    bot.Start{UserID: buyerID, Username: "buyer"},
		"orders":   bot.MyOrders{UserID: buyerID},
		"pending":  bot.PendingOverview{AdminID: buyerID},
		"tickets":  bot.OpenTickets{AdminID: buyerID},
		"language": bot.LanguageMenu{UserID: buyerID},
		"support":  bot.ProblemReported{UserID: buyerID, Username: "buyer"},
		"help":     bot.Start{UserID: buyerID, Username: "buyer"},
	}
	for cmd, want := range cases {
		ev, err := b.decode(ctx, tgbotapi.Update{Message: command(buyerID, cmd)})
		require.NoError(t, err, cmd)
		assert.Equal(t, want, ev, cmd)
	}
}

func TestDecodeText(t *testing.T) {
	b, _, _ := newBot(t)
	ctx := context.Background()

	ev, err := b.decode(ctx, tgbotapi.Update{Message: textMessage(buyerID, "VPN")})
	require.NoError(t, err)
	assert.Equal(t, bot.ProductChosen{UserID: buyerID, ProductName: "VPN"}, ev)

	ev, err = b.decode(ctx, tgbotapi.Update{Message: textMessage(buyerID, " it does not connect ")})
	require.NoError(t, err)
	assert.Equal(t, bot.FreeTextMessage{UserID: buyerID, Text: "it does not connect"}, ev)

	ev, err = b.decode(ctx, tgbotapi.Update{Message: textMessage(buyerID, "🆘 Report a problem")})
	require.NoError(t, err)
	assert.Equal(t, bot.ProblemReported{UserID: buyerID, Username: "buyer"}, ev)

	ev, err = b.decode(ctx, tgbotapi.Update{Message: textMessage(buyerID, "")})
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodePromptReplies(t *testing.T) {
	b, _, s := newBot(t)
	ctx := context.Background()
	require.NoError(t, s.SavePrompt(ctx, adminID, 77, notify.Prompt{Kind: notify.PromptDelivery, TargetID: 3}))
	require.NoError(t, s.SavePrompt(ctx, adminID, 78, notify.Prompt{Kind: notify.PromptTicketReply, TargetID: 5}))

	reply := func(to int, text string) *tgbotapi.Message {
		m := textMessage(adminID, text)
		m.ReplyToMessage = &tgbotapi.Message{MessageID: to}
		return m
	}

	ev, err := b.decode(ctx, tgbotapi.Update{Message: reply(77, "KEY-1")})
	require.NoError(t, err)
	assert.Equal(t, bot.DeliverySubmitted{AdminID: adminID, OrderID: 3, Content: "KEY-1"}, ev)

	ev, err = b.decode(ctx, tgbotapi.Update{Message: reply(78, "fixed")})
	require.NoError(t, err)
	assert.Equal(t, bot.TicketReply{AdminID: adminID, TicketID: 5, Text: "fixed"}, ev)

	// a reply to anything else is plain text
	ev, err = b.decode(ctx, tgbotapi.Update{Message: reply(79, "hello")})
	require.NoError(t, err)
	assert.Equal(t, bot.FreeTextMessage{UserID: adminID, Text: "hello"}, ev)
}

func TestDecodeCallbacks(t *testing.T) {
	b, _, s := newBot(t)
	ctx := context.Background()
	callback := func(data string) tgbotapi.Update {
		return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: buyerID, UserName: "buyer"},
			Data: data,
		}}
	}

	vpn, ok, err := s.Product(ctx, "VPN")
	require.NoError(t, err)
	require.True(t, ok)
	optionID := vpn.Options[0].ID

	ev, err := b.decode(ctx, callback(fmt.Sprintf("option:%d|5", optionID)))
	require.NoError(t, err)
	assert.Equal(t, bot.OptionChosen{
		UserID: buyerID, Username: "buyer", ProductName: "VPN", Option: "1 month", Price: decimal.RequireFromString("5"),
	}, ev)

	// an option that no longer exists decodes without names
	ev, err = b.decode(ctx, callback("option:999|5"))
	require.NoError(t, err)
	assert.Equal(t, bot.OptionChosen{UserID: buyerID, Username: "buyer", Price: decimal.RequireFromString("5")}, ev)

	ev, err = b.decode(ctx, callback("reject:8"))
	require.NoError(t, err)
	assert.Equal(t, bot.AdminDecision{AdminID: buyerID, OrderID: 8, Decision: "reject"}, ev)

	_, err = b.decode(ctx, callback(fmt.Sprintf("option:%d|five", optionID)))
	assert.ErrorIs(t, err, ErrBadCallback)
}

func TestNotifyRendersKeyboards(t *testing.T) {
	b, client, s := newBot(t)
	ctx := context.Background()
	require.NoError(t, s.TouchUser(ctx, buyerID, "buyer", "en"))

	err := b.Notify(ctx, notify.Notification{
		Recipient: buyerID,
		Key:       notify.ProductOptions,
		Args:      notify.Args{Product: "VPN"},
		Actions: []notify.Action{
			{Kind: notify.ChooseOption, OptionID: 3, Product: "VPN", Option: "1 month", Price: "5"},
			{Kind: notify.ChooseOption, OptionID: 4, Product: "VPN", Option: "1 year", Price: strings.Repeat("9", 70)},
		},
	})
	require.NoError(t, err)

	msg := client.lastMessage(t)
	assert.Equal(t, buyerID, msg.ChatID)
	assert.Contains(t, msg.Text, "VPN")
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	button := kb.InlineKeyboard[0][0]
	assert.Equal(t, "1 month - $5", button.Text)
	require.NotNil(t, button.CallbackData)
	assert.Equal(t, "option:3|5", *button.CallbackData)

	require.NoError(t, b.Notify(ctx, notify.Notification{
		Recipient: buyerID,
		Key:       notify.Welcome,
		Menu:      []string{"VPN", "Proxy", "Netflix"},
		Actions:   []notify.Action{{Kind: notify.ReportProblem}},
	}))
	menu, ok := client.lastMessage(t).ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, menu.Keyboard, 3)
	assert.Len(t, menu.Keyboard[0], 2)
	assert.Equal(t, "🆘 Report a problem", menu.Keyboard[2][0].Text)
}

func TestBuyLongCyrillicOptionFromButton(t *testing.T) {
	b, client, s := newBot(t)
	ctx := context.Background()
	products, err := catalog.Parse([]byte(`{"Подписка Netflix Премиум": {"12 месяцев": "40"}}`))
	require.NoError(t, err)
	_, err = s.SeedCatalog(ctx, products)
	require.NoError(t, err)
	require.NoError(t, s.TouchUser(ctx, buyerID, "buyer", "ru"))

	d := bot.New(bot.Config{
		Orders:      orders.NewEngine(s, s, b, adminID),
		Tickets:     tickets.NewEngine(s, b, adminID),
		Catalog:     s,
		Notifier:    b,
		Preferences: s,
		Languages:   []string{"en", "ru"},
		AdminID:     adminID,
	})
	require.NoError(t, d.Handle(ctx, bot.ProductChosen{UserID: buyerID, ProductName: "Подписка Netflix Премиум"}))

	kb, ok := client.lastMessage(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	data := kb.InlineKeyboard[0][0].CallbackData
	require.NotNil(t, data)
	assert.LessOrEqual(t, len(*data), maxCallbackData)

	ev, err := b.decode(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", From: &tgbotapi.User{ID: buyerID, UserName: "buyer"}, Data: *data,
	}})
	require.NoError(t, err)
	require.NoError(t, d.Handle(ctx, ev))

	placed, err := s.ListOrders(ctx, orders.Filter{UserID: buyerID})
	require.NoError(t, err)
	require.Len(t, placed, 1)
	assert.Equal(t, "Подписка Netflix Премиум", placed[0].ProductName)
	assert.Equal(t, "12 месяцев", placed[0].Option)
	assert.Equal(t, orders.StatusPending, placed[0].Status)
}

func TestStaleOptionButtonIsRejected(t *testing.T) {
	b, client, s := newBot(t)
	ctx := context.Background()
	vpn, ok, err := s.Product(ctx, "VPN")
	require.NoError(t, err)
	require.True(t, ok)

	d := bot.New(bot.Config{
		Orders:   orders.NewEngine(s, s, b, adminID),
		Tickets:  tickets.NewEngine(s, b, adminID),
		Catalog:  s,
		Notifier: b,
		AdminID:  adminID,
	})
	press := func(data string) {
		ev, err := b.decode(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID: "cb", From: &tgbotapi.User{ID: buyerID}, Data: data,
		}})
		require.NoError(t, err)
		require.NoError(t, d.Handle(ctx, ev))
	}

	want, err := b.locales.Get("en").Message(notify.ErrInvalidProduct, notify.Args{})
	require.NoError(t, err)

	press(fmt.Sprintf("option:%d|4", vpn.Options[0].ID))
	assert.Equal(t, want, client.lastMessage(t).Text)

	_, err = s.RemoveProduct(ctx, "VPN")
	require.NoError(t, err)
	press(fmt.Sprintf("option:%d|5", vpn.Options[0].ID))
	assert.Equal(t, want, client.lastMessage(t).Text)

	placed, err := s.ListOrders(ctx, orders.Filter{UserID: buyerID})
	require.NoError(t, err)
	assert.Empty(t, placed)
}

func TestNotifyUsesChosenLanguage(t *testing.T) {
	b, client, s := newBot(t)
	ctx := context.Background()
	require.NoError(t, s.TouchUser(ctx, buyerID, "buyer", "en"))
	require.NoError(t, s.SetLanguage(ctx, buyerID, "ru"))

	require.NoError(t, b.Notify(ctx, notify.Notification{Recipient: buyerID, Key: notify.Welcome}))
	bundle, err := locale.Load("en")
	require.NoError(t, err)
	want, err := bundle.Get("ru").Message(notify.Welcome, notify.Args{})
	require.NoError(t, err)
	assert.Equal(t, want, client.lastMessage(t).Text)
}

func TestNotifyPromptIsRemembered(t *testing.T) {
	b, client, s := newBot(t)
	ctx := context.Background()

	require.NoError(t, b.Notify(ctx, notify.Notification{
		Recipient: adminID,
		Key:       notify.AdminDeliveryPrompt,
		Args:      notify.Args{OrderID: 3, Product: "VPN", Option: "1 month"},
		Prompt:    &notify.Prompt{Kind: notify.PromptDelivery, TargetID: 3},
	}))
	msg := client.lastMessage(t)
	_, ok := msg.ReplyMarkup.(tgbotapi.ForceReply)
	assert.True(t, ok)

	p, ok, err := s.Prompt(ctx, adminID, client.nextID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, notify.Prompt{Kind: notify.PromptDelivery, TargetID: 3}, p)
}

func TestNotifyReturnsSendErrors(t *testing.T) {
	b, client, _ := newBot(t)
	client.fail = true
	err := b.Notify(context.Background(), notify.Notification{Recipient: buyerID, Key: notify.Welcome})
	assert.Error(t, err)
}

func TestRunHandlesUpdatesUntilCancelled(t *testing.T) {
	b, client, s := newBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []bot.Event
	h := handlerFunc(func(_ context.Context, ev bot.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	m := command(buyerID, "start")
	m.From.LanguageCode = "ru"
	client.updates <- tgbotapi.Update{UpdateID: 1, Message: m}
	client.updates <- tgbotapi.Update{UpdateID: 2, CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb-1", From: &tgbotapi.User{ID: buyerID, LanguageCode: "ru"}, Data: "paid:4",
	}}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, h) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, bot.PaidClaim{UserID: buyerID, OrderID: 4}, got[1])
	assert.Len(t, client.requests, 1)

	u, ok, err := s.User(context.Background(), buyerID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ru", u.ClientLanguage)
}
