package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"telegram-store-bot/logging"
	"telegram-store-bot/metrics"
	"telegram-store-bot/notify"
)

type Engine struct {
	store   Store
	notes   notify.Guard
	adminID int64
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
		e.notes.Failed = func(k notify.Key) { m.NotifyFailed(string(k)) }
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, notifier notify.Notifier, adminID int64, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		notes:   notify.Guard{Notifier: notifier, AdminID: adminID},
		adminID: adminID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenTicket opens a ticket for the user. If one is already open it is
// returned with alreadyOpen set and nothing new is created.
func (e *Engine) OpenTicket(ctx context.Context, userID int64, username string) (Ticket, bool, error) {
	t, created, err := e.store.OpenTicket(ctx, userID, strings.TrimPrefix(username, "@"), e.now().UTC())
	if err != nil {
		return Ticket{}, false, err
	}
	args := ticketArgs(t)
	if !created {
		e.notes.Send(ctx, notify.Notification{Recipient: userID, Key: notify.TicketAlreadyOpen, Args: args})
		return t, true, nil
	}

	e.metrics.Ticket("opened")
	logging.FromContext(ctx).Info("ticket opened", "ticket_id", t.ID, "user_id", userID)
	e.notes.Send(ctx, notify.Notification{Recipient: userID, Key: notify.TicketOpened, Args: args})
	e.notes.Send(ctx, notify.Notification{
		Recipient: e.adminID,
		Key:       notify.AdminTicketOpened,
		Args:      args,
		Actions:   ticketActions(t.ID),
	})
	return t, false, nil
}

// PostUserMessage appends text to the user's open ticket and relays it to
// the admin tagged with the ticket id.
func (e *Engine) PostUserMessage(ctx context.Context, userID int64, text string) (Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, ErrEmptyMessage
	}
	t, err := e.store.OpenTicketFor(ctx, userID)
	if err != nil {
		return Ticket{}, err
	}
	t, err = e.store.AppendMessage(ctx, t.ID, Message{Sender: SenderUser, Text: text, Timestamp: e.now().UTC()})
	if err != nil {
		return Ticket{}, err
	}

	e.metrics.Ticket("user_message")
	args := ticketArgs(t)
	args.Text = text
	e.notes.Send(ctx, notify.Notification{
		Recipient: e.adminID,
		Key:       notify.AdminTicketMessage,
		Args:      args,
		Actions:   ticketActions(t.ID),
	})
	e.notes.Send(ctx, notify.Notification{Recipient: userID, Key: notify.TicketMessageSent, Args: ticketArgs(t)})
	return t, nil
}

// PostAdminReply appends the admin's answer to an open ticket and relays
// it to the ticket's owner.
func (e *Engine) PostAdminReply(ctx context.Context, adminID, ticketID int64, text string) (Ticket, error) {
	if adminID != e.adminID {
		return Ticket{}, fmt.Errorf("%w: %d is not the admin", ErrUnauthorized, adminID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, ErrEmptyMessage
	}
	t, err := e.store.AppendMessage(ctx, ticketID, Message{Sender: SenderAdmin, Text: text, Timestamp: e.now().UTC()})
	if err != nil {
		return Ticket{}, err
	}

	e.metrics.Ticket("admin_reply")
	args := ticketArgs(t)
	args.Text = text
	if err := e.notes.Send(ctx, notify.Notification{
		Recipient: t.UserID,
		Key:       notify.TicketReply,
		Args:      args,
	}); err == nil {
		e.notes.Send(ctx, notify.Notification{Recipient: e.adminID, Key: notify.AdminReplySent, Args: ticketArgs(t)})
	}
	return t, nil
}

// CloseTicket closes the ticket and tells its owner. Closing a closed
// ticket does nothing and is not an error.
func (e *Engine) CloseTicket(ctx context.Context, ticketID, adminID int64) (Ticket, error) {
	if adminID != e.adminID {
		return Ticket{}, fmt.Errorf("%w: %d is not the admin", ErrUnauthorized, adminID)
	}
	t, closed, err := e.store.CloseTicket(ctx, ticketID, e.now().UTC())
	if err != nil {
		return Ticket{}, err
	}
	if !closed {
		return t, nil
	}

	e.metrics.Ticket("closed")
	logging.FromContext(ctx).Info("ticket closed", "ticket_id", t.ID, "user_id", t.UserID)
	args := ticketArgs(t)
	e.notes.Send(ctx, notify.Notification{Recipient: t.UserID, Key: notify.TicketClosed, Args: args})
	e.notes.Send(ctx, notify.Notification{Recipient: e.adminID, Key: notify.AdminTicketClosed, Args: args})
	return t, nil
}

// Get returns a ticket with its messages.
func (e *Engine) Get(ctx context.Context, ticketID int64) (Ticket, error) {
	return e.store.GetTicket(ctx, ticketID)
}

func (e *Engine) ListTickets(ctx context.Context, f Filter) ([]Ticket, error) {
	return e.store.ListTickets(ctx, f)
}

func ticketActions(id int64) []notify.Action {
	return []notify.Action{
		{Kind: notify.ReplyTicket, TicketID: id},
		{Kind: notify.CloseTicket, TicketID: id},
	}
}

func ticketArgs(t Ticket) notify.Args {
	return notify.Args{TicketID: t.ID, UserID: t.UserID, Username: t.Username}
}
