// Package bot routes decoded inbound events to the order and ticket
// engines. Every rejected action is answered with a short corrective
// message to the actor; only store failures are returned to the caller.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-store-bot/catalog"
	"telegram-store-bot/logging"
	"telegram-store-bot/metrics"
	"telegram-store-bot/notify"
	"telegram-store-bot/orders"
	"telegram-store-bot/tickets"
)

// Preferences persists a user's chosen language.
type Preferences interface {
	SetLanguage(ctx context.Context, userID int64, code string) error
}

type Config struct {
	Orders      *orders.Engine
	Tickets     *tickets.Engine
	Catalog     catalog.Catalog
	Notifier    notify.Notifier
	Preferences Preferences
	// Languages are the selectable locale codes, in menu order.
	Languages []string
	AdminID   int64
	Metrics   *metrics.Metrics
}

type Dispatcher struct {
	orders    *orders.Engine
	tickets   *tickets.Engine
	catalog   catalog.Catalog
	notes     notify.Guard
	prefs     Preferences
	languages []string
	adminID   int64
	metrics   *metrics.Metrics
}

func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		orders:    cfg.Orders,
		tickets:   cfg.Tickets,
		catalog:   cfg.Catalog,
		notes:     notify.Guard{Notifier: cfg.Notifier, AdminID: cfg.AdminID},
		prefs:     cfg.Preferences,
		languages: cfg.Languages,
		adminID:   cfg.AdminID,
		metrics:   cfg.Metrics,
	}
	if cfg.Metrics != nil {
		d.notes.Failed = func(k notify.Key) { cfg.Metrics.NotifyFailed(string(k)) }
	}
	return d
}

// Handle processes one event. Domain rejections are answered and
// swallowed; a non-nil error means the store failed and the event was
// not applied.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	start := time.Now()
	defer func() {
		d.metrics.Handled(ev.Name(), float64(time.Since(start).Microseconds())/1000)
	}()

	err := d.route(ctx, ev)
	if err == nil {
		return nil
	}
	logger := logging.FromContext(ctx)
	if key, ok := correction(err); ok {
		logger.Debug("action rejected", "event", ev.Name(), "actor", ev.Actor(), "reason", err)
		d.metrics.Rejected(string(key))
		d.reply(ctx, ev.Actor(), key, notify.Args{})
		return nil
	}
	logger.Error("event failed", "event", ev.Name(), "actor", ev.Actor(), "error", err)
	d.reply(ctx, ev.Actor(), notify.ErrInternal, notify.Args{})
	return fmt.Errorf("bot: %s: %w", ev.Name(), err)
}

func (d *Dispatcher) route(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case Start:
		return d.start(ctx, e)
	case ProductChosen:
		return d.productChosen(ctx, e)
	case OptionChosen:
		_, err := d.orders.PlaceOrder(ctx, e.UserID, e.Username, e.ProductName, e.Option, e.Price)
		return err
	case PaidClaim:
		_, err := d.orders.MarkAwaitingConfirmation(ctx, e.OrderID, e.UserID)
		return err
	case CancelRequested:
		_, err := d.orders.Cancel(ctx, e.OrderID, e.UserID)
		return err
	case AdminDecision:
		_, err := d.orders.ResolvePayment(ctx, e.OrderID, e.AdminID, e.Decision)
		return err
	case DeliveryRequested:
		return d.deliveryRequested(ctx, e)
	case DeliverySubmitted:
		_, err := d.orders.Deliver(ctx, e.OrderID, e.AdminID, e.Content)
		return err
	case ProblemReported:
		_, _, err := d.tickets.OpenTicket(ctx, e.UserID, e.Username)
		return err
	case FreeTextMessage:
		return d.freeText(ctx, e)
	case ReplyRequested:
		return d.replyRequested(ctx, e)
	case TicketReply:
		_, err := d.tickets.PostAdminReply(ctx, e.AdminID, e.TicketID, e.Text)
		return err
	case TicketClose:
		_, err := d.tickets.CloseTicket(ctx, e.TicketID, e.AdminID)
		return err
	case MyOrders:
		return d.myOrders(ctx, e)
	case PendingOverview:
		return d.pendingOverview(ctx, e)
	case OpenTickets:
		return d.openTickets(ctx, e)
	case LanguageMenu:
		return d.languageMenu(ctx, e)
	case LanguageChosen:
		return d.languageChosen(ctx, e)
	}
	return fmt.Errorf("unhandled event %T", ev)
}

func (d *Dispatcher) start(ctx context.Context, e Start) error {
	names, err := d.catalog.ProductNames(ctx)
	if err != nil {
		return err
	}
	d.notes.Send(ctx, notify.Notification{
		Recipient: e.UserID,
		Key:       notify.Welcome,
		Menu:      names,
		Actions:   []notify.Action{{Kind: notify.ReportProblem}},
	})
	return nil
}

func (d *Dispatcher) productChosen(ctx context.Context, e ProductChosen) error {
	product, ok, err := d.catalog.Product(ctx, e.ProductName)
	if err != nil {
		return err
	}
	if !ok {
		return orders.ErrInvalidProduct
	}
	actions := make([]notify.Action, 0, len(product.Options))
	for _, opt := range product.Options {
		actions = append(actions, notify.Action{
			Kind:     notify.ChooseOption,
			OptionID: opt.ID,
			Product:  product.Name,
			Option:   opt.Name,
			Price:    opt.Price.String(),
		})
	}
	d.notes.Send(ctx, notify.Notification{
		Recipient: e.UserID,
		Key:       notify.ProductOptions,
		Args:      notify.Args{Product: product.Name},
		Actions:   actions,
	})
	return nil
}

func (d *Dispatcher) deliveryRequested(ctx context.Context, e DeliveryRequested) error {
	if e.AdminID != d.adminID {
		return orders.ErrUnauthorized
	}
	o, err := d.orders.Get(ctx, e.OrderID)
	if err != nil {
		return err
	}
	if o.Status != orders.StatusPaid {
		return orders.ErrInvalidTransition
	}
	d.notes.Send(ctx, notify.Notification{
		Recipient: d.adminID,
		Key:       notify.AdminDeliveryPrompt,
		Args:      notify.Args{OrderID: o.ID, Product: o.ProductName, Option: o.Option},
		Prompt:    &notify.Prompt{Kind: notify.PromptDelivery, TargetID: o.ID},
	})
	return nil
}

func (d *Dispatcher) replyRequested(ctx context.Context, e ReplyRequested) error {
	if e.AdminID != d.adminID {
		return tickets.ErrUnauthorized
	}
	t, err := d.tickets.Get(ctx, e.TicketID)
	if err != nil {
		return err
	}
	if !t.IsOpen {
		return tickets.ErrTicketClosed
	}
	d.notes.Send(ctx, notify.Notification{
		Recipient: d.adminID,
		Key:       notify.AdminReplyPrompt,
		Args:      notify.Args{TicketID: t.ID, UserID: t.UserID, Username: t.Username},
		Prompt:    &notify.Prompt{Kind: notify.PromptTicketReply, TargetID: t.ID},
	})
	return nil
}

// freeText relays user text into their open ticket. Admin text that is
// not an answer to a prompt is never guessed into a ticket.
func (d *Dispatcher) freeText(ctx context.Context, e FreeTextMessage) error {
	if e.UserID == d.adminID {
		d.reply(ctx, e.UserID, notify.AdminPromptHint, notify.Args{})
		return nil
	}
	_, err := d.tickets.PostUserMessage(ctx, e.UserID, e.Text)
	if errors.Is(err, tickets.ErrNoOpenTicket) {
		d.notes.Send(ctx, notify.Notification{
			Recipient: e.UserID,
			Key:       notify.FreeTextHint,
			Actions:   []notify.Action{{Kind: notify.ReportProblem}},
		})
		return nil
	}
	return err
}

func (d *Dispatcher) myOrders(ctx context.Context, e MyOrders) error {
	list, err := d.orders.ListOrders(ctx, orders.Filter{UserID: e.UserID})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		d.reply(ctx, e.UserID, notify.NoOrders, notify.Args{})
		return nil
	}
	lines := make([]notify.OrderLine, 0, len(list))
	var actions []notify.Action
	for _, o := range list {
		lines = append(lines, notify.OrderLine{
			OrderID: o.ID,
			Product: o.ProductName,
			Option:  o.Option,
			Price:   o.Price.StringFixedBank(2),
			Status:  string(o.Status),
		})
		if o.Status == orders.StatusPending {
			actions = append(actions,
				notify.Action{Kind: notify.ClaimPaid, OrderID: o.ID},
				notify.Action{Kind: notify.CancelOrder, OrderID: o.ID})
		}
	}
	d.notes.Send(ctx, notify.Notification{
		Recipient: e.UserID,
		Key:       notify.OrderList,
		Args:      notify.Args{Lines: lines},
		Actions:   actions,
	})
	return nil
}

func (d *Dispatcher) pendingOverview(ctx context.Context, e PendingOverview) error {
	if e.AdminID != d.adminID {
		return orders.ErrUnauthorized
	}
	list, err := d.orders.ListOrders(ctx, orders.Filter{
		Statuses: []orders.Status{orders.StatusAwaitingConfirmation, orders.StatusPaid},
	})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		d.reply(ctx, d.adminID, notify.AdminNothingPending, notify.Args{})
		return nil
	}
	for _, o := range list {
		n := notify.Notification{
			Recipient: d.adminID,
			Key:       notify.AdminPendingOrder,
			Args: notify.Args{
				OrderID:  o.ID,
				UserID:   o.UserID,
				Username: o.Username,
				Product:  o.ProductName,
				Option:   o.Option,
				Price:    o.Price.StringFixedBank(2),
				Status:   string(o.Status),
			},
		}
		if o.Status == orders.StatusPaid {
			n.Actions = []notify.Action{{Kind: notify.DeliverOrder, OrderID: o.ID}}
		} else {
			n.Actions = []notify.Action{
				{Kind: notify.ConfirmOrder, OrderID: o.ID},
				{Kind: notify.RejectOrder, OrderID: o.ID},
			}
		}
		d.notes.Send(ctx, n)
	}
	return nil
}

func (d *Dispatcher) openTickets(ctx context.Context, e OpenTickets) error {
	if e.AdminID != d.adminID {
		return tickets.ErrUnauthorized
	}
	list, err := d.tickets.ListTickets(ctx, tickets.Filter{OpenOnly: true})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		d.reply(ctx, d.adminID, notify.AdminNoOpenTickets, notify.Args{})
		return nil
	}
	for _, t := range list {
		full, err := d.tickets.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		args := notify.Args{TicketID: t.ID, UserID: t.UserID, Username: t.Username}
		if n := len(full.Messages); n > 0 {
			args.Text = full.Messages[n-1].Text
		}
		d.notes.Send(ctx, notify.Notification{
			Recipient: d.adminID,
			Key:       notify.AdminOpenTicket,
			Args:      args,
			Actions: []notify.Action{
				{Kind: notify.ReplyTicket, TicketID: t.ID},
				{Kind: notify.CloseTicket, TicketID: t.ID},
			},
		})
	}
	return nil
}

func (d *Dispatcher) languageMenu(ctx context.Context, e LanguageMenu) error {
	actions := make([]notify.Action, 0, len(d.languages))
	for _, code := range d.languages {
		actions = append(actions, notify.Action{Kind: notify.SetLanguage, Language: code})
	}
	d.notes.Send(ctx, notify.Notification{Recipient: e.UserID, Key: notify.ChooseLanguage, Actions: actions})
	return nil
}

func (d *Dispatcher) languageChosen(ctx context.Context, e LanguageChosen) error {
	known := false
	for _, code := range d.languages {
		if code == e.Language {
			known = true
			break
		}
	}
	if !known {
		return d.languageMenu(ctx, LanguageMenu{UserID: e.UserID})
	}
	if err := d.prefs.SetLanguage(ctx, e.UserID, e.Language); err != nil {
		return err
	}
	d.reply(ctx, e.UserID, notify.LanguageChanged, notify.Args{Language: e.Language})
	return nil
}

func (d *Dispatcher) reply(ctx context.Context, to int64, key notify.Key, args notify.Args) {
	d.notes.Send(ctx, notify.Notification{Recipient: to, Key: key, Args: args})
}

// correction maps a domain rejection to the message that explains it.
func correction(err error) (notify.Key, bool) {
	switch {
	case errors.Is(err, orders.ErrInvalidProduct):
		return notify.ErrInvalidProduct, true
	case errors.Is(err, orders.ErrOrderNotFound):
		return notify.ErrOrderNotFound, true
	case errors.Is(err, orders.ErrInvalidTransition):
		return notify.ErrAlreadyProcessed, true
	case errors.Is(err, orders.ErrUnauthorized), errors.Is(err, tickets.ErrUnauthorized):
		return notify.ErrNotAllowed, true
	case errors.Is(err, orders.ErrEmptyContent), errors.Is(err, tickets.ErrEmptyMessage):
		return notify.ErrEmptyMessage, true
	case errors.Is(err, tickets.ErrNoOpenTicket):
		return notify.ErrNoOpenTicket, true
	case errors.Is(err, tickets.ErrTicketClosed):
		return notify.ErrTicketClosed, true
	case errors.Is(err, tickets.ErrTicketNotFound):
		return notify.ErrTicketNotFound, true
	}
	return "", false
}
