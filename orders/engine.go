package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-store-bot/catalog"
	"telegram-store-bot/logging"
	"telegram-store-bot/metrics"
	"telegram-store-bot/notify"
)

// Decision is the admin's verdict on a payment claim.
type Decision string

const (
	Confirm Decision = "confirm"
	Reject  Decision = "reject"
)

// Engine applies order transitions against the Store and emits the
// resulting notifications. It keeps no order state of its own.
type Engine struct {
	store        Store
	catalog      catalog.Catalog
	notes        notify.Guard
	adminID      int64
	instructions string
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Engine)

// WithPaymentInstructions sets the text shown to the buyer after an order
// is placed, e.g. where to send the money.
func WithPaymentInstructions(s string) Option {
	return func(e *Engine) { e.instructions = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
		e.notes.Failed = func(k notify.Key) { m.NotifyFailed(string(k)) }
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, cat catalog.Catalog, notifier notify.Notifier, adminID int64, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: cat,
		notes:   notify.Guard{Notifier: notifier, AdminID: adminID},
		adminID: adminID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceOrder creates a pending order for the given catalog option. The
// option must exist at call time with exactly this price; a stale button
// from an older catalog yields ErrInvalidProduct.
func (e *Engine) PlaceOrder(ctx context.Context, userID int64, username, productName, option string, price decimal.Decimal) (Order, error) {
	product, ok, err := e.catalog.Product(ctx, productName)
	if err != nil {
		return Order{}, fmt.Errorf("orders: catalog lookup %q: %w", productName, err)
	}
	if !ok {
		return Order{}, fmt.Errorf("%w: product %q", ErrInvalidProduct, productName)
	}
	opt, ok := product.Option(option)
	if !ok {
		return Order{}, fmt.Errorf("%w: option %q of %q", ErrInvalidProduct, option, productName)
	}
	if !opt.Price.Equal(price) {
		return Order{}, fmt.Errorf("%w: price of %q/%q is %s, not %s", ErrInvalidProduct, productName, option, opt.Price, price)
	}

	now := e.now().UTC()
	order, err := e.store.AppendOrder(ctx, Order{
		UserID:      userID,
		Username:    strings.TrimPrefix(username, "@"),
		ProductName: product.Name,
		Option:      opt.Name,
		Price:       opt.Price,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Order{}, err
	}
	e.metrics.Transition("none", string(StatusPending))
	logging.FromContext(ctx).Info("order placed",
		"order_id", order.ID, "user_id", userID, "product", order.ProductName, "option", order.Option)

	args := orderArgs(order)
	args.Instructions = e.instructions
	e.notes.Send(ctx, notify.Notification{
		Recipient: userID,
		Key:       notify.OrderPlaced,
		Args:      args,
		Actions: []notify.Action{
			{Kind: notify.ClaimPaid, OrderID: order.ID},
			{Kind: notify.CancelOrder, OrderID: order.ID},
		},
	})
	return order, nil
}

// MarkAwaitingConfirmation records the buyer's claim to have paid and
// asks the admin to confirm or reject it.
func (e *Engine) MarkAwaitingConfirmation(ctx context.Context, orderID, actorID int64) (Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != actorID {
		return Order{}, fmt.Errorf("%w: order %d belongs to another user", ErrUnauthorized, orderID)
	}
	order, err = e.transition(ctx, order, StatusPending, StatusAwaitingConfirmation)
	if err != nil {
		return Order{}, err
	}

	args := orderArgs(order)
	e.notes.Send(ctx, notify.Notification{Recipient: order.UserID, Key: notify.PaymentClaimed, Args: args})
	e.notes.Send(ctx, notify.Notification{
		Recipient: e.adminID,
		Key:       notify.AdminPaymentClaim,
		Args:      args,
		Actions: []notify.Action{
			{Kind: notify.ConfirmOrder, OrderID: order.ID},
			{Kind: notify.RejectOrder, OrderID: order.ID},
		},
	})
	return order, nil
}

// ResolvePayment applies the admin's decision on an order awaiting
// confirmation. Resolving an already resolved order returns
// ErrInvalidTransition and notifies nobody.
func (e *Engine) ResolvePayment(ctx context.Context, orderID, adminID int64, decision Decision) (Order, error) {
	if adminID != e.adminID {
		return Order{}, fmt.Errorf("%w: %d is not the admin", ErrUnauthorized, adminID)
	}
	var next Status
	switch decision {
	case Confirm:
		next = StatusPaid
	case Reject:
		next = StatusRejected
	default:
		return Order{}, fmt.Errorf("orders: unknown decision %q", decision)
	}

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order, err = e.transition(ctx, order, StatusAwaitingConfirmation, next)
	if err != nil {
		return Order{}, err
	}

	args := orderArgs(order)
	if decision == Reject {
		e.notes.Send(ctx, notify.Notification{Recipient: order.UserID, Key: notify.PaymentRejected, Args: args})
		e.notes.Send(ctx, notify.Notification{Recipient: e.adminID, Key: notify.AdminOrderResolved, Args: args})
		return order, nil
	}
	e.notes.Send(ctx, notify.Notification{Recipient: order.UserID, Key: notify.PaymentConfirmed, Args: args})
	e.notes.Send(ctx, notify.Notification{
		Recipient: e.adminID,
		Key:       notify.AdminDeliveryRequest,
		Args:      args,
		Actions:   []notify.Action{{Kind: notify.DeliverOrder, OrderID: order.ID}},
	})
	return order, nil
}

// Deliver marks a paid order delivered and sends content to the buyer
// verbatim. The status is claimed first so content goes out at most once;
// if the buyer cannot be reached the admin gets the content back to hand
// over another way.
func (e *Engine) Deliver(ctx context.Context, orderID, adminID int64, content string) (Order, error) {
	if adminID != e.adminID {
		return Order{}, fmt.Errorf("%w: %d is not the admin", ErrUnauthorized, adminID)
	}
	if strings.TrimSpace(content) == "" {
		return Order{}, ErrEmptyContent
	}
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order, err = e.transition(ctx, order, StatusPaid, StatusDelivered)
	if err != nil {
		return Order{}, err
	}

	args := orderArgs(order)
	args.Text = content
	if err := e.notes.Try(ctx, notify.Notification{Recipient: order.UserID, Key: notify.OrderDelivered, Args: args}); err != nil {
		e.notes.Report(ctx, notify.Notification{Recipient: e.adminID, Key: notify.AdminDeliveryFailed, Args: args})
		return order, nil
	}
	e.notes.Send(ctx, notify.Notification{Recipient: e.adminID, Key: notify.AdminOrderDelivered, Args: orderArgs(order)})
	return order, nil
}

// Cancel cancels a pending order on behalf of its owner.
func (e *Engine) Cancel(ctx context.Context, orderID, userID int64) (Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %d belongs to another user", ErrUnauthorized, orderID)
	}
	order, err = e.transition(ctx, order, StatusPending, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	e.notes.Send(ctx, notify.Notification{Recipient: order.UserID, Key: notify.OrderCancelled, Args: orderArgs(order)})
	return order, nil
}

// ListOrders reads straight from the store.
func (e *Engine) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	return e.store.ListOrders(ctx, f)
}

// Get returns a single order.
func (e *Engine) Get(ctx context.Context, orderID int64) (Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// transition checks the graph and the freshly read status, then writes
// with the expected previous status so a concurrent writer loses cleanly.
func (e *Engine) transition(ctx context.Context, order Order, from, to Status) (Order, error) {
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("orders: %s -> %s is not in the transition graph", from, to))
	}
	if order.Status != from {
		return Order{}, fmt.Errorf("%w: order %d is %s, not %s", ErrInvalidTransition, order.ID, order.Status, from)
	}
	updated, err := e.store.UpdateOrderStatus(ctx, order.ID, from, to, e.now().UTC())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrOrderNotFound) {
			logging.FromContext(ctx).Debug("lost transition race", "order_id", order.ID, "from", from, "to", to)
		}
		return Order{}, err
	}
	e.metrics.Transition(string(from), string(to))
	logging.FromContext(ctx).Info("order transition", "order_id", order.ID, "from", from, "to", to)
	return updated, nil
}

func orderArgs(o Order) notify.Args {
	return notify.Args{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Username: o.Username,
		Product:  o.ProductName,
		Option:   o.Option,
		Price:    o.Price.StringFixedBank(2),
		Status:   string(o.Status),
	}
}
