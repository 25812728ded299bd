package orders

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProduct    = errors.New("orders: product or option not in catalog")
	ErrOrderNotFound     = errors.New("orders: order not found")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrUnauthorized      = errors.New("orders: not allowed for this user")
	ErrEmptyContent      = errors.New("orders: delivery content is empty")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusPaid                 Status = "paid"
	StatusDelivered            Status = "delivered"
	StatusRejected             Status = "rejected"
	StatusCancelled            Status = "cancelled"
)

// transitions is the complete order graph. Statuses without an entry
// are terminal.
var transitions = map[Status][]Status{
	StatusPending:              {StatusAwaitingConfirmation, StatusCancelled},
	StatusAwaitingConfirmation: {StatusPaid, StatusRejected},
	StatusPaid:                 {StatusDelivered},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAwaitingConfirmation, StatusPaid,
		StatusDelivered, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Order is a buyer's claim on one catalog option. Product, option and
// price are a snapshot taken at purchase time and never change.
type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Username    string          `json:"username"`
	ProductName string          `json:"product_name"`
	Option      string          `json:"option"`
	Price       decimal.Decimal `json:"price"`
	Status      Status          `json:"status"`
	Reminded    bool            `json:"reminded"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Filter selects orders in ListOrders. Zero fields match everything.
type Filter struct {
	UserID        int64
	Statuses      []Status
	UpdatedBefore time.Time
	NotReminded   bool
}

// Store is the durable order collection. Every method is atomic for the
// single record it touches.
type Store interface {
	// AppendOrder stores o and returns it with ID assigned. IDs increase
	// monotonically.
	AppendOrder(ctx context.Context, o Order) (Order, error)

	// GetOrder returns ErrOrderNotFound for an unknown id.
	GetOrder(ctx context.Context, id int64) (Order, error)

	// UpdateOrderStatus moves the order from expected to next only if its
	// stored status is still expected. It returns ErrOrderNotFound for an
	// unknown id and ErrInvalidTransition when the status has moved on.
	UpdateOrderStatus(ctx context.Context, id int64, expected, next Status, at time.Time) (Order, error)

	// MarkReminded flags the order as reminded if it is still in
	// expected and not yet reminded. It reports whether it did.
	MarkReminded(ctx context.Context, id int64, expected Status) (bool, error)

	// ListOrders returns matching orders by ascending id.
	ListOrders(ctx context.Context, f Filter) ([]Order, error)
}
