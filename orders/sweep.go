package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-store-bot/logging"
	"telegram-store-bot/notify"
)

// SweepPolicy decides what happens to a pending order nobody acted on.
type SweepPolicy string

const (
	// SweepRemind reminds the buyer once. The order stays pending.
	SweepRemind SweepPolicy = "remind"
	// SweepCancel cancels the order and tells the buyer.
	SweepCancel SweepPolicy = "cancel"
)

func ParseSweepPolicy(s string) (SweepPolicy, error) {
	switch p := SweepPolicy(s); p {
	case SweepRemind, SweepCancel:
		return p, nil
	}
	return "", fmt.Errorf("orders: unknown sweep policy %q", s)
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Cancelled int
	Reminded  int
}

// ExpirePendingOlderThan handles orders that have sat in pending or
// awaiting_confirmation for longer than age. Pending orders are reminded
// or cancelled per policy. Orders awaiting confirmation cannot be
// cancelled, so the admin is reminded of them under either policy. Each
// order is reminded at most once. A buyer acting on the same order
// concurrently wins: the sweep skips orders whose status moved on.
func (e *Engine) ExpirePendingOlderThan(ctx context.Context, age time.Duration, policy SweepPolicy) (SweepResult, error) {
	var res SweepResult
	cutoff := e.now().UTC().Add(-age)
	stale, err := e.store.ListOrders(ctx, Filter{
		Statuses:      []Status{StatusPending, StatusAwaitingConfirmation},
		UpdatedBefore: cutoff,
		NotReminded:   true,
	})
	if err != nil {
		return res, err
	}

	logger := logging.FromContext(ctx)
	for _, order := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch {
		case order.Status == StatusPending && policy == SweepCancel:
			cancelled, err := e.transition(ctx, order, StatusPending, StatusCancelled)
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrOrderNotFound) {
				continue
			}
			if err != nil {
				return res, err
			}
			res.Cancelled++
			args := orderArgs(cancelled)
			args.Age = age.String()
			e.notes.Send(ctx, notify.Notification{Recipient: cancelled.UserID, Key: notify.OrderExpired, Args: args})

		case order.Status == StatusPending:
			ok, err := e.store.MarkReminded(ctx, order.ID, StatusPending)
			if err != nil {
				return res, err
			}
			if !ok {
				continue
			}
			res.Reminded++
			args := orderArgs(order)
			args.Instructions = e.instructions
			e.notes.Send(ctx, notify.Notification{
				Recipient: order.UserID,
				Key:       notify.PendingReminder,
				Args:      args,
				Actions: []notify.Action{
					{Kind: notify.ClaimPaid, OrderID: order.ID},
					{Kind: notify.CancelOrder, OrderID: order.ID},
				},
			})

		case order.Status == StatusAwaitingConfirmation:
			ok, err := e.store.MarkReminded(ctx, order.ID, StatusAwaitingConfirmation)
			if err != nil {
				return res, err
			}
			if !ok {
				continue
			}
			res.Reminded++
			args := orderArgs(order)
			args.Age = age.String()
			e.notes.Send(ctx, notify.Notification{
				Recipient: e.adminID,
				Key:       notify.AdminAwaitingReminder,
				Args:      args,
				Actions: []notify.Action{
					{Kind: notify.ConfirmOrder, OrderID: order.ID},
					{Kind: notify.RejectOrder, OrderID: order.ID},
				},
			})
		}
	}
	if res.Cancelled > 0 || res.Reminded > 0 {
		logger.Info("pending sweep", "cancelled", res.Cancelled, "reminded", res.Reminded)
	}
	return res, nil
}

// Sweeper runs ExpirePendingOlderThan on a fixed interval.
type Sweeper struct {
	Engine   *Engine
	Interval time.Duration
	MaxAge   time.Duration
	Policy   SweepPolicy
}

// Run sweeps until ctx is cancelled. A failed sweep is logged and retried
// on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	logger := logging.FromContext(ctx).With("component", "sweeper")
	ctx = logging.WithLogger(ctx, logger)
	logger.Info("pending sweep started", "interval", s.Interval, "max_age", s.MaxAge, "policy", s.Policy)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Engine.ExpirePendingOlderThan(ctx, s.MaxAge, s.Policy); err != nil && ctx.Err() == nil {
				logger.Error("pending sweep failed", "error", err)
			}
		}
	}
}
