package notify

import (
	"context"

	"telegram-store-bot/logging"
)

// Guard sends notifications on behalf of an engine. Delivery failures
// never propagate as crashes: they are logged, counted through Failed,
// and a failure to reach anyone but the admin is reported to the admin.
type Guard struct {
	Notifier Notifier
	AdminID  int64

	// Failed is called once per failed delivery. Optional.
	Failed func(key Key)
}

// Send delivers n and reports a failure to the admin. The delivery error
// is returned for callers that want to react further; it is already
// handled.
func (g Guard) Send(ctx context.Context, n Notification) error {
	err := g.Try(ctx, n)
	if err != nil && n.Recipient != g.AdminID {
		g.report(ctx, Notification{
			Recipient: g.AdminID,
			Key:       AdminNotifyFailed,
			Args: Args{
				UserID:   n.Recipient,
				OrderID:  n.Args.OrderID,
				TicketID: n.Args.TicketID,
				Text:     string(n.Key),
			},
		})
	}
	return err
}

// Try delivers n, logging and counting a failure without reporting it.
func (g Guard) Try(ctx context.Context, n Notification) error {
	if g.Notifier == nil {
		return nil
	}
	err := g.Notifier.Notify(ctx, n)
	if err != nil {
		logging.FromContext(ctx).Warn("notification failed",
			"recipient", n.Recipient, "key", string(n.Key), "error", err)
		if g.Failed != nil {
			g.Failed(n.Key)
		}
	}
	return err
}

// Report sends an admin-facing failure report. Its own failure is only
// logged.
func (g Guard) Report(ctx context.Context, n Notification) {
	g.report(ctx, n)
}

func (g Guard) report(ctx context.Context, n Notification) {
	if err := g.Try(ctx, n); err != nil {
		logging.FromContext(ctx).Error("could not report failure to admin",
			"key", string(n.Key), "error", err)
	}
}
