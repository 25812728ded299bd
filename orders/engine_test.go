package orders_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-store-bot/catalog"
	"telegram-store-bot/notify"
	"telegram-store-bot/orders"
	"telegram-store-bot/store"
)

const (
	adminID = int64(1)
	buyerID = int64(42)
)

type recorder struct {
	mu      sync.Mutex
	sent    []notify.Notification
	failFor map[int64]bool
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[n.Recipient] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) to(recipient int64) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) keys(recipient int64) []notify.Key {
	var keys []notify.Key
	for _, n := range r.to(recipient) {
		keys = append(keys, n.Key)
	}
	return keys
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fixture struct {
	engine *orders.Engine
	store  *store.SQLite
	notes  *recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	products, err := catalog.Parse([]byte(`{"VPN": {"1 month": "5", "3 months": "12"}}`))
	require.NoError(t, err)
	_, err = s.SeedCatalog(context.Background(), products)
	require.NoError(t, err)

	f := &fixture{store: s, notes: &recorder{}, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.engine = orders.NewEngine(s, s, f.notes, adminID,
		orders.WithPaymentInstructions("Binance ID: 123"),
		orders.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) place(t *testing.T) orders.Order {
	t.Helper()
	o, err := f.engine.PlaceOrder(context.Background(), buyerID, "@buyer", "VPN", "1 month", decimal.RequireFromString("5"))
	require.NoError(t, err)
	return o
}

func TestTransitionGraph(t *testing.T) {
	assert.True(t, orders.CanTransition(orders.StatusPending, orders.StatusAwaitingConfirmation))
	assert.True(t, orders.CanTransition(orders.StatusPending, orders.StatusCancelled))
	assert.True(t, orders.CanTransition(orders.StatusAwaitingConfirmation, orders.StatusPaid))
	assert.True(t, orders.CanTransition(orders.StatusAwaitingConfirmation, orders.StatusRejected))
	assert.True(t, orders.CanTransition(orders.StatusPaid, orders.StatusDelivered))

	assert.False(t, orders.CanTransition(orders.StatusPending, orders.StatusPaid))
	assert.False(t, orders.CanTransition(orders.StatusPending, orders.StatusDelivered))
	assert.False(t, orders.CanTransition(orders.StatusAwaitingConfirmation, orders.StatusCancelled))

	for _, terminal := range []orders.Status{orders.StatusDelivered, orders.StatusRejected, orders.StatusCancelled} {
		assert.True(t, terminal.Terminal(), terminal)
		for _, to := range []orders.Status{orders.StatusPending, orders.StatusAwaitingConfirmation, orders.StatusPaid, orders.StatusDelivered, orders.StatusRejected, orders.StatusCancelled} {
			assert.False(t, orders.CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, orders.Status("shipped").Valid())
}

func TestPlaceOrderSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	listed, err := f.engine.ListOrders(context.Background(), orders.Filter{UserID: buyerID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, o.ID, listed[0].ID)
	assert.Equal(t, orders.StatusPending, listed[0].Status)
	assert.Equal(t, "1 month", listed[0].Option)
	assert.True(t, listed[0].Price.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, "buyer", listed[0].Username)

	sent := f.notes.to(buyerID)
	require.Len(t, sent, 1)
	assert.Equal(t, notify.OrderPlaced, sent[0].Key)
	assert.Equal(t, "Binance ID: 123", sent[0].Args.Instructions)
	assert.Equal(t, "5.00", sent[0].Args.Price)
	assert.Equal(t, []notify.Action{
		{Kind: notify.ClaimPaid, OrderID: o.ID},
		{Kind: notify.CancelOrder, OrderID: o.ID},
	}, sent[0].Actions)
}

func TestPlaceOrderValidatesAgainstCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.PlaceOrder(ctx, buyerID, "", "Netflix", "1 month", decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, orders.ErrInvalidProduct)
	_, err = f.engine.PlaceOrder(ctx, buyerID, "", "VPN", "1 week", decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, orders.ErrInvalidProduct)
	_, err = f.engine.PlaceOrder(ctx, buyerID, "", "VPN", "1 month", decimal.RequireFromString("4"))
	assert.ErrorIs(t, err, orders.ErrInvalidProduct, "stale price")

	removed, err := f.store.RemoveProduct(ctx, "VPN")
	require.NoError(t, err)
	require.True(t, removed)
	_, err = f.engine.PlaceOrder(ctx, buyerID, "", "VPN", "1 month", decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, orders.ErrInvalidProduct, "removed product")

	listed, err := f.engine.ListOrders(ctx, orders.Filter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestFullPurchaseScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)
	assert.Equal(t, orders.StatusPending, o.Status)

	o, err := f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAwaitingConfirmation, o.Status)
	adminNotes := f.notes.to(adminID)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, notify.AdminPaymentClaim, adminNotes[0].Key)
	assert.Equal(t, []notify.Action{
		{Kind: notify.ConfirmOrder, OrderID: o.ID},
		{Kind: notify.RejectOrder, OrderID: o.ID},
	}, adminNotes[0].Actions)

	o, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Confirm)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	adminNotes = f.notes.to(adminID)
	require.Len(t, adminNotes, 2)
	assert.Equal(t, notify.AdminDeliveryRequest, adminNotes[1].Key)
	assert.Equal(t, []notify.Action{{Kind: notify.DeliverOrder, OrderID: o.ID}}, adminNotes[1].Actions)

	o, err = f.engine.Deliver(ctx, o.ID, adminID, "key123")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, o.Status)

	buyerNotes := f.notes.to(buyerID)
	last := buyerNotes[len(buyerNotes)-1]
	assert.Equal(t, notify.OrderDelivered, last.Key)
	assert.Equal(t, "key123", last.Args.Text)
	assert.Equal(t, []notify.Key{
		notify.OrderPlaced, notify.PaymentClaimed, notify.PaymentConfirmed, notify.OrderDelivered,
	}, f.notes.keys(buyerID))

	_, err = f.engine.Deliver(ctx, o.ID, adminID, "key123")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition, "no double delivery")
}

func TestDoubleTapPaidClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	require.NoError(t, err)
	_, err = f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Len(t, f.notes.to(adminID), 1, "admin notified once")
}

func TestConcurrentPaidClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, orders.ErrInvalidTransition)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.notes.to(adminID), 1)
}

func TestResolvePaymentTwiceIsRejectedQuietly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)
	_, err := f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	require.NoError(t, err)

	_, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Reject)
	require.NoError(t, err)
	f.notes.reset()

	_, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Reject)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Confirm)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Empty(t, f.notes.sent, "no duplicate notification")

	got, err := f.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusRejected, got.Status)
}

func TestResolvePaymentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.engine.ResolvePayment(ctx, o.ID, buyerID, orders.Confirm)
	assert.ErrorIs(t, err, orders.ErrUnauthorized)
	_, err = f.engine.ResolvePayment(ctx, 999, adminID, orders.Confirm)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	_, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Confirm)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition, "still pending")
	_, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Decision("maybe"))
	assert.Error(t, err)
}

func TestDeliverRequiresPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.engine.Deliver(ctx, o.ID, adminID, "key123")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = f.engine.Deliver(ctx, o.ID, buyerID, "key123")
	assert.ErrorIs(t, err, orders.ErrUnauthorized)
	_, err = f.engine.Deliver(ctx, o.ID, adminID, "   ")
	assert.ErrorIs(t, err, orders.ErrEmptyContent)
}

func TestDeliveryFailureIsReportedToAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)
	_, err := f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	require.NoError(t, err)
	_, err = f.engine.ResolvePayment(ctx, o.ID, adminID, orders.Confirm)
	require.NoError(t, err)

	f.notes.failFor = map[int64]bool{buyerID: true}
	f.notes.reset()

	o, err = f.engine.Deliver(ctx, o.ID, adminID, "key123")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, o.Status)

	adminNotes := f.notes.to(adminID)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, notify.AdminDeliveryFailed, adminNotes[0].Key)
	assert.Equal(t, "key123", adminNotes[0].Args.Text)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)

	_, err := f.engine.Cancel(ctx, o.ID, 777)
	assert.ErrorIs(t, err, orders.ErrUnauthorized)

	o, err = f.engine.Cancel(ctx, o.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)

	// Soft delete: the order is still there.
	listed, err := f.engine.ListOrders(ctx, orders.Filter{UserID: buyerID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, orders.StatusCancelled, listed[0].Status)

	_, err = f.engine.Cancel(ctx, o.ID, buyerID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestCancelAfterPaidClaimFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t)
	_, err := f.engine.MarkAwaitingConfirmation(ctx, o.ID, buyerID)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, o.ID, buyerID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}
