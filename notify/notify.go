// Package notify defines the outbound side of the store: semantic
// notification intents addressed to a buyer or the admin. The lifecycle
// and ticket engines only ever emit these; rendering to text in the
// recipient's language and to transport buttons happens in the transport.
package notify

import "context"

// Key names a message. Every key has an entry in each locale table.
type Key string

// Buyer-facing keys.
const (
	Welcome            Key = "welcome"
	ProductOptions     Key = "product_options"
	OrderPlaced        Key = "order_placed"
	PaymentClaimed     Key = "payment_claimed"
	PaymentConfirmed   Key = "payment_confirmed"
	PaymentRejected    Key = "payment_rejected"
	OrderDelivered     Key = "order_delivered"
	OrderCancelled     Key = "order_cancelled"
	OrderExpired       Key = "order_expired"
	PendingReminder    Key = "pending_reminder"
	OrderList          Key = "order_list"
	NoOrders           Key = "no_orders"
	TicketOpened       Key = "ticket_opened"
	TicketAlreadyOpen  Key = "ticket_already_open"
	TicketMessageSent  Key = "ticket_message_sent"
	TicketReply        Key = "ticket_reply"
	TicketClosed       Key = "ticket_closed"
	ChooseLanguage     Key = "choose_language"
	LanguageChanged    Key = "language_changed"
	FreeTextHint       Key = "free_text_hint"
)

// Admin-facing keys.
const (
	AdminPaymentClaim     Key = "admin_payment_claim"
	AdminDeliveryRequest  Key = "admin_delivery_request"
	AdminDeliveryPrompt   Key = "admin_delivery_prompt"
	AdminOrderResolved    Key = "admin_order_resolved"
	AdminOrderDelivered   Key = "admin_order_delivered"
	AdminDeliveryFailed   Key = "admin_delivery_failed"
	AdminNotifyFailed     Key = "admin_notify_failed"
	AdminAwaitingReminder Key = "admin_awaiting_reminder"
	AdminTicketOpened     Key = "admin_ticket_opened"
	AdminTicketMessage    Key = "admin_ticket_message"
	AdminReplyPrompt      Key = "admin_reply_prompt"
	AdminReplySent        Key = "admin_reply_sent"
	AdminTicketClosed     Key = "admin_ticket_closed"
	AdminPendingOrder     Key = "admin_pending_order"
	AdminNothingPending   Key = "admin_nothing_pending"
	AdminOpenTicket       Key = "admin_open_ticket"
	AdminNoOpenTickets    Key = "admin_no_open_tickets"
	AdminPromptHint       Key = "admin_prompt_hint"
)

// Corrective replies to rejected actions.
const (
	ErrInvalidProduct   Key = "err_invalid_product"
	ErrOrderNotFound    Key = "err_order_not_found"
	ErrAlreadyProcessed Key = "err_already_processed"
	ErrNotAllowed       Key = "err_not_allowed"
	ErrNoOpenTicket     Key = "err_no_open_ticket"
	ErrTicketClosed     Key = "err_ticket_closed"
	ErrTicketNotFound   Key = "err_ticket_not_found"
	ErrEmptyMessage     Key = "err_empty_message"
	ErrInternal         Key = "err_internal"
)

// ActionKind identifies what a button does when pressed.
type ActionKind string

const (
	ChooseOption  ActionKind = "option"
	ClaimPaid     ActionKind = "paid"
	CancelOrder   ActionKind = "cancel"
	ConfirmOrder  ActionKind = "confirm"
	RejectOrder   ActionKind = "reject"
	DeliverOrder  ActionKind = "deliver"
	ReportProblem ActionKind = "problem"
	ReplyTicket   ActionKind = "reply"
	CloseTicket   ActionKind = "close"
	SetLanguage   ActionKind = "lang"
)

// Action is a button attached to a notification. The transport turns it
// into an opaque callback token and decodes it back into a typed event
// carrying the same identifiers when pressed.
type Action struct {
	Kind     ActionKind
	OrderID  int64
	TicketID int64
	// OptionID keys a ChooseOption action. Product and Option are the
	// names shown on the button; Price is the price the buyer saw.
	OptionID int64
	Product  string
	Option   string
	Price    string
	Language string
}

// PromptKind identifies what the admin's reply to a prompt is for.
type PromptKind string

const (
	PromptDelivery    PromptKind = "deliver"
	PromptTicketReply PromptKind = "reply"
)

// Prompt asks the recipient to answer the notification with free text.
// The transport remembers the sent message so the answer can be routed
// to TargetID.
type Prompt struct {
	Kind     PromptKind
	TargetID int64
}

// OrderLine is one row of an order listing.
type OrderLine struct {
	OrderID int64
	Product string
	Option  string
	Price   string
	Status  string
}

// Args carries the values a message template may reference.
type Args struct {
	OrderID      int64
	TicketID     int64
	UserID       int64
	Username     string
	Product      string
	Option       string
	Price        string
	Status       string
	Text         string
	Instructions string
	Language     string
	Age          string
	Lines        []OrderLine
}

// Notification is one outbound message intent.
type Notification struct {
	Recipient int64
	Key       Key
	Args      Args
	Actions   []Action

	// Menu is a persistent keyboard of plain-text entries.
	Menu []string

	// Prompt, when set, asks for a free-text answer.
	Prompt *Prompt
}

// Notifier delivers notifications. Engines treat it as fire-and-forget:
// a returned error is logged and reported, never retried.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Keys lists every message key; each locale table must define all of them.
var Keys = []Key{
	Welcome, ProductOptions, OrderPlaced, PaymentClaimed, PaymentConfirmed,
	PaymentRejected, OrderDelivered, OrderCancelled, OrderExpired,
	PendingReminder, OrderList, NoOrders, TicketOpened, TicketAlreadyOpen,
	TicketMessageSent, TicketReply, TicketClosed, ChooseLanguage,
	LanguageChanged, FreeTextHint,

	AdminPaymentClaim, AdminDeliveryRequest, AdminDeliveryPrompt,
	AdminOrderResolved, AdminOrderDelivered, AdminDeliveryFailed,
	AdminNotifyFailed, AdminAwaitingReminder, AdminTicketOpened,
	AdminTicketMessage, AdminReplyPrompt, AdminReplySent, AdminTicketClosed,
	AdminPendingOrder, AdminNothingPending, AdminOpenTicket,
	AdminNoOpenTickets, AdminPromptHint,

	ErrInvalidProduct, ErrOrderNotFound, ErrAlreadyProcessed, ErrNotAllowed,
	ErrNoOpenTicket, ErrTicketClosed, ErrTicketNotFound, ErrEmptyMessage,
	ErrInternal,
}

// ActionKinds lists every button kind; each locale labels all of them
// except SetLanguage, which is labelled with the language's own name.
var ActionKinds = []ActionKind{
	ChooseOption, ClaimPaid, CancelOrder, ConfirmOrder, RejectOrder,
	DeliverOrder, ReportProblem, ReplyTicket, CloseTicket,
}
