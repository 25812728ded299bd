package bot

import (
	"github.com/shopspring/decimal"

	"telegram-store-bot/orders"
)

// Event is a decoded inbound user or admin action. The transport builds
// events from updates; nothing downstream parses callback strings.
type Event interface {
	// Actor is the Telegram user who triggered the event. Corrective
	// replies go back to the actor.
	Actor() int64
	Name() string
}

// Start is the /start command.
type Start struct {
	UserID   int64
	Username string
}

type ProductChosen struct {
	UserID      int64
	ProductName string
}

type OptionChosen struct {
	UserID      int64
	Username    string
	ProductName string
	Option      string
	Price       decimal.Decimal
}

type PaidClaim struct {
	UserID  int64
	OrderID int64
}

type CancelRequested struct {
	UserID  int64
	OrderID int64
}

type AdminDecision struct {
	AdminID  int64
	OrderID  int64
	Decision orders.Decision
}

// DeliveryRequested is the admin pressing Deliver; it asks for content.
type DeliveryRequested struct {
	AdminID int64
	OrderID int64
}

type DeliverySubmitted struct {
	AdminID int64
	OrderID int64
	Content string
}

type ProblemReported struct {
	UserID   int64
	Username string
}

// FreeTextMessage is text that is neither a command, a product name, nor
// an answer to a prompt.
type FreeTextMessage struct {
	UserID int64
	Text   string
}

// ReplyRequested is the admin pressing Reply on a ticket.
type ReplyRequested struct {
	AdminID  int64
	TicketID int64
}

type TicketReply struct {
	AdminID  int64
	TicketID int64
	Text     string
}

type TicketClose struct {
	AdminID  int64
	TicketID int64
}

// MyOrders is the /orders command.
type MyOrders struct {
	UserID int64
}

// PendingOverview is the admin /pending command.
type PendingOverview struct {
	AdminID int64
}

// OpenTickets is the admin /tickets command.
type OpenTickets struct {
	AdminID int64
}

// LanguageMenu is the /language command.
type LanguageMenu struct {
	UserID int64
}

type LanguageChosen struct {
	UserID   int64
	Language string
}

func (e Start) Actor() int64             { return e.UserID }
func (e ProductChosen) Actor() int64     { return e.UserID }
func (e OptionChosen) Actor() int64      { return e.UserID }
func (e PaidClaim) Actor() int64         { return e.UserID }
func (e CancelRequested) Actor() int64   { return e.UserID }
func (e AdminDecision) Actor() int64     { return e.AdminID }
func (e DeliveryRequested) Actor() int64 { return e.AdminID }
func (e DeliverySubmitted) Actor() int64 { return e.AdminID }
func (e ProblemReported) Actor() int64   { return e.UserID }
func (e FreeTextMessage) Actor() int64   { return e.UserID }
func (e ReplyRequested) Actor() int64    { return e.AdminID }
func (e TicketReply) Actor() int64       { return e.AdminID }
func (e TicketClose) Actor() int64       { return e.AdminID }
func (e MyOrders) Actor() int64          { return e.UserID }
func (e PendingOverview) Actor() int64   { return e.AdminID }
func (e OpenTickets) Actor() int64       { return e.AdminID }
func (e LanguageMenu) Actor() int64      { return e.UserID }
func (e LanguageChosen) Actor() int64    { return e.UserID }

func (Start) Name() string             { return "start" }
func (ProductChosen) Name() string     { return "product_chosen" }
func (OptionChosen) Name() string      { return "option_chosen" }
func (PaidClaim) Name() string         { return "paid_claim" }
func (CancelRequested) Name() string   { return "cancel_requested" }
func (AdminDecision) Name() string     { return "admin_decision" }
func (DeliveryRequested) Name() string { return "delivery_requested" }
func (DeliverySubmitted) Name() string { return "delivery_submitted" }
func (ProblemReported) Name() string   { return "problem_reported" }
func (FreeTextMessage) Name() string   { return "free_text" }
func (ReplyRequested) Name() string    { return "reply_requested" }
func (TicketReply) Name() string       { return "ticket_reply" }
func (TicketClose) Name() string       { return "ticket_close" }
func (MyOrders) Name() string          { return "my_orders" }
func (PendingOverview) Name() string   { return "pending_overview" }
func (OpenTickets) Name() string       { return "open_tickets" }
func (LanguageMenu) Name() string      { return "language_menu" }
func (LanguageChosen) Name() string    { return "language_chosen" }
