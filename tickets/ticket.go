// Package tickets runs support threads between a buyer and the admin.
//
// A user has at most one open ticket. Messages are appended while the
// ticket is open; once the admin closes it the ticket is immutable and the
// user's next report opens a new ticket. Every admin reply names the
// ticket it answers, so replies are never routed by guessing.
package tickets

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoOpenTicket   = errors.New("tickets: no open ticket")
	ErrTicketClosed   = errors.New("tickets: ticket is closed")
	ErrTicketNotFound = errors.New("tickets: ticket not found")
	ErrUnauthorized   = errors.New("tickets: not allowed for this user")
	ErrEmptyMessage   = errors.New("tickets: empty message")
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Ticket struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	IsOpen    bool       `json:"is_open"`
	Messages  []Message  `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Filter selects tickets in ListTickets. Zero fields match everything.
type Filter struct {
	UserID   int64
	OpenOnly bool
}

// Store is the durable ticket collection. Each method is atomic for the
// ticket it touches.
type Store interface {
	// OpenTicket creates an open ticket for userID, or returns the one
	// already open with created set to false.
	OpenTicket(ctx context.Context, userID int64, username string, at time.Time) (t Ticket, created bool, err error)

	// GetTicket returns the ticket with its messages, or ErrTicketNotFound.
	GetTicket(ctx context.Context, id int64) (Ticket, error)

	// OpenTicketFor returns the user's open ticket, or ErrNoOpenTicket.
	OpenTicketFor(ctx context.Context, userID int64) (Ticket, error)

	// AppendMessage adds m to an open ticket. It returns
	// ErrTicketNotFound or ErrTicketClosed without writing anything
	// otherwise.
	AppendMessage(ctx context.Context, ticketID int64, m Message) (Ticket, error)

	// CloseTicket closes an open ticket. closed is false when the ticket
	// was already closed.
	CloseTicket(ctx context.Context, ticketID int64, at time.Time) (t Ticket, closed bool, err error)

	// ListTickets returns matching tickets by ascending id, without
	// messages.
	ListTickets(ctx context.Context, f Filter) ([]Ticket, error)
}
