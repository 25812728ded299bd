package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telegram-store-bot/tickets"
)

var _ tickets.Store = (*SQLite)(nil)

const ticketColumns = `id, user_id, username, is_open, created_at, closed_at`

func scanTicket(row rowScanner) (tickets.Ticket, error) {
	var (
		t         tickets.Ticket
		isOpen    int
		createdAt string
		closedAt  sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Username, &isOpen, &createdAt, &closedAt); err != nil {
		return tickets.Ticket{}, err
	}
	t.IsOpen = isOpen != 0
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return tickets.Ticket{}, err
	}
	if closedAt.Valid {
		c, err := parseTime(closedAt.String)
		if err != nil {
			return tickets.Ticket{}, err
		}
		t.ClosedAt = &c
	}
	return t, nil
}

type txQueryer interface {
	queryer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadTicket reads a ticket and its messages.
func loadTicket(ctx context.Context, q txQueryer, id int64) (tickets.Ticket, error) {
	t, err := scanTicket(q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return tickets.Ticket{}, fmt.Errorf("%w: %d", tickets.ErrTicketNotFound, id)
	}
	if err != nil {
		return tickets.Ticket{}, fmt.Errorf("store: get ticket %d: %w", id, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT sender, text, created_at FROM ticket_messages WHERE ticket_id = ? ORDER BY id`, id)
	if err != nil {
		return tickets.Ticket{}, fmt.Errorf("store: ticket %d messages: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var m tickets.Message
		var sender, at string
		if err := rows.Scan(&sender, &m.Text, &at); err != nil {
			return tickets.Ticket{}, fmt.Errorf("store: ticket %d messages: %w", id, err)
		}
		m.Sender = tickets.Sender(sender)
		if m.Timestamp, err = parseTime(at); err != nil {
			return tickets.Ticket{}, err
		}
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return tickets.Ticket{}, fmt.Errorf("store: ticket %d messages: %w", id, err)
	}
	return t, nil
}

func openTicketID(ctx context.Context, q queryer, userID int64) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM tickets WHERE user_id = ? AND is_open = 1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: open ticket for user %d: %w", userID, err)
	}
	return id, true, nil
}

func (s *SQLite) OpenTicket(ctx context.Context, userID int64, username string, at time.Time) (tickets.Ticket, bool, error) {
	var (
		out     tickets.Ticket
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, ok, err := openTicketID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO tickets (user_id, username, is_open, created_at) VALUES (?, ?, 1, ?)`,
				userID, username, formatTime(at))
			if err != nil {
				return fmt.Errorf("store: open ticket for user %d: %w", userID, err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("store: open ticket for user %d: %w", userID, err)
			}
			created = true
		}
		out, err = loadTicket(ctx, tx, id)
		return err
	})
	if err != nil {
		return tickets.Ticket{}, false, err
	}
	return out, created, nil
}

func (s *SQLite) GetTicket(ctx context.Context, id int64) (tickets.Ticket, error) {
	return loadTicket(ctx, s.db, id)
}

func (s *SQLite) OpenTicketFor(ctx context.Context, userID int64) (tickets.Ticket, error) {
	var out tickets.Ticket
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, ok, err := openTicketID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d", tickets.ErrNoOpenTicket, userID)
		}
		out, err = loadTicket(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *SQLite) AppendMessage(ctx context.Context, ticketID int64, m tickets.Message) (tickets.Ticket, error) {
	var out tickets.Ticket
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var isOpen int
		err := tx.QueryRowContext(ctx, `SELECT is_open FROM tickets WHERE id = ?`, ticketID).Scan(&isOpen)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", tickets.ErrTicketNotFound, ticketID)
		}
		if err != nil {
			return fmt.Errorf("store: append to ticket %d: %w", ticketID, err)
		}
		if isOpen == 0 {
			return fmt.Errorf("%w: %d", tickets.ErrTicketClosed, ticketID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ticket_messages (ticket_id, sender, text, created_at) VALUES (?, ?, ?, ?)`,
			ticketID, string(m.Sender), m.Text, formatTime(m.Timestamp)); err != nil {
			return fmt.Errorf("store: append to ticket %d: %w", ticketID, err)
		}
		out, err = loadTicket(ctx, tx, ticketID)
		return err
	})
	return out, err
}

func (s *SQLite) CloseTicket(ctx context.Context, ticketID int64, at time.Time) (tickets.Ticket, bool, error) {
	var (
		out    tickets.Ticket
		closed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET is_open = 0, closed_at = ? WHERE id = ? AND is_open = 1`,
			formatTime(at), ticketID)
		if err != nil {
			return fmt.Errorf("store: close ticket %d: %w", ticketID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: close ticket %d: %w", ticketID, err)
		}
		closed = n == 1
		out, err = loadTicket(ctx, tx, ticketID)
		return err
	})
	if err != nil {
		return tickets.Ticket{}, false, err
	}
	return out, closed, nil
}

func (s *SQLite) ListTickets(ctx context.Context, f tickets.Filter) ([]tickets.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1 = 1`
	var args []any
	if f.UserID != 0 {
		q += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.OpenOnly {
		q += ` AND is_open = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	defer rows.Close()

	var out []tickets.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list tickets: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	return out, nil
}
