package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-store-bot/orders"
)

var _ orders.Store = (*SQLite)(nil)

const orderColumns = `id, user_id, username, product_name, option, price, status, reminded, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var (
		o                    orders.Order
		price, status        string
		reminded             int
		createdAt, updatedAt string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Username, &o.ProductName, &o.Option,
		&price, &status, &reminded, &createdAt, &updatedAt); err != nil {
		return orders.Order{}, err
	}
	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Order{}, fmt.Errorf("store: order %d price %q: %w", o.ID, price, err)
	}
	o.Status = orders.Status(status)
	o.Reminded = reminded != 0
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return orders.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func (s *SQLite) AppendOrder(ctx context.Context, o orders.Order) (orders.Order, error) {
	const q = `
		INSERT INTO orders
			(user_id, username, product_name, option, price, status, reminded, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if !o.Status.Valid() {
		return orders.Order{}, fmt.Errorf("store: append order: invalid status %q", o.Status)
	}
	res, err := s.db.ExecContext(ctx, q,
		o.UserID, o.Username, o.ProductName, o.Option, o.Price.String(),
		string(o.Status), boolInt(o.Reminded), formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return orders.Order{}, fmt.Errorf("store: append order for user %d: %w", o.UserID, err)
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return orders.Order{}, fmt.Errorf("store: append order: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (s *SQLite) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	return getOrder(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getOrder(ctx context.Context, q queryer, id int64) (orders.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("store: get order %d: %w", id, err)
	}
	return o, nil
}

func (s *SQLite) UpdateOrderStatus(ctx context.Context, id int64, expected, next orders.Status, at time.Time) (orders.Order, error) {
	var out orders.Order
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, reminded = 0, updated_at = ? WHERE id = ? AND status = ?`,
			string(next), formatTime(at), id, string(expected))
		if err != nil {
			return fmt.Errorf("store: update order %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: update order %d: %w", id, err)
		}
		current, err := getOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: order %d is %s, not %s", orders.ErrInvalidTransition, id, current.Status, expected)
		}
		out = current
		return nil
	})
	return out, err
}

func (s *SQLite) MarkReminded(ctx context.Context, id int64, expected orders.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET reminded = 1 WHERE id = ? AND status = ? AND reminded = 0`,
		id, string(expected))
	if err != nil {
		return false, fmt.Errorf("store: mark order %d reminded: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark order %d reminded: %w", id, err)
	}
	return n == 1, nil
}

func (s *SQLite) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, formatTime(f.UpdatedBefore))
	}
	if f.NotReminded {
		where = append(where, "reminded = 0")
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list orders: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	return out, nil
}
