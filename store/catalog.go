package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"telegram-store-bot/catalog"
)

var _ catalog.Catalog = (*SQLite)(nil)

// Product reads the product and its options on every call so a removed
// or renamed product is never served from a stale copy.
func (s *SQLite) Product(ctx context.Context, name string) (catalog.Product, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM products WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, false, nil
	}
	if err != nil {
		return catalog.Product{}, false, fmt.Errorf("store: product %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, option, price FROM product_options WHERE product_id = ? ORDER BY position, id`, id)
	if err != nil {
		return catalog.Product{}, false, fmt.Errorf("store: product %q options: %w", name, err)
	}
	defer rows.Close()

	p := catalog.Product{Name: name}
	for rows.Next() {
		var (
			optID      int64
			opt, price string
		)
		if err := rows.Scan(&optID, &opt, &price); err != nil {
			return catalog.Product{}, false, fmt.Errorf("store: product %q options: %w", name, err)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return catalog.Product{}, false, fmt.Errorf("store: product %q option %q price %q: %w", name, opt, price, err)
		}
		p.Options = append(p.Options, catalog.Option{ID: optID, Name: opt, Price: d})
	}
	if err := rows.Err(); err != nil {
		return catalog.Product{}, false, fmt.Errorf("store: product %q options: %w", name, err)
	}
	return p, true, nil
}

func (s *SQLite) ProductNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM products ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("store: product names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: product names: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: product names: %w", err)
	}
	return names, nil
}

func (s *SQLite) OptionByID(ctx context.Context, id int64) (string, catalog.Option, bool, error) {
	var product, opt, price string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.name, o.option, o.price
		FROM product_options o JOIN products p ON p.id = o.product_id
		WHERE o.id = ?`, id).Scan(&product, &opt, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return "", catalog.Option{}, false, nil
	}
	if err != nil {
		return "", catalog.Option{}, false, fmt.Errorf("store: option %d: %w", id, err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return "", catalog.Option{}, false, fmt.Errorf("store: option %d price %q: %w", id, price, err)
	}
	return product, catalog.Option{ID: id, Name: opt, Price: d}, true, nil
}

// SeedResult reports which products a seed added and which it left alone.
type SeedResult struct {
	Added   []string
	Skipped []string
}

// SeedCatalog inserts products that do not exist yet, with their options.
// Existing products are skipped untouched.
func (s *SQLite) SeedCatalog(ctx context.Context, products []catalog.Product) (SeedResult, error) {
	var res SeedResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM products`).Scan(&next); err != nil {
			return fmt.Errorf("store: seed catalog: %w", err)
		}
		for _, p := range products {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE name = ?`, p.Name).Scan(&exists)
			if err != nil {
				return fmt.Errorf("store: seed %q: %w", p.Name, err)
			}
			if exists > 0 {
				res.Skipped = append(res.Skipped, p.Name)
				continue
			}
			r, err := tx.ExecContext(ctx, `INSERT INTO products (name, position) VALUES (?, ?)`, p.Name, next)
			if err != nil {
				return fmt.Errorf("store: seed %q: %w", p.Name, err)
			}
			next++
			productID, err := r.LastInsertId()
			if err != nil {
				return fmt.Errorf("store: seed %q: %w", p.Name, err)
			}
			for i, opt := range p.Options {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO product_options (product_id, option, price, position) VALUES (?, ?, ?, ?)`,
					productID, opt.Name, opt.Price.String(), i); err != nil {
					return fmt.Errorf("store: seed %q option %q: %w", p.Name, opt.Name, err)
				}
			}
			res.Added = append(res.Added, p.Name)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return res, nil
}

// RemoveProduct deletes a product and its options. Orders already placed
// keep their snapshot.
func (s *SQLite) RemoveProduct(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("store: remove product %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: remove product %q: %w", name, err)
	}
	return n > 0, nil
}
