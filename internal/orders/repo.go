package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"time"
)

const orderColumns = `id, user_id, status, issue_date, end_date`

type PostgresStore struct{ DB postgres.DB }

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	var end *time.Time
	if err := row.Scan(&o.ID, &o.User.ID, &status, &o.IssueDate, &end); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if !o.Status.Valid() {
		return Order{}, fmt.Errorf("order %s has unknown status %q", o.ID, status)
	}
	o.EndDate = end
	return o, nil
}

func (s *PostgresStore) Create(ctx context.Context, o Order) (Order, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, issue_date, end_date)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.User.ID, string(o.Status), o.IssueDate, o.EndDate); err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	for i, p := range o.Products {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity)
			VALUES ($1, $2, $3, $4)`,
			o.ID, i, p.ID, o.Quantity[i]); err != nil {
			return Order{}, fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("Order not found")
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	out := []Order{o}
	if err := s.attachItems(ctx, out); err != nil {
		return Order{}, err
	}
	return out[0], nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1
		ORDER BY issue_date DESC, id
		LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	return out, s.attachItems(ctx, out)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status, endDate *time.Time) (Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `
		UPDATE orders SET status=$3, end_date=$4
		WHERE id=$1 AND status=$2
		RETURNING `+orderColumns,
		id, string(from), string(to), endDate))
	if errors.Is(err, pgx.ErrNoRows) {
		var current string
		err = s.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound("Order not found")
		}
		if err != nil {
			return Order{}, fmt.Errorf("get order status %s: %w", id, err)
		}
		return Order{}, apperr.InvalidTransition("order status changed to %q in the meantime", current)
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order status %s: %w", id, err)
	}
	out := []Order{o}
	if err := s.attachItems(ctx, out); err != nil {
		return Order{}, err
	}
	return out[0], nil
}

func (s *PostgresStore) ReferencesProduct(ctx context.Context, productID string) (bool, error) {
	var used bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id=$1)`, productID).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("product references: %w", err)
	}
	return used, nil
}

// attachItems fills Products and Quantity of every order in place.
func (s *PostgresStore) attachItems(ctx context.Context, list []Order) error {
	ids := make([]string, 0, len(list))
	index := make(map[string]int, len(list))
	for i, o := range list {
		ids = append(ids, o.ID)
		index[o.ID] = i
	}

	rows, err := s.DB.Query(ctx, `
		SELECT oi.order_id, oi.product_id, p.name, oi.quantity
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var ref ProductRef
		var qty int
		if err := rows.Scan(&orderID, &ref.ID, &ref.Name, &qty); err != nil {
			return err
		}
		i := index[orderID]
		list[i].Products = append(list[i].Products, ref)
		list[i].Quantity = append(list[i].Quantity, qty)
	}
	return rows.Err()
}
