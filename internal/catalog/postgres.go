package catalog

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"sort"
)

const productColumns = `id, name, description, price::text, availability, created_at, updated_at`

type PostgresStore struct{ DB postgres.DB }

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Availability, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	p.Price = d
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const (
	codeOutOfRange          = "22003"
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

func (s *PostgresStore) Create(ctx context.Context, p Product) (Product, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, availability)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Price.String(), p.Availability)
	out, err := scanProduct(row)
	if isUniqueViolation(err) {
		return Product{}, apperr.New(apperr.ErrConflict, "product name %q already exists", p.Name)
	}
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

func (s *PostgresStore) ListAvailable(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE availability <> 0 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list available products: %w", err)
	}
	return collectProducts(rows)
}

func (s *PostgresStore) Update(ctx context.Context, id string, ch Changes) (Product, error) {
	var name, description, price *string
	name, description = ch.Name, ch.Description
	if ch.Price != nil {
		v := ch.Price.String()
		price = &v
	}
	row := s.DB.QueryRow(ctx, `
		UPDATE products SET
			name        = COALESCE($2, name),
			description = COALESCE($3, description),
			price       = COALESCE($4::numeric, price),
			updated_at  = now()
		WHERE id=$1
		RETURNING `+productColumns,
		id, name, description, price)
	p, err := scanProduct(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Product{}, apperr.NotFound("product %s not found", id)
	case isUniqueViolation(err):
		return Product{}, apperr.New(apperr.ErrConflict, "product name %q already exists", *ch.Name)
	case err != nil:
		return Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if hasCode(err, codeForeignKeyViolation) {
		return apperr.New(apperr.ErrConflict, "product %s is referenced by orders and cannot be deleted", id)
	}
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product %s not found", id)
	}
	return nil
}

func (s *PostgresStore) DecrementIfAvailable(ctx context.Context, id string, qty int) (Product, bool, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE products SET availability = availability - $2, updated_at = now()
		WHERE id=$1 AND availability >= $2
		RETURNING `+productColumns, id, qty)
	p, err := scanProduct(row)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, false, fmt.Errorf("decrement product %s: %w", id, err)
	}
	// Either the product is missing or stock is short; tell them apart.
	p, err = s.GetByID(ctx, id)
	if err != nil {
		return Product{}, false, err
	}
	return p, false, nil
}

// ReserveAll locks every involved row in id order, checks the items in list
// order and only then writes the decrements.
func (s *PostgresStore) ReserveAll(ctx context.Context, items []ItemQty) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := distinctIDs(items)
	rows, err := tx.Query(ctx, `SELECT id, name, availability FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	type stock struct {
		name      string
		available int
	}
	locked := make(map[string]*stock, len(ids))
	for rows.Next() {
		var id string
		st := &stock{}
		if err := rows.Scan(&id, &st.name, &st.available); err != nil {
			rows.Close()
			return err
		}
		locked[id] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, it := range items {
		st, ok := locked[it.ProductID]
		if !ok {
			return apperr.NotFound("product %s not found", it.ProductID)
		}
		if st.available < it.Qty {
			return &apperr.StockError{ProductID: it.ProductID, ProductName: st.name, Available: st.available, Requested: it.Qty}
		}
		st.available -= it.Qty
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `UPDATE products SET availability = availability - $2, updated_at = now() WHERE id=$1`, it.ProductID, it.Qty); err != nil {
			return fmt.Errorf("reserve product %s: %w", it.ProductID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Increment(ctx context.Context, id string, qty int) (Product, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE products SET availability = availability + $2, updated_at = now()
		WHERE id=$1
		RETURNING `+productColumns, id, qty)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	if hasCode(err, codeOutOfRange) {
		return Product{}, apperr.Validation("availability of product %s cannot exceed %d", id, MaxAvailability)
	}
	if err != nil {
		return Product{}, fmt.Errorf("increment product %s: %w", id, err)
	}
	return p, nil
}

func distinctIDs(items []ItemQty) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	sort.Strings(ids)
	return ids
}
