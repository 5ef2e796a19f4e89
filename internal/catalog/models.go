package catalog

import (
	"context"
	"github.com/shopspring/decimal"
	"math"
	"time"
)

// Column limits of the products table.
const MaxAvailability = math.MaxInt32

// MaxPrice is the first price NUMERIC(12,2) cannot hold.
var MaxPrice = decimal.New(1, 10)

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Availability int             `json:"availability"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ItemQty is one product/quantity pair of a reservation.
type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Changes lists the product fields an update may touch. Availability is not
// among them.
type Changes struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
}

// Store persists products. Availability only changes through
// DecrementIfAvailable, ReserveAll and Increment.
type Store interface {
	Create(ctx context.Context, p Product) (Product, error)
	GetByID(ctx context.Context, id string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	ListAvailable(ctx context.Context) ([]Product, error)
	Update(ctx context.Context, id string, ch Changes) (Product, error)
	Delete(ctx context.Context, id string) error

	// DecrementIfAvailable subtracts qty when at least qty units remain.
	// It reports false, with the current product and no mutation, otherwise.
	DecrementIfAvailable(ctx context.Context, id string, qty int) (Product, bool, error)
	// ReserveAll decrements every item or none. The first shortage in list
	// order is returned as *apperr.StockError.
	ReserveAll(ctx context.Context, items []ItemQty) error
	Increment(ctx context.Context, id string, qty int) (Product, error)
}
