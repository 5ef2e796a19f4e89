package orders

import (
	"context"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"time"
)

type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserRef struct {
	ID string `json:"id"`
}

// Order keeps Products and Quantity as parallel slices: Quantity[i] units of
// Products[i].
type Order struct {
	ID        string       `json:"id"`
	Products  []ProductRef `json:"products"`
	User      UserRef      `json:"user"`
	Quantity  []int        `json:"quantity"`
	Status    Status       `json:"status"`
	IssueDate time.Time    `json:"issue_date"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
}

// Items pairs each product with its quantity.
func (o Order) Items() []catalog.ItemQty {
	out := make([]catalog.ItemQty, 0, len(o.Products))
	for i, p := range o.Products {
		out = append(out, catalog.ItemQty{ProductID: p.ID, Qty: o.Quantity[i]})
	}
	return out
}

// Store persists orders. GetByID returns apperr.ErrNotFound for an unknown id.
type Store interface {
	Create(ctx context.Context, o Order) (Order, error)
	GetByID(ctx context.Context, id string) (Order, error)
	// ListByUser returns one page of the user's orders, newest first. Page is
	// 1-based.
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, error)
	// UpdateStatus moves the order from status `from` to `to`. It fails with
	// apperr.ErrInvalidTransition when the stored status is no longer `from`.
	UpdateStatus(ctx context.Context, id string, from, to Status, endDate *time.Time) (Order, error)
}
