package httpx

import (
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"net/http"
)

type ProductsHandler struct {
	Catalog *catalog.Service
	Ledger  *inventory.Ledger
	Logger  *zap.Logger
}

type CreateProductReq struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	Price        decimal.Decimal `json:"price"`
	Availability int             `json:"availability" validate:"gte=0,lte=2147483647"`
}

type UpdateProductReq struct {
	Name        *string          `json:"name" validate:"omitnil,min=1,max=200"`
	Description *string          `json:"description" validate:"omitnil,max=2000"`
	Price       *decimal.Decimal `json:"price"`
}

type RestockReq struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=2147483647"`
}

// Register mounts the product routes. Reads are public; writes go through
// auth.
func (h *ProductsHandler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/products", h.list)
	r.Get("/products-availability", h.listAvailable)
	r.Get("/products/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/products", h.create)
		r.Patch("/products/{id}", h.update)
		r.Delete("/products/{id}", h.delete)
		r.Post("/products/{id}/restock", h.restock)
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) listAvailable(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListAvailable(r.Context())
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	p, err := h.Catalog.Create(r.Context(), catalog.NewProduct{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Availability: req.Availability,
	})
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	p, err := h.Catalog.Update(r.Context(), chi.URLParam(r, "id"), catalog.Changes{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	p, err := h.Ledger.Restore(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
