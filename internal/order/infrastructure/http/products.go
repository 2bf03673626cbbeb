package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	inventoryapp "github.com/dmehra2102/catalog-checkout/internal/inventory/application"
)

type stockRequest struct {
	StockQuantity int `json:"stock_quantity"`
}

type batchRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListProducts")
	defer span.End()

	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))
	write(w, span, h.products.List(ctx, pageOf(r), includeInactive))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetProduct")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	write(w, span, h.products.Get(ctx, id))
}

func (h *Handler) productsByIDs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetProductsByIDs")
	defer span.End()

	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	write(w, span, h.products.GetByIDs(ctx, req.IDs))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateProduct")
	defer span.End()

	var req inventoryapp.CreateProductRequest
	if !decode(w, r, &req) {
		return
	}
	write(w, span, h.products.Create(ctx, req))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateProduct")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req inventoryapp.UpdateProductRequest
	if !decode(w, r, &req) {
		return
	}
	write(w, span, h.products.Update(ctx, id, req))
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateProductStock")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req stockRequest
	if !decode(w, r, &req) {
		return
	}
	write(w, span, h.products.UpdateStock(ctx, id, req.StockQuantity))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteProduct")
	defer span.End()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	write(w, span, h.products.Delete(ctx, id))
}
