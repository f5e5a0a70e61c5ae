package httpx

import (
	"errors"
	"net/http"
	"time"

	"kasir-be/internal/logger"
	"kasir-be/internal/order"
	"kasir-be/internal/product"
	"kasir-be/internal/promotion"
	"kasir-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CatalogHandler serves the reads a cashier needs while building a cart:
// current price and stock of a product and the promotions usable now.
type CatalogHandler struct {
	Products   product.Repository
	Promotions promotion.Repository
	Now        func() time.Time
	Timeout    time.Duration
}

func (h *CatalogHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.ParseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, string(order.KindNotFound), product.ErrProductNotFound.Error())
		return
	}

	ctx, cancel := withTimeout(r.Context(), h.Timeout)
	defer cancel()

	p, err := h.Products.GetByID(ctx, id)
	if errors.Is(err, product.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, string(order.KindNotFound), err.Error())
		return
	}
	if err != nil {
		h.unavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) listActivePromotions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context(), h.Timeout)
	defer cancel()

	promos, err := h.Promotions.ListActive(ctx, h.now())
	if err != nil {
		h.unavailable(w, r, err)
		return
	}
	if promos == nil {
		promos = []*promotion.Promotion{}
	}
	writeJSON(w, http.StatusOK, promos)
}

func (h *CatalogHandler) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromCtx(r.Context()).Error("catalog read failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errorDetail{
		Kind:      string(order.KindPersistence),
		Message:   "temporarily unavailable, retry later",
		Retryable: true,
	}})
}
