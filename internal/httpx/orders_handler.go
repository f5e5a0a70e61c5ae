package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kasir-be/internal/idempotency"
	"kasir-be/internal/logger"
	"kasir-be/internal/order"
	"kasir-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader    = "Idempotency-Key"
	IdempotentReplayHeader  = "Idempotent-Replayed"
	maxOrderBodyBytes       = 1 << 20
	maxIdempotencyKeyLength = 128
)

// OrdersHandler exposes order.Service over HTTP. Idem is optional.
type OrdersHandler struct {
	Orders   order.Service
	Idem     idempotency.Store
	Location *time.Location
	Timeout  time.Duration
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Get("/range", h.listOrdersByRange)
	r.Get("/stats", h.getStats)
	r.Get("/code/{code}", h.getOrderByCode)
	r.Get("/{id}", h.getOrder)
}

func (h *OrdersHandler) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h *OrdersHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, h.Timeout)
}

// withTimeout bounds a request's downstream work; d <= 0 means no bound.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type voidOrderReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("layer", "http"), zap.String("method", "createOrder"))

	var in order.CartInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "invalid JSON payload")
		return
	}

	actor, _ := utils.ActorFromContext(r.Context())
	idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(idemKey) > maxIdempotencyKeyLength {
		writeError(w, http.StatusBadRequest, kindBadRequest, "idempotency key too long")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	guarded := false
	if h.Idem != nil && idemKey != "" {
		state, orderID, err := h.Idem.Begin(ctx, actor.UserID, idemKey)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			writeError(w, http.StatusConflict, kindIdempotencyConflict, err.Error())
			return
		case err != nil:
			// redis is a fast path only; the order code constraint still holds
			log.Warn("idempotency store unavailable", zap.Error(err))
		case state == idempotency.StateDone:
			o, err := h.Orders.GetOrder(ctx, strconv.FormatInt(orderID, 10))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			w.Header().Set(IdempotentReplayHeader, "true")
			writeJSON(w, http.StatusOK, o)
			return
		default:
			guarded = true
		}
	}

	o, err := h.Orders.CreateOrder(ctx, actor, in)
	if err != nil {
		if guarded {
			if relErr := h.Idem.Release(context.WithoutCancel(ctx), actor.UserID, idemKey); relErr != nil {
				log.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		writeServiceError(w, r, err)
		return
	}

	if guarded {
		if err := h.Idem.Complete(context.WithoutCancel(ctx), actor.UserID, idemKey, o.ID); err != nil {
			log.Warn("failed to complete idempotency key", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) voidOrder(w http.ResponseWriter, r *http.Request) {
	var req voidOrderReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "invalid JSON payload")
		return
	}

	actor, _ := utils.ActorFromContext(r.Context())

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	o, err := h.Orders.VoidOrder(ctx, actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderByCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	o, err := h.Orders.GetOrderByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.location()

	f := order.ListFilter{Search: q.Get("search")}
	var err error
	if f.StartDate, err = optionalDate(q, "startDate", loc); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}
	if f.EndDate, err = optionalDate(q, "endDate", loc); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}
	if f.Voided, err = optionalBool(q, "voided"); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}
	if f.Limit, err = optionalInt(q, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}
	if f.Page, err = optionalInt(q, "page"); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := order.PaymentStatus(strings.ToLower(raw))
		f.Status = &status
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	res, err := h.Orders.ListOrders(ctx, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) listOrdersByRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.location()

	from, err := parseDate(q.Get("from"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), "from: "+err.Error())
		return
	}
	to, err := parseDate(q.Get("to"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), "to: "+err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	orders, err := h.Orders.ListOrdersByDateRange(ctx, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) getStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var rng order.StatsRange
	var err error
	if rng.Date, err = optionalDate(q, "date", h.location()); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}
	if rng.Days, err = optionalInt(q, "days"); err != nil {
		writeError(w, http.StatusBadRequest, string(order.KindValidation), err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	stats, err := h.Orders.GetStats(ctx, rng)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
