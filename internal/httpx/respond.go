package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"kasir-be/internal/logger"
	"kasir-be/internal/order"

	"go.uber.org/zap"
)

const (
	kindIdempotencyConflict = "idempotency_conflict"
	kindBadRequest          = "bad_request"
)

type errorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	ProductID int64  `json:"productId,omitempty"`
	OrderID   int64  `json:"orderId,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, errorResponse{Error: errorDetail{Kind: kind, Message: message}})
}

// statusFor maps an order error kind to its HTTP status.
func statusFor(kind order.Kind) int {
	switch kind {
	case order.KindValidation:
		return http.StatusBadRequest
	case order.KindInsufficientStock, order.KindAlreadyVoided:
		return http.StatusConflict
	case order.KindPaymentGateway:
		return http.StatusBadGateway
	case order.KindNotFound:
		return http.StatusNotFound
	case order.KindPromotionInapplicable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// writeServiceError renders an error returned by order.Service.
// Persistence failures hide their cause from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := order.KindOf(err)
	detail := errorDetail{Kind: string(kind), Message: err.Error()}

	var oe *order.Error
	if errors.As(err, &oe) {
		detail.ProductID = oe.ProductID
		detail.OrderID = oe.OrderID
		detail.Retryable = oe.Retryable()
	}

	if kind == order.KindPersistence {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		detail.Message = "temporarily unavailable, retry later"
	}

	writeJSON(w, statusFor(kind), errorResponse{Error: detail})
}
