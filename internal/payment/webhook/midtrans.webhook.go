package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"kasir-be/internal/logger"
	"kasir-be/internal/order"
	"kasir-be/internal/payment"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler receives asynchronous payment notifications from the gateway.
type Handler struct {
	OrderSvc order.Service
	Gateway  payment.Gateway
	PayRepo  payment.Repository
}

func NewWebhookHandler(orderSvc order.Service, gateway payment.Gateway, payRepo payment.Repository) *Handler {
	return &Handler{
		OrderSvc: orderSvc,
		Gateway:  gateway,
		PayRepo:  payRepo,
	}
}

type response struct {
	Status  string `json:"status"`
	Applied bool   `json:"applied,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PaymentWebhookHandler verifies, records and applies one notification.
// Every delivery is stored; a delivery already processed successfully is
// acknowledged without touching the order again.
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "webhook"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "failed to read body"})
		return
	}
	defer r.Body.Close()

	var n payment.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Info("invalid webhook payload", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "invalid JSON payload"})
		return
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "order_id and transaction_status are required"})
		return
	}

	log = log.With(
		zap.String("gateway_order_id", n.OrderID),
		zap.String("transaction_id", n.TransactionID),
		zap.String("transaction_status", n.TransactionStatus),
	)

	valid := h.Gateway.VerifyNotification(n) == nil

	webhookID, alreadyProcessed, err := h.PayRepo.SavePaymentWebhook(
		ctx,
		payment.ProviderMidtrans,
		n.EventID(),
		n.TransactionStatus,
		n.OrderID,
		json.RawMessage(body),
		valid,
	)
	if err != nil {
		log.Error("failed to save webhook", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{Status: "error", Error: "failed to record webhook"})
		return
	}

	if !valid {
		log.Warn("webhook signature rejected", zap.Int64("webhook_id", webhookID))
		writeJSON(w, http.StatusUnauthorized, response{Status: "error", Error: "invalid signature"})
		return
	}

	if alreadyProcessed {
		log.Info("duplicate webhook ignored", zap.Int64("webhook_id", webhookID))
		writeJSON(w, http.StatusOK, response{Status: "duplicate"})
		return
	}

	res, err := h.OrderSvc.HandlePaymentNotification(ctx, n)
	if err != nil {
		status := statusFor(err)
		if markErr := h.PayRepo.MarkWebhookFailed(ctx, webhookID, err.Error()); markErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(markErr))
		}
		log.Warn("webhook processing failed",
			zap.Int64("webhook_id", webhookID),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeJSON(w, status, response{Status: "error", Error: err.Error()})
		return
	}

	if err := h.PayRepo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		// the order change is committed; a redelivery is a no-op
		log.Error("failed to mark webhook processed", zap.Int64("webhook_id", webhookID), zap.Error(err))
	}

	log.Info("webhook processed",
		zap.Int64("webhook_id", webhookID),
		zap.Bool("applied", res.Applied),
		zap.String("payment_status", string(res.Order.PaymentStatus)),
	)
	writeJSON(w, http.StatusOK, response{Status: "ok", Applied: res.Applied})
}

// statusFor picks the HTTP status the gateway sees. 5xx asks for a retry.
func statusFor(err error) int {
	switch order.KindOf(err) {
	case order.KindNotFound:
		return http.StatusNotFound
	case order.KindValidation:
		return http.StatusBadRequest
	}
	if errors.Is(err, payment.ErrInvalidSignature) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
