package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kasir-be/internal/db"
	"kasir-be/internal/order"
	"kasir-be/internal/payment"
	"kasir-be/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ---------- mocks ----------

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor utils.Actor, in order.CartInput) (*order.Order, error) {
	args := m.Called(ctx, actor, in)
	return nil, args.Error(1)
}

func (m *MockOrderService) VoidOrder(ctx context.Context, actor utils.Actor, id, reason string) (*order.Order, error) {
	args := m.Called(ctx, actor, id, reason)
	return nil, args.Error(1)
}

func (m *MockOrderService) HandlePaymentNotification(ctx context.Context, n payment.Notification) (*order.NotificationResult, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.NotificationResult), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	args := m.Called(ctx, id)
	return nil, args.Error(1)
}

func (m *MockOrderService) GetOrderByCode(ctx context.Context, code string) (*order.Order, error) {
	args := m.Called(ctx, code)
	return nil, args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, f order.ListFilter) (*order.ListResult, error) {
	args := m.Called(ctx, f)
	return nil, args.Error(1)
}

func (m *MockOrderService) ListOrdersByDateRange(ctx context.Context, from, to time.Time) ([]*order.Order, error) {
	args := m.Called(ctx, from, to)
	return nil, args.Error(1)
}

func (m *MockOrderService) GetStats(ctx context.Context, r order.StatsRange) (*order.Stats, error) {
	args := m.Called(ctx, r)
	return nil, args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) SavePayment(ctx context.Context, q db.Querier, p *payment.Payment) error {
	return m.Called(ctx, q, p).Error(0)
}

func (m *MockPaymentRepository) UpdatePaymentStatus(ctx context.Context, q db.Querier, gatewayOrderID, status string) error {
	return m.Called(ctx, q, gatewayOrderID, status).Error(0)
}

func (m *MockPaymentRepository) SavePaymentWebhook(ctx context.Context, provider, eventID, eventType, externalID string, payload json.RawMessage, valid bool) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, externalID, payload, valid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPaymentRepository) MarkWebhookProcessed(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPaymentRepository) MarkWebhookFailed(ctx context.Context, id int64, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

// ---------- helpers ----------

const serverKey = "SB-Mid-server-test"

func signedPayload(t *testing.T, orderID, status, fraud, gross string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"transaction_id":     "tx-1",
		"order_id":           orderID,
		"transaction_status": status,
		"fraud_status":       fraud,
		"status_code":        "200",
		"gross_amount":       gross,
		"signature_key":      payment.Signature(orderID, "200", gross, serverKey),
	})
	require.NoError(t, err)
	return body
}

func newHandler() (*Handler, *MockOrderService, *MockPaymentRepository) {
	svc := new(MockOrderService)
	repo := new(MockPaymentRepository)
	gw := payment.NewMidtransGateway(serverKey, "http://gateway.invalid", time.Second)
	return NewWebhookHandler(svc, gw, repo), svc, repo
}

func post(h *Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/midtrans", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	h.PaymentWebhookHandler(w, req)
	return w
}

func TestHandler_PaymentWebhookHandler(t *testing.T) {
	paid := &order.NotificationResult{Order: &order.Order{PaymentStatus: order.StatusPaid}, Applied: true}

	t.Run("Success_Settlement", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-1", "settlement", "accept", "330.00")

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderMidtrans, "tx-1:settlement", "settlement", "TRX-1", mock.Anything, true).
			Return(int64(1), false, nil)
		svc.On("HandlePaymentNotification", mock.Anything, mock.MatchedBy(func(n payment.Notification) bool {
			return n.OrderID == "TRX-1" && n.GrossAmount == "330.00" && n.FraudStatus == "accept"
		})).Return(paid, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil)

		w := post(h, body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","applied":true}`, w.Body.String())
		svc.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("Invalid_Signature", func(t *testing.T) {
		h, svc, repo := newHandler()
		var payload map[string]string
		require.NoError(t, json.Unmarshal(signedPayload(t, "TRX-1", "settlement", "", "330.00"), &payload))
		payload["gross_amount"] = "1.00"
		body, _ := json.Marshal(payload)

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderMidtrans, mock.Anything, "settlement", "TRX-1", mock.Anything, false).
			Return(int64(2), false, nil)

		w := post(h, body)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "HandlePaymentNotification", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("Duplicate_Webhook", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-1", "settlement", "accept", "330.00")

		repo.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(3), true, nil)

		w := post(h, body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "duplicate")
		svc.AssertNotCalled(t, "HandlePaymentNotification", mock.Anything, mock.Anything)
	})

	t.Run("Unknown_Order", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-404", "settlement", "", "10.00")
		notFound := &order.Error{Kind: order.KindNotFound, Err: order.ErrNotFound}

		repo.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(4), false, nil)
		svc.On("HandlePaymentNotification", mock.Anything, mock.Anything).Return(nil, notFound)
		repo.On("MarkWebhookFailed", mock.Anything, int64(4), notFound.Error()).Return(nil)

		w := post(h, body)

		assert.Equal(t, http.StatusNotFound, w.Code)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "MarkWebhookProcessed", mock.Anything, mock.Anything)
	})

	t.Run("Amount_Mismatch", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-1", "settlement", "", "1.00")
		mismatch := &order.Error{Kind: order.KindValidation, Err: fmt.Errorf("%w: got 1.00", order.ErrAmountMismatch)}

		repo.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(5), false, nil)
		svc.On("HandlePaymentNotification", mock.Anything, mock.Anything).Return(nil, mismatch)
		repo.On("MarkWebhookFailed", mock.Anything, int64(5), mock.Anything).Return(nil)

		w := post(h, body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Processing_Error", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-1", "expire", "", "330.00")

		repo.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(6), false, nil)
		svc.On("HandlePaymentNotification", mock.Anything, mock.Anything).
			Return(nil, &order.Error{Kind: order.KindPersistence, Err: errors.New("db error")})
		repo.On("MarkWebhookFailed", mock.Anything, int64(6), "db error").Return(nil)

		w := post(h, body)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		repo.AssertExpectations(t)
	})

	t.Run("No_Change", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-1", "pending", "", "330.00")

		repo.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(7), false, nil)
		svc.On("HandlePaymentNotification", mock.Anything, mock.Anything).
			Return(&order.NotificationResult{Order: &order.Order{PaymentStatus: order.StatusPending}}, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(7)).Return(nil)

		w := post(h, body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("Invalid_JSON", func(t *testing.T) {
		h, _, repo := newHandler()

		w := post(h, []byte("{invalid-json"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		repo.AssertNotCalled(t, "SavePaymentWebhook")
	})

	t.Run("Missing_Fields", func(t *testing.T) {
		h, _, _ := newHandler()

		w := post(h, []byte(`{"transaction_status":"settlement"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Save_Webhook_Error", func(t *testing.T) {
		h, svc, repo := newHandler()
		body := signedPayload(t, "TRX-1", "settlement", "", "330.00")

		repo.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(0), false, errors.New("db error"))

		w := post(h, body)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		svc.AssertNotCalled(t, "HandlePaymentNotification", mock.Anything, mock.Anything)
	})
}
