package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kasir-be/internal/logger"

	"go.uber.org/zap"
)

const (
	MidtransSandboxURL    = "https://api.sandbox.midtrans.com"
	MidtransProductionURL = "https://api.midtrans.com"

	midtransTimeLayout = "2006-01-02 15:04:05"
)

type midtransGateway struct {
	serverKey  string
	baseURL    string
	httpClient *http.Client
	jakartaLoc *time.Location
}

// ----------------- Constructor -----------------

func NewMidtransGateway(serverKey, baseURL string, timeout time.Duration) Gateway {
	if serverKey == "" {
		logger.L().Warn("Midtrans server key is empty")
	}
	if baseURL == "" {
		baseURL = MidtransSandboxURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		logger.L().Error("failed to load Jakarta location, defaulting to UTC", zap.Error(err))
		loc = time.UTC
	}

	return &midtransGateway{
		serverKey:  serverKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		jakartaLoc: loc,
	}
}

type midtransItem struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

type midtransChargeRequest struct {
	PaymentType        string `json:"payment_type"`
	TransactionDetails struct {
		OrderID     string      `json:"order_id"`
		GrossAmount json.Number `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []midtransItem `json:"item_details"`
	CustomerDetails Customer       `json:"customer_details"`
}

type midtransAction struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type midtransResponse struct {
	StatusCode        string           `json:"status_code"`
	StatusMessage     string           `json:"status_message"`
	TransactionID     string           `json:"transaction_id"`
	OrderID           string           `json:"order_id"`
	TransactionStatus string           `json:"transaction_status"`
	QRString          string           `json:"qr_string"`
	ExpiryTime        string           `json:"expiry_time"`
	Actions           []midtransAction `json:"actions"`
}

// ----------------- Charge -----------------

func (m *midtransGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("order_id", req.OrderID),
		zap.String("gross_amount", req.GrossAmount.StringFixed(2)),
	)

	if err := ValidateItems(req); err != nil {
		log.Error("refusing charge with unbalanced items", zap.Error(err))
		return nil, err
	}

	var body midtransChargeRequest
	body.PaymentType = TypeQRIS
	body.TransactionDetails.OrderID = req.OrderID
	body.TransactionDetails.GrossAmount = json.Number(req.GrossAmount.StringFixed(2))
	body.CustomerDetails = req.Customer
	for _, it := range req.Items {
		body.ItemDetails = append(body.ItemDetails, midtransItem{
			ID:       it.ID,
			Name:     truncate(it.Name, 50),
			Price:    json.Number(it.Price.StringFixed(2)),
			Quantity: it.Quantity,
		})
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Error("Failed to marshal charge request", zap.Error(err))
		return nil, err
	}

	log.Info("Sending charge request to Midtrans")

	bodyBytes, err := m.do(ctx, http.MethodPost, "/v2/charge", jsonBody)
	if err != nil {
		log.Error("Midtrans charge failed", zap.Error(err))
		return nil, err
	}

	var res midtransResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding Midtrans response", zap.Error(err))
		return nil, fmt.Errorf("%w: decode charge response: %v", ErrGateway, err)
	}

	if !strings.HasPrefix(res.StatusCode, "2") {
		log.Error("Midtrans rejected charge",
			zap.String("status_code", res.StatusCode),
			zap.String("status_message", res.StatusMessage),
		)
		return nil, fmt.Errorf("%w: %s %s", ErrGateway, res.StatusCode, res.StatusMessage)
	}

	out := &ChargeResponse{
		TransactionID:     res.TransactionID,
		OrderID:           res.OrderID,
		TransactionStatus: res.TransactionStatus,
		QRString:          res.QRString,
		Raw:               json.RawMessage(bodyBytes),
	}
	for _, a := range res.Actions {
		if a.Name == "generate-qr-code" && out.QRImageURL == "" {
			out.QRImageURL = a.URL
		}
	}
	if res.ExpiryTime != "" {
		if t, err := time.ParseInLocation(midtransTimeLayout, res.ExpiryTime, m.jakartaLoc); err == nil {
			out.ExpiresAt = &t
		} else {
			log.Warn("unparseable expiry time", zap.String("expiry_time", res.ExpiryTime))
		}
	}

	log.Info("Midtrans charge created",
		zap.String("transaction_id", out.TransactionID),
		zap.String("transaction_status", out.TransactionStatus),
	)
	return out, nil
}

// ----------------- Cancel -----------------

func (m *midtransGateway) Cancel(ctx context.Context, orderID string) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "gateway"), zap.String("order_id", orderID))

	bodyBytes, err := m.do(ctx, http.MethodPost, "/v2/"+orderID+"/cancel", nil)
	if err != nil {
		log.Error("Midtrans cancel failed", zap.Error(err))
		return err
	}

	var res midtransResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return fmt.Errorf("%w: decode cancel response: %v", ErrGateway, err)
	}
	if !strings.HasPrefix(res.StatusCode, "2") {
		log.Error("Failed to cancel payment",
			zap.String("status_code", res.StatusCode),
			zap.String("status_message", res.StatusMessage),
		)
		return fmt.Errorf("%w: cancel %s %s", ErrGateway, res.StatusCode, res.StatusMessage)
	}

	log.Info("Payment cancelled successfully")
	return nil
}

// ----------------- Verify Signature -----------------

func (m *midtransGateway) VerifyNotification(n Notification) error {
	if m.serverKey == "" {
		return nil // skip in dev
	}

	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Signature is hex(SHA512(orderID + statusCode + grossAmount + serverKey)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (m *midtransGateway) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	req.SetBasicAuth(m.serverKey, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrGateway, resp.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
