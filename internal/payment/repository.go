package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kasir-be/internal/db"
)

type Repository interface {
	SavePayment(ctx context.Context, q db.Querier, p *Payment) error
	UpdatePaymentStatus(ctx context.Context, q db.Querier, gatewayOrderID, status string) error

	// SavePaymentWebhook records an inbound event. alreadyProcessed is true
	// only when the same event was stored before and handled successfully.
	SavePaymentWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		externalID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, alreadyProcessed bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SavePayment(ctx context.Context, q db.Querier, p *Payment) error {
	if q == nil {
		q = r.db
	}

	raw := p.RawResponse
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO payments (
			order_id,
			provider,
			gateway_order_id,
			gateway_transaction_id,
			payment_type,
			amount,
			status,
			qr_string,
			qr_image_url,
			expire_at,
			raw_response
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		p.OrderID, p.Provider, p.GatewayOrderID, p.GatewayTransactionID, p.PaymentType,
		p.Amount, p.Status, p.QRString, p.QRImageURL, p.ExpireAt, []byte(raw),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, q db.Querier, gatewayOrderID, status string) error {
	if q == nil {
		q = r.db
	}

	_, err := q.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW() WHERE gateway_order_id = $2
	`, status, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *repository) SavePaymentWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	externalID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	// A redelivered event that failed before is handed back for another attempt.
	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_type,
		event_id,
		external_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET received_count = payment_webhooks.received_count + 1,
		payload = EXCLUDED.payload
	RETURNING id, processed_at IS NOT NULL;
	`

	var (
		id        int64
		processed bool
	)
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventType,
		eventID,
		externalID,
		signatureValid,
		[]byte(payload),
	).Scan(&id, &processed)
	if err != nil {
		return 0, false, fmt.Errorf("save webhook: %w", err)
	}

	return id, processed, nil
}

func (r *repository) MarkWebhookProcessed(
	ctx context.Context,
	webhookID int64,
) error {

	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(
	ctx context.Context,
	webhookID int64,
	reason string,
) error {

	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
