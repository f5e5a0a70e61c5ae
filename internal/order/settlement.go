package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kasir-be/internal/db"
	"kasir-be/internal/logger"
	"kasir-be/internal/money"
	"kasir-be/internal/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HandlePaymentNotification reconciles a gateway callback with the order.
// Callbacks for voided or already-settled orders are acknowledged without
// side effects, so redeliveries are safe.
func (s *service) HandlePaymentNotification(ctx context.Context, n payment.Notification) (*NotificationResult, error) {
	const op = "handle payment notification"

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "HandlePaymentNotification"),
		zap.String("gateway_order_id", n.OrderID),
		zap.String("transaction_status", n.TransactionStatus),
		zap.String("fraud_status", n.FraudStatus),
	)

	gatewayOrderID := strings.TrimSpace(n.OrderID)
	if gatewayOrderID == "" {
		return nil, validationError(op, "notification has no order id")
	}

	gross, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil {
		return nil, validationError(op, "invalid gross amount %q", n.GrossAmount)
	}

	next := statusFromOutcome(payment.ResolveOutcome(n.TransactionStatus, n.FraudStatus))

	var result NotificationResult
	err = s.Tx.WithinTx(ctx, func(q db.Querier) error {
		o, err := s.Repo.LockByGatewayOrderID(ctx, q, gatewayOrderID)
		if err != nil {
			return err
		}
		result.Order = o

		if !money.Round2(gross).Equal(o.GrandTotal) {
			return &Error{
				Kind:    KindValidation,
				Op:      op,
				OrderID: o.ID,
				Err:     fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, gross.StringFixed(2), o.GrandTotal.StringFixed(2)),
			}
		}

		if o.IsVoided || o.PaymentStatus.Terminal() || !CanTransition(o.PaymentStatus, next) {
			return nil
		}

		var paidAt *time.Time
		if next == StatusPaid {
			now := s.cfg.Now()
			paidAt = &now
		}

		updated, err := s.Repo.UpdatePaymentStatus(ctx, q, o.ID, next, paidAt, strings.TrimSpace(n.TransactionID))
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}

		if s.Payments != nil {
			if err := s.Payments.UpdatePaymentStatus(ctx, q, gatewayOrderID, string(next)); err != nil {
				return err
			}
		}

		o.PaymentStatus = next
		if paidAt != nil {
			o.PaidAt = paidAt
		}
		if txID := strings.TrimSpace(n.TransactionID); o.GatewayTransactionID == nil && txID != "" {
			o.GatewayTransactionID = &txID
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		err = classify(op, err)
		log.Warn("payment notification rejected", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return nil, err
	}

	if !result.Applied {
		log.Info("payment notification acknowledged without change",
			zap.String("payment_status", string(result.Order.PaymentStatus)),
			zap.Bool("is_voided", result.Order.IsVoided),
		)
		return &result, nil
	}

	eventType := EventOrderPaid
	if result.Order.PaymentStatus == StatusFailed {
		eventType = EventOrderPaymentFailed
	}
	s.publish(ctx, newEvent(eventType, result.Order, nil, s.cfg.Now()))
	s.Metrics.PaymentTransition(string(result.Order.PaymentStatus))

	log.Info("payment status updated",
		zap.Int64("order_id", result.Order.ID),
		zap.String("payment_status", string(result.Order.PaymentStatus)),
	)
	return &result, nil
}
