package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasir-be/internal/db"
	"kasir-be/internal/inventory"
	"kasir-be/internal/logger"
	"kasir-be/internal/money"
	"kasir-be/internal/payment"
	"kasir-be/internal/pricing"
	"kasir-be/internal/promotion"
	"kasir-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCodeAttempts = 5

type Service interface {
	CreateOrder(ctx context.Context, actor utils.Actor, in CartInput) (*Order, error)
	VoidOrder(ctx context.Context, actor utils.Actor, id string, reason string) (*Order, error)
	HandlePaymentNotification(ctx context.Context, n payment.Notification) (*NotificationResult, error)

	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByCode(ctx context.Context, code string) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) (*ListResult, error)
	ListOrdersByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error)
	GetStats(ctx context.Context, r StatsRange) (*Stats, error)
}

type Config struct {
	TaxRate        decimal.Decimal
	CodePrefix     string
	GatewayTimeout time.Duration
	CodeAttempts   int
	Location       *time.Location
	Now            func() time.Time
	NewCode        func(prefix string) string
}

type Deps struct {
	Tx         db.TxRunner
	Repo       Repository
	Inventory  inventory.Manager
	Promotions promotion.Repository
	Evaluator  *pricing.Evaluator
	Payments   payment.Repository
	Gateway    payment.Gateway
	Events     EventPublisher
	Metrics    Metrics
}

type service struct {
	cfg Config
	Deps
}

func NewService(cfg Config, deps Deps) Service {
	if cfg.CodePrefix == "" {
		cfg.CodePrefix = "TRX"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = defaultCodeAttempts
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewCode == nil {
		cfg.NewCode = utils.GenerateOrderCode
	}
	if deps.Evaluator == nil {
		deps.Evaluator = pricing.NewEvaluator(cfg.Now)
	}
	if deps.Events == nil {
		deps.Events = NopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &service{cfg: cfg, Deps: deps}
}

func (s *service) CreateOrder(ctx context.Context, actor utils.Actor, in CartInput) (*Order, error) {
	const op = "create order"

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
	)

	start := time.Now()

	cart, err := NewCart(in)
	if err != nil {
		log.Info("cart rejected", zap.Error(err))
		s.Metrics.OrderFailed(string(KindValidation))
		return nil, err
	}

	promos := s.resolvePromotions(ctx, cart)

	var created *Order
	for attempt := 1; attempt <= s.cfg.CodeAttempts; attempt++ {
		code := s.cfg.NewCode(s.cfg.CodePrefix)

		var charged string
		err = s.Tx.WithinTx(ctx, func(q db.Querier) error {
			o, err := s.createInTx(ctx, q, actor, cart, promos, code, &charged)
			if err != nil {
				return err
			}
			created = o
			return nil
		})
		if err == nil {
			break
		}
		// The order row was rolled back, so the charge it opened must not
		// stay live at the gateway.
		if charged != "" {
			s.cancelGatewayPayment(context.WithoutCancel(ctx), charged)
		}
		if db.IsUniqueViolation(err, OrderCodeConstraint) {
			log.Warn("order code collision, retrying",
				zap.String("order_code", code),
				zap.Int("attempt", attempt),
			)
			s.Metrics.CodeCollision()
			created = nil
			continue
		}
		break
	}

	if err != nil {
		if db.IsUniqueViolation(err, OrderCodeConstraint) {
			err = newError(KindPersistence, op,
				fmt.Errorf("%w: no unique order code after %d attempts", ErrPersistence, s.cfg.CodeAttempts))
		}
		err = classify(op, err)
		log.Warn("create order failed",
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		s.Metrics.OrderFailed(string(KindOf(err)))
		return nil, err
	}

	s.publish(ctx, newEvent(EventOrderCreated, created, actor.UserIDPtr(), s.cfg.Now()))
	s.Metrics.OrderCreated(string(created.PaymentMethod), created.GrandTotal.InexactFloat64())

	log.Info("order created",
		zap.Int64("order_id", created.ID),
		zap.String("order_code", created.OrderCode),
		zap.String("grand_total", created.GrandTotal.StringFixed(2)),
		zap.String("payment_status", string(created.PaymentStatus)),
		zap.Duration("duration", time.Since(start)),
	)
	return created, nil
}

// resolvePromotions loads every referenced promotion before the
// transaction. Failures are logged and leave the promotion out.
func (s *service) resolvePromotions(ctx context.Context, cart *Cart) map[int64]*promotion.Promotion {
	out := map[int64]*promotion.Promotion{}
	if s.Promotions == nil {
		return out
	}

	log := logger.FromCtx(ctx).With(zap.String("layer", "service"))
	for _, id := range cart.PromotionIDs() {
		p, err := s.Promotions.GetByID(ctx, id)
		if err != nil {
			log.Info("promotion not resolved",
				zap.String("kind", string(KindPromotionInapplicable)),
				zap.Int64("promotion_id", id),
				zap.Error(err),
			)
			continue
		}
		out[id] = p
	}
	return out
}

func (s *service) createInTx(
	ctx context.Context,
	q db.Querier,
	actor utils.Actor,
	cart *Cart,
	promos map[int64]*promotion.Promotion,
	code string,
	charged *string,
) (*Order, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "service"), zap.String("order_code", code))

	locked, err := s.Inventory.Lock(ctx, q, cart.ProductIDs())
	if err != nil {
		return nil, err
	}

	items := make([]OrderItem, 0, len(cart.Lines))
	reserve := make([]inventory.Item, 0, len(cart.Lines))
	lineTotals := make([]decimal.Decimal, 0, len(cart.Lines))
	lineDiscounts := make([]decimal.Decimal, 0, len(cart.Lines))

	for _, line := range cart.Lines {
		var promo *promotion.Promotion
		if line.PromotionID != nil {
			promo = promos[*line.PromotionID]
		}

		quote, err := s.Evaluator.PriceLine(locked[line.ProductID], line, promo)
		if err != nil {
			log.Info("promotion inapplicable, using base price",
				zap.String("kind", string(KindPromotionInapplicable)),
				zap.Int64("product_id", line.ProductID),
				zap.Error(err),
			)
		}

		items = append(items, OrderItem{
			ProductID:        quote.ProductID,
			ProductName:      quote.ProductName,
			OriginalPrice:    quote.OriginalPrice,
			UnitPrice:        quote.UnitPrice,
			Quantity:         quote.Quantity,
			Subtotal:         quote.Subtotal,
			DiscountAmount:   quote.DiscountAmount,
			MarkupPercentage: quote.MarkupPercentage,
			PromotionID:      quote.PromotionID,
			Total:            quote.LineTotal,
		})
		reserve = append(reserve, inventory.Item{ProductID: line.ProductID, Quantity: line.Quantity})
		lineTotals = append(lineTotals, quote.LineTotal)
		lineDiscounts = append(lineDiscounts, quote.DiscountAmount)
	}

	if err := s.Inventory.Reserve(ctx, q, locked, reserve); err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	o := &Order{
		OrderCode:        code,
		MemberID:         cart.MemberID,
		UserID:           actor.UserIDPtr(),
		CustomerName:     cart.CustomerName,
		CustomerPhone:    cart.CustomerPhone,
		CustomerEmail:    cart.CustomerEmail,
		Items:            items,
		PaymentMethod:    cart.PaymentMethod,
		PaymentStatus:    InitialStatus(cart.PaymentMethod),
		PaymentReference: cart.PaymentReference,
		Note:             cart.Note,
	}
	s.applyTotals(ctx, o, money.Sum(lineTotals...), cart, promos)

	if o.PaymentStatus == StatusPaid {
		o.PaidAt = &now
	}
	if cart.PaymentMethod.Async() {
		gw := code
		o.GatewayOrderID = &gw
	}

	if err := s.Repo.InsertOrder(ctx, q, o); err != nil {
		return nil, err
	}
	if err := s.Repo.InsertItems(ctx, q, o.ID, o.Items); err != nil {
		return nil, err
	}

	if cart.PaymentMethod.Async() {
		if err := s.openGatewayPayment(ctx, q, o, money.Sum(lineDiscounts...), charged); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// applyTotals sets subtotal, discount, tax and grand total so that
// GrandTotal == Subtotal - DiscountAmount + TaxAmount.
func (s *service) applyTotals(ctx context.Context, o *Order, subtotal decimal.Decimal, cart *Cart, promos map[int64]*promotion.Promotion) {
	discount := money.Zero
	switch {
	case cart.DiscountAmount != nil:
		discount = money.Cap(money.Round2(*cart.DiscountAmount), subtotal)
		o.PromotionID = cart.PromotionID
	case cart.PromotionID != nil:
		d, err := s.Evaluator.PriceOrder(subtotal, promos[*cart.PromotionID])
		if err != nil {
			logger.FromCtx(ctx).Info("order promotion inapplicable",
				zap.String("kind", string(KindPromotionInapplicable)),
				zap.Int64("promotion_id", *cart.PromotionID),
				zap.Error(err),
			)
			break
		}
		discount = d
		o.PromotionID = cart.PromotionID
	}

	o.Subtotal = subtotal
	o.DiscountAmount = discount
	o.TaxAmount = money.Round2(subtotal.Mul(s.cfg.TaxRate))
	o.GrandTotal = money.Round2(subtotal.Add(o.TaxAmount).Sub(discount))
}

// openGatewayPayment stores the gateway order id in charged as soon as the
// charge succeeds.
func (s *service) openGatewayPayment(ctx context.Context, q db.Querier, o *Order, lineDiscounts decimal.Decimal, charged *string) error {
	const op = "create order"

	if s.Gateway == nil {
		return newError(KindPaymentGateway, op, fmt.Errorf("%w: no gateway configured", ErrPaymentGateway))
	}

	req := buildChargeRequest(o, lineDiscounts)

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	resp, err := s.Gateway.Charge(gctx, req)
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("gateway timeout after %s: %w", s.cfg.GatewayTimeout, err)
		}
		return &Error{Kind: KindPaymentGateway, Op: op, Err: fmt.Errorf("%w: %w", ErrPaymentGateway, err)}
	}
	*charged = req.OrderID

	if err := s.Repo.SetGatewayReference(ctx, q, o.ID, resp.TransactionID, resp.QRImageURL); err != nil {
		return err
	}
	o.GatewayTransactionID = &resp.TransactionID
	if resp.QRImageURL != "" {
		o.QRImageURL = &resp.QRImageURL
	}

	if s.Payments != nil {
		if err := s.Payments.SavePayment(ctx, q, &payment.Payment{
			OrderID:              o.ID,
			Provider:             payment.ProviderMidtrans,
			GatewayOrderID:       req.OrderID,
			GatewayTransactionID: resp.TransactionID,
			PaymentType:          payment.TypeQRIS,
			Amount:               o.GrandTotal,
			Status:               string(StatusPending),
			QRString:             resp.QRString,
			QRImageURL:           resp.QRImageURL,
			ExpireAt:             resp.ExpiresAt,
			RawResponse:          resp.Raw,
		}); err != nil {
			return err
		}
	}
	return nil
}

// buildChargeRequest itemizes the order for the gateway. Discounts are
// folded into one negative line and tax into one positive line so the
// items sum to the grand total.
func buildChargeRequest(o *Order, lineDiscounts decimal.Decimal) payment.ChargeRequest {
	req := payment.ChargeRequest{
		OrderID:     o.OrderCode,
		GrossAmount: o.GrandTotal,
		Customer: payment.Customer{
			Name:  o.CustomerName,
			Email: o.CustomerEmail,
			Phone: o.CustomerPhone,
		},
	}

	for _, it := range o.Items {
		req.Items = append(req.Items, payment.ItemDetail{
			ID:       fmt.Sprintf("%d", it.ProductID),
			Name:     it.ProductName,
			Price:    it.UnitPrice,
			Quantity: it.Quantity,
		})
	}

	if discount := money.Round2(lineDiscounts.Add(o.DiscountAmount)); discount.IsPositive() {
		req.Items = append(req.Items, payment.ItemDetail{
			ID: "DISCOUNT", Name: "Discount", Price: discount.Neg(), Quantity: 1,
		})
	}
	if o.TaxAmount.IsPositive() {
		req.Items = append(req.Items, payment.ItemDetail{
			ID: "TAX", Name: "Tax", Price: o.TaxAmount, Quantity: 1,
		})
	}
	return req
}

func (s *service) VoidOrder(ctx context.Context, actor utils.Actor, rawID string, reason string) (*Order, error) {
	const op = "void order"

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "VoidOrder"),
		zap.String("order_id", rawID),
	)

	id, ok := utils.ParseID(rawID)
	if !ok {
		return nil, newError(KindNotFound, op, ErrNotFound)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError(op, "void reason is required")
	}

	var voided *Order
	err := s.Tx.WithinTx(ctx, func(q db.Querier) error {
		o, err := s.Repo.LockByID(ctx, q, id)
		if err != nil {
			return err
		}
		if o.IsVoided {
			return &Error{Kind: KindAlreadyVoided, Op: op, OrderID: id, Err: ErrAlreadyVoided}
		}

		items, err := s.Repo.GetItems(ctx, q, id)
		if err != nil {
			return err
		}

		release := make([]inventory.Item, len(items))
		for i, it := range items {
			release[i] = inventory.Item{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		if err := s.Inventory.Release(ctx, q, release); err != nil {
			return err
		}

		now := s.cfg.Now()
		updated, err := s.Repo.MarkVoided(ctx, q, id, reason, actor.UserIDPtr(), now)
		if err != nil {
			return err
		}
		if !updated {
			return &Error{Kind: KindAlreadyVoided, Op: op, OrderID: id, Err: ErrAlreadyVoided}
		}

		o.Items = items
		o.IsVoided = true
		o.VoidReason = reason
		o.VoidedAt = &now
		o.VoidedBy = actor.UserIDPtr()
		voided = o
		return nil
	})
	if err != nil {
		err = classify(op, err)
		var oe *Error
		if errors.As(err, &oe) && oe.OrderID == 0 {
			oe.OrderID = id
		}
		log.Warn("void order failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return nil, err
	}

	if voided.PaymentStatus == StatusPending && voided.GatewayOrderID != nil {
		s.cancelGatewayPayment(ctx, *voided.GatewayOrderID)
	}

	s.publish(ctx, newEvent(EventOrderVoided, voided, actor.UserIDPtr(), s.cfg.Now()))
	s.Metrics.OrderVoided()

	log.Info("order voided", zap.String("order_code", voided.OrderCode), zap.String("reason", reason))
	return voided, nil
}

// cancelGatewayPayment is best effort; a later expiry notification for
// the voided or rolled back order is acknowledged as a no-op.
func (s *service) cancelGatewayPayment(ctx context.Context, gatewayOrderID string) {
	if s.Gateway == nil {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	if err := s.Gateway.Cancel(gctx, gatewayOrderID); err != nil {
		logger.FromCtx(ctx).Warn("failed to cancel gateway payment",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.Error(err),
		)
	}
}

func (s *service) publish(ctx context.Context, e Event) {
	if err := s.Events.Publish(ctx, e); err != nil {
		logger.FromCtx(ctx).Warn("failed to publish order event",
			zap.String("event_type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
