package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasir-be/internal/db"
	"kasir-be/internal/logger"
	"kasir-be/internal/money"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// OrderCodeConstraint is the unique constraint on orders.order_code.
const OrderCodeConstraint = "orders_order_code_key"

const orderColumns = `o.id, o.order_code, o.member_id, o.user_id, o.customer_name, o.customer_phone,
	o.customer_email, o.subtotal, o.discount_amount, o.tax_amount, o.grand_total,
	o.payment_method, o.payment_status, o.payment_reference, o.promotion_id, o.note,
	o.is_voided, o.void_reason, o.voided_at, o.voided_by, o.gateway_order_id,
	o.gateway_transaction_id, o.qr_image_url, o.paid_at, o.created_at, o.updated_at`

const itemColumns = `id, order_id, product_id, product_name, original_price, unit_price, quantity,
	subtotal, discount_amount, markup_percentage, promotion_id, total`

// Repository persists the order aggregate. Methods taking a db.Querier run
// inside the caller's transaction; a nil Querier uses the pool.
type Repository interface {
	InsertOrder(ctx context.Context, q db.Querier, o *Order) error
	InsertItems(ctx context.Context, q db.Querier, orderID int64, items []OrderItem) error
	SetGatewayReference(ctx context.Context, q db.Querier, orderID int64, transactionID, qrImageURL string) error
	LockByID(ctx context.Context, q db.Querier, id int64) (*Order, error)
	LockByGatewayOrderID(ctx context.Context, q db.Querier, gatewayOrderID string) (*Order, error)
	GetItems(ctx context.Context, q db.Querier, orderID int64) ([]OrderItem, error)
	MarkVoided(ctx context.Context, q db.Querier, id int64, reason string, by *int64, at time.Time) (bool, error)
	// UpdatePaymentStatus moves a pending, non-voided order to next. A
	// non-empty transactionID fills gateway_transaction_id if it is unset.
	UpdatePaymentStatus(ctx context.Context, q db.Querier, id int64, next PaymentStatus, paidAt *time.Time, transactionID string) (bool, error)

	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByCode(ctx context.Context, code string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, int, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error)
	Stats(ctx context.Context, from, to time.Time) (*Stats, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) querier(q db.Querier) db.Querier {
	if q == nil {
		return r.db
	}
	return q
}

func (r *repository) InsertOrder(ctx context.Context, q db.Querier, o *Order) error {
	err := r.querier(q).QueryRowContext(ctx, `
		INSERT INTO orders (
			order_code, member_id, user_id, customer_name, customer_phone, customer_email,
			subtotal, discount_amount, tax_amount, grand_total,
			payment_method, payment_status, payment_reference, promotion_id, note,
			gateway_order_id, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`,
		o.OrderCode, o.MemberID, o.UserID, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.GrandTotal,
		string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentReference, o.PromotionID, o.Note,
		o.GatewayOrderID, o.PaidAt,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *repository) InsertItems(ctx context.Context, q db.Querier, orderID int64, items []OrderItem) error {
	q = r.querier(q)
	for i := range items {
		it := &items[i]
		it.OrderID = orderID
		if err := q.QueryRowContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, product_name, original_price, unit_price, quantity,
				subtotal, discount_amount, markup_percentage, promotion_id, total
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`,
			orderID, it.ProductID, it.ProductName, it.OriginalPrice, it.UnitPrice, it.Quantity,
			it.Subtotal, it.DiscountAmount, it.MarkupPercentage, it.PromotionID, it.Total,
		).Scan(&it.ID); err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

func (r *repository) SetGatewayReference(ctx context.Context, q db.Querier, orderID int64, transactionID, qrImageURL string) error {
	_, err := r.querier(q).ExecContext(ctx, `
		UPDATE orders
		SET gateway_transaction_id = $1, qr_image_url = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3
	`, transactionID, qrImageURL, orderID)
	if err != nil {
		return fmt.Errorf("set gateway reference: %w", err)
	}
	return nil
}

func (r *repository) LockByID(ctx context.Context, q db.Querier, id int64) (*Order, error) {
	return r.getOne(ctx, r.querier(q), `o.id = $1`, id, true)
}

func (r *repository) LockByGatewayOrderID(ctx context.Context, q db.Querier, gatewayOrderID string) (*Order, error) {
	return r.getOne(ctx, r.querier(q), `o.gateway_order_id = $1`, gatewayOrderID, true)
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, err := r.getOne(ctx, r.db, `o.id = $1`, id, false)
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.GetItems(ctx, nil, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Order, error) {
	o, err := r.getOne(ctx, r.db, `o.order_code = $1`, code, false)
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.GetItems(ctx, nil, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) getOne(ctx context.Context, q db.Querier, where string, arg any, forUpdate bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *repository) GetItems(ctx context.Context, q db.Querier, orderID int64) ([]OrderItem, error) {
	rows, err := r.querier(q).QueryContext(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []OrderItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// attachItems loads the items of every order in one query.
func (r *repository) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		o.Items = []OrderItem{}
		byID[o.ID] = o
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, *it)
		}
	}
	return rows.Err()
}

func (r *repository) MarkVoided(ctx context.Context, q db.Querier, id int64, reason string, by *int64, at time.Time) (bool, error) {
	res, err := r.querier(q).ExecContext(ctx, `
		UPDATE orders
		SET is_voided = TRUE, void_reason = $1, voided_by = $2, voided_at = $3, updated_at = $3
		WHERE id = $4 AND is_voided = FALSE
	`, reason, by, at, id)
	if err != nil {
		return false, fmt.Errorf("mark order voided: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, q db.Querier, id int64, next PaymentStatus, paidAt *time.Time, transactionID string) (bool, error) {
	res, err := r.querier(q).ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1,
			paid_at = COALESCE($2, paid_at),
			gateway_transaction_id = COALESCE(gateway_transaction_id, NULLIF($3, '')),
			updated_at = NOW()
		WHERE id = $4 AND payment_status = 'pending' AND is_voided = FALSE
	`, string(next), paidAt, transactionID, id)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// likeEscaper makes the search text match literally under ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *repository) List(ctx context.Context, f ListFilter) ([]*Order, int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "List"),
		zap.Int("limit", f.Limit),
		zap.Int("page", f.Page),
	)

	// ---------- FILTERING ----------
	where := ` WHERE 1=1`
	args := []any{}
	argIndex := 1

	if f.Search != "" {
		where += fmt.Sprintf(
			` AND (o.order_code ILIKE $%[1]d ESCAPE '\' OR o.customer_name ILIKE $%[1]d ESCAPE '\'`+
				` OR o.customer_phone ILIKE $%[1]d ESCAPE '\' OR o.customer_email ILIKE $%[1]d ESCAPE '\')`,
			argIndex,
		)
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
		argIndex++
	}

	if f.StartDate != nil {
		where += fmt.Sprintf(" AND o.created_at >= $%d", argIndex)
		args = append(args, *f.StartDate)
		argIndex++
	}

	if f.EndDate != nil {
		where += fmt.Sprintf(" AND o.created_at <= $%d", argIndex)
		args = append(args, *f.EndDate)
		argIndex++
	}

	if f.Status != nil {
		where += fmt.Sprintf(" AND o.payment_status = $%d", argIndex)
		args = append(args, string(*f.Status))
		argIndex++
	}

	if f.Voided != nil {
		where += fmt.Sprintf(" AND o.is_voided = $%d", argIndex)
		args = append(args, *f.Voided)
		argIndex++
	}

	// ---------- COUNT ----------
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		log.Error("failed to count orders", zap.Error(err))
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	// ---------- PAGINATION ----------
	offset := (f.Page - 1) * f.Limit
	query := `SELECT ` + orderColumns + ` FROM orders o` + where +
		fmt.Sprintf(" ORDER BY o.created_at DESC, o.id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, f.Limit, offset)

	log.Debug("executing list orders query", zap.String("query", query), zap.Any("args", args))

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, 0, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repository) ListByDateRange(ctx context.Context, from, to time.Time) ([]*Order, error) {
	orders, err := r.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.is_voided = FALSE AND o.created_at >= $1 AND o.created_at <= $2
		ORDER BY o.created_at DESC, o.id DESC`, from, to)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Stats aggregates non-voided orders whose payment did not fail, over [from, to).
func (r *repository) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	s := &Stats{From: from, To: to, Products: []ProductSales{}}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(grand_total), 0),
			COALESCE(SUM(tax_amount), 0),
			COALESCE(SUM(discount_amount), 0)
		FROM orders
		WHERE is_voided = FALSE AND payment_status <> 'failed'
			AND created_at >= $1 AND created_at < $2
	`, from, to).Scan(&s.OrderCount, &s.Revenue, &s.Tax, &s.Discount)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.product_id, oi.product_name, SUM(oi.quantity), SUM(oi.total)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.is_voided = FALSE AND o.payment_status <> 'failed'
			AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.product_id, oi.product_name
		ORDER BY SUM(oi.quantity) DESC, oi.product_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("product sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ps ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.ProductName, &ps.Quantity, &ps.Revenue); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		s.ItemsSold += ps.Quantity
		s.Products = append(s.Products, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.Revenue = money.Round2(s.Revenue)
	s.Tax = money.Round2(s.Tax)
	s.Discount = money.Round2(s.Discount)
	return s, nil
}

func (r *repository) queryOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*Order, error) {
	var (
		o              Order
		method, status string
	)
	if err := s.Scan(
		&o.ID, &o.OrderCode, &o.MemberID, &o.UserID, &o.CustomerName, &o.CustomerPhone,
		&o.CustomerEmail, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.GrandTotal,
		&method, &status, &o.PaymentReference, &o.PromotionID, &o.Note,
		&o.IsVoided, &o.VoidReason, &o.VoidedAt, &o.VoidedBy, &o.GatewayOrderID,
		&o.GatewayTransactionID, &o.QRImageURL, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.PaymentMethod = PaymentMethod(method)
	o.PaymentStatus = PaymentStatus(status)
	return &o, nil
}

func scanItem(s scanner) (*OrderItem, error) {
	var it OrderItem
	if err := s.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.OriginalPrice, &it.UnitPrice,
		&it.Quantity, &it.Subtotal, &it.DiscountAmount, &it.MarkupPercentage, &it.PromotionID, &it.Total,
	); err != nil {
		return nil, err
	}
	return &it, nil
}
