package inventory

import (
	"context"
	"fmt"
	"sort"

	"kasir-be/internal/db"
	"kasir-be/internal/logger"
	"kasir-be/internal/product"

	"go.uber.org/zap"
)

type Item struct {
	ProductID int64
	Quantity  int
}

// Manager checks and moves stock inside the caller's transaction.
type Manager interface {
	Lock(ctx context.Context, q db.Querier, productIDs []int64) (map[int64]product.Product, error)
	Reserve(ctx context.Context, q db.Querier, locked map[int64]product.Product, items []Item) error
	Release(ctx context.Context, q db.Querier, items []Item) error
}

type manager struct {
	products product.Repository
}

func NewManager(products product.Repository) Manager {
	return &manager{products: products}
}

// Lock reads and row-locks every referenced product in ascending id order.
// A missing product fails with *UnknownProductError.
func (m *manager) Lock(ctx context.Context, q db.Querier, productIDs []int64) (map[int64]product.Product, error) {
	ids := uniqueSorted(productIDs)

	rows, err := m.products.FindByIDs(ctx, q, ids, true)
	if err != nil {
		return nil, err
	}

	locked := make(map[int64]product.Product, len(rows))
	for _, p := range rows {
		locked[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, &UnknownProductError{ProductID: id}
		}
	}
	return locked, nil
}

// Reserve checks every product before decrementing any of them.
func (m *manager) Reserve(ctx context.Context, q db.Querier, locked map[int64]product.Product, items []Item) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "inventory"),
		zap.String("method", "Reserve"),
	)

	totals, order := aggregate(items)

	for _, id := range order {
		p, ok := locked[id]
		if !ok {
			return &UnknownProductError{ProductID: id}
		}
		if p.Stock < totals[id] {
			log.Info("insufficient stock",
				zap.Int64("product_id", id),
				zap.Int("requested", totals[id]),
				zap.Int("available", p.Stock),
			)
			return &InsufficientStockError{ProductID: id, Requested: totals[id], Available: p.Stock}
		}
	}

	for _, id := range order {
		res, err := q.ExecContext(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1`,
			totals[id], id,
		)
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", id, err)
		}
		if n == 0 {
			return &InsufficientStockError{ProductID: id, Requested: totals[id], Available: locked[id].Stock}
		}
	}
	return nil
}

// Release returns exactly the recorded quantities to stock. Rows are
// updated in ascending id order, the same order Lock takes them in.
func (m *manager) Release(ctx context.Context, q db.Querier, items []Item) error {
	totals, order := aggregate(items)

	for _, id := range order {
		if _, err := q.ExecContext(ctx,
			`UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2`,
			totals[id], id,
		); err != nil {
			return fmt.Errorf("release stock for product %d: %w", id, err)
		}
	}
	return nil
}

// aggregate sums quantities per product and returns the product ids in
// ascending order.
func aggregate(items []Item) (map[int64]int, []int64) {
	totals := make(map[int64]int, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		totals[it.ProductID] += it.Quantity
		ids = append(ids, it.ProductID)
	}
	return totals, uniqueSorted(ids)
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
