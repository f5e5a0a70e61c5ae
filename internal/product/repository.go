package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kasir-be/internal/db"

	"github.com/lib/pq"
)

const selectColumns = `id, name, cost_price, selling_price, stock, category_id, product_code, updated_at`

// Repository is the read side of the product catalog used by the order core.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	// FindByIDs reads the given products in ascending id order through q.
	// With forUpdate the rows stay locked until q's transaction ends.
	FindByIDs(ctx context.Context, q db.Querier, ids []int64, forUpdate bool) ([]Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (r *repository) FindByIDs(ctx context.Context, q db.Querier, ids []int64, forUpdate bool) ([]Product, error) {
	if q == nil {
		q = r.db
	}

	query := `SELECT ` + selectColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*Product, error) {
	var (
		p    Product
		code sql.NullString
	)
	if err := s.Scan(
		&p.ID, &p.Name, &p.CostPrice, &p.SellingPrice,
		&p.Stock, &p.CategoryID, &code, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if code.Valid {
		p.ProductCode = &code.String
	}
	return &p, nil
}
