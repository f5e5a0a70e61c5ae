package product

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productColumns = []string{
	"id", "name", "cost_price", "selling_price", "stock", "category_id", "product_code", "updated_at",
}

func TestRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(productColumns).
				AddRow(1, "Kopi Susu", "60.00", "100.00", 10, 2, "KS-01", now))

		p, err := NewRepository(db).GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Kopi Susu", p.Name)
		assert.True(t, p.SellingPrice.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, 10, p.Stock)
		require.NotNil(t, p.ProductCode)
		assert.Equal(t, "KS-01", *p.ProductCode)
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM products`).WillReturnError(sql.ErrNoRows)

		_, err = NewRepository(db).GetByID(ctx, 99)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("DBError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM products`).WillReturnError(errors.New("db down"))

		_, err = NewRepository(db).GetByID(ctx, 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrProductNotFound)
	})
}

func TestRepository_FindByIDs(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("ForUpdate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM products WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows(productColumns).
				AddRow(1, "A", "50", "100", 10, 1, nil, now).
				AddRow(2, "B", "5", "12.50", 3, 1, nil, now))

		products, err := NewRepository(db).FindByIDs(ctx, db, []int64{2, 1}, true)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, int64(1), products[0].ID)
		assert.Nil(t, products[0].ProductCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM products`).WillReturnError(errors.New("boom"))

		_, err = NewRepository(db).FindByIDs(ctx, nil, []int64{1}, false)
		assert.Error(t, err)
	})
}
