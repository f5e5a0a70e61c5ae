package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Stock        int             `json:"stock"`
	CategoryID   int64           `json:"categoryId"`
	ProductCode  *string         `json:"productCode,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
