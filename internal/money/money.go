package money

import "github.com/shopspring/decimal"

// Places is the precision every stored amount is rounded to.
const Places = 2

var Zero = decimal.Zero

func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Mul multiplies a price by a quantity and rounds the result.
func Mul(price decimal.Decimal, qty int) decimal.Decimal {
	return Round2(price.Mul(decimal.NewFromInt(int64(qty))))
}

// Cap clamps d into [0, max].
func Cap(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}

// Sum adds the amounts and rounds once.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return Round2(total)
}

// Parse reads a decimal string and rounds it, treating "" as zero.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Round2(d), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
