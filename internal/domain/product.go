package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProductImage — ссылка на изображение товара в объектном хранилище.
type ProductImage struct {
	URL      string
	PublicID string
}

// Product — позиция каталога (овощ).
type Product struct {
	ID          string
	Name        string
	Description string
	// Price: базовая цена за единицу.
	Price decimal.Decimal
	// DiscountPercent: скидка в процентах, [0, 100].
	DiscountPercent decimal.Decimal
	Stock           int
	Unit            string
	Available       bool
	Category        string
	Images          []ProductImage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FinalPrice возвращает цену с учётом скидки, округлённую до копеек.
// Значение вычисляется при каждом обращении и никогда не хранится.
func (p Product) FinalPrice() decimal.Decimal {
	factor := hundred.Sub(p.DiscountPercent).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

// Validate проверяет инварианты товара.
func (p *Product) Validate() []error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.DiscountPercent.IsNegative() || p.DiscountPercent.GreaterThan(hundred) {
		errs = append(errs, ErrDiscountOutOfRange)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	return errs
}
