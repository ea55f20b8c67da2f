package receipt

import (
	"strconv"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// Layout — структурная модель чека. Render рисует именно её, поэтому тесты
// проверяют содержимое чека без разбора PDF.
type Layout struct {
	Title   string
	Meta    []MetaField
	Columns []string
	Rows    []Row
	Total   string
	Footer  string
}

// MetaField — строка блока реквизитов (номер заказа, дата, покупатель).
type MetaField struct {
	Label string
	Value string
}

// Row — строка таблицы позиций.
type Row struct {
	Name      string
	Quantity  string
	UnitPrice string
	LineTotal string
}

const (
	receiptTitle  = "Order Receipt"
	receiptFooter = "Thank you for shopping with us!"
	dateLayout    = "02 Jan 2006 15:04 MST"
)

var receiptColumns = []string{"Item", "Qty", "Unit price", "Total"}

// BuildLayout раскладывает данные заказа по блокам чека.
func BuildLayout(data domain.ReceiptData) Layout {
	currency := data.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	money := func(v string) string { return currency + " " + v }

	meta := []MetaField{
		{Label: "Order ID", Value: data.OrderID},
		{Label: "Date", Value: data.PlacedAt.UTC().Format(dateLayout)},
		{Label: "Customer", Value: data.CustomerName},
		{Label: "Email", Value: data.CustomerEmail},
	}
	if data.PaymentMethod != "" {
		meta = append(meta, MetaField{Label: "Payment", Value: string(data.PaymentMethod)})
	}

	rows := make([]Row, 0, len(data.Lines))
	for _, line := range data.Lines {
		rows = append(rows, Row{
			Name:      line.Name,
			Quantity:  strconv.Itoa(line.Quantity),
			UnitPrice: money(line.UnitPrice.StringFixed(2)),
			LineTotal: money(line.LineTotal().StringFixed(2)),
		})
	}

	return Layout{
		Title:   receiptTitle,
		Meta:    meta,
		Columns: append([]string(nil), receiptColumns...),
		Rows:    rows,
		Total:   money(data.TotalPrice.StringFixed(2)),
		Footer:  receiptFooter,
	}
}
