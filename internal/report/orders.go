package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const (
	// ContentType: MIME-тип XLSX.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	ordersSheet = "Orders"
	linesSheet  = "Order lines"
	timeLayout  = "2006-01-02 15:04:05"
)

var (
	orderHeaders = []string{
		"Order ID", "Customer ID", "Customer", "Email", "Status", "Payment method",
		"Total", "Currency", "Receipt state", "Receipt URL", "Recovery attempts", "Created at",
	}
	lineHeaders = []string{"Order ID", "Product ID", "Name", "Quantity", "Unit price", "Line total"}
)

// CustomerLookup возвращает покупателя заказа. Может вернуть пустого пользователя.
type CustomerLookup func(customerID string) domain.User

// WriteOrders строит книгу с листами заказов и позиций.
func WriteOrders(w io.Writer, orders []domain.Order, customer CustomerLookup) error {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet(ordersSheet)
	if err != nil {
		return fmt.Errorf("add orders sheet: %w", err)
	}
	addHeader(sheet, orderHeaders)

	lines, err := file.AddSheet(linesSheet)
	if err != nil {
		return fmt.Errorf("add lines sheet: %w", err)
	}
	addHeader(lines, lineHeaders)

	for _, order := range orders {
		var user domain.User
		if customer != nil {
			user = customer(order.CustomerID)
		}

		row := sheet.AddRow()
		row.AddCell().SetString(order.ID)
		row.AddCell().SetString(order.CustomerID)
		row.AddCell().SetString(user.DisplayName())
		row.AddCell().SetString(user.Email)
		row.AddCell().SetString(string(order.Status))
		row.AddCell().SetString(string(order.PaymentMethod))
		addMoney(row, order.TotalPrice.StringFixed(2))
		row.AddCell().SetString(order.Currency)
		row.AddCell().SetString(string(order.ReceiptState))
		row.AddCell().SetString(order.ReceiptURL)
		row.AddCell().SetInt(order.RecoveryAttempts)
		row.AddCell().SetString(order.CreatedAt.UTC().Format(timeLayout))

		for _, line := range order.Lines {
			lr := lines.AddRow()
			lr.AddCell().SetString(order.ID)
			lr.AddCell().SetString(line.ProductID)
			lr.AddCell().SetString(line.Name)
			lr.AddCell().SetInt(line.Quantity)
			addMoney(lr, line.UnitPrice.StringFixed(2))
			addMoney(lr, line.LineTotal().StringFixed(2))
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// Filename возвращает имя файла выгрузки.
func Filename(suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return "orders.xlsx"
	}
	return "orders-" + suffix + ".xlsx"
}

func addHeader(sheet *xlsx.Sheet, headers []string) {
	row := sheet.AddRow()
	for _, h := range headers {
		cell := row.AddCell()
		cell.SetString(h)
		style := xlsx.NewStyle()
		style.Font.Bold = true
		style.ApplyFont = true
		cell.SetStyle(style)
	}
}

// Денежные значения пишутся строкой с двумя знаками, чтобы не терять точность decimal.
func addMoney(row *xlsx.Row, value string) {
	cell := row.AddCell()
	cell.SetString(value)
	cell.NumFmt = "0.00"
}
