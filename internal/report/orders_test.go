package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

func TestWriteOrders(t *testing.T) {
	orders := []domain.Order{
		{
			ID:         "order-1",
			CustomerID: "user-1",
			Lines: []domain.OrderLine{
				{ProductID: "tomato", Name: "Tomato", UnitPrice: decimal.NewFromInt(40), Quantity: 2},
				{ProductID: "onion", Name: "Onion", UnitPrice: decimal.RequireFromString("35"), Quantity: 1},
			},
			TotalPrice:    decimal.NewFromInt(115),
			Currency:      domain.DefaultCurrency,
			Status:        domain.OrderStatusCompleted,
			PaymentMethod: domain.PaymentMethodCOD,
			ReceiptState:  domain.ReceiptStateNotified,
			ReceiptURL:    "http://localhost:8080/files/receipts/order-order-1.pdf",
			CreatedAt:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	}
	users := map[string]domain.User{
		"user-1": {FirstName: "Asha", LastName: "Rao", Email: "asha@example.com"},
	}

	var buf bytes.Buffer
	err := WriteOrders(&buf, orders, func(id string) domain.User { return users[id] })
	require.NoError(t, err)

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 2)

	sheet := file.Sheet[ordersSheet]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 2)
	row := sheet.Rows[1]
	require.Equal(t, "order-1", row.Cells[0].Value)
	require.Equal(t, "Asha Rao", row.Cells[2].Value)
	require.Equal(t, "115.00", row.Cells[6].Value)
	require.Equal(t, "2026-03-01 09:30:00", row.Cells[11].Value)

	lines := file.Sheet[linesSheet]
	require.NotNil(t, lines)
	require.Len(t, lines.Rows, 3)
	require.Equal(t, "80.00", lines.Rows[1].Cells[5].Value)
}

func TestWriteOrders_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, nil, nil))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheet[ordersSheet].Rows, 1)
}

func TestFilename(t *testing.T) {
	require.Equal(t, "orders.xlsx", Filename(""))
	require.Equal(t, "orders-20260301.xlsx", Filename("20260301"))
}
