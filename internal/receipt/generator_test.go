package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

func sampleData() domain.ReceiptData {
	lines := []domain.OrderLine{
		{ProductID: "p1", Name: "Tomato", UnitPrice: decimal.NewFromInt(40), Quantity: 2},
		{ProductID: "p2", Name: "Onion", UnitPrice: decimal.NewFromInt(35), Quantity: 1},
	}
	return domain.ReceiptData{
		OrderID:       "order-42",
		CustomerName:  "Anna Petrova",
		CustomerEmail: "anna@example.com",
		Lines:         lines,
		TotalPrice:    domain.ComputeTotal(lines),
		Currency:      "INR",
		PaymentMethod: domain.PaymentMethodCOD,
		PlacedAt:      time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestBuildLayout(t *testing.T) {
	layout := BuildLayout(sampleData())

	require.Equal(t, "Order Receipt", layout.Title)
	require.Len(t, layout.Rows, 2)
	require.Equal(t, Row{Name: "Tomato", Quantity: "2", UnitPrice: "INR 40.00", LineTotal: "INR 80.00"}, layout.Rows[0])
	require.Equal(t, "INR 115.00", layout.Total)
	require.Equal(t, []string{"Item", "Qty", "Unit price", "Total"}, layout.Columns)

	require.Equal(t, MetaField{Label: "Order ID", Value: "order-42"}, layout.Meta[0])
	require.Equal(t, "01 Mar 2026 10:30 UTC", layout.Meta[1].Value)
	require.Equal(t, "Anna Petrova", layout.Meta[2].Value)
	require.Equal(t, "anna@example.com", layout.Meta[3].Value)
	require.NotEmpty(t, layout.Footer)
}

func TestGeneratorRender(t *testing.T) {
	out, err := NewGenerator().Render(sampleData())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "output must be a PDF document")
	// Потоки не сжаты, поэтому текст ячеек виден в документе.
	require.True(t, bytes.Contains(out, cellText("Tomato")))
	require.True(t, bytes.Contains(out, cellText("INR 115.00")))
}

func TestGeneratorRenderManyLinesSpansPages(t *testing.T) {
	data := sampleData()
	data.Lines = nil
	for i := 0; i < 80; i++ {
		data.Lines = append(data.Lines, domain.OrderLine{
			ProductID: fmt.Sprintf("p%d", i),
			Name:      fmt.Sprintf("Vegetable %d", i),
			UnitPrice: decimal.NewFromInt(10),
			Quantity:  1,
		})
	}
	data.TotalPrice = domain.ComputeTotal(data.Lines)

	layout := NewGenerator().Layout(data)
	require.Len(t, layout.Rows, 80)
	require.Equal(t, "INR 800.00", layout.Total)

	out, err := NewGenerator().Render(data)
	require.NoError(t, err)
	require.True(t, bytes.Contains(out, cellText("Vegetable 79")))
	// Шапка таблицы есть на каждой странице.
	require.Greater(t, bytes.Count(out, cellText("Unit price")), 1)
}

func TestGeneratorRenderCyrillic(t *testing.T) {
	data := sampleData()
	data.CustomerName = "Анна Петрова"
	data.Lines[0].Name = "Помидоры черри"

	out, err := NewGenerator().Render(data)
	require.NoError(t, err)
	require.True(t, bytes.Contains(out, cellText("Анна Петрова")))
	require.True(t, bytes.Contains(out, cellText("Помидоры черри")))
}

func TestFitCell(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	registerFonts(pdf)
	pdf.SetFont(fontFamily, "", 10)
	width := columnWidths[0]

	require.Equal(t, "Onion", fitCell(pdf, "Onion", width))

	long := strings.Repeat("Очень длинное название овоща ", 5)
	got := fitCell(pdf, long, width)
	require.True(t, strings.HasSuffix(got, ellipsis))
	require.True(t, strings.HasPrefix(long, strings.TrimSuffix(got, ellipsis)))
	require.LessOrEqual(t, pdf.GetStringWidth(got), width-2*pdf.GetCellMargin())
	require.NoError(t, pdf.Error())
}

func TestGeneratorRenderLongNameStaysInColumn(t *testing.T) {
	data := sampleData()
	data.Lines[0].Name = strings.Repeat("Heirloom tomato ", 12)

	out, err := NewGenerator().Render(data)
	require.NoError(t, err)
	require.False(t, bytes.Contains(out, cellText(data.Lines[0].Name)))
	require.True(t, bytes.Contains(out, cellText("Heirloom tomato Heirloom")))
	// В макете имя остаётся полным.
	require.Equal(t, data.Lines[0].Name, BuildLayout(data).Rows[0].Name)
}

// cellText кодирует текст так, как его пишет в поток страницы Unicode-шрифт (UTF-16BE).
func cellText(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units))
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}
