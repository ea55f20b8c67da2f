package receipt

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const (
	pageMargin   = 15.0
	rowHeight    = 8.0
	bottomMargin = 20.0

	// Ширина подписи в блоке реквизитов.
	metaLabelWidth = 35.0
)

// Ширины колонок таблицы в миллиметрах (A4 минус поля).
var columnWidths = []float64{90, 20, 35, 35}

// Generator строит PDF чека. Не выполняет ввода-вывода и безопасен для конкурентного использования.
type Generator struct{}

// NewGenerator создаёт генератор чеков.
func NewGenerator() *Generator {
	return &Generator{}
}

// Layout возвращает структуру чека, которую нарисует Render.
func (g *Generator) Layout(data domain.ReceiptData) Layout {
	return BuildLayout(data)
}

// Render строит PDF. Дата создания документа берётся из заказа, потоки не сжимаются,
// поэтому повторный вызов для того же заказа даёт тот же документ.
func (g *Generator) Render(data domain.ReceiptData) ([]byte, error) {
	layout := BuildLayout(data)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetCreationDate(data.PlacedAt.UTC())
	pdf.SetTitle(layout.Title+" "+data.OrderID, false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	registerFonts(pdf)

	tableStarted := false
	// Шапка таблицы повторяется на каждой новой странице.
	pdf.SetHeaderFunc(func() {
		if tableStarted {
			drawTableHeader(pdf, layout.Columns)
		}
	})

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 18)
	pdf.CellFormat(0, 12, layout.Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(fontFamily, "", 11)
	for _, field := range layout.Meta {
		pdf.SetFont(fontFamily, "B", 11)
		pdf.CellFormat(metaLabelWidth, 7, field.Label+":", "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 11)
		pdf.CellFormat(0, 7, fitCell(pdf, field.Value, pdf.GetPageWidth()-2*pageMargin-metaLabelWidth), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	drawTableHeader(pdf, layout.Columns)
	tableStarted = true

	pdf.SetFont(fontFamily, "", 10)
	for _, row := range layout.Rows {
		pdf.CellFormat(columnWidths[0], rowHeight, fitCell(pdf, row.Name, columnWidths[0]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(columnWidths[1], rowHeight, row.Quantity, "1", 0, "C", false, 0, "")
		pdf.CellFormat(columnWidths[2], rowHeight, row.UnitPrice, "1", 0, "R", false, 0, "")
		pdf.CellFormat(columnWidths[3], rowHeight, row.LineTotal, "1", 1, "R", false, 0, "")
	}
	tableStarted = false

	pdf.Ln(4)
	pdf.SetFont(fontFamily, "B", 12)
	labelWidth := columnWidths[0] + columnWidths[1] + columnWidths[2]
	pdf.CellFormat(labelWidth, 9, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(columnWidths[3], 9, layout.Total, "", 1, "R", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont(fontFamily, "I", 10)
	pdf.CellFormat(0, 8, layout.Footer, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", data.OrderID, err)
	}
	return buf.Bytes(), nil
}

func drawTableHeader(pdf *fpdf.Fpdf, columns []string) {
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetFillColor(230, 240, 230)
	for i, title := range columns {
		pdf.CellFormat(columnWidths[i], rowHeight, title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(fontFamily, "", 10)
}

var _ domain.ReceiptRenderer = (*Generator)(nil)
