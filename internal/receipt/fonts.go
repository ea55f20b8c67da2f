package receipt

import (
	_ "embed"

	"github.com/go-pdf/fpdf"
)

// Чек рисуется Unicode-шрифтом: имена покупателей и товаров бывают не только латиницей.
const fontFamily = "DejaVu"

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
	//go:embed fonts/DejaVuSansCondensed-Oblique.ttf
	fontItalic []byte
)

func registerFonts(pdf *fpdf.Fpdf) {
	pdf.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	pdf.AddUTF8FontFromBytes(fontFamily, "I", fontItalic)
}

const ellipsis = "…"

// fitCell обрезает текст так, чтобы он поместился в ячейку ширины width текущим шрифтом.
func fitCell(pdf *fpdf.Fpdf, text string, width float64) string {
	avail := width - 2*pdf.GetCellMargin()
	if pdf.GetStringWidth(text) <= avail {
		return text
	}
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		cut := string(runes[:n]) + ellipsis
		if pdf.GetStringWidth(cut) <= avail {
			return cut
		}
	}
	return ellipsis
}
