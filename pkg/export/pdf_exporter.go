package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a tabular PDF suitable for printed
// warning lists.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title, table body and
// trailing summary lines. Column headers repeat on every page.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	widths := columnWidths(data, 190.0)

	writeHeader := func() {
		pdf.SetFont("Arial", "B", 10)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}

	writeHeader()
	for _, row := range data.Rows {
		if pdf.GetY() > 270 {
			pdf.AddPage()
			writeHeader()
		}
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(data.Summary) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 9)
		for _, line := range data.Summary {
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset, total float64) []float64 {
	widths := make([]float64, len(data.Headers))
	if len(data.ColumnWeights) != len(data.Headers) {
		for i := range widths {
			widths[i] = total / float64(len(data.Headers))
		}
		return widths
	}

	var sum float64
	for _, w := range data.ColumnWeights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		for i := range widths {
			widths[i] = total / float64(len(data.Headers))
		}
		return widths
	}

	for i, w := range data.ColumnWeights {
		if w <= 0 {
			w = sum / float64(len(data.Headers))
		}
		widths[i] = total * w / sum
	}
	return widths
}
