package discordblue

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/cbusillo/discord-blue/code128"
	"github.com/go-pdf/fpdf"
	"io"
	"strings"
)

// Asset labels are 4x2 inch. Dimensions below are in inches.
const (
	labelWidth     = 4.0
	labelHeight    = 2.0
	labelMargin    = 0.1
	labelTitleSize = 14.0
	labelTitleH    = 0.3
	labelTextSize  = 9.0
	labelTextH     = 0.15
	labelRowGap    = 0.05

	// maxModuleWidth keeps single-barcode labels from stretching bars
	// past what handheld scanners read well
	maxModuleWidth = 0.015

	maxLabelIDs = 3
)

var ErrNoAssetIDs = errors.New("at least one asset ID is required")

// RenderAssetLabel writes a 4x2 inch PDF label with the school name
// across the top and a Code 128 barcode for each non-empty ID, stacked
// with the ID printed under its bars.
func RenderAssetLabel(w io.Writer, school string, ids ...string) error {
	var nonEmpty []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			nonEmpty = append(nonEmpty, id)
		}
	}
	if len(nonEmpty) == 0 {
		return ErrNoAssetIDs
	}
	if len(nonEmpty) > maxLabelIDs {
		return fmt.Errorf("at most %d asset IDs fit on a label", maxLabelIDs)
	}

	pdf := fpdf.NewCustom(
		&fpdf.InitType{
			OrientationStr: "L",
			UnitStr:        "in",
			Size:           fpdf.SizeType{Wd: labelWidth, Ht: labelHeight},
		},
	)
	pdf.SetMargins(labelMargin, labelMargin, labelMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", labelTitleSize)
	pdf.SetXY(labelMargin, labelMargin)
	pdf.CellFormat(
		labelWidth-2*labelMargin,
		labelTitleH,
		strings.ToUpper(school),
		"",
		0,
		"CM",
		false,
		0,
		"",
	)

	top := labelMargin + labelTitleH
	rowHeight := (labelHeight - top - labelMargin) / float64(len(nonEmpty))
	barHeight := rowHeight - labelTextH - labelRowGap

	pdf.SetFillColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", labelTextSize)
	for i, id := range nonEmpty {
		y := top + float64(i)*rowHeight
		if err := drawBarcode(pdf, id, y, barHeight); err != nil {
			return err
		}
		pdf.SetXY(labelMargin, y+barHeight)
		pdf.CellFormat(labelWidth-2*labelMargin, labelTextH, id, "", 0, "CM", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("error rendering label: %w", err)
	}
	return pdf.Output(w)
}

// AssetLabelPDF renders the label to a byte slice
func AssetLabelPDF(school string, ids ...string) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderAssetLabel(&buf, school, ids...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// drawBarcode draws the bars for data, horizontally centered, with its
// top edge at y
func drawBarcode(pdf *fpdf.Fpdf, data string, y float64, height float64) error {
	codes, err := code128.Codes(data)
	if err != nil {
		return err
	}
	widths, err := code128.Modules(codes)
	if err != nil {
		return err
	}

	modules := code128.Width(widths) + 2*code128.QuietZone
	moduleWidth := min((labelWidth-2*labelMargin)/float64(modules), maxModuleWidth)
	x := (labelWidth - float64(code128.Width(widths))*moduleWidth) / 2

	for i, w := range widths {
		width := float64(w) * moduleWidth
		// even indexes are bars, odd are spaces
		if i%2 == 0 {
			pdf.Rect(x, y, width, height, "F")
		}
		x += width
	}
	return nil
}
