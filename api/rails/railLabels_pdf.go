package rails

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/jung-kurt/gofpdf"
)

// renderRailLabelsPDF lays out one A4 landscape page per rail with the
// code128 of the rail code, so the rail can be scanned as a move target.
func renderRailLabelsPDF(labels []RailLabelData, printedAt time.Time) ([]byte, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels to render")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Rail Labels", false)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, label := range labels {
		code := strings.TrimSpace(label.Code)
		if code == "" {
			return nil, fmt.Errorf("label %d has no rail code", i)
		}
		barcodePNG, err := renderCode128PNG(code, 1200, 260)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(label.Name)
		if name == "" {
			name = code
		}
		zone := strings.TrimSpace(label.Zone)
		if zone == "" {
			zone = "-"
		}

		pdf.AddPage()
		pageW, pageH := pdf.GetPageSize()
		margin := 12.0
		pdf.SetLineWidth(0.35)
		pdf.Rect(margin, margin, pageW-2*margin, pageH-2*margin, "")

		pdf.SetY(margin + 8)
		pdf.SetFont("Helvetica", "B", 96)
		pdf.CellFormat(0, 40, code, "", 1, "C", false, 0, "")

		nameFont := fitFontSizeForWidth(pdf, "Helvetica", "", 28, 14, tr(name), pageW-2*margin-10)
		pdf.SetFont("Helvetica", "", nameFont)
		pdf.CellFormat(0, 12, tr(name), "", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "B", 22)
		pdf.CellFormat(0, 12, "ZONE "+zone, "", 1, "C", false, 0, "")

		opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		imageName := fmt.Sprintf("rail-barcode-%d", i)
		pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(barcodePNG))
		imgW := 220.0
		imgH := 52.0
		x := (pageW - imgW) / 2
		y := 112.0
		pdf.ImageOptions(imageName, x, y, imgW, imgH, false, opt, 0, "")

		pdf.SetY(y + imgH + 4)
		pdf.SetFont("Helvetica", "B", 20)
		pdf.CellFormat(0, 10, code, "", 1, "C", false, 0, "")

		pdf.SetXY(margin+4, pageH-margin-10)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(pageW-2*margin-8, 6, "Printed: "+printedAt.Format("02/01/2006"), "", 0, "R", false, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func fitFontSizeForWidth(pdf *gofpdf.Fpdf, family, style string, base, min float64, text string, maxWidth float64) float64 {
	if maxWidth <= 0 {
		return min
	}
	size := base
	pdf.SetFont(family, style, size)
	for size > min && pdf.GetStringWidth(text) > maxWidth {
		size -= 0.5
		pdf.SetFont(family, style, size)
	}
	return size
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := png.Encode(&out, toNRGBA(scaled)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}
