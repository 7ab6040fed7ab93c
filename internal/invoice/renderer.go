// Package invoice renders order invoices as PDF documents.
package invoice

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Company identifies the seller printed in the invoice header and footer.
type Company struct {
	Name         string
	AddressLine1 string
	AddressLine2 string
	Country      string
	SupportEmail string
	Terms        string
}

// Party is the buyer shown in the billed-to block.
type Party struct {
	Name  string
	Email string
	Phone string
	Lines []string
}

// Line is a single invoice row with its price resolved at render time.
type Line struct {
	Name      string
	UnitPrice float64
	Quantity  int
	Total     float64
}

// Document carries everything a rendered invoice displays. Totals are
// computed by the caller; the renderer only formats.
type Document struct {
	OrderID       string
	OrderNumber   string
	IssuedAt      time.Time
	Status        string
	PaymentMethod string
	BilledTo      Party
	Lines         []Line
	Subtotal      float64
	Shipping      float64
	Tax           float64
	GrandTotal    float64
}

// Renderer produces PDF invoices with a fixed A4 layout.
type Renderer struct {
	company Company
}

// NewRenderer constructs a Renderer for the given seller identity.
func NewRenderer(company Company) (*Renderer, error) {
	if strings.TrimSpace(company.Name) == "" {
		return nil, errors.New("invoice renderer: company name is required")
	}
	return &Renderer{company: company}, nil
}

const (
	pageMargin  = 14.0
	contentW    = 210 - 2*pageMargin
	colName     = 92.0
	colUnit     = 30.0
	colQty      = 20.0
	colTotal    = 40.0
	rowHeight   = 8.0
	headerBandH = 30.0
)

// Render produces the complete PDF as a byte slice. Nothing is emitted on
// error, so callers can stream the result without risking partial output.
func (r *Renderer) Render(doc Document) ([]byte, error) {
	if r == nil {
		return nil, errors.New("invoice renderer not initialised")
	}
	if strings.TrimSpace(doc.OrderID) == "" {
		return nil, errors.New("invoice renderer: order id is required")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, 24)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-18)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, r.company.Terms, "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	r.drawHeader(pdf, doc)
	r.drawDetails(pdf, doc)
	r.drawLineTable(pdf, doc)
	r.drawTotals(pdf, doc)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoice renderer: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawHeader(pdf *fpdf.Fpdf, doc Document) {
	pdf.SetFillColor(41, 82, 163)
	pdf.Rect(0, 0, 210, headerBandH, "F")

	pdf.SetXY(pageMargin, 7)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(120, 8, r.company.Name, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetX(pageMargin)
	for _, line := range []string{r.company.AddressLine1, r.company.AddressLine2, r.company.Country} {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pdf.CellFormat(120, 4.5, line, "", 1, "L", false, 0, "")
		pdf.SetX(pageMargin)
	}

	pdf.SetXY(130, 10)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(66, 8, fmt.Sprintf("INVOICE #%s", doc.OrderID), "", 0, "R", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetY(headerBandH + 8)
}

func (r *Renderer) drawDetails(pdf *fpdf.Fpdf, doc Document) {
	top := pdf.GetY()

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentW/2, 6, "Billed To", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW/2, 5, doc.BilledTo.Name, "", 1, "L", false, 0, "")
	for _, line := range doc.BilledTo.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pdf.CellFormat(contentW/2, 5, line, "", 1, "L", false, 0, "")
	}
	if doc.BilledTo.Phone != "" {
		pdf.CellFormat(contentW/2, 5, doc.BilledTo.Phone, "", 1, "L", false, 0, "")
	}
	if doc.BilledTo.Email != "" {
		pdf.CellFormat(contentW/2, 5, doc.BilledTo.Email, "", 1, "L", false, 0, "")
	}
	left := pdf.GetY()

	write := func(label, value string) {
		pdf.SetX(pageMargin + contentW/2)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(30, 5, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(contentW/2-30, 5, value, "", 1, "L", false, 0, "")
	}

	pdf.SetY(top)
	pdf.SetX(pageMargin + contentW/2)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentW/2, 6, "Details", "", 1, "L", false, 0, "")
	write("Date", doc.IssuedAt.Format("02 Jan 2006"))
	write("Status", doc.Status)
	write("Payment", doc.PaymentMethod)
	write("Order ID", doc.OrderID)
	if doc.OrderNumber != "" {
		write("Order No.", doc.OrderNumber)
	}

	if pdf.GetY() < left {
		pdf.SetY(left)
	}
	pdf.Ln(6)
}

func (r *Renderer) drawLineTable(pdf *fpdf.Fpdf, doc Document) {
	drawTableHead := func() {
		pdf.SetFillColor(41, 82, 163)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(colName, rowHeight, "Product", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colUnit, rowHeight, "Unit Price", "1", 0, "R", true, 0, "")
		pdf.CellFormat(colQty, rowHeight, "Qty", "1", 0, "R", true, 0, "")
		pdf.CellFormat(colTotal, rowHeight, "Total", "1", 1, "R", true, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 9)
	}

	drawTableHead()
	fill := false
	for _, line := range doc.Lines {
		// Repeat the column header when a row would overflow onto a new page.
		if pdf.GetY()+rowHeight > 297-24 {
			pdf.AddPage()
			drawTableHead()
		}
		pdf.SetFillColor(240, 243, 250)
		pdf.CellFormat(colName, rowHeight, line.Name, "1", 0, "L", fill, 0, "")
		pdf.CellFormat(colUnit, rowHeight, formatAmount(line.UnitPrice), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(colQty, rowHeight, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(colTotal, rowHeight, formatAmount(line.Total), "1", 1, "R", fill, 0, "")
		fill = !fill
	}
	pdf.Ln(4)
}

func (r *Renderer) drawTotals(pdf *fpdf.Fpdf, doc Document) {
	write := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.SetX(pageMargin + colName)
		pdf.CellFormat(colUnit+colQty, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(colTotal, 7, value, "", 1, "R", false, 0, "")
	}

	write("Subtotal", formatAmount(doc.Subtotal), false)
	write("Shipping", formatAmount(doc.Shipping), false)
	write("Tax", formatAmount(doc.Tax), false)
	write("Grand Total", formatAmount(doc.GrandTotal), true)
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
