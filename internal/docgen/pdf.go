// Package docgen renders the printable documents: barcode labels, tax
// invoices, the product catalog, customer account statements and
// transaction reports.
package docgen

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/go-pdf/fpdf"

	"stockflow/backend/internal/credit"
	"stockflow/backend/internal/domain"
)

const dateLayout = "02/01/2006"

func newDoc() *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	return pdf
}

// storeHeader prints the letterhead every document opens with.
func storeHeader(pdf *fpdf.Fpdf, profile domain.StoreProfile) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 7, profile.StoreName)
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 8)
	for _, line := range []string{
		profile.AddressLine1,
		profile.AddressLine2,
		"Phone no.: " + profile.Phone,
		"Email: " + profile.Email,
	} {
		pdf.Cell(0, 4, line)
		pdf.Ln(4)
	}
	if profile.GSTIN != "" {
		pdf.Cell(0, 4, "GSTIN: "+profile.GSTIN)
		pdf.Ln(4)
	}
	pdf.Ln(3)
}

func rupees(v float64) string {
	return fmt.Sprintf("Rs. %.2f", v)
}

// Invoice renders a sale or return as a printable invoice. The grand total
// is rounded to the nearest rupee with the round-off shown as its own row.
func Invoice(profile domain.StoreProfile, tx domain.Transaction) ([]byte, error) {
	pdf := newDoc()
	storeHeader(pdf, profile)

	title := "Tax Invoice"
	if tx.Type == domain.TxReturn {
		title = "Credit Note"
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(95, 5, "Invoice No.: "+tx.ID)
	pdf.CellFormat(0, 5, "Date: "+tx.Date.Format(dateLayout), "", 1, "R", false, 0, "")
	if tx.CustomerName != "" {
		pdf.Cell(0, 5, "Bill To: "+tx.CustomerName)
		pdf.Ln(5)
	}
	pdf.Ln(3)

	// Items table.
	widths := []float64{10, 70, 15, 25, 25, 37}
	headers := []string{"#", "Item", "Qty", "Rate", "Discount", "Amount"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(93, 58, 43)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for i, item := range tx.Items {
		amount := item.Gross() - item.DiscountAmount
		pdf.CellFormat(widths[0], 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 6, rupees(item.SellPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, rupees(item.DiscountAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, rupees(amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	rounded := math.Round(tx.Total)
	roundOff := rounded - tx.Total

	y := pdf.GetY()
	pdf.SetFont("Helvetica", "B", 9)
	pdf.Cell(70, 5, "Invoice Amount In Words")
	pdf.Ln(5)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(70, 5, AmountInWords(rounded), "", "L", false)

	pdf.SetY(y)
	summary := [][2]string{
		{"Sub Total", rupees(tx.Subtotal)},
		{"Discount", rupees(tx.Discount)},
	}
	if tx.Tax > 0 {
		label := tx.TaxLabel
		if label == "" {
			label = "Tax"
		}
		summary = append(summary, [2]string{label, rupees(tx.Tax)})
	}
	sign := "+"
	if roundOff < 0 {
		sign = "-"
	}
	summary = append(summary, [2]string{"Round off", fmt.Sprintf("%s %s", sign, rupees(math.Abs(roundOff)))})

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range summary {
		pdf.SetX(120)
		pdf.Cell(35, 6, row[0])
		pdf.CellFormat(37, 6, row[1], "", 1, "R", false, 0, "")
	}
	pdf.SetX(120)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(93, 58, 43)
	pdf.SetTextColor(255, 255, 255)
	pdf.Cell(35, 8, "Total")
	pdf.CellFormat(37, 8, rupees(rounded), "", 1, "R", true, 0, "")
	pdf.SetTextColor(0, 0, 0)

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 9)
	if tx.PaymentMethod != "" {
		pdf.Cell(0, 5, "Payment Mode: "+string(tx.PaymentMethod))
		pdf.Ln(5)
	}

	if profile.BankName != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.Cell(0, 5, "Bank Details")
		pdf.Ln(5)
		pdf.SetFont("Helvetica", "", 8)
		for _, line := range []string{
			"Bank: " + profile.BankName,
			"A/C No.: " + profile.BankAccount,
			"IFSC: " + profile.BankIFSC,
			"Holder: " + profile.BankHolder,
		} {
			pdf.Cell(0, 4, line)
			pdf.Ln(4)
		}
	}

	pdf.Ln(10)
	pdf.SetX(130)
	pdf.Cell(0, 5, "Authorized Signatory")

	return output(pdf)
}

// Catalog renders the full product list.
func Catalog(profile domain.StoreProfile, products []domain.Product) ([]byte, error) {
	pdf := newDoc()
	storeHeader(pdf, profile)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Product Catalog", "", 1, "C", false, 0, "")

	widths := []float64{60, 35, 35, 17, 35}
	headers := []string{"Product", "Category", "Barcode", "Stock", "Price"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(93, 58, 43)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for _, p := range products {
		pdf.CellFormat(widths[0], 6, p.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, p.Category, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, p.Barcode, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%d", p.Stock), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[4], 6, rupees(p.SellPrice), "1", 1, "R", false, 0, "")
	}

	return output(pdf)
}

// Statement renders a customer account statement with the running-balance
// table the credit workflow computes.
func Statement(profile domain.StoreProfile, stmt credit.Statement) ([]byte, error) {
	pdf := newDoc()
	storeHeader(pdf, profile)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Account Statement", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 5, "Customer: "+stmt.Customer.Name+"  ("+stmt.Customer.Phone+")")
	pdf.Ln(8)

	widths := []float64{28, 76, 26, 26, 26}
	headers := []string{"Date", "Particulars", "Debit", "Credit", "Balance"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(93, 58, 43)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for _, line := range stmt.Lines {
		date := ""
		if !line.Date.IsZero() {
			date = line.Date.Format(dateLayout)
		}
		pdf.CellFormat(widths[0], 6, date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, line.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, blankIfZero(line.Debit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, blankIfZero(line.Credit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.2f %s", line.Balance, line.Side), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Closing Balance: %.2f %s", stmt.Closing, stmt.Side), "", 1, "R", false, 0, "")

	return output(pdf)
}

// TransactionReport renders the register, optionally bounded by dates.
// Zero times mean no bound on that side.
func TransactionReport(profile domain.StoreProfile, txs []domain.Transaction, from, to time.Time) ([]byte, error) {
	pdf := newDoc()
	storeHeader(pdf, profile)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Transaction Report", "", 1, "C", false, 0, "")

	widths := []float64{26, 56, 40, 18, 18, 24}
	headers := []string{"Date", "Invoice", "Customer", "Type", "Mode", "Amount"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(93, 58, 43)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(0, 0, 0)
	var total float64
	for _, tx := range txs {
		if !from.IsZero() && tx.Date.Before(from) {
			continue
		}
		if !to.IsZero() && tx.Date.After(to) {
			continue
		}
		total += tx.Total
		pdf.CellFormat(widths[0], 6, tx.Date.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, tx.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, tx.CustomerName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, string(tx.Type), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[4], 6, string(tx.PaymentMethod), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[5], 6, fmt.Sprintf("%.2f", tx.Total), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Net Amount: %s", rupees(total)), "", 1, "R", false, 0, "")

	return output(pdf)
}

func blankIfZero(v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", v)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
