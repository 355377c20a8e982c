package docgen

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"stockflow/backend/internal/credit"
	"stockflow/backend/internal/domain"
)

func TestAmountInWords(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "Zero Rupees only"},
		{0.75, "Zero Rupees only"},
		{7, "Seven Rupees only"},
		{13, "Thirteen Rupees only"},
		{45, "Forty Five Rupees only"},
		{118, "One Hundred and Eighteen Rupees only"},
		{500, "Five Hundred Rupees only"},
		{2350, "Two Thousand Three Hundred and Fifty Rupees only"},
		{118.49, "One Hundred and Eighteen Rupees only"},
		{-354, "Three Hundred and Fifty Four Rupees only"},
	}
	for _, tc := range cases {
		if got := AmountInWords(tc.in); got != tc.want {
			t.Errorf("AmountInWords(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBarcodeLabelProducesPNG(t *testing.T) {
	p := domain.Product{ID: "prod-1", Barcode: "8901234567890", Name: "Rice 5kg", SellPrice: 450}
	data, err := BarcodeLabel(p)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != labelWidth {
		t.Fatalf("unexpected label width %d", img.Bounds().Dx())
	}
}

func TestBarcodeLabelFallsBackToProductID(t *testing.T) {
	data, err := BarcodeLabel(domain.Product{ID: "prod-1", Name: "Loose Sugar"})
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}

	if _, err := BarcodeLabel(domain.Product{Name: "No identifiers"}); err == nil {
		t.Fatal("a product with no barcode and no id must fail")
	}
}

func TestInvoicePDF(t *testing.T) {
	tx := domain.Transaction{
		ID:   "txn-1",
		Date: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Type: domain.TxSale,
		Items: []domain.CartItem{
			{Product: domain.Product{ID: "p1", Name: "Soap", SellPrice: 30}, Quantity: 3, DiscountAmount: 10},
		},
		Subtotal: 90, Discount: 10, Tax: 14.4, TaxRate: 18, TaxLabel: "GST@18%",
		Total: 94.4, PaymentMethod: domain.PayCash, CustomerName: "Ravi",
	}
	profile := domain.DefaultProfile()
	profile.BankName = "State Bank"
	profile.BankAccount = "1234567890"

	data, err := Invoice(profile, tx)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF, starts with %q", data[:8])
	}
}

func TestCatalogStatementAndReportPDFs(t *testing.T) {
	profile := domain.DefaultProfile()
	products := []domain.Product{
		{ID: "p1", Name: "Soap", Category: "Toiletries", Barcode: "890", Stock: 10, SellPrice: 30},
	}
	if data, err := Catalog(profile, products); err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("catalog: %v", err)
	}

	stmt := credit.Statement{
		Customer: domain.Customer{Name: "Ravi", Phone: "9876543210"},
		Lines: []credit.StatementLine{
			{Description: "Opening Balance", Side: "Dr"},
			{Date: time.Now(), Description: "Sale (Credit)", Debit: 500, Balance: 500, Side: "Dr"},
		},
		Closing: 500, Side: "Dr",
	}
	if data, err := Statement(profile, stmt); err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("statement: %v", err)
	}

	txs := []domain.Transaction{
		{ID: "txn-1", Date: time.Now(), Type: domain.TxSale, Total: 118, PaymentMethod: domain.PayCash},
		{ID: "txn-0", Date: time.Now().Add(-48 * time.Hour), Type: domain.TxPayment, Total: 50},
	}
	if data, err := TransactionReport(profile, txs, time.Time{}, time.Time{}); err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("report: %v", err)
	}
}

func TestTransactionReportDateFilter(t *testing.T) {
	profile := domain.DefaultProfile()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ID: "in", Date: base.AddDate(0, 0, 5), Type: domain.TxSale, Total: 100},
		{ID: "out", Date: base.AddDate(0, 1, 0), Type: domain.TxSale, Total: 100},
	}
	inOnly, err := TransactionReport(profile, txs, base, base.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	all, err := TransactionReport(profile, txs, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(inOnly) >= len(all) {
		t.Fatal("filtered report should be smaller than the unfiltered one")
	}
}
