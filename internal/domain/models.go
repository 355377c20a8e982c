package domain

import "time"

type TransactionType string

const (
	TxSale    TransactionType = "sale"
	TxReturn  TransactionType = "return"
	TxPayment TransactionType = "payment"
)

type PaymentMethod string

const (
	PayCash   PaymentMethod = "Cash"
	PayCredit PaymentMethod = "Credit"
	PayOnline PaymentMethod = "Online"
)

// Product is a catalog entry. Barcode is the external SKU printed on labels;
// it is not guaranteed unique. Category is a free-text label, not a foreign
// key: deleting a category leaves products referencing it untouched.
type Product struct {
	ID          string  `json:"id"`
	Barcode     string  `json:"barcode"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BuyPrice    float64 `json:"buyPrice"`
	SellPrice   float64 `json:"sellPrice"`
	Stock       int     `json:"stock"`
	Image       string  `json:"image"`
	Category    string  `json:"category"`
	TotalSold   int     `json:"totalSold"`
	HSN         string  `json:"hsn,omitempty"`
}

// CartItem is a frozen product snapshot plus line quantity and discount.
// Once attached to a persisted Transaction it never tracks later product
// edits.
type CartItem struct {
	Product
	Quantity        int     `json:"quantity"`
	DiscountPercent float64 `json:"discountPercent"`
	DiscountAmount  float64 `json:"discountAmount"`
}

// Gross is the undiscounted line value.
func (i CartItem) Gross() float64 {
	return i.SellPrice * float64(i.Quantity)
}

type Customer struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	TotalSpend float64   `json:"totalSpend"`
	TotalDue   float64   `json:"totalDue"`
	LastVisit  time.Time `json:"lastVisit"`
	VisitCount int       `json:"visitCount"`
}

// Transaction is an immutable ledger entry. Total is signed: negative for
// returns. Items is empty for payment-type entries.
type Transaction struct {
	ID            string          `json:"id"`
	Items         []CartItem      `json:"items"`
	Total         float64         `json:"total"`
	Date          time.Time       `json:"date"`
	Type          TransactionType `json:"type"`
	CustomerID    string          `json:"customerId,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
	Subtotal      float64         `json:"subtotal"`
	Discount      float64         `json:"discount"`
	Tax           float64         `json:"tax"`
	TaxRate       float64         `json:"taxRate"`
	TaxLabel      string          `json:"taxLabel,omitempty"`
	PaymentMethod PaymentMethod   `json:"paymentMethod,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type StoreProfile struct {
	StoreName       string  `json:"storeName"`
	OwnerName       string  `json:"ownerName"`
	GSTIN           string  `json:"gstin"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	AddressLine1    string  `json:"addressLine1"`
	AddressLine2    string  `json:"addressLine2"`
	State           string  `json:"state"`
	BankName        string  `json:"bankName,omitempty"`
	BankAccount     string  `json:"bankAccount,omitempty"`
	BankIFSC        string  `json:"bankIfsc,omitempty"`
	BankHolder      string  `json:"bankHolder,omitempty"`
	DefaultTaxRate  float64 `json:"defaultTaxRate"`
	DefaultTaxLabel string  `json:"defaultTaxLabel"`
	SignatureImage  string  `json:"signatureImage,omitempty"`
}

// AdminUser is a registered store login. Password is a bcrypt hash.
type AdminUser struct {
	Email     string    `json:"email"`
	Password  string    `json:"passwordHash"`
	LastLogin time.Time `json:"lastLogin"`
}

// AppState is the aggregate root and the unit of persistence: every mutation
// loads the whole aggregate, derives a new one and saves it back wholesale.
type AppState struct {
	Products     []Product     `json:"products"`
	Transactions []Transaction `json:"transactions"`
	Categories   []string      `json:"categories"`
	Customers    []Customer    `json:"customers"`
	Profile      StoreProfile  `json:"profile"`
}

// FindProduct returns a pointer into the aggregate's product slice, or nil.
func (s *AppState) FindProduct(id string) *Product {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return &s.Products[i]
		}
	}
	return nil
}

// FindCustomer returns a pointer into the aggregate's customer slice, or nil.
func (s *AppState) FindCustomer(id string) *Customer {
	for i := range s.Customers {
		if s.Customers[i].ID == id {
			return &s.Customers[i]
		}
	}
	return nil
}

// Clone deep-copies the aggregate so callers can mutate freely.
func (s AppState) Clone() AppState {
	out := s
	out.Products = append([]Product(nil), s.Products...)
	out.Customers = append([]Customer(nil), s.Customers...)
	out.Categories = append([]string(nil), s.Categories...)
	out.Transactions = make([]Transaction, len(s.Transactions))
	for i, tx := range s.Transactions {
		tx.Items = append([]CartItem(nil), tx.Items...)
		out.Transactions[i] = tx
	}
	return out
}

func DefaultProfile() StoreProfile {
	return StoreProfile{
		StoreName:       "StockFlow Demo",
		OwnerName:       "Admin",
		Email:           "admin@stockflow.app",
		AddressLine1:    "123 Business St",
		AddressLine2:    "City Center",
		State:           "Gujarat",
		DefaultTaxRate:  0,
		DefaultTaxLabel: "None",
	}
}

// DefaultState is the aggregate handed out when no document exists for an
// identity, or when the stored document cannot be parsed.
func DefaultState() AppState {
	return AppState{
		Products:     []Product{},
		Transactions: []Transaction{},
		Categories:   []string{},
		Customers:    []Customer{},
		Profile:      DefaultProfile(),
	}
}

// TaxOption pairs an invoice label with a percentage rate. GST and IGST
// labels intentionally map to the same rate: they differ only in how the
// invoice presents the tax (CGST+SGST split versus integrated), never in
// the computed amount.
type TaxOption struct {
	Label string  `json:"label"`
	Rate  float64 `json:"value"`
}

var TaxOptions = []TaxOption{
	{Label: "None", Rate: 0},
	{Label: "Exempted", Rate: 0},
	{Label: "GST@0%", Rate: 0},
	{Label: "IGST@0%", Rate: 0},
	{Label: "GST@0.25%", Rate: 0.25},
	{Label: "IGST@0.25%", Rate: 0.25},
	{Label: "GST@3%", Rate: 3},
	{Label: "IGST@3%", Rate: 3},
	{Label: "GST@5%", Rate: 5},
	{Label: "IGST@5%", Rate: 5},
	{Label: "GST@12%", Rate: 12},
	{Label: "IGST@12%", Rate: 12},
	{Label: "GST@18%", Rate: 18},
	{Label: "IGST@18%", Rate: 18},
	{Label: "GST@28%", Rate: 28},
	{Label: "IGST@28%", Rate: 28},
}

// TaxOptionByLabel resolves a labeled rate, falling back to the zero-rate
// "None" option for unknown labels.
func TaxOptionByLabel(label string) TaxOption {
	for _, opt := range TaxOptions {
		if opt.Label == label {
			return opt
		}
	}
	return TaxOptions[0]
}
