// Package sales drives the register: cart building with eligibility
// checks, discount entry, totals and checkout into the ledger.
package sales

import (
	"errors"
	"fmt"

	"stockflow/backend/internal/domain"
)

var (
	ErrInvalid        = errors.New("invalid input")
	ErrStockExceeded  = errors.New("quantity exceeds available stock")
	ErrReturnExceeded = errors.New("quantity exceeds sold units")
)

// DiscountMode selects which discount field the cashier typed; the other
// is derived.
type DiscountMode string

const (
	DiscountPercent DiscountMode = "percent"
	DiscountAmount  DiscountMode = "amount"
)

// Cart collects lines for a single sale or return. One line per product;
// adding the same product again bumps the quantity. Lines snapshot the
// product at add time.
type Cart struct {
	Mode  domain.TransactionType
	Items []domain.CartItem
}

func NewCart(mode domain.TransactionType) (*Cart, error) {
	if mode != domain.TxSale && mode != domain.TxReturn {
		return nil, fmt.Errorf("%w: cart mode must be sale or return", ErrInvalid)
	}
	return &Cart{Mode: mode}, nil
}

// AddItem puts one unit of the product in the cart. In sale mode the line
// quantity may not exceed stock on hand; in return mode it may not exceed
// the product's lifetime sold count.
func (c *Cart) AddItem(state *domain.AppState, productID string) error {
	p := state.FindProduct(productID)
	if p == nil {
		return fmt.Errorf("%w: unknown product %s", ErrInvalid, productID)
	}

	line := c.find(productID)
	current := 0
	if line != nil {
		current = line.Quantity
	}
	if err := c.checkQuantity(p, current+1); err != nil {
		return err
	}

	if line != nil {
		line.Quantity++
		c.rederive(line)
		return nil
	}
	c.Items = append(c.Items, domain.CartItem{Product: *p, Quantity: 1})
	return nil
}

// SetQuantity sets a line's quantity directly. Zero or less removes the
// line.
func (c *Cart) SetQuantity(state *domain.AppState, productID string, qty int) error {
	line := c.find(productID)
	if line == nil {
		return fmt.Errorf("%w: product %s is not in the cart", ErrInvalid, productID)
	}
	if qty <= 0 {
		c.remove(productID)
		return nil
	}
	p := state.FindProduct(productID)
	if p == nil {
		return fmt.Errorf("%w: unknown product %s", ErrInvalid, productID)
	}
	if err := c.checkQuantity(p, qty); err != nil {
		return err
	}
	line.Quantity = qty
	c.rederive(line)
	return nil
}

// UpdateDiscount records a line discount. Percent entry clamps to 0..100
// and derives the amount; amount entry clamps to 0..gross and derives the
// percentage. A zero-value gross keeps the percentage at zero.
func (c *Cart) UpdateDiscount(productID string, mode DiscountMode, value float64) error {
	line := c.find(productID)
	if line == nil {
		return fmt.Errorf("%w: product %s is not in the cart", ErrInvalid, productID)
	}
	gross := line.Gross()

	switch mode {
	case DiscountPercent:
		pct := clamp(value, 0, 100)
		line.DiscountPercent = pct
		line.DiscountAmount = gross * pct / 100
	case DiscountAmount:
		amount := clamp(value, 0, gross)
		line.DiscountAmount = amount
		if gross > 0 {
			line.DiscountPercent = amount / gross * 100
		} else {
			line.DiscountPercent = 0
		}
	default:
		return fmt.Errorf("%w: unknown discount mode %q", ErrInvalid, mode)
	}
	return nil
}

// Totals computes the cart summary at the given tax rate. The grand total
// is negative in return mode.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Taxable  float64 `json:"taxable"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

func (c *Cart) Totals(taxRate float64) Totals {
	var t Totals
	for _, line := range c.Items {
		t.Subtotal += line.Gross()
		t.Discount += line.DiscountAmount
	}
	t.Taxable = t.Subtotal - t.Discount
	t.Tax = t.Taxable * taxRate / 100
	t.Total = t.Taxable + t.Tax
	if c.Mode == domain.TxReturn {
		t.Total = -t.Total
	}
	return t
}

func (c *Cart) checkQuantity(p *domain.Product, qty int) error {
	switch c.Mode {
	case domain.TxSale:
		if qty > p.Stock {
			return fmt.Errorf("%w: %s has %d in stock", ErrStockExceeded, p.Name, p.Stock)
		}
	case domain.TxReturn:
		if qty > p.TotalSold {
			return fmt.Errorf("%w: %s has %d units sold", ErrReturnExceeded, p.Name, p.TotalSold)
		}
	}
	return nil
}

// rederive keeps a percent discount consistent after a quantity change.
func (c *Cart) rederive(line *domain.CartItem) {
	line.DiscountAmount = line.Gross() * line.DiscountPercent / 100
}

func (c *Cart) find(productID string) *domain.CartItem {
	for i := range c.Items {
		if c.Items[i].ID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) remove(productID string) {
	for i := range c.Items {
		if c.Items[i].ID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
