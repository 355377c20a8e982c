package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockflow/backend/internal/catalog"
	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/ledger"
	"stockflow/backend/internal/xid"
)

var (
	ErrCartEmpty              = errors.New("cart is empty")
	ErrCreditRequiresCustomer = errors.New("credit checkout requires a customer")
	ErrReturnNotEligible      = errors.New("purchase history does not cover this return")
)

type Store interface {
	Load(ctx context.Context, identity string) (domain.AppState, int64)
}

type Service struct {
	store   Store
	ledger  *ledger.Engine
	catalog *catalog.Service
}

func NewService(store Store, engine *ledger.Engine, cat *catalog.Service) *Service {
	return &Service{store: store, ledger: engine, catalog: cat}
}

type NewCustomerInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type CheckoutRequest struct {
	Cart          *Cart
	PaymentMethod domain.PaymentMethod
	CustomerID    string
	NewCustomer   *NewCustomerInput
	TaxLabel      string
}

// Checkout finalizes a cart into a transaction and hands it to the ledger.
// Eligibility is re-checked against fresh state: cart quantities against
// stock (sale) or sold counts (return), and for a return with a selected
// customer, against that customer's own purchase history. A new customer
// named inline is created first and the transaction references it.
func (s *Service) Checkout(ctx context.Context, identity string, req CheckoutRequest) (domain.Transaction, domain.AppState, error) {
	if req.Cart == nil || len(req.Cart.Items) == 0 {
		return domain.Transaction{}, domain.AppState{}, ErrCartEmpty
	}
	switch req.PaymentMethod {
	case domain.PayCash, domain.PayCredit, domain.PayOnline:
	default:
		return domain.Transaction{}, domain.AppState{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalid, req.PaymentMethod)
	}
	if req.PaymentMethod == domain.PayCredit && req.CustomerID == "" && req.NewCustomer == nil {
		return domain.Transaction{}, domain.AppState{}, ErrCreditRequiresCustomer
	}

	state, _ := s.store.Load(ctx, identity)
	for _, line := range req.Cart.Items {
		p := state.FindProduct(line.ID)
		if p == nil {
			return domain.Transaction{}, domain.AppState{}, fmt.Errorf("%w: product %s no longer exists", ErrInvalid, line.ID)
		}
		if err := req.Cart.checkQuantity(p, line.Quantity); err != nil {
			return domain.Transaction{}, domain.AppState{}, err
		}
	}

	customerID := req.CustomerID
	customerName := ""
	if customerID != "" {
		c := state.FindCustomer(customerID)
		if c == nil {
			return domain.Transaction{}, domain.AppState{}, fmt.Errorf("%w: unknown customer %s", ErrInvalid, customerID)
		}
		customerName = c.Name
		if req.Cart.Mode == domain.TxReturn {
			if err := checkReturnHistory(&state, customerID, req.Cart.Items); err != nil {
				return domain.Transaction{}, domain.AppState{}, err
			}
		}
	} else if req.NewCustomer != nil {
		created, _, err := s.catalog.AddCustomer(ctx, identity, req.NewCustomer.Name, req.NewCustomer.Phone)
		if err != nil {
			return domain.Transaction{}, domain.AppState{}, err
		}
		customerID = created.ID
		customerName = created.Name
	}

	label := req.TaxLabel
	if label == "" {
		label = state.Profile.DefaultTaxLabel
	}
	opt := domain.TaxOptionByLabel(label)
	totals := req.Cart.Totals(opt.Rate)

	tx := domain.Transaction{
		ID:            xid.New("txn"),
		Items:         append([]domain.CartItem(nil), req.Cart.Items...),
		Total:         totals.Total,
		Date:          time.Now(),
		Type:          req.Cart.Mode,
		CustomerID:    customerID,
		CustomerName:  customerName,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Tax:           totals.Tax,
		TaxRate:       opt.Rate,
		TaxLabel:      opt.Label,
		PaymentMethod: req.PaymentMethod,
	}

	updated, err := s.ledger.ProcessTransaction(ctx, identity, tx)
	if err != nil {
		return domain.Transaction{}, domain.AppState{}, err
	}
	return tx, updated, nil
}

// checkReturnHistory verifies, per cart line, that the customer's past
// sales minus past returns cover the quantity coming back.
func checkReturnHistory(state *domain.AppState, customerID string, items []domain.CartItem) error {
	purchased := make(map[string]int)
	for _, tx := range state.Transactions {
		if tx.CustomerID != customerID {
			continue
		}
		for _, item := range tx.Items {
			switch tx.Type {
			case domain.TxSale:
				purchased[item.ID] += item.Quantity
			case domain.TxReturn:
				purchased[item.ID] -= item.Quantity
			}
		}
	}
	for _, line := range items {
		if purchased[line.ID] < line.Quantity {
			return fmt.Errorf("%w: %s", ErrReturnNotEligible, line.Name)
		}
	}
	return nil
}
