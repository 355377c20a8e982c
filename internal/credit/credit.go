// Package credit manages customer balances: recording payments against
// outstanding dues and rebuilding account statements from the register.
package credit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/ledger"
	"stockflow/backend/internal/xid"
)

var (
	ErrInvalidAmount   = errors.New("payment amount must be positive")
	ErrInvalidMethod   = errors.New("payment method must be Cash or Online")
	ErrExceedsDue      = errors.New("payment exceeds outstanding balance")
	ErrUnknownCustomer = errors.New("unknown customer")
)

// dueTolerance absorbs float drift when a customer settles in full.
const dueTolerance = 0.01

type Store interface {
	Load(ctx context.Context, identity string) (domain.AppState, int64)
}

type Service struct {
	store  Store
	ledger *ledger.Engine
}

func NewService(store Store, engine *ledger.Engine) *Service {
	return &Service{store: store, ledger: engine}
}

// RecordPayment settles part or all of a customer's due. The amount must
// be positive and no more than the open balance plus a one-paisa float
// tolerance; the method says how the money arrived, so Credit is not
// accepted here. The payment lands in the register as an item-less
// transaction.
func (s *Service) RecordPayment(ctx context.Context, identity string, customerID string, amount float64, method domain.PaymentMethod, notes string) (domain.Transaction, domain.AppState, error) {
	if amount <= 0 {
		return domain.Transaction{}, domain.AppState{}, ErrInvalidAmount
	}
	if method != domain.PayCash && method != domain.PayOnline {
		return domain.Transaction{}, domain.AppState{}, fmt.Errorf("%w, got %q", ErrInvalidMethod, method)
	}

	state, _ := s.store.Load(ctx, identity)
	c := state.FindCustomer(customerID)
	if c == nil {
		return domain.Transaction{}, domain.AppState{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}
	if amount > c.TotalDue+dueTolerance {
		return domain.Transaction{}, domain.AppState{}, fmt.Errorf("%w: due is %.2f", ErrExceedsDue, c.TotalDue)
	}

	tx := domain.Transaction{
		ID:            xid.New("txn"),
		Items:         []domain.CartItem{},
		Total:         amount,
		Date:          time.Now(),
		Type:          domain.TxPayment,
		PaymentMethod: method,
		CustomerID:    c.ID,
		CustomerName:  c.Name,
		Notes:         notes,
	}
	updated, err := s.ledger.ProcessTransaction(ctx, identity, tx)
	if err != nil {
		return domain.Transaction{}, domain.AppState{}, err
	}
	return tx, updated, nil
}

// StatementLine is one ledger row of a customer statement. Balance carries
// the absolute running balance with Side saying which way it leans.
type StatementLine struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Debit       float64   `json:"debit"`
	Credit      float64   `json:"credit"`
	Balance     float64   `json:"balance"`
	Side        string    `json:"side"`
}

type Statement struct {
	Customer domain.Customer `json:"customer"`
	Lines    []StatementLine `json:"lines"`
	Closing  float64         `json:"closingBalance"`
	Side     string          `json:"closingSide"`
}

// Statement rebuilds the customer's account from the register on every
// call; nothing is cached. Sales debit the account, payments and returns
// credit it, and a cash or online sale credits itself on the same row so
// the balance never moves for settled purchases.
func (s *Service) Statement(ctx context.Context, identity string, customerID string) (Statement, error) {
	state, _ := s.store.Load(ctx, identity)
	return BuildStatement(&state, customerID)
}

func BuildStatement(state *domain.AppState, customerID string) (Statement, error) {
	c := state.FindCustomer(customerID)
	if c == nil {
		return Statement{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}

	stmt := Statement{Customer: *c}
	stmt.Lines = append(stmt.Lines, StatementLine{
		Description: "Opening Balance",
		Side:        "Dr",
	})

	running := 0.0
	// The register is newest first; the statement reads oldest first.
	for i := len(state.Transactions) - 1; i >= 0; i-- {
		tx := state.Transactions[i]
		if tx.CustomerID != customerID {
			continue
		}

		amount := math.Abs(tx.Total)
		line := StatementLine{Date: tx.Date}
		switch tx.Type {
		case domain.TxSale:
			line.Debit = amount
			if tx.PaymentMethod == domain.PayCredit {
				line.Description = "Sale (Credit)"
			} else {
				line.Description = fmt.Sprintf("Sale (%s)", tx.PaymentMethod)
				line.Credit = amount
			}
		case domain.TxReturn:
			line.Description = "Return"
			line.Credit = amount
		case domain.TxPayment:
			line.Description = "Payment Received"
			if tx.Notes != "" {
				line.Description = "Payment Received: " + tx.Notes
			}
			line.Credit = amount
		default:
			continue
		}

		running += line.Debit - line.Credit
		line.Balance = math.Abs(running)
		if running >= 0 {
			line.Side = "Dr"
		} else {
			line.Side = "Cr"
		}
		stmt.Lines = append(stmt.Lines, line)
	}

	stmt.Closing = math.Abs(running)
	if running >= 0 {
		stmt.Side = "Dr"
	} else {
		stmt.Side = "Cr"
	}
	return stmt, nil
}
