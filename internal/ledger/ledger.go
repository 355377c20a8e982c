// Package ledger applies finalized transactions to the aggregate: the
// register prepend plus the stock and customer side effects that keep the
// catalog and credit balances in line with the transaction history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/gateway"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// retryLimit bounds the reload-reapply loop under write contention.
const retryLimit = 5

// Store is the slice of the persistence gateway the engine needs.
type Store interface {
	Load(ctx context.Context, identity string) (domain.AppState, int64)
	Save(ctx context.Context, identity string, state domain.AppState, rev int64) (int64, error)
}

type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// ProcessTransaction records tx against the identity's aggregate and
// returns the updated aggregate. On a revision conflict the whole
// load-apply-save cycle is retried against fresh state, so the side
// effects always compound on top of the winning writer.
func (e *Engine) ProcessTransaction(ctx context.Context, identity string, tx domain.Transaction) (domain.AppState, error) {
	switch tx.Type {
	case domain.TxSale, domain.TxReturn, domain.TxPayment:
	default:
		return domain.AppState{}, fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, tx.Type)
	}
	if tx.ID == "" {
		return domain.AppState{}, fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}

	var lastErr error
	for attempt := 0; attempt < retryLimit; attempt++ {
		state, rev := e.store.Load(ctx, identity)
		next := state.Clone()
		apply(&next, tx)

		if _, err := e.store.Save(ctx, identity, next, rev); err != nil {
			if errors.Is(err, gateway.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return domain.AppState{}, fmt.Errorf("record transaction: %w", err)
		}
		return next, nil
	}
	return domain.AppState{}, fmt.Errorf("record transaction after %d attempts: %w", retryLimit, lastErr)
}

// apply mutates state in place. The transaction goes to the front of the
// register (newest first); items referencing deleted products adjust
// nothing for that line.
func apply(state *domain.AppState, tx domain.Transaction) {
	state.Transactions = append([]domain.Transaction{tx}, state.Transactions...)

	if tx.Type != domain.TxPayment {
		for _, item := range tx.Items {
			p := state.FindProduct(item.ID)
			if p == nil {
				continue
			}
			switch tx.Type {
			case domain.TxSale:
				p.Stock -= item.Quantity
				p.TotalSold += item.Quantity
			case domain.TxReturn:
				p.Stock += item.Quantity
				p.TotalSold -= item.Quantity
				if p.TotalSold < 0 {
					p.TotalSold = 0
				}
			}
		}
	}

	if tx.CustomerID == "" {
		return
	}
	c := state.FindCustomer(tx.CustomerID)
	if c == nil {
		return
	}

	amount := math.Abs(tx.Total)
	switch tx.Type {
	case domain.TxSale:
		c.TotalSpend += amount
		c.VisitCount++
		c.LastVisit = tx.Date
		if tx.PaymentMethod == domain.PayCredit {
			c.TotalDue += amount
		}
	case domain.TxReturn:
		c.TotalSpend -= amount
		if tx.PaymentMethod == domain.PayCredit {
			c.TotalDue -= amount
			// A refund larger than the open balance forgives the rest;
			// the customer never ends up owed a negative debt.
			if c.TotalDue < 0 {
				c.TotalDue = 0
			}
		}
	case domain.TxPayment:
		c.TotalDue -= amount
		c.LastVisit = tx.Date
	}
}
