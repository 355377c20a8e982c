// Package catalog holds the master-data operations: products, categories,
// customers and the store profile. Mutations load the aggregate, apply the
// change and save it back, retrying on revision conflicts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/gateway"
	"stockflow/backend/internal/xid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid input")
	ErrDuplicate = errors.New("duplicate entry")
)

const retryLimit = 5

type Store interface {
	Load(ctx context.Context, identity string) (domain.AppState, int64)
	Save(ctx context.Context, identity string, state domain.AppState, rev int64) (int64, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) AddProduct(ctx context.Context, identity string, p domain.Product) (domain.Product, []domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Product{}, nil, fmt.Errorf("%w: product name is required", ErrInvalid)
	}
	if p.SellPrice < 0 || p.BuyPrice < 0 {
		return domain.Product{}, nil, fmt.Errorf("%w: prices cannot be negative", ErrInvalid)
	}
	if p.Stock < 0 {
		return domain.Product{}, nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalid)
	}
	p.ID = xid.New("prod")
	p.TotalSold = 0

	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		st.Products = append(st.Products, p)
		return nil
	})
	if err != nil {
		return domain.Product{}, nil, err
	}
	return p, state.Products, nil
}

// UpdateProduct replaces the stored product's editable fields. The sold
// counter belongs to the ledger and is never taken from the caller.
func (s *Service) UpdateProduct(ctx context.Context, identity string, p domain.Product) ([]domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Name == "" {
		return nil, fmt.Errorf("%w: product id and name are required", ErrInvalid)
	}
	if p.SellPrice < 0 || p.BuyPrice < 0 || p.Stock < 0 {
		return nil, fmt.Errorf("%w: prices and stock cannot be negative", ErrInvalid)
	}

	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		existing := st.FindProduct(p.ID)
		if existing == nil {
			return fmt.Errorf("%w: product %s", ErrNotFound, p.ID)
		}
		p.TotalSold = existing.TotalSold
		*existing = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state.Products, nil
}

func (s *Service) DeleteProduct(ctx context.Context, identity string, id string) ([]domain.Product, error) {
	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		for i := range st.Products {
			if st.Products[i].ID == id {
				st.Products = append(st.Products[:i], st.Products[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return state.Products, nil
}

// AddCategory appends a category and keeps the list sorted. Adding a name
// that already exists in any letter case is a no-op, not an error.
func (s *Service) AddCategory(ctx context.Context, identity string, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalid)
	}

	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		for _, existing := range st.Categories {
			if strings.EqualFold(existing, name) {
				return nil
			}
		}
		st.Categories = append(st.Categories, name)
		sort.Strings(st.Categories)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state.Categories, nil
}

// DeleteCategory removes the label only. Products keep whatever category
// string they carry; there is no cascade.
func (s *Service) DeleteCategory(ctx context.Context, identity string, name string) ([]string, error) {
	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		for i := range st.Categories {
			if st.Categories[i] == name {
				st.Categories = append(st.Categories[:i], st.Categories[i+1:]...)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state.Categories, nil
}

func (s *Service) AddCustomer(ctx context.Context, identity string, name string, phone string) (domain.Customer, []domain.Customer, error) {
	var created domain.Customer
	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		c, err := NewCustomer(st, name, phone)
		if err != nil {
			return err
		}
		created = c
		st.Customers = append(st.Customers, c)
		return nil
	})
	if err != nil {
		return domain.Customer{}, nil, err
	}
	return created, state.Customers, nil
}

// DeleteCustomer removes the customer record. Past transactions keep their
// customerId; history never rewrites.
func (s *Service) DeleteCustomer(ctx context.Context, identity string, id string) ([]domain.Customer, error) {
	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		for i := range st.Customers {
			if st.Customers[i].ID == id {
				st.Customers = append(st.Customers[:i], st.Customers[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: customer %s", ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return state.Customers, nil
}

// UpdateProfile stores the profile wholesale. A recognized tax label pins
// the default rate to the table value so the pair cannot drift apart.
func (s *Service) UpdateProfile(ctx context.Context, identity string, p domain.StoreProfile) (domain.StoreProfile, error) {
	p.StoreName = strings.TrimSpace(p.StoreName)
	if p.StoreName == "" {
		return domain.StoreProfile{}, fmt.Errorf("%w: store name is required", ErrInvalid)
	}
	if p.DefaultTaxLabel == "" {
		p.DefaultTaxLabel = "None"
	}
	p.DefaultTaxRate = domain.TaxOptionByLabel(p.DefaultTaxLabel).Rate

	state, err := s.update(ctx, identity, func(st *domain.AppState) error {
		st.Profile = p
		return nil
	})
	if err != nil {
		return domain.StoreProfile{}, err
	}
	return state.Profile, nil
}

// ResetState replaces the identity's aggregate with factory defaults.
func (s *Service) ResetState(ctx context.Context, identity string) (domain.AppState, error) {
	return s.update(ctx, identity, func(st *domain.AppState) error {
		*st = domain.DefaultState()
		return nil
	})
}

// NewCustomer validates and builds a customer against the given aggregate.
// The phone must contain exactly ten digits after stripping separators; a
// customer with the same normalized name and digits already on file is a
// duplicate. Shared with the checkout flow's inline customer creation.
func NewCustomer(state *domain.AppState, name string, phone string) (domain.Customer, error) {
	name = strings.TrimSpace(name)
	digits := NormalizePhone(phone)
	if name == "" || digits == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name and phone are required", ErrInvalid)
	}
	if len(digits) != 10 {
		return domain.Customer{}, fmt.Errorf("%w: phone must have exactly 10 digits", ErrInvalid)
	}
	for _, existing := range state.Customers {
		if strings.EqualFold(strings.TrimSpace(existing.Name), name) && NormalizePhone(existing.Phone) == digits {
			return domain.Customer{}, fmt.Errorf("%w: customer %q with phone %s", ErrDuplicate, name, digits)
		}
	}
	return domain.Customer{
		ID:    xid.New("cust"),
		Name:  name,
		Phone: digits,
	}, nil
}

// NormalizePhone strips everything but digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Service) update(ctx context.Context, identity string, mutate func(*domain.AppState) error) (domain.AppState, error) {
	var lastErr error
	for attempt := 0; attempt < retryLimit; attempt++ {
		state, rev := s.store.Load(ctx, identity)
		next := state.Clone()
		if err := mutate(&next); err != nil {
			return domain.AppState{}, err
		}
		if _, err := s.store.Save(ctx, identity, next, rev); err != nil {
			if errors.Is(err, gateway.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return domain.AppState{}, err
		}
		return next, nil
	}
	return domain.AppState{}, fmt.Errorf("update after %d attempts: %w", retryLimit, lastErr)
}
