package catalog

import (
	"context"
	"errors"
	"testing"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/gateway"
	"stockflow/backend/internal/gateway/memstore"
)

func newService(t *testing.T) (*Service, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(memstore.New(), nil, nil, nil)
	return New(gw), gw
}

func TestAddProductAssignsIDAndZeroesSoldCounter(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, products, err := svc.AddProduct(ctx, "alice", domain.Product{Name: " Soap ", SellPrice: 30, Stock: 5, TotalSold: 99})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	if created.Name != "Soap" {
		t.Fatalf("name must be trimmed, got %q", created.Name)
	}
	if created.TotalSold != 0 {
		t.Fatalf("sold counter must start at zero, got %d", created.TotalSold)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	if _, _, err := svc.AddProduct(ctx, "alice", domain.Product{Name: ""}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty name must be rejected, got %v", err)
	}
	if _, _, err := svc.AddProduct(ctx, "alice", domain.Product{Name: "X", SellPrice: -1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("negative price must be rejected, got %v", err)
	}
}

func TestUpdateProductPreservesSoldCounter(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, _, err := svc.AddProduct(ctx, "alice", domain.Product{Name: "Soap", SellPrice: 30, Stock: 5})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Simulate ledger activity directly.
	gw := svc.store.(*gateway.Gateway)
	state, rev := gw.Load(ctx, "alice")
	state.FindProduct(created.ID).TotalSold = 7
	if _, err := gw.Save(ctx, "alice", state, rev); err != nil {
		t.Fatalf("seed: %v", err)
	}

	updated := created
	updated.Name = "Soap Bar"
	updated.SellPrice = 35
	updated.TotalSold = 0
	products, err := svc.UpdateProduct(ctx, "alice", updated)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if products[0].Name != "Soap Bar" || products[0].SellPrice != 35 {
		t.Fatalf("editable fields must change: %+v", products[0])
	}
	if products[0].TotalSold != 7 {
		t.Fatalf("sold counter must survive edits, got %d", products[0].TotalSold)
	}

	if _, err := svc.UpdateProduct(ctx, "alice", domain.Product{ID: "prod-missing", Name: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown product must be ErrNotFound, got %v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, _, err := svc.AddProduct(ctx, "alice", domain.Product{Name: "Soap", SellPrice: 30})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	products, err := svc.DeleteProduct(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(products))
	}
	if _, err := svc.DeleteProduct(ctx, "alice", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete must be ErrNotFound, got %v", err)
	}
}

func TestAddCategorySortedAndCaseInsensitiveNoOp(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.AddCategory(ctx, "alice", "Snacks"); err != nil {
		t.Fatalf("add: %v", err)
	}
	cats, err := svc.AddCategory(ctx, "alice", "Grocery")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(cats) != 2 || cats[0] != "Grocery" || cats[1] != "Snacks" {
		t.Fatalf("categories must stay sorted, got %#v", cats)
	}

	cats, err = svc.AddCategory(ctx, "alice", "  grocery ")
	if err != nil {
		t.Fatalf("duplicate add must be a no-op, got %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("case-insensitive duplicate must not append, got %#v", cats)
	}
}

func TestDeleteCategoryLeavesProductsAlone(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.AddProduct(ctx, "alice", domain.Product{Name: "Chips", Category: "Snacks"}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if _, err := svc.AddCategory(ctx, "alice", "Snacks"); err != nil {
		t.Fatalf("add category: %v", err)
	}

	cats, err := svc.DeleteCategory(ctx, "alice", "Snacks")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("expected no categories, got %#v", cats)
	}

	gw := svc.store.(*gateway.Gateway)
	state, _ := gw.Load(ctx, "alice")
	if state.Products[0].Category != "Snacks" {
		t.Fatalf("products must keep their category label, got %q", state.Products[0].Category)
	}
}

func TestAddCustomerValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, customers, err := svc.AddCustomer(ctx, "alice", "Ravi Kumar", "98765-43210")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.Phone != "9876543210" {
		t.Fatalf("phone must store digits only, got %q", created.Phone)
	}
	if len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(customers))
	}

	if _, _, err := svc.AddCustomer(ctx, "alice", "ravi kumar ", "(987) 654-3210"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same name and digits must be a duplicate, got %v", err)
	}
	if _, _, err := svc.AddCustomer(ctx, "alice", "Meena", "12345"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("short phone must be rejected, got %v", err)
	}
	if _, _, err := svc.AddCustomer(ctx, "alice", "", "9876543210"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty name must be rejected, got %v", err)
	}
}

func TestDeleteCustomerKeepsTransactionHistory(t *testing.T) {
	svc, gw := newService(t)
	ctx := context.Background()

	created, _, err := svc.AddCustomer(ctx, "alice", "Ravi", "9876543210")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	state, rev := gw.Load(ctx, "alice")
	state.Transactions = append(state.Transactions, domain.Transaction{ID: "txn-1", Type: domain.TxSale, CustomerID: created.ID})
	if _, err := gw.Save(ctx, "alice", state, rev); err != nil {
		t.Fatalf("seed: %v", err)
	}

	customers, err := svc.DeleteCustomer(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(customers) != 0 {
		t.Fatalf("expected no customers, got %d", len(customers))
	}

	state, _ = gw.Load(ctx, "alice")
	if len(state.Transactions) != 1 || state.Transactions[0].CustomerID != created.ID {
		t.Fatal("transactions must keep their customer reference after deletion")
	}
}

func TestUpdateProfilePinsTaxRateToLabel(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	profile := domain.DefaultProfile()
	profile.StoreName = "Ravi General Store"
	profile.DefaultTaxLabel = "GST@18%"
	profile.DefaultTaxRate = 3 // stale value from the client

	saved, err := svc.UpdateProfile(ctx, "alice", profile)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.DefaultTaxRate != 18 {
		t.Fatalf("rate must follow the label, got %v", saved.DefaultTaxRate)
	}

	profile.StoreName = ""
	if _, err := svc.UpdateProfile(ctx, "alice", profile); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty store name must be rejected, got %v", err)
	}
}

func TestResetState(t *testing.T) {
	svc, gw := newService(t)
	ctx := context.Background()

	if _, _, err := svc.AddProduct(ctx, "alice", domain.Product{Name: "Soap", SellPrice: 30}); err != nil {
		t.Fatalf("add: %v", err)
	}
	state, err := svc.ResetState(ctx, "alice")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(state.Products) != 0 || state.Profile.StoreName != "StockFlow Demo" {
		t.Fatalf("reset must restore factory defaults: %+v", state)
	}

	state, _ = gw.Load(ctx, "alice")
	if len(state.Products) != 0 {
		t.Fatal("reset must persist")
	}
}
