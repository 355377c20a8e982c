package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"stockflow/backend/internal/auth"
	"stockflow/backend/internal/catalog"
	"stockflow/backend/internal/credit"
	"stockflow/backend/internal/docgen"
	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/gateway"
	"stockflow/backend/internal/ledger"
	"stockflow/backend/internal/sales"
)

// watchTimeout bounds the long poll on /state/watch.
const watchTimeout = 25 * time.Second

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.auth.UpdatePassword(r.Context(), identityFrom(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (a *API) handleTaxOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"taxOptions": domain.TaxOptions})
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	state, rev := a.gateway.Load(r.Context(), identityFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "revision": rev})
}

// handleStateWatch long-polls until the caller's aggregate changes or the
// window lapses. Clients re-request after each response.
func (a *API) handleStateWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ch, cancel := a.gateway.Subscribe(identityFrom(r.Context()))
	defer cancel()

	select {
	case <-ch:
		writeJSON(w, http.StatusOK, map[string]any{"changed": true})
	case <-r.Context().Done():
	case <-time.After(watchTimeout):
		writeJSON(w, http.StatusOK, map[string]any{"changed": false})
	}
}

func (a *API) handleStateReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	state, err := a.catalog.ResetState(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		state, _ := a.gateway.Load(r.Context(), identity)
		writeJSON(w, http.StatusOK, map[string]any{"products": state.Products})
	case http.MethodPost:
		var req domain.Product
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, products, err := a.catalog.AddProduct(r.Context(), identity, req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product, "products": products})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleProductActions serves /api/v1/products/{id} and
// /api/v1/products/{id}/barcode.
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")

	if id, ok := strings.CutSuffix(rest, "/barcode"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		state, _ := a.gateway.Load(r.Context(), identity)
		p := state.FindProduct(id)
		if p == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("%w: product %s", catalog.ErrNotFound, id))
			return
		}
		label, err := docgen.BarcodeLabel(*p)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(label)
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown product path"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.Product
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.ID = id
		products, err := a.catalog.UpdateProduct(r.Context(), identity, req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodDelete:
		products, err := a.catalog.DeleteProduct(r.Context(), identity, id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		state, _ := a.gateway.Load(r.Context(), identity)
		writeJSON(w, http.StatusOK, map[string]any{"categories": state.Categories})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		categories, err := a.catalog.AddCategory(r.Context(), identity, req.Name)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"categories": categories})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategoryActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/categories/")
	categories, err := a.catalog.DeleteCategory(r.Context(), identityFrom(r.Context()), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		state, _ := a.gateway.Load(r.Context(), identity)
		writeJSON(w, http.StatusOK, map[string]any{"customers": state.Customers})
	case http.MethodPost:
		var req struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, customers, err := a.catalog.AddCustomer(r.Context(), identity, req.Name, req.Phone)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer, "customers": customers})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleCustomerActions serves /api/v1/customers/{id},
// /api/v1/customers/{id}/statement and .../statement.pdf.
func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/customers/")

	if id, ok := strings.CutSuffix(rest, "/statement.pdf"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		stmt, err := a.credit.Statement(r.Context(), identity, id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		state, _ := a.gateway.Load(r.Context(), identity)
		pdf, err := docgen.Statement(state.Profile, stmt)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writePDF(w, fmt.Sprintf("statement-%s.pdf", id), pdf)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/statement"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		stmt, err := a.credit.Statement(r.Context(), identity, id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"statement": stmt})
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown customer path"))
		return
	}
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	customers, err := a.catalog.DeleteCustomer(r.Context(), identity, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

type cartItemRequest struct {
	ProductID     string  `json:"productId"`
	Quantity      int     `json:"quantity"`
	DiscountMode  string  `json:"discountMode,omitempty"`
	DiscountValue float64 `json:"discountValue,omitempty"`
}

type cartRequest struct {
	Mode          string                  `json:"mode"`
	Items         []cartItemRequest       `json:"items"`
	PaymentMethod string                  `json:"paymentMethod,omitempty"`
	CustomerID    string                  `json:"customerId,omitempty"`
	NewCustomer   *sales.NewCustomerInput `json:"newCustomer,omitempty"`
	TaxLabel      string                  `json:"taxLabel,omitempty"`
}

// buildCart replays the request lines through the cart so every add and
// quantity change passes the same eligibility rules the register applies.
func buildCart(state *domain.AppState, req cartRequest) (*sales.Cart, error) {
	cart, err := sales.NewCart(domain.TransactionType(req.Mode))
	if err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if err := cart.AddItem(state, item.ProductID); err != nil {
			return nil, err
		}
		if item.Quantity > 1 {
			if err := cart.SetQuantity(state, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
		if item.DiscountMode != "" {
			if err := cart.UpdateDiscount(item.ProductID, sales.DiscountMode(item.DiscountMode), item.DiscountValue); err != nil {
				return nil, err
			}
		}
	}
	return cart, nil
}

func (a *API) handleCartPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, _ := a.gateway.Load(r.Context(), identityFrom(r.Context()))
	cart, err := buildCart(&state, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	label := req.TaxLabel
	if label == "" {
		label = state.Profile.DefaultTaxLabel
	}
	opt := domain.TaxOptionByLabel(label)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    cart.Items,
		"totals":   cart.Totals(opt.Rate),
		"taxLabel": opt.Label,
		"taxRate":  opt.Rate,
	})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	identity := identityFrom(r.Context())
	state, _ := a.gateway.Load(r.Context(), identity)
	cart, err := buildCart(&state, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	tx, updated, err := a.sales.Checkout(r.Context(), identity, sales.CheckoutRequest{
		Cart:          cart,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		CustomerID:    req.CustomerID,
		NewCustomer:   req.NewCustomer,
		TaxLabel:      req.TaxLabel,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx, "state": updated})
}

func (a *API) handlePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		CustomerID string  `json:"customerId"`
		Amount     float64 `json:"amount"`
		Method     string  `json:"method"`
		Notes      string  `json:"notes,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, state, err := a.credit.RecordPayment(r.Context(), identityFrom(r.Context()), req.CustomerID, req.Amount, domain.PaymentMethod(req.Method), req.Notes)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx, "state": state})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		state, _ := a.gateway.Load(r.Context(), identity)
		writeJSON(w, http.StatusOK, map[string]any{"profile": state.Profile})
	case http.MethodPut:
		var req domain.StoreProfile
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		profile, err := a.catalog.UpdateProfile(r.Context(), identity, req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	txID := strings.TrimPrefix(r.URL.Path, "/api/v1/documents/invoice/")
	state, _ := a.gateway.Load(r.Context(), identityFrom(r.Context()))

	var found *domain.Transaction
	for i := range state.Transactions {
		if state.Transactions[i].ID == txID {
			found = &state.Transactions[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: transaction %s", catalog.ErrNotFound, txID))
		return
	}
	pdf, err := docgen.Invoice(state.Profile, *found)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writePDF(w, fmt.Sprintf("invoice-%s.pdf", txID), pdf)
}

func (a *API) handleCatalogPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	state, _ := a.gateway.Load(r.Context(), identityFrom(r.Context()))
	pdf, err := docgen.Catalog(state.Profile, state.Products)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writePDF(w, "catalog.pdf", pdf)
}

func (a *API) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !to.IsZero() {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}

	state, _ := a.gateway.Load(r.Context(), identityFrom(r.Context()))
	pdf, err := docgen.TransactionReport(state.Profile, state.Transactions, from, to)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writePDF(w, "transactions.pdf", pdf)
}

func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}

// statusFor maps service sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, credit.ErrUnknownCustomer):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicate), errors.Is(err, auth.ErrEmailTaken), errors.Is(err, gateway.ErrRevisionConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, sales.ErrStockExceeded),
		errors.Is(err, sales.ErrReturnExceeded),
		errors.Is(err, sales.ErrReturnNotEligible),
		errors.Is(err, credit.ErrExceedsDue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrInvalid),
		errors.Is(err, sales.ErrInvalid),
		errors.Is(err, sales.ErrCartEmpty),
		errors.Is(err, sales.ErrCreditRequiresCustomer),
		errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidMethod),
		errors.Is(err, ledger.ErrInvalidTransaction),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, docgen.ErrNoBarcode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
