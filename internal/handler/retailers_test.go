package handler_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/handler"
	"github.com/grocerydist/routeledger/internal/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock store ---

type mockRetailerStore struct {
	retailers  []database.Retailer
	sales      []database.Sale
	lastList   database.ListRetailersParams
	lastCreate database.CreateRetailerParams
	listErr    error
}

func (m *mockRetailerStore) ListRetailers(_ context.Context, arg database.ListRetailersParams) ([]database.Retailer, error) {
	m.lastList = arg
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []database.Retailer
	for _, r := range m.retailers {
		if arg.Search.Valid && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(arg.Search.String)) {
			continue
		}
		if arg.WithDue && !numericPositive(r.TotalDue) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (m *mockRetailerStore) GetRetailer(_ context.Context, id uuid.UUID) (database.Retailer, error) {
	for _, r := range m.retailers {
		if r.ID == id {
			return r, nil
		}
	}
	return database.Retailer{}, pgx.ErrNoRows
}

func (m *mockRetailerStore) CreateRetailer(_ context.Context, arg database.CreateRetailerParams) (database.Retailer, error) {
	m.lastCreate = arg
	r := database.Retailer{
		ID:        uuid.New(),
		Name:      arg.Name,
		Phone:     arg.Phone,
		Address:   arg.Address,
		TotalDue:  numeric("0"),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.retailers = append(m.retailers, r)
	return r, nil
}

func (m *mockRetailerStore) ListSalesByRetailer(_ context.Context, arg database.ListSalesByRetailerParams) ([]database.Sale, error) {
	var result []database.Sale
	for _, s := range m.sales {
		if s.RetailerID != arg.RetailerID {
			continue
		}
		if arg.UnroutedOnly && s.RouteID.Valid {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func numericPositive(n pgtype.Numeric) bool {
	return n.Valid && n.Int != nil && n.Int.Sign() > 0
}

func setupRetailerRouter(store *mockRetailerStore) *chi.Mux {
	h := handler.NewRetailerHandler(store, testLogger)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/retailers", h.RegisterRoutes)
	return r
}

func seededRetailerStore() (*mockRetailerStore, database.Retailer) {
	owing := database.Retailer{ID: uuid.New(), Name: "Corner Shop", TotalDue: numeric("750")}
	settled := database.Retailer{ID: uuid.New(), Name: "Main Street Grocery", TotalDue: numeric("0")}
	store := &mockRetailerStore{
		retailers: []database.Retailer{owing, settled},
		sales: []database.Sale{
			{
				ID:             uuid.New(),
				InvoiceNumber:  "INV-1",
				RetailerID:     owing.ID,
				TotalAmount:    numeric("500"),
				PaidAmount:     numeric("0"),
				DueAmount:      numeric("500"),
				PaymentStatus:  enum.PaymentStatusDue,
				DeliveryStatus: enum.DeliveryStatusPending,
			},
			{
				ID:             uuid.New(),
				InvoiceNumber:  "INV-2",
				RetailerID:     owing.ID,
				TotalAmount:    numeric("250"),
				PaidAmount:     numeric("0"),
				DueAmount:      numeric("250"),
				PaymentStatus:  enum.PaymentStatusDue,
				DeliveryStatus: enum.DeliveryStatusPending,
				RouteID:        pgUUID(uuid.New()),
			},
		},
	}
	return store, owing
}

// --- Tests ---

func TestRetailerList(t *testing.T) {
	store, _ := seededRetailerStore()
	r := setupRetailerRouter(store)

	t.Run("all", func(t *testing.T) {
		rr := doAuthRequest(t, r, "GET", "/retailers", nil, srClaims())
		assertStatus(t, rr, http.StatusOK)
		if got := len(decodeList(t, rr)); got != 2 {
			t.Errorf("expected 2 retailers, got %d", got)
		}
		if store.lastList.Limit != 20 || store.lastList.Offset != 0 {
			t.Errorf("default pagination: %+v", store.lastList)
		}
	})

	t.Run("with due", func(t *testing.T) {
		rr := doAuthRequest(t, r, "GET", "/retailers?with_due=true&limit=500", nil, managerClaims())
		assertStatus(t, rr, http.StatusOK)
		list := decodeList(t, rr)
		if len(list) != 1 || list[0]["total_due"] != "750.00" {
			t.Errorf("with_due list: %v", list)
		}
		if store.lastList.Limit != 100 {
			t.Errorf("limit should be capped at 100, got %d", store.lastList.Limit)
		}
	})

	t.Run("search", func(t *testing.T) {
		rr := doAuthRequest(t, r, "GET", "/retailers?search=main", nil, ownerClaims())
		assertStatus(t, rr, http.StatusOK)
		list := decodeList(t, rr)
		if len(list) != 1 || list[0]["name"] != "Main Street Grocery" {
			t.Errorf("search list: %v", list)
		}
	})

	t.Run("bad with_due", func(t *testing.T) {
		rr := doAuthRequest(t, r, "GET", "/retailers?with_due=maybe", nil, ownerClaims())
		assertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestRetailerList_StoreError(t *testing.T) {
	store := &mockRetailerStore{listErr: errors.New("connection reset")}
	rr := doAuthRequest(t, setupRetailerRouter(store), "GET", "/retailers", nil, ownerClaims())
	assertStatus(t, rr, http.StatusInternalServerError)
}

func TestRetailerGet(t *testing.T) {
	store, owing := seededRetailerStore()
	r := setupRetailerRouter(store)

	rr := doAuthRequest(t, r, "GET", "/retailers/"+owing.ID.String(), nil, srClaims())
	assertStatus(t, rr, http.StatusOK)
	if resp := decodeResponse(t, rr); resp["total_due"] != "750.00" || resp["phone"] != nil {
		t.Errorf("response: %v", resp)
	}

	rr = doAuthRequest(t, r, "GET", "/retailers/"+uuid.NewString(), nil, srClaims())
	assertStatus(t, rr, http.StatusNotFound)
}

func TestRetailerCreate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := &mockRetailerStore{}
		rr := doAuthRequest(t, setupRetailerRouter(store), "POST", "/retailers", map[string]string{
			"name":  "New Shop",
			"phone": "01700000009",
		}, managerClaims())

		assertStatus(t, rr, http.StatusCreated)
		resp := decodeResponse(t, rr)
		if resp["total_due"] != "0.00" || resp["phone"] != "01700000009" {
			t.Errorf("response: %v", resp)
		}
		if store.lastCreate.Address.Valid {
			t.Error("empty address should be stored as NULL")
		}
	})

	t.Run("missing name", func(t *testing.T) {
		rr := doAuthRequest(t, setupRetailerRouter(&mockRetailerStore{}), "POST", "/retailers",
			map[string]string{"phone": "017"}, ownerClaims())
		assertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("representative", func(t *testing.T) {
		rr := doAuthRequest(t, setupRetailerRouter(&mockRetailerStore{}), "POST", "/retailers",
			map[string]string{"name": "Shop"}, srClaims())
		assertStatus(t, rr, http.StatusForbidden)
	})
}

func TestRetailerSales(t *testing.T) {
	store, owing := seededRetailerStore()
	r := setupRetailerRouter(store)

	rr := doAuthRequest(t, r, "GET", "/retailers/"+owing.ID.String()+"/sales", nil, managerClaims())
	assertStatus(t, rr, http.StatusOK)
	if got := len(decodeList(t, rr)); got != 2 {
		t.Errorf("expected 2 sales, got %d", got)
	}

	rr = doAuthRequest(t, r, "GET", "/retailers/"+owing.ID.String()+"/sales?unrouted=true", nil, managerClaims())
	assertStatus(t, rr, http.StatusOK)
	list := decodeList(t, rr)
	if len(list) != 1 || list[0]["invoice_number"] != "INV-1" || list[0]["route_id"] != nil {
		t.Errorf("unrouted sales: %v", list)
	}

	rr = doAuthRequest(t, r, "GET", "/retailers/"+uuid.NewString()+"/sales", nil, managerClaims())
	assertStatus(t, rr, http.StatusNotFound)
}
