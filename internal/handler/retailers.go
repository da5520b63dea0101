package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/logging"
	"github.com/grocerydist/routeledger/internal/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"
)

// RetailerStore defines the database methods needed by retailer handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type RetailerStore interface {
	ListRetailers(ctx context.Context, arg database.ListRetailersParams) ([]database.Retailer, error)
	GetRetailer(ctx context.Context, id uuid.UUID) (database.Retailer, error)
	CreateRetailer(ctx context.Context, arg database.CreateRetailerParams) (database.Retailer, error)
	ListSalesByRetailer(ctx context.Context, arg database.ListSalesByRetailerParams) ([]database.Sale, error)
}

// RetailerHandler exposes retailers and their sales. Balances are read-only
// here; total_due only moves through payments and returns.
type RetailerHandler struct {
	store  RetailerStore
	logger logrus.FieldLogger
}

// NewRetailerHandler creates a new RetailerHandler.
func NewRetailerHandler(store RetailerStore, logger logrus.FieldLogger) *RetailerHandler {
	return &RetailerHandler{store: store, logger: logger}
}

// RegisterRoutes registers retailer endpoints on the given Chi router.
func (h *RetailerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.With(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)).Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/sales", h.Sales)
	})
}

// --- Request / Response types ---

type createRetailerRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=500"`
}

type retailerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone"`
	Address   *string   `json:"address"`
	TotalDue  string    `json:"total_due"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type saleResponse struct {
	ID             uuid.UUID  `json:"id"`
	InvoiceNumber  string     `json:"invoice_number"`
	RetailerID     uuid.UUID  `json:"retailer_id"`
	TotalAmount    string     `json:"total_amount"`
	PaidAmount     string     `json:"paid_amount"`
	DueAmount      string     `json:"due_amount"`
	PaymentStatus  string     `json:"payment_status"`
	DeliveryStatus string     `json:"delivery_status"`
	RouteID        *uuid.UUID `json:"route_id"`
	AssignedTo     *uuid.UUID `json:"assigned_to"`
	AssignedToName *string    `json:"assigned_to_name"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toRetailerResponse(r database.Retailer) retailerResponse {
	return retailerResponse{
		ID:        r.ID,
		Name:      r.Name,
		Phone:     textPtr(r.Phone),
		Address:   textPtr(r.Address),
		TotalDue:  formatMoney(r.TotalDue),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toSaleResponse(s database.Sale) saleResponse {
	return saleResponse{
		ID:             s.ID,
		InvoiceNumber:  s.InvoiceNumber,
		RetailerID:     s.RetailerID,
		TotalAmount:    formatMoney(s.TotalAmount),
		PaidAmount:     formatMoney(s.PaidAmount),
		DueAmount:      formatMoney(s.DueAmount),
		PaymentStatus:  s.PaymentStatus,
		DeliveryStatus: s.DeliveryStatus,
		RouteID:        uuidPtr(s.RouteID),
		AssignedTo:     uuidPtr(s.AssignedTo),
		AssignedToName: textPtr(s.AssignedToName),
		CreatedAt:      s.CreatedAt,
	}
}

// --- Handlers ---

// List returns retailers with optional ?search=, ?with_due=true and
// limit/offset pagination.
func (h *RetailerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Parse pagination
	limit := 20
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	var search pgtype.Text
	if s := q.Get("search"); s != "" {
		search = pgtype.Text{String: s, Valid: true}
	}

	withDue := false
	if s := q.Get("with_due"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid with_due"})
			return
		}
		withDue = v
	}

	retailers, err := h.store.ListRetailers(r.Context(), database.ListRetailersParams{
		Limit:   int32(limit),
		Offset:  int32(offset),
		Search:  search,
		WithDue: withDue,
	})
	if err != nil {
		logging.LogError(h.logger, "handler", "RetailerHandler.List", "list retailers", nil, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]retailerResponse, len(retailers))
	for i, rt := range retailers {
		resp[i] = toRetailerResponse(rt)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single retailer with its outstanding balance.
func (h *RetailerHandler) Get(w http.ResponseWriter, r *http.Request) {
	retailerID, ok := parseUUIDParam(w, r, "id", "retailer ID")
	if !ok {
		return
	}

	retailer, err := h.store.GetRetailer(r.Context(), retailerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "retailer not found"})
			return
		}
		logging.LogError(h.logger, "handler", "RetailerHandler.Get", "get retailer", retailerID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toRetailerResponse(retailer))
}

// Create adds a retailer with a zero balance.
func (h *RetailerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRetailerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var phone, address pgtype.Text
	if req.Phone != "" {
		phone = pgtype.Text{String: req.Phone, Valid: true}
	}
	if req.Address != "" {
		address = pgtype.Text{String: req.Address, Valid: true}
	}

	retailer, err := h.store.CreateRetailer(r.Context(), database.CreateRetailerParams{
		Name:    req.Name,
		Phone:   phone,
		Address: address,
	})
	if err != nil {
		logging.LogError(h.logger, "handler", "RetailerHandler.Create", "insert retailer", req.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toRetailerResponse(retailer))
}

// Sales lists a retailer's sales. ?unrouted=true restricts the list to
// sales that can still be put on a route.
func (h *RetailerHandler) Sales(w http.ResponseWriter, r *http.Request) {
	retailerID, ok := parseUUIDParam(w, r, "id", "retailer ID")
	if !ok {
		return
	}

	unrouted := false
	if s := r.URL.Query().Get("unrouted"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unrouted"})
			return
		}
		unrouted = v
	}

	if _, err := h.store.GetRetailer(r.Context(), retailerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "retailer not found"})
			return
		}
		logging.LogError(h.logger, "handler", "RetailerHandler.Sales", "get retailer", retailerID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	sales, err := h.store.ListSalesByRetailer(r.Context(), database.ListSalesByRetailerParams{
		RetailerID:   retailerID,
		UnroutedOnly: unrouted,
	})
	if err != nil {
		logging.LogError(h.logger, "handler", "RetailerHandler.Sales", "list sales", retailerID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]saleResponse, len(sales))
	for i, s := range sales {
		resp[i] = toSaleResponse(s)
	}

	writeJSON(w, http.StatusOK, resp)
}
