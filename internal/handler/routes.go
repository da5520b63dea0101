package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/middleware"
	"github.com/grocerydist/routeledger/internal/money"
	"github.com/grocerydist/routeledger/internal/service"
	"github.com/grocerydist/routeledger/internal/ws"
	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// RouteServicer defines the service methods needed by route handlers.
// Satisfied by *service.RouteService; narrow interface for testability.
type RouteServicer interface {
	CreateRoute(ctx context.Context, req service.CreateRouteRequest) (*service.RouteDetail, error)
	AddSalesToRoute(ctx context.Context, routeID uuid.UUID, saleIDs []uuid.UUID) (*service.RouteDetail, error)
	RemoveSaleFromRoute(ctx context.Context, routeID, saleID uuid.UUID) (*service.RouteDetail, error)
	UpdateRouteStatus(ctx context.Context, routeID uuid.UUID, status string) (database.Route, error)
	DeleteRoute(ctx context.Context, routeID uuid.UUID) (database.Route, error)
	GetRoute(ctx context.Context, routeID uuid.UUID) (*service.RouteDetail, error)
	ListRoutes(ctx context.Context, filter service.RouteFilter) ([]database.Route, error)
}

// RouteHandler handles route endpoints.
type RouteHandler struct {
	svc    RouteServicer
	events EventPublisher
	logger logrus.FieldLogger
}

// NewRouteHandler creates a new RouteHandler. A nil events publisher
// disables live updates.
func NewRouteHandler(svc RouteServicer, events EventPublisher, logger logrus.FieldLogger) *RouteHandler {
	return &RouteHandler{svc: svc, events: publisherOrNoop(events), logger: logger}
}

// RegisterRoutes registers route endpoints on the given Chi router.
// Expected to be mounted at /routes.
func (h *RouteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
		r.Post("/", h.Create)
		r.Post("/{id}/sales", h.AddSales)
		r.Delete("/{id}/sales/{saleId}", h.RemoveSale)
		r.Delete("/{id}", h.Delete)
	})
}

// --- Request / Response types ---

type createRouteRequest struct {
	AssignedTo string   `json:"assigned_to" validate:"required,uuid"`
	RouteDate  string   `json:"route_date" validate:"required,datetime=2006-01-02"`
	Notes      string   `json:"notes" validate:"max=1000"`
	SaleIDs    []string `json:"sale_ids" validate:"dive,uuid"`
}

type addSalesRequest struct {
	SaleIDs []string `json:"sale_ids" validate:"required,min=1,dive,uuid"`
}

type updateRouteStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed reconciled"`
}

type routeResponse struct {
	ID             uuid.UUID           `json:"id"`
	RouteNumber    string              `json:"route_number"`
	AssignedTo     uuid.UUID           `json:"assigned_to"`
	AssignedToName string              `json:"assigned_to_name"`
	RouteDate      string              `json:"route_date"`
	Status         string              `json:"status"`
	TotalOrders    int32               `json:"total_orders"`
	TotalAmount    string              `json:"total_amount"`
	Notes          *string             `json:"notes"`
	CreatedBy      *uuid.UUID          `json:"created_by"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CompletedAt    *time.Time          `json:"completed_at"`
	ReconciledAt   *time.Time          `json:"reconciled_at"`
	Sales          []routeSaleResponse `json:"sales,omitempty"`
}

type routeSaleResponse struct {
	SaleID         uuid.UUID `json:"sale_id"`
	InvoiceNumber  string    `json:"invoice_number"`
	RetailerID     uuid.UUID `json:"retailer_id"`
	TotalAmount    string    `json:"total_amount"`
	PaidAmount     string    `json:"paid_amount"`
	DueAmount      string    `json:"due_amount"`
	PreviousDue    string    `json:"previous_due"`
	ExpectedCash   string    `json:"expected_cash"`
	PaymentStatus  string    `json:"payment_status"`
	DeliveryStatus string    `json:"delivery_status"`
}

// --- Handlers ---

// Create handles POST /routes.
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	routeDate, _ := time.Parse(dateLayout, req.RouteDate)
	saleIDs := make([]uuid.UUID, len(req.SaleIDs))
	for i, s := range req.SaleIDs {
		saleIDs[i] = uuid.MustParse(s)
	}

	detail, err := h.svc.CreateRoute(r.Context(), service.CreateRouteRequest{
		AssignedTo: uuid.MustParse(req.AssignedTo),
		RouteDate:  routeDate,
		Notes:      req.Notes,
		SaleIDs:    saleIDs,
		CreatedBy:  claims.UserID,
		RequestKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.Create", err)
		return
	}

	resp := toRouteDetailResponse(detail)
	h.events.Publish(detail.Route.AssignedTo, ws.EventRouteCreated, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /routes?status=&assigned_to=&date_from=&date_to=&limit=&offset=.
// Representatives only ever see their own routes.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	q := r.URL.Query()
	var filter service.RouteFilter

	if s := q.Get("status"); s != "" {
		if !enum.IsValidRouteStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		filter.Status = s
	}
	if s := q.Get("assigned_to"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assigned_to"})
			return
		}
		filter.AssignedTo = id
	}
	if claims.Role == enum.UserRoleSR {
		filter.AssignedTo = claims.UserID
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"date_from", &filter.DateFrom}, {"date_to", &filter.DateTo}} {
		if s := q.Get(p.key); s != "" {
			d, err := time.Parse(dateLayout, s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + p.key})
				return
			}
			*p.dst = d
		}
	}
	for _, p := range []struct {
		key string
		dst *int32
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		if s := q.Get(p.key); s != "" {
			n, err := strconv.ParseInt(s, 10, 32)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + p.key})
				return
			}
			*p.dst = int32(n)
		}
	}

	routes, err := h.svc.ListRoutes(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.List", err)
		return
	}

	resp := make([]routeResponse, len(routes))
	for i, route := range routes {
		resp[i] = toRouteResponse(route)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /routes/{id}.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}

	detail, err := h.svc.GetRoute(r.Context(), routeID)
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.Get", err)
		return
	}
	if !h.canSeeRoute(r, detail.Route) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this route"})
		return
	}

	writeJSON(w, http.StatusOK, toRouteDetailResponse(detail))
}

// AddSales handles POST /routes/{id}/sales.
func (h *RouteHandler) AddSales(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}

	var req addSalesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	saleIDs := make([]uuid.UUID, len(req.SaleIDs))
	for i, s := range req.SaleIDs {
		saleIDs[i] = uuid.MustParse(s)
	}

	detail, err := h.svc.AddSalesToRoute(r.Context(), routeID, saleIDs)
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.AddSales", err)
		return
	}

	resp := toRouteDetailResponse(detail)
	h.events.Publish(detail.Route.AssignedTo, ws.EventRouteUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

// RemoveSale handles DELETE /routes/{id}/sales/{saleId}.
func (h *RouteHandler) RemoveSale(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}
	saleID, ok := parseUUIDParam(w, r, "saleId", "sale ID")
	if !ok {
		return
	}

	detail, err := h.svc.RemoveSaleFromRoute(r.Context(), routeID, saleID)
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.RemoveSale", err)
		return
	}

	resp := toRouteDetailResponse(detail)
	h.events.Publish(detail.Route.AssignedTo, ws.EventRouteUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /routes/{id}/status. A representative may
// only move their own routes.
func (h *RouteHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}

	var req updateRouteStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims != nil && claims.Role == enum.UserRoleSR {
		detail, err := h.svc.GetRoute(r.Context(), routeID)
		if err != nil {
			writeServiceError(w, h.logger, "RouteHandler.UpdateStatus", err)
			return
		}
		if detail.Route.AssignedTo != claims.UserID {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this route"})
			return
		}
	}

	route, err := h.svc.UpdateRouteStatus(r.Context(), routeID, req.Status)
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.UpdateStatus", err)
		return
	}

	resp := toRouteResponse(route)
	h.events.Publish(route.AssignedTo, ws.EventRouteStatusChanged, resp)
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /routes/{id}.
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}

	route, err := h.svc.DeleteRoute(r.Context(), routeID)
	if err != nil {
		writeServiceError(w, h.logger, "RouteHandler.Delete", err)
		return
	}

	h.events.Publish(route.AssignedTo, ws.EventRouteDeleted, map[string]any{
		"id":           route.ID,
		"route_number": route.RouteNumber,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": route.ID})
}

func (h *RouteHandler) canSeeRoute(r *http.Request, route database.Route) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return false
	}
	return claims.Role != enum.UserRoleSR || claims.UserID == route.AssignedTo
}

// --- Response mapping ---

func toRouteResponse(r database.Route) routeResponse {
	resp := routeResponse{
		ID:             r.ID,
		RouteNumber:    r.RouteNumber,
		AssignedTo:     r.AssignedTo,
		AssignedToName: r.AssignedToName,
		Status:         r.Status,
		TotalOrders:    r.TotalOrders,
		TotalAmount:    formatMoney(r.TotalAmount),
		Notes:          textPtr(r.Notes),
		CreatedBy:      uuidPtr(r.CreatedBy),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CompletedAt:    timePtr(r.CompletedAt),
		ReconciledAt:   timePtr(r.ReconciledAt),
	}
	if r.RouteDate.Valid {
		resp.RouteDate = r.RouteDate.Time.Format(dateLayout)
	}
	return resp
}

func toRouteDetailResponse(d *service.RouteDetail) routeResponse {
	resp := toRouteResponse(d.Route)
	resp.Sales = make([]routeSaleResponse, len(d.Sales))
	for i, l := range d.Sales {
		previous := money.FromNumeric(l.RouteSale.PreviousDue)
		total := money.FromNumeric(l.Sale.TotalAmount)
		resp.Sales[i] = routeSaleResponse{
			SaleID:         l.Sale.ID,
			InvoiceNumber:  l.Sale.InvoiceNumber,
			RetailerID:     l.Sale.RetailerID,
			TotalAmount:    money.Format(total),
			PaidAmount:     formatMoney(l.Sale.PaidAmount),
			DueAmount:      formatMoney(l.Sale.DueAmount),
			PreviousDue:    money.Format(previous),
			ExpectedCash:   money.Format(previous.Add(total)),
			PaymentStatus:  l.Sale.PaymentStatus,
			DeliveryStatus: l.Sale.DeliveryStatus,
		}
	}
	return resp
}
