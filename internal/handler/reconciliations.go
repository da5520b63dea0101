package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/middleware"
	"github.com/grocerydist/routeledger/internal/service"
	"github.com/grocerydist/routeledger/internal/ws"
	"github.com/sirupsen/logrus"
)

// ReconciliationServicer defines the service methods needed to close routes.
// Satisfied by *service.ReconciliationService.
type ReconciliationServicer interface {
	ReconcileRoute(ctx context.Context, req service.ReconcileRequest) (*service.ReconciliationDetail, error)
	GetReconciliation(ctx context.Context, routeID uuid.UUID) (*service.ReconciliationDetail, error)
}

// ReconciliationHandler handles route reconciliation endpoints.
type ReconciliationHandler struct {
	svc    ReconciliationServicer
	events EventPublisher
	logger logrus.FieldLogger
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(svc ReconciliationServicer, events EventPublisher, logger logrus.FieldLogger) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc, events: publisherOrNoop(events), logger: logger}
}

// RegisterRoutes registers reconciliation endpoints. Expected to be mounted
// on the /routes subrouter next to RouteHandler.
func (h *ReconciliationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}/reconciliation", h.Get)
	r.With(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)).
		Post("/{id}/reconciliation", h.Reconcile)
}

// --- Request / Response types ---

type reconcileRequest struct {
	TotalCollectedCash string              `json:"total_collected_cash" validate:"required,numeric"`
	TotalReturnsAmount string              `json:"total_returns_amount" validate:"omitempty,numeric"`
	Notes              string              `json:"notes" validate:"max=2000"`
	ReturnItems        []returnItemRequest `json:"return_items" validate:"dive"`
}

type returnItemRequest struct {
	SaleID      string `json:"sale_id" validate:"required,uuid"`
	ProductName string `json:"product_name" validate:"required,max=255"`
	Quantity    int32  `json:"quantity" validate:"required,gt=0"`
	UnitPrice   string `json:"unit_price" validate:"required,numeric"`
	Reason      string `json:"reason" validate:"max=500"`
}

type reconciliationResponse struct {
	ID                 uuid.UUID                    `json:"id"`
	RouteID            uuid.UUID                    `json:"route_id"`
	TotalExpectedCash  string                       `json:"total_expected_cash"`
	TotalCollectedCash string                       `json:"total_collected_cash"`
	TotalReturnsAmount string                       `json:"total_returns_amount"`
	Discrepancy        string                       `json:"discrepancy"`
	Notes              *string                      `json:"notes"`
	ReconciledBy       *uuid.UUID                   `json:"reconciled_by"`
	ReconciledAt       time.Time                    `json:"reconciled_at"`
	Items              []reconciliationItemResponse `json:"items"`
	Route              routeResponse                `json:"route"`
	CashHolding        *cashHoldingResponse         `json:"cash_holding,omitempty"`
}

type reconciliationItemResponse struct {
	ID          uuid.UUID `json:"id"`
	SaleID      uuid.UUID `json:"sale_id"`
	ProductName string    `json:"product_name"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	TotalAmount string    `json:"total_amount"`
	Reason      *string   `json:"reason"`
}

// --- Handlers ---

// Reconcile handles POST /routes/{id}/reconciliation.
func (h *ReconciliationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req reconcileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	collected, err := parseMoney(req.TotalCollectedCash)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid total_collected_cash"})
		return
	}
	returns, err := parseMoney(req.TotalReturnsAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid total_returns_amount"})
		return
	}

	items := make([]service.ReturnItem, len(req.ReturnItems))
	for i, it := range req.ReturnItems {
		price, err := parseMoney(it.UnitPrice)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit_price"})
			return
		}
		items[i] = service.ReturnItem{
			SaleID:      uuid.MustParse(it.SaleID),
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   price,
			Reason:      it.Reason,
		}
	}

	detail, err := h.svc.ReconcileRoute(r.Context(), service.ReconcileRequest{
		RouteID:            routeID,
		TotalCollectedCash: collected,
		TotalReturnsAmount: returns,
		Notes:              req.Notes,
		ReturnItems:        items,
		ReconciledBy:       claims.UserID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "ReconciliationHandler.Reconcile", err)
		return
	}

	resp := toReconciliationResponse(detail)
	h.events.Publish(detail.Route.AssignedTo, ws.EventRouteReconciled, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /routes/{id}/reconciliation.
func (h *ReconciliationHandler) Get(w http.ResponseWriter, r *http.Request) {
	routeID, ok := parseUUIDParam(w, r, "id", "route ID")
	if !ok {
		return
	}

	detail, err := h.svc.GetReconciliation(r.Context(), routeID)
	if err != nil {
		writeServiceError(w, h.logger, "ReconciliationHandler.Get", err)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || (claims.Role == enum.UserRoleSR && claims.UserID != detail.Route.AssignedTo) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this route"})
		return
	}

	writeJSON(w, http.StatusOK, toReconciliationResponse(detail))
}

// --- Response mapping ---

func toReconciliationResponse(d *service.ReconciliationDetail) reconciliationResponse {
	rec := d.Reconciliation
	resp := reconciliationResponse{
		ID:                 rec.ID,
		RouteID:            rec.RouteID,
		TotalExpectedCash:  formatMoney(rec.TotalExpectedCash),
		TotalCollectedCash: formatMoney(rec.TotalCollectedCash),
		TotalReturnsAmount: formatMoney(rec.TotalReturnsAmount),
		Discrepancy:        formatMoney(rec.Discrepancy),
		Notes:              textPtr(rec.Notes),
		ReconciledBy:       uuidPtr(rec.ReconciledBy),
		ReconciledAt:       rec.ReconciledAt,
		Items:              make([]reconciliationItemResponse, len(d.Items)),
		Route:              toRouteResponse(d.Route),
	}
	for i, it := range d.Items {
		resp.Items[i] = toReconciliationItemResponse(it)
	}
	if d.CashHolding != nil {
		ch := toCashHoldingResponse(*d.CashHolding)
		resp.CashHolding = &ch
	}
	return resp
}

func toReconciliationItemResponse(it database.RouteReconciliationItem) reconciliationItemResponse {
	return reconciliationItemResponse{
		ID:          it.ID,
		SaleID:      it.SaleID,
		ProductName: it.ProductName,
		Quantity:    it.Quantity,
		UnitPrice:   formatMoney(it.UnitPrice),
		TotalAmount: formatMoney(it.TotalAmount),
		Reason:      textPtr(it.Reason),
	}
}
