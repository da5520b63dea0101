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

// AccountabilityServicer is satisfied by *service.AccountabilityService.
type AccountabilityServicer interface {
	GetAccountability(ctx context.Context, representativeID uuid.UUID) (*service.AccountabilitySummary, error)
}

// CashHoldingServicer is satisfied by *service.ReconciliationService.
type CashHoldingServicer interface {
	AdjustCashHolding(ctx context.Context, req service.AdjustCashHoldingRequest) (database.SrCashHolding, error)
	ListCashHoldingHistory(ctx context.Context, userID uuid.UUID, limit int32) (*service.CashHoldingHistory, error)
}

// RepresentativeHandler serves a representative's accountability report
// and cash-holding ledger.
type RepresentativeHandler struct {
	accountability AccountabilityServicer
	cash           CashHoldingServicer
	events         EventPublisher
	logger         logrus.FieldLogger
}

// NewRepresentativeHandler creates a new RepresentativeHandler.
func NewRepresentativeHandler(accountability AccountabilityServicer, cash CashHoldingServicer, events EventPublisher, logger logrus.FieldLogger) *RepresentativeHandler {
	return &RepresentativeHandler{
		accountability: accountability,
		cash:           cash,
		events:         publisherOrNoop(events),
		logger:         logger,
	}
}

// RegisterRoutes registers representative endpoints on the given Chi router.
// Expected to be mounted at /representatives.
func (h *RepresentativeHandler) RegisterRoutes(r chi.Router) {
	selfOrStaff := middleware.RequireSelfOrRole("id", enum.UserRoleOwner, enum.UserRoleManager)
	r.With(selfOrStaff).Get("/{id}/accountability", h.Accountability)
	r.With(selfOrStaff).Get("/{id}/cash-holdings", h.CashHoldings)
	r.With(middleware.RequireRole(enum.UserRoleOwner)).Post("/{id}/cash-holdings", h.AdjustCashHolding)
}

// --- Request / Response types ---

type adjustCashHoldingRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Source string `json:"source" validate:"required,oneof=manual_adjustment initial"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type accountabilityResponse struct {
	RepresentativeID   uuid.UUID                     `json:"representative_id"`
	RepresentativeName string                        `json:"representative_name"`
	ActiveRoutes       int                           `json:"active_routes"`
	ReconciledRoutes   int                           `json:"reconciled_routes"`
	TotalExpectedCash  string                        `json:"total_expected_cash"`
	TotalCollected     string                        `json:"total_collected"`
	TotalReturns       string                        `json:"total_returns"`
	CurrentOutstanding string                        `json:"current_outstanding"`
	CurrentCashHolding string                        `json:"current_cash_holding"`
	Routes             []routeAccountabilityResponse `json:"routes"`
}

type routeAccountabilityResponse struct {
	RouteID                uuid.UUID `json:"route_id"`
	RouteNumber            string    `json:"route_number"`
	Status                 string    `json:"status"`
	ExpectedCash           string    `json:"expected_cash"`
	PaymentsCollected      string    `json:"payments_collected"`
	PaymentCount           int       `json:"payment_count"`
	ReconciledCollected    string    `json:"reconciled_collected"`
	Returns                string    `json:"returns"`
	Reconciled             bool      `json:"reconciled"`
	ReconciliationExcluded bool      `json:"reconciliation_excluded"`
}

type cashHoldingResponse struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Amount        string     `json:"amount"`
	BalanceBefore string     `json:"balance_before"`
	BalanceAfter  string     `json:"balance_after"`
	Source        string     `json:"source"`
	ReferenceID   *uuid.UUID `json:"reference_id"`
	Notes         *string    `json:"notes"`
	CreatedBy     *uuid.UUID `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

type cashHoldingHistoryResponse struct {
	UserID             uuid.UUID             `json:"user_id"`
	CurrentCashHolding string                `json:"current_cash_holding"`
	Total              int64                 `json:"total"`
	Entries            []cashHoldingResponse `json:"entries"`
}

// --- Handlers ---

// Accountability handles GET /representatives/{id}/accountability.
func (h *RepresentativeHandler) Accountability(w http.ResponseWriter, r *http.Request) {
	repID, ok := parseUUIDParam(w, r, "id", "representative ID")
	if !ok {
		return
	}

	summary, err := h.accountability.GetAccountability(r.Context(), repID)
	if err != nil {
		writeServiceError(w, h.logger, "RepresentativeHandler.Accountability", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountabilityResponse(summary))
}

// CashHoldings handles GET /representatives/{id}/cash-holdings?limit=.
func (h *RepresentativeHandler) CashHoldings(w http.ResponseWriter, r *http.Request) {
	repID, ok := parseUUIDParam(w, r, "id", "representative ID")
	if !ok {
		return
	}

	var limit int32
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = int32(n)
	}

	history, err := h.cash.ListCashHoldingHistory(r.Context(), repID, limit)
	if err != nil {
		writeServiceError(w, h.logger, "RepresentativeHandler.CashHoldings", err)
		return
	}

	resp := cashHoldingHistoryResponse{
		UserID:             history.User.ID,
		CurrentCashHolding: formatMoney(history.User.CurrentCashHolding),
		Total:              history.Total,
		Entries:            make([]cashHoldingResponse, len(history.Entries)),
	}
	for i, e := range history.Entries {
		resp.Entries[i] = toCashHoldingResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdjustCashHolding handles POST /representatives/{id}/cash-holdings.
func (h *RepresentativeHandler) AdjustCashHolding(w http.ResponseWriter, r *http.Request) {
	repID, ok := parseUUIDParam(w, r, "id", "representative ID")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req adjustCashHoldingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	entry, err := h.cash.AdjustCashHolding(r.Context(), service.AdjustCashHoldingRequest{
		UserID:    repID,
		Amount:    amount,
		Source:    req.Source,
		Notes:     req.Notes,
		CreatedBy: claims.UserID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "RepresentativeHandler.AdjustCashHolding", err)
		return
	}

	resp := toCashHoldingResponse(entry)
	h.events.Publish(repID, ws.EventCashHoldingAdjusted, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// --- Response mapping ---

func toAccountabilityResponse(s *service.AccountabilitySummary) accountabilityResponse {
	resp := accountabilityResponse{
		RepresentativeID:   s.Representative.ID,
		RepresentativeName: s.Representative.Name,
		ActiveRoutes:       s.ActiveRoutes,
		ReconciledRoutes:   s.ReconciledRoutes,
		TotalExpectedCash:  money.Format(s.TotalExpectedCash),
		TotalCollected:     money.Format(s.TotalCollected),
		TotalReturns:       money.Format(s.TotalReturns),
		CurrentOutstanding: money.Format(s.CurrentOutstanding),
		CurrentCashHolding: money.Format(s.CurrentCashHolding),
		Routes:             make([]routeAccountabilityResponse, len(s.Routes)),
	}
	for i, ra := range s.Routes {
		resp.Routes[i] = routeAccountabilityResponse{
			RouteID:                ra.RouteID,
			RouteNumber:            ra.RouteNumber,
			Status:                 ra.Status,
			ExpectedCash:           money.Format(ra.ExpectedCash),
			PaymentsCollected:      money.Format(ra.PaymentsCollected),
			PaymentCount:           ra.PaymentCount,
			ReconciledCollected:    money.Format(ra.ReconciledCollected),
			Returns:                money.Format(ra.Returns),
			Reconciled:             ra.Reconciled,
			ReconciliationExcluded: ra.ReconciliationExcluded,
		}
	}
	return resp
}

func toCashHoldingResponse(e database.SrCashHolding) cashHoldingResponse {
	return cashHoldingResponse{
		ID:            e.ID,
		UserID:        e.UserID,
		Amount:        formatMoney(e.Amount),
		BalanceBefore: formatMoney(e.BalanceBefore),
		BalanceAfter:  formatMoney(e.BalanceAfter),
		Source:        e.Source,
		ReferenceID:   uuidPtr(e.ReferenceID),
		Notes:         textPtr(e.Notes),
		CreatedBy:     uuidPtr(e.CreatedBy),
		CreatedAt:     e.CreatedAt,
	}
}
