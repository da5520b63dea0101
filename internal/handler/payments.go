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

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	RecordPayment(ctx context.Context, req service.RecordPaymentRequest) (*service.RecordPaymentResult, error)
	ListSalePayments(ctx context.Context, saleID uuid.UUID) ([]database.Payment, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc    PaymentServicer
	events EventPublisher
	logger logrus.FieldLogger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, events EventPublisher, logger logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{svc: svc, events: publisherOrNoop(events), logger: logger}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments", h.Record)
	r.Get("/sales/{id}/payments", h.ListBySale)
}

// --- Request / Response types ---

type recordPaymentRequest struct {
	RetailerID     string `json:"retailer_id" validate:"required,uuid"`
	Amount         string `json:"amount" validate:"required,numeric"`
	PaymentMethod  string `json:"payment_method" validate:"required,oneof=cash bank_transfer mobile_banking cheque other"`
	SaleID         string `json:"sale_id" validate:"omitempty,uuid"`
	CollectedBy    string `json:"collected_by" validate:"omitempty,uuid"`
	Notes          string `json:"notes" validate:"max=1000"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=255"`
}

type paymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	RetailerID    uuid.UUID  `json:"retailer_id"`
	SaleID        *uuid.UUID `json:"sale_id"`
	RouteID       *uuid.UUID `json:"route_id"`
	Amount        string     `json:"amount"`
	PaymentMethod string     `json:"payment_method"`
	CollectedBy   *uuid.UUID `json:"collected_by"`
	Notes         *string    `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
}

type recordPaymentResponse struct {
	Payment          paymentResponse `json:"payment"`
	RetailerTotalDue string          `json:"retailer_total_due,omitempty"`
	Sale             *salePayment    `json:"sale,omitempty"`
	Replayed         bool            `json:"replayed"`
}

type salePayment struct {
	ID            uuid.UUID `json:"id"`
	PaidAmount    string    `json:"paid_amount"`
	DueAmount     string    `json:"due_amount"`
	PaymentStatus string    `json:"payment_status"`
}

// --- Handlers ---

// Record handles POST /payments. A retried request carrying the same
// idempotency key returns the stored payment with 200 and no event.
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req recordPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	var saleID uuid.UUID
	if req.SaleID != "" {
		saleID = uuid.MustParse(req.SaleID)
	}

	collectedBy := claims.UserID
	if req.CollectedBy != "" {
		collectedBy = uuid.MustParse(req.CollectedBy)
	}
	if claims.Role == enum.UserRoleSR && collectedBy != claims.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "representatives can only record their own collections"})
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.svc.RecordPayment(r.Context(), service.RecordPaymentRequest{
		RetailerID:     uuid.MustParse(req.RetailerID),
		Amount:         amount,
		Method:         req.PaymentMethod,
		SaleID:         saleID,
		CollectedBy:    collectedBy,
		Notes:          req.Notes,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(w, h.logger, "PaymentHandler.Record", err)
		return
	}

	resp := toRecordPaymentResponse(result)
	if result.Replayed {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	h.events.Publish(collectedBy, ws.EventPaymentRecorded, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// ListBySale handles GET /sales/{id}/payments.
func (h *PaymentHandler) ListBySale(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseUUIDParam(w, r, "id", "sale ID")
	if !ok {
		return
	}

	payments, err := h.svc.ListSalePayments(r.Context(), saleID)
	if err != nil {
		writeServiceError(w, h.logger, "PaymentHandler.ListBySale", err)
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Response mapping ---

func toPaymentResponse(p database.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		RetailerID:    p.RetailerID,
		SaleID:        uuidPtr(p.SaleID),
		RouteID:       uuidPtr(p.RouteID),
		Amount:        formatMoney(p.Amount),
		PaymentMethod: p.PaymentMethod,
		CollectedBy:   uuidPtr(p.CollectedBy),
		Notes:         textPtr(p.Notes),
		CreatedAt:     p.CreatedAt,
	}
}

func toRecordPaymentResponse(res *service.RecordPaymentResult) recordPaymentResponse {
	resp := recordPaymentResponse{
		Payment:  toPaymentResponse(res.Payment),
		Replayed: res.Replayed,
	}
	// A replay reports only the stored payment.
	if !res.Replayed {
		resp.RetailerTotalDue = formatMoney(res.Retailer.TotalDue)
	}
	if res.Sale != nil {
		resp.Sale = &salePayment{
			ID:            res.Sale.ID,
			PaidAmount:    formatMoney(res.Sale.PaidAmount),
			DueAmount:     formatMoney(res.Sale.DueAmount),
			PaymentStatus: res.Sale.PaymentStatus,
		}
	}
	return resp
}
