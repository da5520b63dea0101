package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentStore defines the DB methods needed to record payments.
type PaymentStore interface {
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (database.Payment, error)
	GetRetailerForUpdate(ctx context.Context, id uuid.UUID) (database.Retailer, error)
	AdjustRetailerDue(ctx context.Context, arg database.AdjustRetailerDueParams) (database.Retailer, error)
	GetSale(ctx context.Context, id uuid.UUID) (database.Sale, error)
	GetSaleForUpdate(ctx context.Context, id uuid.UUID) (database.Sale, error)
	UpdateSalePayment(ctx context.Context, arg database.UpdateSalePaymentParams) (database.Sale, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	ListPaymentsBySale(ctx context.Context, saleID uuid.UUID) ([]database.Payment, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// RecordPaymentRequest is the validated input for recording a payment.
type RecordPaymentRequest struct {
	RetailerID     uuid.UUID
	Amount         decimal.Decimal
	Method         string
	SaleID         uuid.UUID // zero for a retailer-level payment
	CollectedBy    uuid.UUID // zero when not collected by a representative
	Notes          string
	IdempotencyKey string
}

// RecordPaymentResult is the stored payment plus the rows it changed. Sale
// is nil for retailer-level payments. Replayed is true when the payment was
// already recorded under the same idempotency key.
type RecordPaymentResult struct {
	Payment  database.Payment
	Retailer database.Retailer
	Sale     *database.Sale
	Replayed bool
}

// PaymentService records payments against retailers and sales. It never
// touches representative cash holdings.
type PaymentService struct {
	pool     Pool
	newStore NewPaymentStore
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(pool Pool, newStore NewPaymentStore, timeout time.Duration, logger logrus.FieldLogger) *PaymentService {
	return &PaymentService{pool: pool, newStore: newStore, timeout: timeout, logger: logger}
}

// RecordPayment stores a payment, lowers the retailer's running due and,
// when a sale is given, settles the sale's paid/due amounts.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !money.InRange(amount) {
		return nil, ErrAmountOutOfRange
	}
	if !enum.IsValidPaymentMethod(req.Method) {
		return nil, ErrInvalidMethod
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	result, err := s.recordPaymentTx(ctx, req, amount)
	if err != nil && req.IdempotencyKey != "" && isUniqueViolation(err, "payments_idempotency_key_key") {
		// Lost the race to a concurrent retry; its payment stands.
		return s.replay(ctx, s.newStore(s.pool), req.IdempotencyKey)
	}
	return result, err
}

func (s *PaymentService) recordPaymentTx(ctx context.Context, req RecordPaymentRequest, amount decimal.Decimal) (*RecordPaymentResult, error) {
	var result *RecordPaymentResult
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		if req.IdempotencyKey != "" {
			replayed, err := s.replay(ctx, store, req.IdempotencyKey)
			if err == nil {
				result = replayed
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		if _, err := store.GetRetailerForUpdate(ctx, req.RetailerID); err != nil {
			return lookupErr("get retailer", err, ErrRetailerNotFound)
		}

		var (
			sale    *database.Sale
			saleID  pgtype.UUID
			routeID pgtype.UUID
		)
		if req.SaleID != uuid.Nil {
			current, err := store.GetSaleForUpdate(ctx, req.SaleID)
			if err != nil {
				return lookupErr("get sale", err, ErrSaleNotFound)
			}
			if current.RetailerID != req.RetailerID {
				return ErrSaleRetailerMismatch
			}

			paid := money.FromNumeric(current.PaidAmount).Add(amount)
			due := money.NonNegative(money.FromNumeric(current.TotalAmount).Sub(paid))
			status := enum.PaymentStatusPartial
			if money.IsSettled(due) {
				status = enum.PaymentStatusPaid
			}

			updated, err := store.UpdateSalePayment(ctx, database.UpdateSalePaymentParams{
				ID:            current.ID,
				PaidAmount:    money.ToNumeric(paid),
				DueAmount:     money.ToNumeric(due),
				PaymentStatus: status,
			})
			if err != nil {
				return storeErr("update sale payment", err)
			}
			sale = &updated
			saleID = pgtype.UUID{Bytes: current.ID, Valid: true}
			routeID = current.RouteID
		}

		retailer, err := store.AdjustRetailerDue(ctx, database.AdjustRetailerDueParams{
			ID:    req.RetailerID,
			Delta: money.ToNumeric(amount.Neg()),
		})
		if err != nil {
			return storeErr("adjust retailer due", err)
		}

		payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			RetailerID:     req.RetailerID,
			SaleID:         saleID,
			RouteID:        routeID,
			Amount:         money.ToNumeric(amount),
			PaymentMethod:  req.Method,
			CollectedBy:    optionalUUID(req.CollectedBy),
			Notes:          optionalText(req.Notes),
			IdempotencyKey: optionalText(req.IdempotencyKey),
		})
		if err != nil {
			return storeErr("create payment", err)
		}

		result = &RecordPaymentResult{Payment: payment, Retailer: retailer, Sale: sale}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentService) replay(ctx context.Context, store PaymentStore, key string) (*RecordPaymentResult, error) {
	payment, err := store.GetPaymentByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, lookupErr("get payment by idempotency key", err, ErrNotFound)
	}
	s.logger.WithFields(logrus.Fields{"field": "RecordPayment", "payment_id": payment.ID}).
		Info("payment replayed by idempotency key")
	return &RecordPaymentResult{Payment: payment, Replayed: true}, nil
}

// ListSalePayments returns a sale's payments in the order they were recorded.
func (s *PaymentService) ListSalePayments(ctx context.Context, saleID uuid.UUID) ([]database.Payment, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	store := s.newStore(s.pool)
	if _, err := store.GetSale(ctx, saleID); err != nil {
		return nil, lookupErr("get sale", err, ErrSaleNotFound)
	}
	payments, err := store.ListPaymentsBySale(ctx, saleID)
	if err != nil {
		return nil, storeErr("list payments", err)
	}
	return payments, nil
}
