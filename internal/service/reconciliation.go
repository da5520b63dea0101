package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/lock"
	"github.com/grocerydist/routeledger/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ReconciliationStore defines the DB methods needed to close routes and
// maintain representative cash holdings.
type ReconciliationStore interface {
	GetRoute(ctx context.Context, id uuid.UUID) (database.Route, error)
	GetRouteForUpdate(ctx context.Context, id uuid.UUID) (database.Route, error)
	ListRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) ([]database.RouteSaleWithSale, error)
	GetUser(ctx context.Context, id uuid.UUID) (database.User, error)
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (database.User, error)
	UpdateUserCashHolding(ctx context.Context, arg database.UpdateUserCashHoldingParams) (database.User, error)
	GetRouteReconciliationByRoute(ctx context.Context, routeID uuid.UUID) (database.RouteReconciliation, error)
	CreateRouteReconciliation(ctx context.Context, arg database.CreateRouteReconciliationParams) (database.RouteReconciliation, error)
	CreateRouteReconciliationItem(ctx context.Context, arg database.CreateRouteReconciliationItemParams) (database.RouteReconciliationItem, error)
	ListRouteReconciliationItems(ctx context.Context, reconciliationID uuid.UUID) ([]database.RouteReconciliationItem, error)
	CreateSrCashHolding(ctx context.Context, arg database.CreateSrCashHoldingParams) (database.SrCashHolding, error)
	ListSrCashHoldingsByUser(ctx context.Context, arg database.ListSrCashHoldingsByUserParams) ([]database.SrCashHolding, error)
	CountSrCashHoldingsByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	UpdateRouteStatus(ctx context.Context, arg database.UpdateRouteStatusParams) (database.Route, error)
}

// NewReconciliationStore creates a ReconciliationStore from a DBTX (pool or tx).
type NewReconciliationStore func(db database.DBTX) ReconciliationStore

// ReconcileRequest is the validated input for closing a route.
type ReconcileRequest struct {
	RouteID            uuid.UUID
	TotalCollectedCash decimal.Decimal
	TotalReturnsAmount decimal.Decimal
	Notes              string
	ReturnItems        []ReturnItem
	ReconciledBy       uuid.UUID
}

// ReturnItem is one returned product line.
type ReturnItem struct {
	SaleID      uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
	Reason      string
}

// ReconciliationDetail is a reconciliation with its returned items. Route
// is the route as it stands afterwards; CashHolding is the ledger entry
// written by the reconciliation and is only set by ReconcileRoute.
type ReconciliationDetail struct {
	Reconciliation database.RouteReconciliation
	Items          []database.RouteReconciliationItem
	Route          database.Route
	CashHolding    *database.SrCashHolding
}

// AdjustCashHoldingRequest is a manual correction or opening balance for a
// representative's cash holding.
type AdjustCashHoldingRequest struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Source    string
	Notes     string
	CreatedBy uuid.UUID
}

// CashHoldingHistory is a page of ledger entries, newest first.
type CashHoldingHistory struct {
	User    database.User
	Entries []database.SrCashHolding
	Total   int64
}

// ReconciliationService closes routes and is the only writer of the
// representative cash-holding ledger.
type ReconciliationService struct {
	pool     Pool
	newStore NewReconciliationStore
	locker   lock.Locker
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// NewReconciliationService creates a new ReconciliationService.
func NewReconciliationService(pool Pool, newStore NewReconciliationStore, locker lock.Locker, timeout time.Duration, logger logrus.FieldLogger) *ReconciliationService {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &ReconciliationService{
		pool:     pool,
		newStore: newStore,
		locker:   locker,
		timeout:  timeout,
		logger:   logger,
	}
}

// ReconcileRoute closes a route: it records expected vs. collected cash,
// stores the returned items, appends one cash-holding entry for the route's
// representative and marks the route reconciled. A route is reconciled at
// most once.
func (s *ReconciliationService) ReconcileRoute(ctx context.Context, req ReconcileRequest) (*ReconciliationDetail, error) {
	if err := validateReconcileRequest(req); err != nil {
		return nil, err
	}
	collected := req.TotalCollectedCash.Round(2)
	returns := req.TotalReturnsAmount.Round(2)

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	release := s.locker.Obtain(ctx, lock.RouteKey(req.RouteID.String()))
	defer release()

	var detail *ReconciliationDetail
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		route, err := store.GetRouteForUpdate(ctx, req.RouteID)
		if err != nil {
			return lookupErr("get route", err, ErrRouteNotFound)
		}
		if route.Status == enum.RouteStatusReconciled {
			return ErrRouteReconciled
		}

		links, err := store.ListRouteSalesByRoute(ctx, route.ID)
		if err != nil {
			return storeErr("list route sales", err)
		}
		onRoute := make(map[uuid.UUID]bool, len(links))
		expected := decimal.Zero
		for _, l := range links {
			onRoute[l.RouteSale.SaleID] = true
			expected = expected.Add(money.FromNumeric(l.RouteSale.PreviousDue)).Add(money.FromNumeric(l.Sale.TotalAmount))
		}
		for i, item := range req.ReturnItems {
			if !onRoute[item.SaleID] {
				return fmt.Errorf("return_items[%d]: %w", i, ErrItemSaleNotInRoute)
			}
		}

		discrepancy := expected.Sub(collected).Sub(returns)
		notes := req.Notes
		if discrepancy.Abs().GreaterThan(money.Epsilon) {
			notes = appendNote(notes, discrepancyNote(discrepancy))
			s.logger.WithFields(logrus.Fields{
				"field":        "ReconcileRoute",
				"route_id":     route.ID,
				"route_number": route.RouteNumber,
				"discrepancy":  money.Format(discrepancy),
			}).Warn("reconciliation discrepancy recorded")
		}

		rep, err := store.GetUserForUpdate(ctx, route.AssignedTo)
		if err != nil {
			return lookupErr("get representative", err, ErrRepresentativeNotFound)
		}

		rec, err := store.CreateRouteReconciliation(ctx, database.CreateRouteReconciliationParams{
			RouteID:            route.ID,
			TotalExpectedCash:  money.ToNumeric(expected),
			TotalCollectedCash: money.ToNumeric(collected),
			TotalReturnsAmount: money.ToNumeric(returns),
			Discrepancy:        money.ToNumeric(discrepancy),
			Notes:              optionalText(notes),
			ReconciledBy:       optionalUUID(req.ReconciledBy),
		})
		if err != nil {
			if isUniqueViolation(err, "route_reconciliations_route_id_key") {
				return ErrRouteReconciled
			}
			return storeErr("create reconciliation", err)
		}

		items := make([]database.RouteReconciliationItem, 0, len(req.ReturnItems))
		for i, item := range req.ReturnItems {
			unitPrice := item.UnitPrice.Round(2)
			created, err := store.CreateRouteReconciliationItem(ctx, database.CreateRouteReconciliationItemParams{
				ReconciliationID: rec.ID,
				SaleID:           item.SaleID,
				ProductName:      item.ProductName,
				Quantity:         item.Quantity,
				UnitPrice:        money.ToNumeric(unitPrice),
				TotalAmount:      money.ToNumeric(unitPrice.Mul(decimal.NewFromInt32(item.Quantity))),
				Reason:           optionalText(item.Reason),
			})
			if err != nil {
				return storeErr(fmt.Sprintf("create reconciliation item[%d]", i), err)
			}
			items = append(items, created)
		}

		entry, err := appendCashHolding(ctx, store, rep, collected, database.CreateSrCashHoldingParams{
			Source:      enum.CashHoldingSourceReconciliation,
			ReferenceID: pgtype.UUID{Bytes: rec.ID, Valid: true},
			Notes:       pgtype.Text{String: "Route " + route.RouteNumber, Valid: true},
			CreatedBy:   optionalUUID(req.ReconciledBy),
		})
		if err != nil {
			return err
		}

		route, err = store.UpdateRouteStatus(ctx, database.UpdateRouteStatusParams{
			ID:     route.ID,
			Status: enum.RouteStatusReconciled,
		})
		if err != nil {
			return storeErr("update route status", err)
		}

		detail = &ReconciliationDetail{
			Reconciliation: rec,
			Items:          items,
			Route:          route,
			CashHolding:    &entry,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func validateReconcileRequest(req ReconcileRequest) error {
	if req.TotalCollectedCash.IsNegative() {
		return ErrNegativeCollected
	}
	if req.TotalReturnsAmount.IsNegative() {
		return ErrNegativeReturns
	}
	if !money.InRange(req.TotalCollectedCash) || !money.InRange(req.TotalReturnsAmount) {
		return ErrAmountOutOfRange
	}
	for i, item := range req.ReturnItems {
		if strings.TrimSpace(item.ProductName) == "" {
			return fmt.Errorf("return_items[%d]: %w", i, ErrEmptyProductName)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("return_items[%d]: %w", i, ErrInvalidQuantity)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("return_items[%d]: %w", i, ErrInvalidUnitPrice)
		}
		if !money.InRange(item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity))) {
			return fmt.Errorf("return_items[%d]: %w", i, ErrAmountOutOfRange)
		}
	}
	return nil
}

func discrepancyNote(d decimal.Decimal) string {
	if d.IsPositive() {
		return "Discrepancy: shortfall of " + money.Format(d)
	}
	return "Discrepancy: overage of " + money.Format(d.Abs())
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// appendCashHolding writes one ledger entry moving rep's holding by amount
// and stores the new balance on the user row. rep must be locked.
func appendCashHolding(ctx context.Context, store ReconciliationStore, rep database.User, amount decimal.Decimal, arg database.CreateSrCashHoldingParams) (database.SrCashHolding, error) {
	before := money.FromNumeric(rep.CurrentCashHolding)
	after := before.Add(amount)

	arg.UserID = rep.ID
	arg.Amount = money.ToNumeric(amount)
	arg.BalanceBefore = money.ToNumeric(before)
	arg.BalanceAfter = money.ToNumeric(after)

	entry, err := store.CreateSrCashHolding(ctx, arg)
	if err != nil {
		return database.SrCashHolding{}, storeErr("create cash holding", err)
	}
	if _, err := store.UpdateUserCashHolding(ctx, database.UpdateUserCashHoldingParams{
		ID:                 rep.ID,
		CurrentCashHolding: money.ToNumeric(after),
	}); err != nil {
		return database.SrCashHolding{}, storeErr("update user cash holding", err)
	}
	return entry, nil
}

// GetReconciliation returns the reconciliation recorded for a route.
func (s *ReconciliationService) GetReconciliation(ctx context.Context, routeID uuid.UUID) (*ReconciliationDetail, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	store := s.newStore(s.pool)
	route, err := store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, lookupErr("get route", err, ErrRouteNotFound)
	}
	rec, err := store.GetRouteReconciliationByRoute(ctx, route.ID)
	if err != nil {
		return nil, lookupErr("get reconciliation", err, ErrReconciliationNotFound)
	}
	items, err := store.ListRouteReconciliationItems(ctx, rec.ID)
	if err != nil {
		return nil, storeErr("list reconciliation items", err)
	}
	return &ReconciliationDetail{Reconciliation: rec, Items: items, Route: route}, nil
}

// AdjustCashHolding records a manual correction or an opening balance.
// An opening balance is only accepted while the ledger is empty, and no
// adjustment may take the holding below zero.
func (s *ReconciliationService) AdjustCashHolding(ctx context.Context, req AdjustCashHoldingRequest) (database.SrCashHolding, error) {
	switch req.Source {
	case enum.CashHoldingSourceManualAdjustment, enum.CashHoldingSourceInitial:
	default:
		return database.SrCashHolding{}, ErrInvalidSource
	}
	amount := req.Amount.Round(2)
	if amount.IsZero() {
		return database.SrCashHolding{}, ErrZeroAdjustment
	}
	if !money.InRange(amount) {
		return database.SrCashHolding{}, ErrAmountOutOfRange
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	var entry database.SrCashHolding
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		rep, err := store.GetUserForUpdate(ctx, req.UserID)
		if err != nil {
			return lookupErr("get representative", err, ErrRepresentativeNotFound)
		}
		if req.Source == enum.CashHoldingSourceInitial {
			n, err := store.CountSrCashHoldingsByUser(ctx, rep.ID)
			if err != nil {
				return storeErr("count cash holdings", err)
			}
			if n > 0 {
				return ErrInitialNotFirst
			}
		}
		if money.FromNumeric(rep.CurrentCashHolding).Add(amount).IsNegative() {
			return ErrNegativeBalance
		}

		entry, err = appendCashHolding(ctx, store, rep, amount, database.CreateSrCashHoldingParams{
			Source:    req.Source,
			Notes:     optionalText(req.Notes),
			CreatedBy: optionalUUID(req.CreatedBy),
		})
		return err
	})
	if err != nil {
		return database.SrCashHolding{}, err
	}
	return entry, nil
}

// ListCashHoldingHistory returns a representative's most recent ledger
// entries with the total entry count.
func (s *ReconciliationService) ListCashHoldingHistory(ctx context.Context, userID uuid.UUID, limit int32) (*CashHoldingHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	store := s.newStore(s.pool)
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return nil, lookupErr("get representative", err, ErrRepresentativeNotFound)
	}
	entries, err := store.ListSrCashHoldingsByUser(ctx, database.ListSrCashHoldingsByUserParams{UserID: user.ID, Limit: limit})
	if err != nil {
		return nil, storeErr("list cash holdings", err)
	}
	total, err := store.CountSrCashHoldingsByUser(ctx, user.ID)
	if err != nil {
		return nil, storeErr("count cash holdings", err)
	}
	return &CashHoldingHistory{User: user, Entries: entries, Total: total}, nil
}
