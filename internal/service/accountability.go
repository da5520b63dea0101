package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/money"
	"github.com/shopspring/decimal"
)

// AccountabilityStore defines the read-only DB methods behind the
// per-representative cash report.
type AccountabilityStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (database.User, error)
	ListRoutesByAssignee(ctx context.Context, assignedTo uuid.UUID) ([]database.Route, error)
	ListRouteSalesByRouteIDs(ctx context.Context, routeIDs []uuid.UUID) ([]database.RouteSaleWithSale, error)
	ListRouteReconciliationsByRouteIDs(ctx context.Context, routeIDs []uuid.UUID) ([]database.RouteReconciliation, error)
	ListPaymentsByCollectorAndSales(ctx context.Context, arg database.ListPaymentsByCollectorAndSalesParams) ([]database.Payment, error)
}

// NewAccountabilityStore creates an AccountabilityStore from a DBTX.
type NewAccountabilityStore func(db database.DBTX) AccountabilityStore

// AccountabilitySummary is a representative's lifetime cash position.
//
// TotalExpectedCash covers every route ever assigned, reconciled or not.
// CurrentOutstanding may be negative when more was collected than expected.
// CurrentCashHolding is the ledger balance and is reported independently.
type AccountabilitySummary struct {
	Representative     database.User
	ActiveRoutes       int
	ReconciledRoutes   int
	TotalExpectedCash  decimal.Decimal
	TotalCollected     decimal.Decimal
	TotalReturns       decimal.Decimal
	CurrentOutstanding decimal.Decimal
	CurrentCashHolding decimal.Decimal
	Routes             []RouteAccountability
}

// RouteAccountability is one route's share of the summary.
// ReconciliationExcluded is set when the route's reconciled cash was left
// out of TotalCollected because individual payments already account for it.
type RouteAccountability struct {
	RouteID                uuid.UUID
	RouteNumber            string
	Status                 string
	ExpectedCash           decimal.Decimal
	PaymentsCollected      decimal.Decimal
	PaymentCount           int
	ReconciledCollected    decimal.Decimal
	Returns                decimal.Decimal
	Reconciled             bool
	ReconciliationExcluded bool
}

// AccountabilityService builds per-representative reports.
type AccountabilityService struct {
	db       database.DBTX
	newStore NewAccountabilityStore
	timeout  time.Duration
}

// NewAccountabilityService creates a new AccountabilityService. Reads run
// outside a transaction.
func NewAccountabilityService(db database.DBTX, newStore NewAccountabilityStore, timeout time.Duration) *AccountabilityService {
	return &AccountabilityService{db: db, newStore: newStore, timeout: timeout}
}

// GetAccountability summarizes what a representative was expected to
// collect, what was collected and what was returned.
//
// Payments are attributed to a route through the route_id recorded with
// them, falling back to the sale's current route only for rows written
// before payments carried one. A route with at least one attributed payment
// contributes its payments to TotalCollected instead of its reconciliation's
// collected cash.
func (s *AccountabilityService) GetAccountability(ctx context.Context, representativeID uuid.UUID) (*AccountabilitySummary, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	store := s.newStore(s.db)

	rep, err := store.GetUser(ctx, representativeID)
	if err != nil {
		return nil, lookupErr("get representative", err, ErrRepresentativeNotFound)
	}

	summary := &AccountabilitySummary{
		Representative:     rep,
		TotalExpectedCash:  decimal.Zero,
		TotalCollected:     decimal.Zero,
		TotalReturns:       decimal.Zero,
		CurrentOutstanding: decimal.Zero,
		CurrentCashHolding: money.FromNumeric(rep.CurrentCashHolding),
		Routes:             []RouteAccountability{},
	}

	routes, err := store.ListRoutesByAssignee(ctx, rep.ID)
	if err != nil {
		return nil, storeErr("list routes", err)
	}
	if len(routes) == 0 {
		return summary, nil
	}

	routeIDs := make([]uuid.UUID, 0, len(routes))
	byRoute := make(map[uuid.UUID]*RouteAccountability, len(routes))
	summary.Routes = make([]RouteAccountability, len(routes))
	for i, r := range routes {
		routeIDs = append(routeIDs, r.ID)
		if r.Status == enum.RouteStatusReconciled {
			summary.ReconciledRoutes++
		} else {
			summary.ActiveRoutes++
		}
		summary.Routes[i] = RouteAccountability{
			RouteID:             r.ID,
			RouteNumber:         r.RouteNumber,
			Status:              r.Status,
			ExpectedCash:        decimal.Zero,
			PaymentsCollected:   decimal.Zero,
			ReconciledCollected: decimal.Zero,
			Returns:             decimal.Zero,
		}
		byRoute[r.ID] = &summary.Routes[i]
	}

	links, err := store.ListRouteSalesByRouteIDs(ctx, routeIDs)
	if err != nil {
		return nil, storeErr("list route sales", err)
	}
	saleIDs := make([]uuid.UUID, 0, len(links))
	saleRoute := make(map[uuid.UUID]uuid.UUID, len(links))
	for _, l := range links {
		expected := money.FromNumeric(l.RouteSale.PreviousDue).Add(money.FromNumeric(l.Sale.TotalAmount))
		summary.TotalExpectedCash = summary.TotalExpectedCash.Add(expected)
		if ra, ok := byRoute[l.RouteSale.RouteID]; ok {
			ra.ExpectedCash = ra.ExpectedCash.Add(expected)
		}
		saleIDs = append(saleIDs, l.Sale.ID)
		if l.Sale.RouteID.Valid {
			saleRoute[l.Sale.ID] = uuid.UUID(l.Sale.RouteID.Bytes)
		}
	}

	reconciliations, err := store.ListRouteReconciliationsByRouteIDs(ctx, routeIDs)
	if err != nil {
		return nil, storeErr("list reconciliations", err)
	}

	var payments []database.Payment
	if len(saleIDs) > 0 {
		payments, err = store.ListPaymentsByCollectorAndSales(ctx, database.ListPaymentsByCollectorAndSalesParams{
			CollectedBy: rep.ID,
			SaleIds:     saleIDs,
		})
		if err != nil {
			return nil, storeErr("list payments", err)
		}
	}

	paymentCount := make(map[uuid.UUID]int)
	for _, p := range payments {
		amount := money.FromNumeric(p.Amount)
		summary.TotalCollected = summary.TotalCollected.Add(amount)

		routeID, ok := resolvePaymentRoute(p, saleRoute)
		if !ok {
			continue
		}
		paymentCount[routeID]++
		if ra, found := byRoute[routeID]; found {
			ra.PaymentCount++
			ra.PaymentsCollected = ra.PaymentsCollected.Add(amount)
		}
	}

	for _, rec := range reconciliations {
		collected := money.FromNumeric(rec.TotalCollectedCash)
		returns := money.FromNumeric(rec.TotalReturnsAmount)
		summary.TotalReturns = summary.TotalReturns.Add(returns)

		excluded := paymentCount[rec.RouteID] > 0
		if !excluded {
			summary.TotalCollected = summary.TotalCollected.Add(collected)
		}
		if ra, ok := byRoute[rec.RouteID]; ok {
			ra.Reconciled = true
			ra.ReconciledCollected = collected
			ra.Returns = returns
			ra.ReconciliationExcluded = excluded
		}
	}

	summary.CurrentOutstanding = summary.TotalExpectedCash.Sub(summary.TotalCollected).Sub(summary.TotalReturns)
	return summary, nil
}

// resolvePaymentRoute returns the route a payment counts toward. A payment
// recorded before its sale was routed stays unattributed; only legacy rows
// without a recorded attribution fall back to the sale's current route.
func resolvePaymentRoute(p database.Payment, saleRoute map[uuid.UUID]uuid.UUID) (uuid.UUID, bool) {
	if p.RouteID.Valid {
		return uuid.UUID(p.RouteID.Bytes), true
	}
	if p.RouteAttributed || !p.SaleID.Valid {
		return uuid.Nil, false
	}
	routeID, ok := saleRoute[uuid.UUID(p.SaleID.Bytes)]
	return routeID, ok
}
