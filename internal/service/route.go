package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

const (
	maxRouteNumberRetries = 3

	defaultRouteListLimit = 50
	maxRouteListLimit     = 200
)

// RouteStore defines the DB methods needed to manage routes.
// Satisfied by *database.Queries over a pool or a pgx.Tx.
type RouteStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (database.User, error)
	GetRoute(ctx context.Context, id uuid.UUID) (database.Route, error)
	GetRouteForUpdate(ctx context.Context, id uuid.UUID) (database.Route, error)
	GetRouteByRequestKey(ctx context.Context, requestKey string) (database.Route, error)
	ListRoutes(ctx context.Context, arg database.ListRoutesParams) ([]database.Route, error)
	ListSalesByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Sale, error)
	SumUnroutedDueByRetailers(ctx context.Context, retailerIDs []uuid.UUID) ([]database.SumUnroutedDueByRetailersRow, error)
	CreateRoute(ctx context.Context, arg database.CreateRouteParams) (database.Route, error)
	CreateRouteSale(ctx context.Context, arg database.CreateRouteSaleParams) (database.RouteSale, error)
	AssignSaleToRoute(ctx context.Context, arg database.AssignSaleToRouteParams) (database.Sale, error)
	RecalculateRouteTotals(ctx context.Context, id uuid.UUID) (database.Route, error)
	ListRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) ([]database.RouteSaleWithSale, error)
	DeleteRouteSale(ctx context.Context, arg database.DeleteRouteSaleParams) (int64, error)
	ClearSaleRoute(ctx context.Context, id uuid.UUID) error
	ClearSalesRouteByRoute(ctx context.Context, routeID uuid.UUID) error
	DeleteRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) error
	DeleteRoute(ctx context.Context, id uuid.UUID) (int64, error)
	UpdateRouteStatus(ctx context.Context, arg database.UpdateRouteStatusParams) (database.Route, error)
}

// NewRouteStore creates a RouteStore from a DBTX (pool or tx).
type NewRouteStore func(db database.DBTX) RouteStore

// CreateRouteRequest is the validated input for creating a route.
type CreateRouteRequest struct {
	AssignedTo uuid.UUID
	RouteDate  time.Time
	Notes      string
	SaleIDs    []uuid.UUID
	CreatedBy  uuid.UUID // zero when unknown
	RequestKey string    // optional; a retry with the same key returns the first route
}

// RouteFilter narrows ListRoutes. Zero values mean "any".
type RouteFilter struct {
	Status     string
	AssignedTo uuid.UUID
	DateFrom   time.Time
	DateTo     time.Time
	Limit      int32
	Offset     int32
}

// RouteDetail is a route hydrated with its linked sales and their
// previous-due snapshots.
type RouteDetail struct {
	Route database.Route
	Sales []database.RouteSaleWithSale
}

// allowedTransitions is the manual route status table. Entering
// reconciled is handled by ReconciliationService only.
var allowedTransitions = map[string][]string{
	enum.RouteStatusPending:    {enum.RouteStatusInProgress, enum.RouteStatusCompleted},
	enum.RouteStatusInProgress: {enum.RouteStatusCompleted},
	enum.RouteStatusCompleted:  {enum.RouteStatusReconciled},
	enum.RouteStatusReconciled: {},
}

// RouteService handles route membership and lifecycle.
type RouteService struct {
	pool     Pool
	newStore NewRouteStore
	timeout  time.Duration
	logger   logrus.FieldLogger

	routeNumber func(date time.Time) string
}

// NewRouteService creates a new RouteService.
func NewRouteService(pool Pool, newStore NewRouteStore, timeout time.Duration, logger logrus.FieldLogger) *RouteService {
	return &RouteService{
		pool:        pool,
		newStore:    newStore,
		timeout:     timeout,
		logger:      logger,
		routeNumber: generateRouteNumber,
	}
}

func generateRouteNumber(date time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("RT-%s-%s", date.Format("20060102"), suffix)
}

// CreateRoute links the given sales into a new route for one representative.
// Retries up to maxRouteNumberRetries times on route_number collisions.
func (s *RouteService) CreateRoute(ctx context.Context, req CreateRouteRequest) (*RouteDetail, error) {
	if req.RouteDate.IsZero() {
		return nil, ErrInvalidRouteDate
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRouteNumberRetries; attempt++ {
		detail, err := s.createRouteTx(ctx, req)
		if err == nil {
			return detail, nil
		}
		if isUniqueViolation(err, "routes_route_number_key") {
			s.logger.WithFields(logrus.Fields{"field": "CreateRoute", "attempt": attempt + 1}).
				Warn("route number collision; retrying")
			lastErr = err
			continue
		}
		if req.RequestKey != "" && isUniqueViolation(err, "routes_request_key_key") {
			// A concurrent request with the same key won.
			return s.routeByRequestKey(ctx, req.RequestKey)
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *RouteService) routeByRequestKey(ctx context.Context, key string) (*RouteDetail, error) {
	store := s.newStore(s.pool)
	route, err := store.GetRouteByRequestKey(ctx, key)
	if err != nil {
		return nil, lookupErr("get route by request key", err, ErrRouteNotFound)
	}
	return hydrateRoute(ctx, store, route)
}

func (s *RouteService) createRouteTx(ctx context.Context, req CreateRouteRequest) (*RouteDetail, error) {
	var detail *RouteDetail
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		if req.RequestKey != "" {
			existing, err := store.GetRouteByRequestKey(ctx, req.RequestKey)
			if err == nil {
				detail, err = hydrateRoute(ctx, store, existing)
				return err
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return storeErr("get route by request key", err)
			}
		}

		rep, err := store.GetUser(ctx, req.AssignedTo)
		if err != nil {
			return lookupErr("get representative", err, ErrRepresentativeNotFound)
		}
		if !isActiveRepresentative(rep) {
			return ErrRepresentativeNotFound
		}

		sales, err := store.ListSalesByIDs(ctx, uniqueIDs(req.SaleIDs))
		if err != nil {
			return storeErr("list sales", err)
		}
		if len(sales) == 0 {
			return ErrNoSales
		}
		for _, sale := range sales {
			if sale.RouteID.Valid {
				return fmt.Errorf("sale %s: %w", sale.InvoiceNumber, ErrSaleInOtherRoute)
			}
		}

		snapshots, err := previousDueSnapshots(ctx, store, sales, map[uuid.UUID]decimal.Decimal{})
		if err != nil {
			return err
		}

		route, err := store.CreateRoute(ctx, database.CreateRouteParams{
			RouteNumber:    s.routeNumber(req.RouteDate),
			AssignedTo:     rep.ID,
			AssignedToName: rep.Name,
			RouteDate:      pgtype.Date{Time: req.RouteDate, Valid: true},
			Notes:          optionalText(req.Notes),
			CreatedBy:      optionalUUID(req.CreatedBy),
			RequestKey:     optionalText(req.RequestKey),
		})
		if err != nil {
			return storeErr("create route", err)
		}

		if err := linkSales(ctx, store, route, sales, snapshots); err != nil {
			return err
		}

		route, err = store.RecalculateRouteTotals(ctx, route.ID)
		if err != nil {
			return storeErr("recalculate route totals", err)
		}
		detail, err = hydrateRoute(ctx, store, route)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AddSalesToRoute links more sales into a route that has not been completed.
// Sales already on the route are skipped, so repeating a call is a no-op.
func (s *RouteService) AddSalesToRoute(ctx context.Context, routeID uuid.UUID, saleIDs []uuid.UUID) (*RouteDetail, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	var detail *RouteDetail
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		route, err := store.GetRouteForUpdate(ctx, routeID)
		if err != nil {
			return lookupErr("get route", err, ErrRouteNotFound)
		}
		switch route.Status {
		case enum.RouteStatusReconciled:
			return ErrRouteReconciled
		case enum.RouteStatusCompleted:
			return ErrRouteMembershipFrozen
		}

		links, err := store.ListRouteSalesByRoute(ctx, route.ID)
		if err != nil {
			return storeErr("list route sales", err)
		}
		linked := make(map[uuid.UUID]bool, len(links))
		claimed := make(map[uuid.UUID]decimal.Decimal)
		for _, l := range links {
			linked[l.RouteSale.SaleID] = true
			claimed[l.Sale.RetailerID] = claimed[l.Sale.RetailerID].Add(money.FromNumeric(l.RouteSale.PreviousDue))
		}

		var candidates []uuid.UUID
		for _, id := range uniqueIDs(saleIDs) {
			if !linked[id] {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			detail = &RouteDetail{Route: route, Sales: links}
			return nil
		}

		found, err := store.ListSalesByIDs(ctx, candidates)
		if err != nil {
			return storeErr("list sales", err)
		}
		var sales []database.Sale
		for _, sale := range found {
			if sale.RouteID.Valid {
				if uuid.UUID(sale.RouteID.Bytes) == route.ID {
					continue
				}
				return fmt.Errorf("sale %s: %w", sale.InvoiceNumber, ErrSaleInOtherRoute)
			}
			sales = append(sales, sale)
		}
		if len(sales) == 0 {
			detail = &RouteDetail{Route: route, Sales: links}
			return nil
		}

		snapshots, err := previousDueSnapshots(ctx, store, sales, claimed)
		if err != nil {
			return err
		}
		if err := linkSales(ctx, store, route, sales, snapshots); err != nil {
			return err
		}

		route, err = store.RecalculateRouteTotals(ctx, route.ID)
		if err != nil {
			return storeErr("recalculate route totals", err)
		}
		detail, err = hydrateRoute(ctx, store, route)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// RemoveSaleFromRoute unlinks a sale from a pending route. The sale keeps
// the representative it was assigned by the route.
func (s *RouteService) RemoveSaleFromRoute(ctx context.Context, routeID, saleID uuid.UUID) (*RouteDetail, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	var detail *RouteDetail
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		route, err := store.GetRouteForUpdate(ctx, routeID)
		if err != nil {
			return lookupErr("get route", err, ErrRouteNotFound)
		}
		if route.Status == enum.RouteStatusReconciled {
			return ErrRouteReconciled
		}
		if route.Status != enum.RouteStatusPending {
			return ErrRouteMembershipFrozen
		}

		n, err := store.DeleteRouteSale(ctx, database.DeleteRouteSaleParams{RouteID: route.ID, SaleID: saleID})
		if err != nil {
			return storeErr("delete route sale", err)
		}
		if n == 0 {
			return ErrSaleNotInRoute
		}
		if err := store.ClearSaleRoute(ctx, saleID); err != nil {
			return storeErr("clear sale route", err)
		}

		route, err = store.RecalculateRouteTotals(ctx, route.ID)
		if err != nil {
			return storeErr("recalculate route totals", err)
		}
		detail, err = hydrateRoute(ctx, store, route)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateRouteStatus applies a manual status transition.
func (s *RouteService) UpdateRouteStatus(ctx context.Context, routeID uuid.UUID, status string) (database.Route, error) {
	if !enum.IsValidRouteStatus(status) {
		return database.Route{}, ErrInvalidStatus
	}
	if status == enum.RouteStatusReconciled {
		return database.Route{}, ErrManualReconcile
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	var updated database.Route
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		route, err := store.GetRouteForUpdate(ctx, routeID)
		if err != nil {
			return lookupErr("get route", err, ErrRouteNotFound)
		}
		if route.Status == enum.RouteStatusReconciled {
			return ErrRouteReconciled
		}
		if !canTransition(route.Status, status) {
			return fmt.Errorf("%s -> %s: %w", route.Status, status, ErrIllegalTransition)
		}

		updated, err = store.UpdateRouteStatus(ctx, database.UpdateRouteStatusParams{ID: route.ID, Status: status})
		if err != nil {
			return storeErr("update route status", err)
		}
		return nil
	})
	if err != nil {
		return database.Route{}, err
	}
	return updated, nil
}

func canTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DeleteRoute unlinks every sale and removes the route. Reconciled routes
// cannot be deleted.
func (s *RouteService) DeleteRoute(ctx context.Context, routeID uuid.UUID) (database.Route, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	var deleted database.Route
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		route, err := store.GetRouteForUpdate(ctx, routeID)
		if err != nil {
			return lookupErr("get route", err, ErrRouteNotFound)
		}
		if route.Status == enum.RouteStatusReconciled {
			return ErrRouteReconciled
		}

		if err := store.ClearSalesRouteByRoute(ctx, route.ID); err != nil {
			return storeErr("clear sales route", err)
		}
		if err := store.DeleteRouteSalesByRoute(ctx, route.ID); err != nil {
			return storeErr("delete route sales", err)
		}
		n, err := store.DeleteRoute(ctx, route.ID)
		if err != nil {
			return storeErr("delete route", err)
		}
		if n == 0 {
			return ErrRouteNotFound
		}
		deleted = route
		return nil
	})
	if err != nil {
		return database.Route{}, err
	}
	return deleted, nil
}

// GetRoute returns the route with its linked sales.
func (s *RouteService) GetRoute(ctx context.Context, routeID uuid.UUID) (*RouteDetail, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	store := s.newStore(s.pool)
	route, err := store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, lookupErr("get route", err, ErrRouteNotFound)
	}
	return hydrateRoute(ctx, store, route)
}

// ListRoutes returns routes matching filter, newest route date first.
func (s *RouteService) ListRoutes(ctx context.Context, filter RouteFilter) ([]database.Route, error) {
	if filter.Status != "" && !enum.IsValidRouteStatus(filter.Status) {
		return nil, ErrInvalidStatus
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRouteListLimit
	}
	if limit > maxRouteListLimit {
		limit = maxRouteListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	params := database.ListRoutesParams{
		Status:     optionalText(filter.Status),
		AssignedTo: optionalUUID(filter.AssignedTo),
		Limit:      limit,
		Offset:     offset,
	}
	if !filter.DateFrom.IsZero() {
		params.DateFrom = pgtype.Date{Time: filter.DateFrom, Valid: true}
	}
	if !filter.DateTo.IsZero() {
		params.DateTo = pgtype.Date{Time: filter.DateTo, Valid: true}
	}

	routes, err := s.newStore(s.pool).ListRoutes(ctx, params)
	if err != nil {
		return nil, storeErr("list routes", err)
	}
	return routes, nil
}

// previousDueSnapshots computes the previous-due snapshot for each sale
// entering a route. claimed holds, per retailer, the previous due already
// carried by the route's links; it is updated as snapshots are assigned so
// a retailer's outstanding balance is counted once per route.
//
// This departs from evaluating max(0, previousDue - adding) for every sale
// independently. A retailer owing 700 elsewhere with two sales entering the
// route gets snapshots of 700 and 0, not 700 and 700.
func previousDueSnapshots(ctx context.Context, store RouteStore, sales []database.Sale, claimed map[uuid.UUID]decimal.Decimal) (map[uuid.UUID]decimal.Decimal, error) {
	var retailerIDs []uuid.UUID
	adding := make(map[uuid.UUID]decimal.Decimal)
	for _, sale := range sales {
		if _, seen := adding[sale.RetailerID]; !seen {
			retailerIDs = append(retailerIDs, sale.RetailerID)
			adding[sale.RetailerID] = decimal.Zero
		}
		// Fully paid sales are not part of the unrouted due sum.
		if sale.PaymentStatus != enum.PaymentStatusPaid {
			adding[sale.RetailerID] = adding[sale.RetailerID].Add(money.FromNumeric(sale.DueAmount))
		}
	}

	rows, err := store.SumUnroutedDueByRetailers(ctx, retailerIDs)
	if err != nil {
		return nil, storeErr("sum unrouted due", err)
	}
	previous := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, r := range rows {
		previous[r.RetailerID] = money.FromNumeric(r.TotalDue)
	}

	snapshots := make(map[uuid.UUID]decimal.Decimal, len(sales))
	for _, sale := range sales {
		r := sale.RetailerID
		snap := money.NonNegative(previous[r].Sub(adding[r]).Sub(claimed[r]))
		snapshots[sale.ID] = snap
		claimed[r] = claimed[r].Add(snap)
	}
	return snapshots, nil
}

// linkSales inserts one link per sale and hands the sale to the route's
// representative.
func linkSales(ctx context.Context, store RouteStore, route database.Route, sales []database.Sale, snapshots map[uuid.UUID]decimal.Decimal) error {
	for _, sale := range sales {
		if _, err := store.CreateRouteSale(ctx, database.CreateRouteSaleParams{
			RouteID:     route.ID,
			SaleID:      sale.ID,
			PreviousDue: money.ToNumeric(snapshots[sale.ID]),
		}); err != nil {
			return storeErr("create route sale", err)
		}
		if _, err := store.AssignSaleToRoute(ctx, database.AssignSaleToRouteParams{
			ID:             sale.ID,
			RouteID:        pgtype.UUID{Bytes: route.ID, Valid: true},
			AssignedTo:     pgtype.UUID{Bytes: route.AssignedTo, Valid: true},
			AssignedToName: pgtype.Text{String: route.AssignedToName, Valid: true},
		}); err != nil {
			return storeErr("assign sale to route", err)
		}
	}
	return nil
}

func hydrateRoute(ctx context.Context, store RouteStore, route database.Route) (*RouteDetail, error) {
	links, err := store.ListRouteSalesByRoute(ctx, route.ID)
	if err != nil {
		return nil, storeErr("list route sales", err)
	}
	return &RouteDetail{Route: route, Sales: links}, nil
}

// --- Helpers ---

// isActiveRepresentative reports whether u can be handed a route. Owners,
// managers and deactivated staff cannot.
func isActiveRepresentative(u database.User) bool {
	return u.IsActive && u.Role == enum.UserRoleSR
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func optionalUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
