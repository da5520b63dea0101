package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/enum"
	"github.com/grocerydist/routeledger/internal/logging"
	"github.com/grocerydist/routeledger/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- In-memory ledger ---

// ledgerState is one consistent copy of every table.
type ledgerState struct {
	users           map[uuid.UUID]database.User
	retailers       map[uuid.UUID]database.Retailer
	sales           map[uuid.UUID]database.Sale
	routes          map[uuid.UUID]database.Route
	routeSales      []database.RouteSale
	payments        []database.Payment
	reconciliations []database.RouteReconciliation
	items           []database.RouteReconciliationItem
	cashHoldings    []database.SrCashHolding
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		users:     map[uuid.UUID]database.User{},
		retailers: map[uuid.UUID]database.Retailer{},
		sales:     map[uuid.UUID]database.Sale{},
		routes:    map[uuid.UUID]database.Route{},
	}
}

func (s *ledgerState) clone() *ledgerState {
	c := newLedgerState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.retailers {
		c.retailers[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.routes {
		c.routes[k] = v
	}
	c.routeSales = append([]database.RouteSale(nil), s.routeSales...)
	c.payments = append([]database.Payment(nil), s.payments...)
	c.reconciliations = append([]database.RouteReconciliation(nil), s.reconciliations...)
	c.items = append([]database.RouteReconciliationItem(nil), s.items...)
	c.cashHoldings = append([]database.SrCashHolding(nil), s.cashHoldings...)
	return c
}

// memLedger is a transactional in-memory ledger store. Begin snapshots the
// state; Rollback without Commit restores it. It implements Pool.
type memLedger struct {
	state *ledgerState
	clock time.Time

	// failOn makes the named store method return the error.
	failOn map[string]error

	begins    int
	commits   int
	rollbacks int
}

func newMemLedger() *memLedger {
	return &memLedger{
		state:  newLedgerState(),
		clock:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		failOn: map[string]error{},
	}
}

func (m *memLedger) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memLedger) fail(method string) error {
	return m.failOn[method]
}

func (m *memLedger) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := m.fail("Begin"); err != nil {
		return nil, err
	}
	m.begins++
	return &fakeTx{ledger: m, snapshot: m.state.clone()}, nil
}

func (m *memLedger) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *memLedger) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *memLedger) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("not implemented")
}

// fakeTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type fakeTx struct {
	ledger   *memLedger
	snapshot *ledgerState
	done     bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *fakeTx) Commit(ctx context.Context) error {
	if err := t.ledger.fail("Commit"); err != nil {
		return err
	}
	t.done = true
	t.ledger.commits++
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.ledger.state = t.snapshot
	t.ledger.rollbacks++
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *fakeTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *fakeTx) Conn() *pgx.Conn { panic("not implemented") }

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// fakeStore implements every service store interface over a memLedger.
type fakeStore struct {
	m *memLedger
}

func (f *fakeStore) st() *ledgerState { return f.m.state }

// --- users ---

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (database.User, error) {
	if err := f.m.fail("GetUser"); err != nil {
		return database.User{}, err
	}
	u, ok := f.st().users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetUserForUpdate(ctx context.Context, id uuid.UUID) (database.User, error) {
	return f.GetUser(ctx, id)
}

func (f *fakeStore) UpdateUserCashHolding(ctx context.Context, arg database.UpdateUserCashHoldingParams) (database.User, error) {
	if err := f.m.fail("UpdateUserCashHolding"); err != nil {
		return database.User{}, err
	}
	u, ok := f.st().users[arg.ID]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	u.CurrentCashHolding = arg.CurrentCashHolding
	u.UpdatedAt = f.m.now()
	f.st().users[arg.ID] = u
	return u, nil
}

// --- retailers ---

func (f *fakeStore) GetRetailerForUpdate(ctx context.Context, id uuid.UUID) (database.Retailer, error) {
	r, ok := f.st().retailers[id]
	if !ok {
		return database.Retailer{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) AdjustRetailerDue(ctx context.Context, arg database.AdjustRetailerDueParams) (database.Retailer, error) {
	if err := f.m.fail("AdjustRetailerDue"); err != nil {
		return database.Retailer{}, err
	}
	r, ok := f.st().retailers[arg.ID]
	if !ok {
		return database.Retailer{}, pgx.ErrNoRows
	}
	r.TotalDue = money.ToNumeric(money.FromNumeric(r.TotalDue).Add(money.FromNumeric(arg.Delta)))
	f.st().retailers[arg.ID] = r
	return r, nil
}

// --- sales ---

func (f *fakeStore) GetSale(ctx context.Context, id uuid.UUID) (database.Sale, error) {
	s, ok := f.st().sales[id]
	if !ok {
		return database.Sale{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeStore) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (database.Sale, error) {
	return f.GetSale(ctx, id)
}

func (f *fakeStore) ListSalesByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Sale, error) {
	out := []database.Sale{}
	for _, id := range ids {
		if s, ok := f.st().sales[id]; ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) SumUnroutedDueByRetailers(ctx context.Context, retailerIDs []uuid.UUID) ([]database.SumUnroutedDueByRetailersRow, error) {
	out := []database.SumUnroutedDueByRetailersRow{}
	for _, rid := range retailerIDs {
		total := decimal.Zero
		found := false
		for _, s := range f.st().sales {
			if s.RetailerID == rid && !s.RouteID.Valid && s.PaymentStatus != enum.PaymentStatusPaid {
				total = total.Add(money.FromNumeric(s.DueAmount))
				found = true
			}
		}
		if found {
			out = append(out, database.SumUnroutedDueByRetailersRow{RetailerID: rid, TotalDue: money.ToNumeric(total)})
		}
	}
	return out, nil
}

func (f *fakeStore) AssignSaleToRoute(ctx context.Context, arg database.AssignSaleToRouteParams) (database.Sale, error) {
	if err := f.m.fail("AssignSaleToRoute"); err != nil {
		return database.Sale{}, err
	}
	s, ok := f.st().sales[arg.ID]
	if !ok {
		return database.Sale{}, pgx.ErrNoRows
	}
	s.RouteID = arg.RouteID
	s.AssignedTo = arg.AssignedTo
	s.AssignedToName = arg.AssignedToName
	f.st().sales[arg.ID] = s
	return s, nil
}

func (f *fakeStore) ClearSaleRoute(ctx context.Context, id uuid.UUID) error {
	s, ok := f.st().sales[id]
	if ok {
		s.RouteID = pgtype.UUID{}
		f.st().sales[id] = s
	}
	return nil
}

func (f *fakeStore) ClearSalesRouteByRoute(ctx context.Context, routeID uuid.UUID) error {
	for id, s := range f.st().sales {
		if s.RouteID.Valid && uuid.UUID(s.RouteID.Bytes) == routeID {
			s.RouteID = pgtype.UUID{}
			f.st().sales[id] = s
		}
	}
	return nil
}

func (f *fakeStore) UpdateSalePayment(ctx context.Context, arg database.UpdateSalePaymentParams) (database.Sale, error) {
	if err := f.m.fail("UpdateSalePayment"); err != nil {
		return database.Sale{}, err
	}
	s, ok := f.st().sales[arg.ID]
	if !ok {
		return database.Sale{}, pgx.ErrNoRows
	}
	s.PaidAmount = arg.PaidAmount
	s.DueAmount = arg.DueAmount
	s.PaymentStatus = arg.PaymentStatus
	f.st().sales[arg.ID] = s
	return s, nil
}

// --- routes ---

func (f *fakeStore) CreateRoute(ctx context.Context, arg database.CreateRouteParams) (database.Route, error) {
	if err := f.m.fail("CreateRoute"); err != nil {
		return database.Route{}, err
	}
	for _, r := range f.st().routes {
		if r.RouteNumber == arg.RouteNumber {
			return database.Route{}, uniqueViolation("routes_route_number_key")
		}
		if arg.RequestKey.Valid && r.RequestKey.Valid && r.RequestKey.String == arg.RequestKey.String {
			return database.Route{}, uniqueViolation("routes_request_key_key")
		}
	}
	now := f.m.now()
	r := database.Route{
		ID:             uuid.New(),
		RouteNumber:    arg.RouteNumber,
		AssignedTo:     arg.AssignedTo,
		AssignedToName: arg.AssignedToName,
		RouteDate:      arg.RouteDate,
		Status:         enum.RouteStatusPending,
		TotalAmount:    money.ToNumeric(decimal.Zero),
		Notes:          arg.Notes,
		CreatedBy:      arg.CreatedBy,
		RequestKey:     arg.RequestKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.st().routes[r.ID] = r
	return r, nil
}

func (f *fakeStore) GetRoute(ctx context.Context, id uuid.UUID) (database.Route, error) {
	if err := f.m.fail("GetRoute"); err != nil {
		return database.Route{}, err
	}
	r, ok := f.st().routes[id]
	if !ok {
		return database.Route{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) GetRouteForUpdate(ctx context.Context, id uuid.UUID) (database.Route, error) {
	return f.GetRoute(ctx, id)
}

func (f *fakeStore) GetRouteByRequestKey(ctx context.Context, requestKey string) (database.Route, error) {
	for _, r := range f.st().routes {
		if r.RequestKey.Valid && r.RequestKey.String == requestKey {
			return r, nil
		}
	}
	return database.Route{}, pgx.ErrNoRows
}

func (f *fakeStore) sortedRoutes(keep func(database.Route) bool) []database.Route {
	out := []database.Route{}
	for _, r := range f.st().routes {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RouteDate.Time.Equal(out[j].RouteDate.Time) {
			return out[i].RouteDate.Time.After(out[j].RouteDate.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) ListRoutes(ctx context.Context, arg database.ListRoutesParams) ([]database.Route, error) {
	all := f.sortedRoutes(func(r database.Route) bool {
		if arg.Status.Valid && r.Status != arg.Status.String {
			return false
		}
		if arg.AssignedTo.Valid && r.AssignedTo != uuid.UUID(arg.AssignedTo.Bytes) {
			return false
		}
		if arg.DateFrom.Valid && r.RouteDate.Time.Before(arg.DateFrom.Time) {
			return false
		}
		if arg.DateTo.Valid && r.RouteDate.Time.After(arg.DateTo.Time) {
			return false
		}
		return true
	})
	start := int(arg.Offset)
	if start > len(all) {
		start = len(all)
	}
	end := start + int(arg.Limit)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeStore) ListRoutesByAssignee(ctx context.Context, assignedTo uuid.UUID) ([]database.Route, error) {
	return f.sortedRoutes(func(r database.Route) bool { return r.AssignedTo == assignedTo }), nil
}

func (f *fakeStore) UpdateRouteStatus(ctx context.Context, arg database.UpdateRouteStatusParams) (database.Route, error) {
	if err := f.m.fail("UpdateRouteStatus"); err != nil {
		return database.Route{}, err
	}
	r, ok := f.st().routes[arg.ID]
	if !ok {
		return database.Route{}, pgx.ErrNoRows
	}
	now := f.m.now()
	r.Status = arg.Status
	if (arg.Status == enum.RouteStatusCompleted || arg.Status == enum.RouteStatusReconciled) && !r.CompletedAt.Valid {
		r.CompletedAt = pgtype.Timestamptz{Time: now, Valid: true}
	}
	if arg.Status == enum.RouteStatusReconciled {
		r.ReconciledAt = pgtype.Timestamptz{Time: now, Valid: true}
	}
	r.UpdatedAt = now
	f.st().routes[arg.ID] = r
	return r, nil
}

func (f *fakeStore) RecalculateRouteTotals(ctx context.Context, id uuid.UUID) (database.Route, error) {
	r, ok := f.st().routes[id]
	if !ok {
		return database.Route{}, pgx.ErrNoRows
	}
	var count int32
	total := decimal.Zero
	for _, rs := range f.st().routeSales {
		if rs.RouteID == id {
			count++
			total = total.Add(money.FromNumeric(f.st().sales[rs.SaleID].TotalAmount))
		}
	}
	r.TotalOrders = count
	r.TotalAmount = money.ToNumeric(total)
	f.st().routes[id] = r
	return r, nil
}

func (f *fakeStore) DeleteRoute(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := f.st().routes[id]; !ok {
		return 0, nil
	}
	delete(f.st().routes, id)
	kept := f.st().routeSales[:0]
	for _, rs := range f.st().routeSales {
		if rs.RouteID != id {
			kept = append(kept, rs)
		}
	}
	f.st().routeSales = kept
	for i, p := range f.st().payments {
		if p.RouteID.Valid && uuid.UUID(p.RouteID.Bytes) == id {
			f.st().payments[i].RouteID = pgtype.UUID{}
		}
	}
	return 1, nil
}

// --- route_sales ---

func (f *fakeStore) CreateRouteSale(ctx context.Context, arg database.CreateRouteSaleParams) (database.RouteSale, error) {
	if err := f.m.fail("CreateRouteSale"); err != nil {
		return database.RouteSale{}, err
	}
	for _, rs := range f.st().routeSales {
		if rs.RouteID == arg.RouteID && rs.SaleID == arg.SaleID {
			return database.RouteSale{}, uniqueViolation("route_sales_route_id_sale_id_key")
		}
	}
	rs := database.RouteSale{
		ID:          uuid.New(),
		RouteID:     arg.RouteID,
		SaleID:      arg.SaleID,
		PreviousDue: arg.PreviousDue,
		CreatedAt:   f.m.now(),
	}
	f.st().routeSales = append(f.st().routeSales, rs)
	return rs, nil
}

func (f *fakeStore) DeleteRouteSale(ctx context.Context, arg database.DeleteRouteSaleParams) (int64, error) {
	var n int64
	kept := f.st().routeSales[:0]
	for _, rs := range f.st().routeSales {
		if rs.RouteID == arg.RouteID && rs.SaleID == arg.SaleID {
			n++
			continue
		}
		kept = append(kept, rs)
	}
	f.st().routeSales = kept
	return n, nil
}

func (f *fakeStore) DeleteRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) error {
	kept := f.st().routeSales[:0]
	for _, rs := range f.st().routeSales {
		if rs.RouteID != routeID {
			kept = append(kept, rs)
		}
	}
	f.st().routeSales = kept
	return nil
}

func (f *fakeStore) ListRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) ([]database.RouteSaleWithSale, error) {
	return f.ListRouteSalesByRouteIDs(ctx, []uuid.UUID{routeID})
}

func (f *fakeStore) ListRouteSalesByRouteIDs(ctx context.Context, routeIDs []uuid.UUID) ([]database.RouteSaleWithSale, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range routeIDs {
		want[id] = true
	}
	out := []database.RouteSaleWithSale{}
	for _, rs := range f.st().routeSales {
		if want[rs.RouteID] {
			out = append(out, database.RouteSaleWithSale{RouteSale: rs, Sale: f.st().sales[rs.SaleID]})
		}
	}
	return out, nil
}

// --- payments ---

func (f *fakeStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if err := f.m.fail("CreatePayment"); err != nil {
		return database.Payment{}, err
	}
	if arg.IdempotencyKey.Valid {
		for _, p := range f.st().payments {
			if p.IdempotencyKey.Valid && p.IdempotencyKey.String == arg.IdempotencyKey.String {
				return database.Payment{}, uniqueViolation("payments_idempotency_key_key")
			}
		}
	}
	p := database.Payment{
		ID:              uuid.New(),
		RetailerID:      arg.RetailerID,
		SaleID:          arg.SaleID,
		RouteID:         arg.RouteID,
		Amount:          arg.Amount,
		PaymentMethod:   arg.PaymentMethod,
		CollectedBy:     arg.CollectedBy,
		Notes:           arg.Notes,
		IdempotencyKey:  arg.IdempotencyKey,
		RouteAttributed: true,
		CreatedAt:       f.m.now(),
	}
	f.st().payments = append(f.st().payments, p)
	return p, nil
}

func (f *fakeStore) GetPaymentByIdempotencyKey(ctx context.Context, key string) (database.Payment, error) {
	for _, p := range f.st().payments {
		if p.IdempotencyKey.Valid && p.IdempotencyKey.String == key {
			return p, nil
		}
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (f *fakeStore) ListPaymentsBySale(ctx context.Context, saleID uuid.UUID) ([]database.Payment, error) {
	out := []database.Payment{}
	for _, p := range f.st().payments {
		if p.SaleID.Valid && uuid.UUID(p.SaleID.Bytes) == saleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPaymentsByCollectorAndSales(ctx context.Context, arg database.ListPaymentsByCollectorAndSalesParams) ([]database.Payment, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range arg.SaleIds {
		want[id] = true
	}
	out := []database.Payment{}
	for _, p := range f.st().payments {
		if !p.CollectedBy.Valid || uuid.UUID(p.CollectedBy.Bytes) != arg.CollectedBy {
			continue
		}
		if p.SaleID.Valid && want[uuid.UUID(p.SaleID.Bytes)] {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- reconciliations ---

func (f *fakeStore) CreateRouteReconciliation(ctx context.Context, arg database.CreateRouteReconciliationParams) (database.RouteReconciliation, error) {
	if err := f.m.fail("CreateRouteReconciliation"); err != nil {
		return database.RouteReconciliation{}, err
	}
	for _, r := range f.st().reconciliations {
		if r.RouteID == arg.RouteID {
			return database.RouteReconciliation{}, uniqueViolation("route_reconciliations_route_id_key")
		}
	}
	now := f.m.now()
	rec := database.RouteReconciliation{
		ID:                 uuid.New(),
		RouteID:            arg.RouteID,
		TotalExpectedCash:  arg.TotalExpectedCash,
		TotalCollectedCash: arg.TotalCollectedCash,
		TotalReturnsAmount: arg.TotalReturnsAmount,
		Discrepancy:        arg.Discrepancy,
		Notes:              arg.Notes,
		ReconciledBy:       arg.ReconciledBy,
		ReconciledAt:       now,
		CreatedAt:          now,
	}
	f.st().reconciliations = append(f.st().reconciliations, rec)
	return rec, nil
}

func (f *fakeStore) CreateRouteReconciliationItem(ctx context.Context, arg database.CreateRouteReconciliationItemParams) (database.RouteReconciliationItem, error) {
	if err := f.m.fail("CreateRouteReconciliationItem"); err != nil {
		return database.RouteReconciliationItem{}, err
	}
	item := database.RouteReconciliationItem{
		ID:               uuid.New(),
		ReconciliationID: arg.ReconciliationID,
		SaleID:           arg.SaleID,
		ProductName:      arg.ProductName,
		Quantity:         arg.Quantity,
		UnitPrice:        arg.UnitPrice,
		TotalAmount:      arg.TotalAmount,
		Reason:           arg.Reason,
		CreatedAt:        f.m.now(),
	}
	f.st().items = append(f.st().items, item)
	return item, nil
}

func (f *fakeStore) GetRouteReconciliationByRoute(ctx context.Context, routeID uuid.UUID) (database.RouteReconciliation, error) {
	for _, r := range f.st().reconciliations {
		if r.RouteID == routeID {
			return r, nil
		}
	}
	return database.RouteReconciliation{}, pgx.ErrNoRows
}

func (f *fakeStore) ListRouteReconciliationItems(ctx context.Context, reconciliationID uuid.UUID) ([]database.RouteReconciliationItem, error) {
	out := []database.RouteReconciliationItem{}
	for _, it := range f.st().items {
		if it.ReconciliationID == reconciliationID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRouteReconciliationsByRouteIDs(ctx context.Context, routeIDs []uuid.UUID) ([]database.RouteReconciliation, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range routeIDs {
		want[id] = true
	}
	out := []database.RouteReconciliation{}
	for _, r := range f.st().reconciliations {
		if want[r.RouteID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- cash holdings ---

func (f *fakeStore) CreateSrCashHolding(ctx context.Context, arg database.CreateSrCashHoldingParams) (database.SrCashHolding, error) {
	if err := f.m.fail("CreateSrCashHolding"); err != nil {
		return database.SrCashHolding{}, err
	}
	e := database.SrCashHolding{
		ID:            uuid.New(),
		UserID:        arg.UserID,
		Amount:        arg.Amount,
		BalanceBefore: arg.BalanceBefore,
		BalanceAfter:  arg.BalanceAfter,
		Source:        arg.Source,
		ReferenceID:   arg.ReferenceID,
		Notes:         arg.Notes,
		CreatedBy:     arg.CreatedBy,
		CreatedAt:     f.m.now(),
	}
	f.st().cashHoldings = append(f.st().cashHoldings, e)
	return e, nil
}

func (f *fakeStore) ListSrCashHoldingsByUser(ctx context.Context, arg database.ListSrCashHoldingsByUserParams) ([]database.SrCashHolding, error) {
	out := []database.SrCashHolding{}
	for i := len(f.st().cashHoldings) - 1; i >= 0; i-- {
		e := f.st().cashHoldings[i]
		if e.UserID == arg.UserID {
			out = append(out, e)
		}
		if int32(len(out)) == arg.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CountSrCashHoldingsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range f.st().cashHoldings {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

// --- Fixtures ---

func (m *memLedger) addUser(name, role string) database.User {
	now := m.now()
	u := database.User{
		ID:                 uuid.New(),
		Name:               name,
		Email:              fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Role:               role,
		CurrentCashHolding: money.ToNumeric(decimal.Zero),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.state.users[u.ID] = u
	return u
}

func (m *memLedger) addRetailer(name string) database.Retailer {
	now := m.now()
	r := database.Retailer{
		ID:        uuid.New(),
		Name:      name,
		TotalDue:  money.ToNumeric(decimal.Zero),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.state.retailers[r.ID] = r
	return r
}

// addSale creates an unrouted sale and adds its due to the retailer's
// running counter.
func (m *memLedger) addSale(retailerID uuid.UUID, total, paid string) database.Sale {
	t := decimal.RequireFromString(total)
	p := decimal.RequireFromString(paid)
	due := money.NonNegative(t.Sub(p))
	status := enum.PaymentStatusDue
	switch {
	case money.IsSettled(due):
		status = enum.PaymentStatusPaid
	case p.IsPositive():
		status = enum.PaymentStatusPartial
	}
	now := m.now()
	s := database.Sale{
		ID:             uuid.New(),
		InvoiceNumber:  fmt.Sprintf("INV-%04d", len(m.state.sales)+1),
		RetailerID:     retailerID,
		TotalAmount:    money.ToNumeric(t),
		PaidAmount:     money.ToNumeric(p),
		DueAmount:      money.ToNumeric(due),
		PaymentStatus:  status,
		DeliveryStatus: enum.DeliveryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.state.sales[s.ID] = s

	r := m.state.retailers[retailerID]
	r.TotalDue = money.ToNumeric(money.FromNumeric(r.TotalDue).Add(due))
	m.state.retailers[retailerID] = r
	return s
}

// addLegacyPayment stores a payment the way rows written before route
// attribution look: no route_id and RouteAttributed false.
func (m *memLedger) addLegacyPayment(sale database.Sale, collectedBy uuid.UUID, amount string) database.Payment {
	p := database.Payment{
		ID:            uuid.New(),
		RetailerID:    sale.RetailerID,
		SaleID:        pgtype.UUID{Bytes: sale.ID, Valid: true},
		Amount:        money.ToNumeric(dec(amount)),
		PaymentMethod: enum.PaymentMethodCash,
		CollectedBy:   pgtype.UUID{Bytes: collectedBy, Valid: true},
		CreatedAt:     m.now(),
	}
	m.state.payments = append(m.state.payments, p)
	return p
}

func (m *memLedger) setRouteStatus(routeID uuid.UUID, status string) {
	r := m.state.routes[routeID]
	r.Status = status
	m.state.routes[routeID] = r
}

func (m *memLedger) linksFor(routeID uuid.UUID) []database.RouteSale {
	var out []database.RouteSale
	for _, rs := range m.state.routeSales {
		if rs.RouteID == routeID {
			out = append(out, rs)
		}
	}
	return out
}

func (m *memLedger) cashHoldingsFor(userID uuid.UUID) []database.SrCashHolding {
	var out []database.SrCashHolding
	for _, e := range m.state.cashHoldings {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// --- Test helpers ---

type testServices struct {
	ledger         *memLedger
	routes         *RouteService
	payments       *PaymentService
	reconciliation *ReconciliationService
	accountability *AccountabilityService
}

func newTestServices() *testServices {
	m := newMemLedger()
	store := &fakeStore{m: m}
	logger := logging.Discard()
	return &testServices{
		ledger:   m,
		routes:   NewRouteService(m, func(db database.DBTX) RouteStore { return store }, time.Second, logger),
		payments: NewPaymentService(m, func(db database.DBTX) PaymentStore { return store }, time.Second, logger),
		reconciliation: NewReconciliationService(m, func(db database.DBTX) ReconciliationStore { return store },
			nil, time.Second, logger),
		accountability: NewAccountabilityService(m, func(db database.DBTX) AccountabilityStore { return store }, time.Second),
	}
}

func dec(val string) decimal.Decimal {
	return decimal.RequireFromString(val)
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	return money.FromNumeric(n).Equal(dec(expected))
}

func routeDate() time.Time {
	return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
}
