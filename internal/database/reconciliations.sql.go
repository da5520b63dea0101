package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const reconciliationColumns = `id, route_id, total_expected_cash, total_collected_cash, total_returns_amount,
	discrepancy, notes, reconciled_by, reconciled_at, created_at`

func scanRouteReconciliation(row interface{ Scan(...any) error }) (RouteReconciliation, error) {
	var i RouteReconciliation
	err := row.Scan(
		&i.ID,
		&i.RouteID,
		&i.TotalExpectedCash,
		&i.TotalCollectedCash,
		&i.TotalReturnsAmount,
		&i.Discrepancy,
		&i.Notes,
		&i.ReconciledBy,
		&i.ReconciledAt,
		&i.CreatedAt,
	)
	return i, err
}

const createRouteReconciliation = `-- name: CreateRouteReconciliation :one
INSERT INTO route_reconciliations (
    route_id, total_expected_cash, total_collected_cash, total_returns_amount, discrepancy, notes, reconciled_by
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + reconciliationColumns + `
`

type CreateRouteReconciliationParams struct {
	RouteID            uuid.UUID      `json:"route_id"`
	TotalExpectedCash  pgtype.Numeric `json:"total_expected_cash"`
	TotalCollectedCash pgtype.Numeric `json:"total_collected_cash"`
	TotalReturnsAmount pgtype.Numeric `json:"total_returns_amount"`
	Discrepancy        pgtype.Numeric `json:"discrepancy"`
	Notes              pgtype.Text    `json:"notes"`
	ReconciledBy       pgtype.UUID    `json:"reconciled_by"`
}

func (q *Queries) CreateRouteReconciliation(ctx context.Context, arg CreateRouteReconciliationParams) (RouteReconciliation, error) {
	return scanRouteReconciliation(q.db.QueryRow(ctx, createRouteReconciliation,
		arg.RouteID,
		arg.TotalExpectedCash,
		arg.TotalCollectedCash,
		arg.TotalReturnsAmount,
		arg.Discrepancy,
		arg.Notes,
		arg.ReconciledBy,
	))
}

const getRouteReconciliationByRoute = `-- name: GetRouteReconciliationByRoute :one
SELECT ` + reconciliationColumns + ` FROM route_reconciliations WHERE route_id = $1
`

func (q *Queries) GetRouteReconciliationByRoute(ctx context.Context, routeID uuid.UUID) (RouteReconciliation, error) {
	return scanRouteReconciliation(q.db.QueryRow(ctx, getRouteReconciliationByRoute, routeID))
}

const listRouteReconciliationsByRouteIDs = `-- name: ListRouteReconciliationsByRouteIDs :many
SELECT ` + reconciliationColumns + ` FROM route_reconciliations
WHERE route_id = ANY($1::uuid[])
ORDER BY reconciled_at, id
`

func (q *Queries) ListRouteReconciliationsByRouteIDs(ctx context.Context, routeIDs []uuid.UUID) ([]RouteReconciliation, error) {
	rows, err := q.db.Query(ctx, listRouteReconciliationsByRouteIDs, routeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RouteReconciliation{}
	for rows.Next() {
		i, err := scanRouteReconciliation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const reconciliationItemColumns = `id, reconciliation_id, sale_id, product_name, quantity, unit_price, total_amount, reason, created_at`

func scanRouteReconciliationItem(row interface{ Scan(...any) error }) (RouteReconciliationItem, error) {
	var i RouteReconciliationItem
	err := row.Scan(
		&i.ID,
		&i.ReconciliationID,
		&i.SaleID,
		&i.ProductName,
		&i.Quantity,
		&i.UnitPrice,
		&i.TotalAmount,
		&i.Reason,
		&i.CreatedAt,
	)
	return i, err
}

const createRouteReconciliationItem = `-- name: CreateRouteReconciliationItem :one
INSERT INTO route_reconciliation_items (reconciliation_id, sale_id, product_name, quantity, unit_price, total_amount, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + reconciliationItemColumns + `
`

type CreateRouteReconciliationItemParams struct {
	ReconciliationID uuid.UUID      `json:"reconciliation_id"`
	SaleID           uuid.UUID      `json:"sale_id"`
	ProductName      string         `json:"product_name"`
	Quantity         int32          `json:"quantity"`
	UnitPrice        pgtype.Numeric `json:"unit_price"`
	TotalAmount      pgtype.Numeric `json:"total_amount"`
	Reason           pgtype.Text    `json:"reason"`
}

func (q *Queries) CreateRouteReconciliationItem(ctx context.Context, arg CreateRouteReconciliationItemParams) (RouteReconciliationItem, error) {
	return scanRouteReconciliationItem(q.db.QueryRow(ctx, createRouteReconciliationItem,
		arg.ReconciliationID,
		arg.SaleID,
		arg.ProductName,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalAmount,
		arg.Reason,
	))
}

const listRouteReconciliationItems = `-- name: ListRouteReconciliationItems :many
SELECT ` + reconciliationItemColumns + ` FROM route_reconciliation_items
WHERE reconciliation_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListRouteReconciliationItems(ctx context.Context, reconciliationID uuid.UUID) ([]RouteReconciliationItem, error) {
	rows, err := q.db.Query(ctx, listRouteReconciliationItems, reconciliationID)
	if err != nil {
		return nil, err
	}
	return collectReconciliationItems(rows)
}

func collectReconciliationItems(rows pgx.Rows) ([]RouteReconciliationItem, error) {
	defer rows.Close()
	items := []RouteReconciliationItem{}
	for rows.Next() {
		i, err := scanRouteReconciliationItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
