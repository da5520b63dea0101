package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const routeColumns = `id, route_number, assigned_to, assigned_to_name, route_date, status, total_orders,
	total_amount, notes, created_by, request_key, created_at, updated_at, completed_at, reconciled_at`

func scanRoute(row interface{ Scan(...any) error }) (Route, error) {
	var i Route
	err := row.Scan(
		&i.ID,
		&i.RouteNumber,
		&i.AssignedTo,
		&i.AssignedToName,
		&i.RouteDate,
		&i.Status,
		&i.TotalOrders,
		&i.TotalAmount,
		&i.Notes,
		&i.CreatedBy,
		&i.RequestKey,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
		&i.ReconciledAt,
	)
	return i, err
}

func collectRoutes(rows pgx.Rows) ([]Route, error) {
	defer rows.Close()
	items := []Route{}
	for rows.Next() {
		i, err := scanRoute(rows)
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

const createRoute = `-- name: CreateRoute :one
INSERT INTO routes (route_number, assigned_to, assigned_to_name, route_date, notes, created_by, request_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + routeColumns + `
`

type CreateRouteParams struct {
	RouteNumber    string      `json:"route_number"`
	AssignedTo     uuid.UUID   `json:"assigned_to"`
	AssignedToName string      `json:"assigned_to_name"`
	RouteDate      pgtype.Date `json:"route_date"`
	Notes          pgtype.Text `json:"notes"`
	CreatedBy      pgtype.UUID `json:"created_by"`
	RequestKey     pgtype.Text `json:"request_key"`
}

func (q *Queries) CreateRoute(ctx context.Context, arg CreateRouteParams) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, createRoute,
		arg.RouteNumber,
		arg.AssignedTo,
		arg.AssignedToName,
		arg.RouteDate,
		arg.Notes,
		arg.CreatedBy,
		arg.RequestKey,
	))
}

const getRoute = `-- name: GetRoute :one
SELECT ` + routeColumns + ` FROM routes WHERE id = $1
`

func (q *Queries) GetRoute(ctx context.Context, id uuid.UUID) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, getRoute, id))
}

const getRouteForUpdate = `-- name: GetRouteForUpdate :one
SELECT ` + routeColumns + ` FROM routes WHERE id = $1 FOR UPDATE
`

// GetRouteForUpdate locks the route row so membership, status and
// reconciliation changes on one route are serialized.
func (q *Queries) GetRouteForUpdate(ctx context.Context, id uuid.UUID) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, getRouteForUpdate, id))
}

const getRouteByRequestKey = `-- name: GetRouteByRequestKey :one
SELECT ` + routeColumns + ` FROM routes WHERE request_key = $1
`

func (q *Queries) GetRouteByRequestKey(ctx context.Context, requestKey string) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, getRouteByRequestKey, requestKey))
}

const listRoutes = `-- name: ListRoutes :many
SELECT ` + routeColumns + ` FROM routes
WHERE ($1::text IS NULL OR status = $1::text)
  AND ($2::uuid IS NULL OR assigned_to = $2::uuid)
  AND ($3::date IS NULL OR route_date >= $3::date)
  AND ($4::date IS NULL OR route_date <= $4::date)
ORDER BY route_date DESC, created_at DESC
LIMIT $5 OFFSET $6
`

type ListRoutesParams struct {
	Status     pgtype.Text `json:"status"`
	AssignedTo pgtype.UUID `json:"assigned_to"`
	DateFrom   pgtype.Date `json:"date_from"`
	DateTo     pgtype.Date `json:"date_to"`
	Limit      int32       `json:"limit"`
	Offset     int32       `json:"offset"`
}

func (q *Queries) ListRoutes(ctx context.Context, arg ListRoutesParams) ([]Route, error) {
	rows, err := q.db.Query(ctx, listRoutes,
		arg.Status,
		arg.AssignedTo,
		arg.DateFrom,
		arg.DateTo,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectRoutes(rows)
}

const listRoutesByAssignee = `-- name: ListRoutesByAssignee :many
SELECT ` + routeColumns + ` FROM routes WHERE assigned_to = $1
ORDER BY route_date, created_at
`

func (q *Queries) ListRoutesByAssignee(ctx context.Context, assignedTo uuid.UUID) ([]Route, error) {
	rows, err := q.db.Query(ctx, listRoutesByAssignee, assignedTo)
	if err != nil {
		return nil, err
	}
	return collectRoutes(rows)
}

const updateRouteStatus = `-- name: UpdateRouteStatus :one
UPDATE routes
SET status = $2::text,
    completed_at = CASE
        WHEN $2::text IN ('completed', 'reconciled') AND completed_at IS NULL THEN now()
        ELSE completed_at
    END,
    reconciled_at = CASE WHEN $2::text = 'reconciled' THEN now() ELSE reconciled_at END,
    updated_at = now()
WHERE id = $1
RETURNING ` + routeColumns + `
`

type UpdateRouteStatusParams struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// UpdateRouteStatus sets the status and stamps completed_at/reconciled_at.
// Transition rules are enforced by the caller.
func (q *Queries) UpdateRouteStatus(ctx context.Context, arg UpdateRouteStatusParams) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, updateRouteStatus, arg.ID, arg.Status))
}

const recalculateRouteTotals = `-- name: RecalculateRouteTotals :one
UPDATE routes
SET total_orders = agg.order_count,
    total_amount = agg.amount,
    updated_at = now()
FROM (
    SELECT COUNT(rs.id)::int AS order_count, COALESCE(SUM(s.total_amount), 0)::numeric AS amount
    FROM route_sales rs
    JOIN sales s ON s.id = rs.sale_id
    WHERE rs.route_id = $1
) agg
WHERE routes.id = $1
RETURNING routes.id, routes.route_number, routes.assigned_to, routes.assigned_to_name, routes.route_date,
    routes.status, routes.total_orders, routes.total_amount, routes.notes, routes.created_by, routes.request_key,
    routes.created_at, routes.updated_at, routes.completed_at, routes.reconciled_at
`

// RecalculateRouteTotals recomputes total_orders/total_amount from the
// route's current links.
func (q *Queries) RecalculateRouteTotals(ctx context.Context, id uuid.UUID) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, recalculateRouteTotals, id))
}

const deleteRoute = `-- name: DeleteRoute :execrows
DELETE FROM routes WHERE id = $1
`

func (q *Queries) DeleteRoute(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteRoute, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
