package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createRouteSale = `-- name: CreateRouteSale :one
INSERT INTO route_sales (route_id, sale_id, previous_due)
VALUES ($1, $2, $3)
RETURNING id, route_id, sale_id, previous_due, created_at
`

type CreateRouteSaleParams struct {
	RouteID     uuid.UUID      `json:"route_id"`
	SaleID      uuid.UUID      `json:"sale_id"`
	PreviousDue pgtype.Numeric `json:"previous_due"`
}

func (q *Queries) CreateRouteSale(ctx context.Context, arg CreateRouteSaleParams) (RouteSale, error) {
	row := q.db.QueryRow(ctx, createRouteSale, arg.RouteID, arg.SaleID, arg.PreviousDue)
	var i RouteSale
	err := row.Scan(&i.ID, &i.RouteID, &i.SaleID, &i.PreviousDue, &i.CreatedAt)
	return i, err
}

const deleteRouteSale = `-- name: DeleteRouteSale :execrows
DELETE FROM route_sales WHERE route_id = $1 AND sale_id = $2
`

type DeleteRouteSaleParams struct {
	RouteID uuid.UUID `json:"route_id"`
	SaleID  uuid.UUID `json:"sale_id"`
}

func (q *Queries) DeleteRouteSale(ctx context.Context, arg DeleteRouteSaleParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteRouteSale, arg.RouteID, arg.SaleID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteRouteSalesByRoute = `-- name: DeleteRouteSalesByRoute :exec
DELETE FROM route_sales WHERE route_id = $1
`

func (q *Queries) DeleteRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteRouteSalesByRoute, routeID)
	return err
}

const routeSaleJoinColumns = `rs.id, rs.route_id, rs.sale_id, rs.previous_due, rs.created_at,
	s.id, s.invoice_number, s.retailer_id, s.total_amount, s.paid_amount, s.due_amount, s.payment_status,
	s.delivery_status, s.route_id, s.assigned_to, s.assigned_to_name, s.created_at, s.updated_at`

// RouteSaleWithSale is a link joined with the sale it points to.
type RouteSaleWithSale struct {
	RouteSale RouteSale `json:"route_sale"`
	Sale      Sale      `json:"sale"`
}

func scanRouteSaleWithSale(row interface{ Scan(...any) error }) (RouteSaleWithSale, error) {
	var i RouteSaleWithSale
	err := row.Scan(
		&i.RouteSale.ID,
		&i.RouteSale.RouteID,
		&i.RouteSale.SaleID,
		&i.RouteSale.PreviousDue,
		&i.RouteSale.CreatedAt,
		&i.Sale.ID,
		&i.Sale.InvoiceNumber,
		&i.Sale.RetailerID,
		&i.Sale.TotalAmount,
		&i.Sale.PaidAmount,
		&i.Sale.DueAmount,
		&i.Sale.PaymentStatus,
		&i.Sale.DeliveryStatus,
		&i.Sale.RouteID,
		&i.Sale.AssignedTo,
		&i.Sale.AssignedToName,
		&i.Sale.CreatedAt,
		&i.Sale.UpdatedAt,
	)
	return i, err
}

const listRouteSalesByRoute = `-- name: ListRouteSalesByRoute :many
SELECT ` + routeSaleJoinColumns + `
FROM route_sales rs
JOIN sales s ON s.id = rs.sale_id
WHERE rs.route_id = $1
ORDER BY rs.created_at, rs.id
`

func (q *Queries) ListRouteSalesByRoute(ctx context.Context, routeID uuid.UUID) ([]RouteSaleWithSale, error) {
	return q.listRouteSales(ctx, listRouteSalesByRoute, routeID)
}

const listRouteSalesByRouteIDs = `-- name: ListRouteSalesByRouteIDs :many
SELECT ` + routeSaleJoinColumns + `
FROM route_sales rs
JOIN sales s ON s.id = rs.sale_id
WHERE rs.route_id = ANY($1::uuid[])
ORDER BY rs.route_id, rs.created_at, rs.id
`

func (q *Queries) ListRouteSalesByRouteIDs(ctx context.Context, routeIDs []uuid.UUID) ([]RouteSaleWithSale, error) {
	return q.listRouteSales(ctx, listRouteSalesByRouteIDs, routeIDs)
}

func (q *Queries) listRouteSales(ctx context.Context, query string, arg any) ([]RouteSaleWithSale, error) {
	rows, err := q.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RouteSaleWithSale{}
	for rows.Next() {
		i, err := scanRouteSaleWithSale(rows)
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
