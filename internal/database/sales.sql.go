package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const saleColumns = `id, invoice_number, retailer_id, total_amount, paid_amount, due_amount, payment_status,
	delivery_status, route_id, assigned_to, assigned_to_name, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (Sale, error) {
	var i Sale
	err := row.Scan(
		&i.ID,
		&i.InvoiceNumber,
		&i.RetailerID,
		&i.TotalAmount,
		&i.PaidAmount,
		&i.DueAmount,
		&i.PaymentStatus,
		&i.DeliveryStatus,
		&i.RouteID,
		&i.AssignedTo,
		&i.AssignedToName,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getSale = `-- name: GetSale :one
SELECT ` + saleColumns + ` FROM sales WHERE id = $1
`

func (q *Queries) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, getSale, id))
}

const getSaleForUpdate = `-- name: GetSaleForUpdate :one
SELECT ` + saleColumns + ` FROM sales WHERE id = $1 FOR NO KEY UPDATE
`

func (q *Queries) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, getSaleForUpdate, id))
}

const listSalesByIDs = `-- name: ListSalesByIDs :many
SELECT ` + saleColumns + ` FROM sales WHERE id = ANY($1::uuid[])
ORDER BY created_at, id
FOR NO KEY UPDATE
`

// ListSalesByIDs returns the sales that exist among ids, locked for the
// duration of the transaction. Unknown ids are simply absent.
func (q *Queries) ListSalesByIDs(ctx context.Context, ids []uuid.UUID) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listSalesByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Sale{}
	for rows.Next() {
		i, err := scanSale(rows)
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

const sumUnroutedDueByRetailers = `-- name: SumUnroutedDueByRetailers :many
SELECT retailer_id, COALESCE(SUM(due_amount), 0)::numeric AS total_due
FROM sales
WHERE retailer_id = ANY($1::uuid[])
  AND route_id IS NULL
  AND payment_status <> 'paid'
GROUP BY retailer_id
`

type SumUnroutedDueByRetailersRow struct {
	RetailerID uuid.UUID      `json:"retailer_id"`
	TotalDue   pgtype.Numeric `json:"total_due"`
}

// SumUnroutedDueByRetailers totals the outstanding due of sales that are not
// in any route and not fully paid, per retailer.
func (q *Queries) SumUnroutedDueByRetailers(ctx context.Context, retailerIDs []uuid.UUID) ([]SumUnroutedDueByRetailersRow, error) {
	rows, err := q.db.Query(ctx, sumUnroutedDueByRetailers, retailerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SumUnroutedDueByRetailersRow{}
	for rows.Next() {
		var i SumUnroutedDueByRetailersRow
		if err := rows.Scan(&i.RetailerID, &i.TotalDue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const assignSaleToRoute = `-- name: AssignSaleToRoute :one
UPDATE sales
SET route_id = $2, assigned_to = $3, assigned_to_name = $4, updated_at = now()
WHERE id = $1
RETURNING ` + saleColumns + `
`

type AssignSaleToRouteParams struct {
	ID             uuid.UUID   `json:"id"`
	RouteID        pgtype.UUID `json:"route_id"`
	AssignedTo     pgtype.UUID `json:"assigned_to"`
	AssignedToName pgtype.Text `json:"assigned_to_name"`
}

func (q *Queries) AssignSaleToRoute(ctx context.Context, arg AssignSaleToRouteParams) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, assignSaleToRoute, arg.ID, arg.RouteID, arg.AssignedTo, arg.AssignedToName))
}

const clearSaleRoute = `-- name: ClearSaleRoute :exec
UPDATE sales SET route_id = NULL, updated_at = now() WHERE id = $1
`

func (q *Queries) ClearSaleRoute(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearSaleRoute, id)
	return err
}

const clearSalesRouteByRoute = `-- name: ClearSalesRouteByRoute :exec
UPDATE sales SET route_id = NULL, updated_at = now() WHERE route_id = $1
`

func (q *Queries) ClearSalesRouteByRoute(ctx context.Context, routeID uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearSalesRouteByRoute, routeID)
	return err
}

const updateSalePayment = `-- name: UpdateSalePayment :one
UPDATE sales
SET paid_amount = $2, due_amount = $3, payment_status = $4, updated_at = now()
WHERE id = $1
RETURNING ` + saleColumns + `
`

type UpdateSalePaymentParams struct {
	ID            uuid.UUID      `json:"id"`
	PaidAmount    pgtype.Numeric `json:"paid_amount"`
	DueAmount     pgtype.Numeric `json:"due_amount"`
	PaymentStatus string         `json:"payment_status"`
}

func (q *Queries) UpdateSalePayment(ctx context.Context, arg UpdateSalePaymentParams) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, updateSalePayment, arg.ID, arg.PaidAmount, arg.DueAmount, arg.PaymentStatus))
}

const createSale = `-- name: CreateSale :one
INSERT INTO sales (invoice_number, retailer_id, total_amount, paid_amount, due_amount, payment_status, assigned_to, assigned_to_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + saleColumns + `
`

type CreateSaleParams struct {
	InvoiceNumber  string         `json:"invoice_number"`
	RetailerID     uuid.UUID      `json:"retailer_id"`
	TotalAmount    pgtype.Numeric `json:"total_amount"`
	PaidAmount     pgtype.Numeric `json:"paid_amount"`
	DueAmount      pgtype.Numeric `json:"due_amount"`
	PaymentStatus  string         `json:"payment_status"`
	AssignedTo     pgtype.UUID    `json:"assigned_to"`
	AssignedToName pgtype.Text    `json:"assigned_to_name"`
}

func (q *Queries) CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, createSale,
		arg.InvoiceNumber,
		arg.RetailerID,
		arg.TotalAmount,
		arg.PaidAmount,
		arg.DueAmount,
		arg.PaymentStatus,
		arg.AssignedTo,
		arg.AssignedToName,
	))
}

const listSalesByRetailer = `-- name: ListSalesByRetailer :many
SELECT ` + saleColumns + ` FROM sales
WHERE retailer_id = $1 AND (NOT $2::boolean OR route_id IS NULL)
ORDER BY created_at DESC, id
`

type ListSalesByRetailerParams struct {
	RetailerID   uuid.UUID `json:"retailer_id"`
	UnroutedOnly bool      `json:"unrouted_only"`
}

// ListSalesByRetailer returns a retailer's sales, newest first. With
// UnroutedOnly set it returns only sales available for a new route.
func (q *Queries) ListSalesByRetailer(ctx context.Context, arg ListSalesByRetailerParams) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listSalesByRetailer, arg.RetailerID, arg.UnroutedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sale
	for rows.Next() {
		i, err := scanSale(rows)
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
