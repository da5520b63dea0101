package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, retailer_id, sale_id, route_id, amount, payment_method, collected_by, notes, idempotency_key, route_attributed, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.RetailerID,
		&i.SaleID,
		&i.RouteID,
		&i.Amount,
		&i.PaymentMethod,
		&i.CollectedBy,
		&i.Notes,
		&i.IdempotencyKey,
		&i.RouteAttributed,
		&i.CreatedAt,
	)
	return i, err
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		i, err := scanPayment(rows)
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

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (retailer_id, sale_id, route_id, amount, payment_method, collected_by, notes, idempotency_key, route_attributed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
RETURNING ` + paymentColumns + `
`

type CreatePaymentParams struct {
	RetailerID     uuid.UUID      `json:"retailer_id"`
	SaleID         pgtype.UUID    `json:"sale_id"`
	RouteID        pgtype.UUID    `json:"route_id"`
	Amount         pgtype.Numeric `json:"amount"`
	PaymentMethod  string         `json:"payment_method"`
	CollectedBy    pgtype.UUID    `json:"collected_by"`
	Notes          pgtype.Text    `json:"notes"`
	IdempotencyKey pgtype.Text    `json:"idempotency_key"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.RetailerID,
		arg.SaleID,
		arg.RouteID,
		arg.Amount,
		arg.PaymentMethod,
		arg.CollectedBy,
		arg.Notes,
		arg.IdempotencyKey,
	))
}

const getPaymentByIdempotencyKey = `-- name: GetPaymentByIdempotencyKey :one
SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1
`

func (q *Queries) GetPaymentByIdempotencyKey(ctx context.Context, key string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByIdempotencyKey, key))
}

const listPaymentsBySale = `-- name: ListPaymentsBySale :many
SELECT ` + paymentColumns + ` FROM payments WHERE sale_id = $1 ORDER BY created_at, id
`

func (q *Queries) ListPaymentsBySale(ctx context.Context, saleID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsBySale, saleID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

const listPaymentsByCollectorAndSales = `-- name: ListPaymentsByCollectorAndSales :many
SELECT ` + paymentColumns + ` FROM payments
WHERE collected_by = $1 AND sale_id = ANY($2::uuid[])
ORDER BY created_at, id
`

type ListPaymentsByCollectorAndSalesParams struct {
	CollectedBy uuid.UUID   `json:"collected_by"`
	SaleIds     []uuid.UUID `json:"sale_ids"`
}

func (q *Queries) ListPaymentsByCollectorAndSales(ctx context.Context, arg ListPaymentsByCollectorAndSalesParams) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByCollectorAndSales, arg.CollectedBy, arg.SaleIds)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}
