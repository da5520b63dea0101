package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const retailerColumns = `id, name, phone, address, total_due, created_at, updated_at`

func scanRetailer(row interface{ Scan(...any) error }) (Retailer, error) {
	var i Retailer
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Phone,
		&i.Address,
		&i.TotalDue,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRetailer = `-- name: GetRetailer :one
SELECT ` + retailerColumns + ` FROM retailers WHERE id = $1
`

func (q *Queries) GetRetailer(ctx context.Context, id uuid.UUID) (Retailer, error) {
	return scanRetailer(q.db.QueryRow(ctx, getRetailer, id))
}

const getRetailerForUpdate = `-- name: GetRetailerForUpdate :one
SELECT ` + retailerColumns + ` FROM retailers WHERE id = $1 FOR NO KEY UPDATE
`

func (q *Queries) GetRetailerForUpdate(ctx context.Context, id uuid.UUID) (Retailer, error) {
	return scanRetailer(q.db.QueryRow(ctx, getRetailerForUpdate, id))
}

const adjustRetailerDue = `-- name: AdjustRetailerDue :one
UPDATE retailers SET total_due = total_due + $2, updated_at = now()
WHERE id = $1
RETURNING ` + retailerColumns + `
`

type AdjustRetailerDueParams struct {
	ID    uuid.UUID      `json:"id"`
	Delta pgtype.Numeric `json:"delta"`
}

// AdjustRetailerDue adds Delta (negative for payments) to the running due counter.
func (q *Queries) AdjustRetailerDue(ctx context.Context, arg AdjustRetailerDueParams) (Retailer, error) {
	return scanRetailer(q.db.QueryRow(ctx, adjustRetailerDue, arg.ID, arg.Delta))
}

const createRetailer = `-- name: CreateRetailer :one
INSERT INTO retailers (name, phone, address)
VALUES ($1, $2, $3)
RETURNING ` + retailerColumns + `
`

type CreateRetailerParams struct {
	Name    string      `json:"name"`
	Phone   pgtype.Text `json:"phone"`
	Address pgtype.Text `json:"address"`
}

func (q *Queries) CreateRetailer(ctx context.Context, arg CreateRetailerParams) (Retailer, error) {
	return scanRetailer(q.db.QueryRow(ctx, createRetailer, arg.Name, arg.Phone, arg.Address))
}

const listRetailers = `-- name: ListRetailers :many
SELECT ` + retailerColumns + ` FROM retailers
WHERE ($3::text IS NULL OR name ILIKE '%' || $3 || '%' OR phone ILIKE '%' || $3 || '%')
  AND (NOT $4::boolean OR total_due > 0)
ORDER BY name, id
LIMIT $1 OFFSET $2
`

type ListRetailersParams struct {
	Limit   int32       `json:"limit"`
	Offset  int32       `json:"offset"`
	Search  pgtype.Text `json:"search"`
	WithDue bool        `json:"with_due"`
}

func (q *Queries) ListRetailers(ctx context.Context, arg ListRetailersParams) ([]Retailer, error) {
	rows, err := q.db.Query(ctx, listRetailers, arg.Limit, arg.Offset, arg.Search, arg.WithDue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Retailer
	for rows.Next() {
		i, err := scanRetailer(rows)
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
