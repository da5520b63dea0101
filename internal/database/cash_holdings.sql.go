package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const cashHoldingColumns = `id, user_id, amount, balance_before, balance_after, source, reference_id, notes, created_by, created_at`

func scanSrCashHolding(row interface{ Scan(...any) error }) (SrCashHolding, error) {
	var i SrCashHolding
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Amount,
		&i.BalanceBefore,
		&i.BalanceAfter,
		&i.Source,
		&i.ReferenceID,
		&i.Notes,
		&i.CreatedBy,
		&i.CreatedAt,
	)
	return i, err
}

const createSrCashHolding = `-- name: CreateSrCashHolding :one
INSERT INTO sr_cash_holdings (user_id, amount, balance_before, balance_after, source, reference_id, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + cashHoldingColumns + `
`

type CreateSrCashHoldingParams struct {
	UserID        uuid.UUID      `json:"user_id"`
	Amount        pgtype.Numeric `json:"amount"`
	BalanceBefore pgtype.Numeric `json:"balance_before"`
	BalanceAfter  pgtype.Numeric `json:"balance_after"`
	Source        string         `json:"source"`
	ReferenceID   pgtype.UUID    `json:"reference_id"`
	Notes         pgtype.Text    `json:"notes"`
	CreatedBy     pgtype.UUID    `json:"created_by"`
}

func (q *Queries) CreateSrCashHolding(ctx context.Context, arg CreateSrCashHoldingParams) (SrCashHolding, error) {
	return scanSrCashHolding(q.db.QueryRow(ctx, createSrCashHolding,
		arg.UserID,
		arg.Amount,
		arg.BalanceBefore,
		arg.BalanceAfter,
		arg.Source,
		arg.ReferenceID,
		arg.Notes,
		arg.CreatedBy,
	))
}

const listSrCashHoldingsByUser = `-- name: ListSrCashHoldingsByUser :many
SELECT ` + cashHoldingColumns + ` FROM sr_cash_holdings
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

type ListSrCashHoldingsByUserParams struct {
	UserID uuid.UUID `json:"user_id"`
	Limit  int32     `json:"limit"`
}

// ListSrCashHoldingsByUser returns the newest ledger entries first.
func (q *Queries) ListSrCashHoldingsByUser(ctx context.Context, arg ListSrCashHoldingsByUserParams) ([]SrCashHolding, error) {
	rows, err := q.db.Query(ctx, listSrCashHoldingsByUser, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SrCashHolding{}
	for rows.Next() {
		i, err := scanSrCashHolding(rows)
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

const countSrCashHoldingsByUser = `-- name: CountSrCashHoldingsByUser :one
SELECT COUNT(*) FROM sr_cash_holdings WHERE user_id = $1
`

func (q *Queries) CountSrCashHoldingsByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countSrCashHoldingsByUser, userID).Scan(&count)
	return count, err
}
