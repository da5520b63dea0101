package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, name, email, password_hash, role, current_cash_holding, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.PasswordHash,
		&i.Role,
		&i.CurrentCashHolding,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + ` FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUser, id))
}

const getUserForUpdate = `-- name: GetUserForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE
`

// GetUserForUpdate locks the user row; cash-holding writes for one
// representative are serialized through it.
func (q *Queries) GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserForUpdate, id))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active = TRUE
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (name, email, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns + `
`

type CreateUserParams struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser, arg.Name, arg.Email, arg.PasswordHash, arg.Role))
}

const updateUserCashHolding = `-- name: UpdateUserCashHolding :one
UPDATE users SET current_cash_holding = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns + `
`

type UpdateUserCashHoldingParams struct {
	ID                 uuid.UUID      `json:"id"`
	CurrentCashHolding pgtype.Numeric `json:"current_cash_holding"`
}

func (q *Queries) UpdateUserCashHolding(ctx context.Context, arg UpdateUserCashHoldingParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUserCashHolding, arg.ID, arg.CurrentCashHolding))
}

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + ` FROM users
WHERE ($1::text IS NULL OR role = $1) AND is_active = TRUE
ORDER BY name, id
`

// ListUsers returns active users, optionally restricted to one role.
func (q *Queries) ListUsers(ctx context.Context, role pgtype.Text) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
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

const updateUser = `-- name: UpdateUser :one
UPDATE users SET name = $2, email = $3, role = $4, updated_at = now()
WHERE id = $1 AND is_active = TRUE
RETURNING ` + userColumns + `
`

type UpdateUserParams struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUser, arg.ID, arg.Name, arg.Email, arg.Role))
}

const deactivateUser = `-- name: DeactivateUser :one
UPDATE users SET is_active = FALSE, updated_at = now()
WHERE id = $1 AND is_active = TRUE
RETURNING id
`

func (q *Queries) DeactivateUser(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, deactivateUser, id)
	var deactivatedID uuid.UUID
	err := row.Scan(&deactivatedID)
	return deactivatedID, err
}
