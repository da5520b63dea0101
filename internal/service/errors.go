package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds. Callers branch on these with errors.Is; every specific error
// below wraps exactly one of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrNoValidItems = errors.New("no valid items")
	ErrValidation   = errors.New("validation failed")
	ErrTimeout      = errors.New("store operation timed out")
)

var (
	ErrRouteNotFound          = fmt.Errorf("route %w", ErrNotFound)
	ErrSaleNotFound           = fmt.Errorf("sale %w", ErrNotFound)
	ErrRetailerNotFound       = fmt.Errorf("retailer %w", ErrNotFound)
	ErrRepresentativeNotFound = fmt.Errorf("representative %w", ErrNotFound)
	ErrSaleNotInRoute         = fmt.Errorf("sale not linked to route: %w", ErrNotFound)
	ErrReconciliationNotFound = fmt.Errorf("reconciliation %w", ErrNotFound)

	ErrRouteReconciled       = fmt.Errorf("%w: route is reconciled", ErrInvalidState)
	ErrRouteMembershipFrozen = fmt.Errorf("%w: route membership is frozen", ErrInvalidState)
	ErrIllegalTransition     = fmt.Errorf("%w: status transition not allowed", ErrInvalidState)
	ErrManualReconcile       = fmt.Errorf("%w: reconciled is set only by reconciliation", ErrInvalidState)
	ErrSaleInOtherRoute      = fmt.Errorf("%w: sale already belongs to another route", ErrInvalidState)

	ErrNoSales = fmt.Errorf("%w: no sale resolves to a retailer", ErrNoValidItems)

	ErrInvalidAmount        = fmt.Errorf("%w: amount must be > 0", ErrValidation)
	ErrInvalidMethod        = fmt.Errorf("%w: invalid payment_method", ErrValidation)
	ErrSaleRetailerMismatch = fmt.Errorf("%w: sale does not belong to retailer", ErrValidation)
	ErrInvalidStatus        = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrNegativeCollected    = fmt.Errorf("%w: total_collected_cash must be >= 0", ErrValidation)
	ErrNegativeReturns      = fmt.Errorf("%w: total_returns_amount must be >= 0", ErrValidation)
	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	ErrInvalidUnitPrice     = fmt.Errorf("%w: unit_price must be >= 0", ErrValidation)
	ErrItemSaleNotInRoute   = fmt.Errorf("%w: returned item sale is not on the route", ErrValidation)
	ErrInvalidSource        = fmt.Errorf("%w: invalid cash holding source", ErrValidation)
	ErrInitialNotFirst      = fmt.Errorf("%w: initial balance already recorded", ErrValidation)
	ErrNegativeBalance      = fmt.Errorf("%w: cash holding cannot go negative", ErrValidation)
	ErrEmptyProductName     = fmt.Errorf("%w: product_name is required", ErrValidation)
	ErrInvalidRouteDate     = fmt.Errorf("%w: route_date is required", ErrValidation)
	ErrZeroAdjustment       = fmt.Errorf("%w: amount must not be zero", ErrValidation)
	ErrAmountOutOfRange     = fmt.Errorf("%w: amount exceeds 999999999999.99", ErrValidation)
)

// storeErr wraps a failed store step, classifying deadline hits as ErrTimeout.
func storeErr(step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %w", step, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// isUniqueViolation reports whether err is a 23505 on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// lookupErr maps pgx.ErrNoRows to notFound and everything else to storeErr.
func lookupErr(step string, err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return storeErr(step, err)
}
