package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Email              string         `json:"email"`
	PasswordHash       string         `json:"password_hash"`
	Role               string         `json:"role"`
	CurrentCashHolding pgtype.Numeric `json:"current_cash_holding"`
	IsActive           bool           `json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type Retailer struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Phone     pgtype.Text    `json:"phone"`
	Address   pgtype.Text    `json:"address"`
	TotalDue  pgtype.Numeric `json:"total_due"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Sale struct {
	ID             uuid.UUID      `json:"id"`
	InvoiceNumber  string         `json:"invoice_number"`
	RetailerID     uuid.UUID      `json:"retailer_id"`
	TotalAmount    pgtype.Numeric `json:"total_amount"`
	PaidAmount     pgtype.Numeric `json:"paid_amount"`
	DueAmount      pgtype.Numeric `json:"due_amount"`
	PaymentStatus  string         `json:"payment_status"`
	DeliveryStatus string         `json:"delivery_status"`
	RouteID        pgtype.UUID    `json:"route_id"`
	AssignedTo     pgtype.UUID    `json:"assigned_to"`
	AssignedToName pgtype.Text    `json:"assigned_to_name"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type Route struct {
	ID             uuid.UUID          `json:"id"`
	RouteNumber    string             `json:"route_number"`
	AssignedTo     uuid.UUID          `json:"assigned_to"`
	AssignedToName string             `json:"assigned_to_name"`
	RouteDate      pgtype.Date        `json:"route_date"`
	Status         string             `json:"status"`
	TotalOrders    int32              `json:"total_orders"`
	TotalAmount    pgtype.Numeric     `json:"total_amount"`
	Notes          pgtype.Text        `json:"notes"`
	CreatedBy      pgtype.UUID        `json:"created_by"`
	RequestKey     pgtype.Text        `json:"request_key"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	CompletedAt    pgtype.Timestamptz `json:"completed_at"`
	ReconciledAt   pgtype.Timestamptz `json:"reconciled_at"`
}

type RouteSale struct {
	ID          uuid.UUID      `json:"id"`
	RouteID     uuid.UUID      `json:"route_id"`
	SaleID      uuid.UUID      `json:"sale_id"`
	PreviousDue pgtype.Numeric `json:"previous_due"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Payment.RouteAttributed is false only for rows written before route_id was
// recorded; those fall back to the sale's route on read.
type Payment struct {
	ID              uuid.UUID      `json:"id"`
	RetailerID      uuid.UUID      `json:"retailer_id"`
	SaleID          pgtype.UUID    `json:"sale_id"`
	RouteID         pgtype.UUID    `json:"route_id"`
	Amount          pgtype.Numeric `json:"amount"`
	PaymentMethod   string         `json:"payment_method"`
	CollectedBy     pgtype.UUID    `json:"collected_by"`
	Notes           pgtype.Text    `json:"notes"`
	IdempotencyKey  pgtype.Text    `json:"idempotency_key"`
	RouteAttributed bool           `json:"route_attributed"`
	CreatedAt       time.Time      `json:"created_at"`
}

type RouteReconciliation struct {
	ID                 uuid.UUID      `json:"id"`
	RouteID            uuid.UUID      `json:"route_id"`
	TotalExpectedCash  pgtype.Numeric `json:"total_expected_cash"`
	TotalCollectedCash pgtype.Numeric `json:"total_collected_cash"`
	TotalReturnsAmount pgtype.Numeric `json:"total_returns_amount"`
	Discrepancy        pgtype.Numeric `json:"discrepancy"`
	Notes              pgtype.Text    `json:"notes"`
	ReconciledBy       pgtype.UUID    `json:"reconciled_by"`
	ReconciledAt       time.Time      `json:"reconciled_at"`
	CreatedAt          time.Time      `json:"created_at"`
}

type RouteReconciliationItem struct {
	ID               uuid.UUID      `json:"id"`
	ReconciliationID uuid.UUID      `json:"reconciliation_id"`
	SaleID           uuid.UUID      `json:"sale_id"`
	ProductName      string         `json:"product_name"`
	Quantity         int32          `json:"quantity"`
	UnitPrice        pgtype.Numeric `json:"unit_price"`
	TotalAmount      pgtype.Numeric `json:"total_amount"`
	Reason           pgtype.Text    `json:"reason"`
	CreatedAt        time.Time      `json:"created_at"`
}

type SrCashHolding struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	Amount        pgtype.Numeric `json:"amount"`
	BalanceBefore pgtype.Numeric `json:"balance_before"`
	BalanceAfter  pgtype.Numeric `json:"balance_after"`
	Source        string         `json:"source"`
	ReferenceID   pgtype.UUID    `json:"reference_id"`
	Notes         pgtype.Text    `json:"notes"`
	CreatedBy     pgtype.UUID    `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}
