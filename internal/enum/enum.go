package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	RouteStatusPending    = "pending"
	RouteStatusInProgress = "in_progress"
	RouteStatusCompleted  = "completed"
	RouteStatusReconciled = "reconciled"
)

const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPartial = "partial"
	PaymentStatusDue     = "due"
)

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusReturned  = "returned"
)

const (
	CashHoldingSourceReconciliation   = "reconciliation"
	CashHoldingSourceManualAdjustment = "manual_adjustment"
	CashHoldingSourceInitial          = "initial"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleSR      = "SR"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash          = "cash"
	PaymentMethodBankTransfer  = "bank_transfer"
	PaymentMethodMobileBanking = "mobile_banking"
	PaymentMethodCheque        = "cheque"
	PaymentMethodOther         = "other"
)

// IsValidRouteStatus reports whether s is one of the route states.
func IsValidRouteStatus(s string) bool {
	switch s {
	case RouteStatusPending, RouteStatusInProgress, RouteStatusCompleted, RouteStatusReconciled:
		return true
	}
	return false
}

func IsValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodMobileBanking,
		PaymentMethodCheque, PaymentMethodOther:
		return true
	}
	return false
}
