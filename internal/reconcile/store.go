package reconcile

import (
	"context"
	"errors"
	"time"
)

// ErrOrderNotFound indicates the local order record does not exist yet. The
// condition is transient: the checkout redirect and the webhook race, so the
// provider is asked to retry delivery.
var ErrOrderNotFound = errors.New("reconcile: order not found")

// ErrPaymentNotFound indicates no payment record exists for the order.
var ErrPaymentNotFound = errors.New("reconcile: payment not found")

// Order is the local ledger's view of an order. State is never assigned
// directly; every mutation goes through a named workflow transition.
type Order struct {
	ID          string
	ExternalID  string
	WorkflowID  string
	State       string
	TotalAmount int64
	Currency    string
}

// Payment is the local record of a provider transaction.
type Payment struct {
	ID          string
	OrderID     string
	Amount      int64
	Currency    string
	GatewayID   string
	RemoteID    string
	RemoteState string
	State       string
	Completed   bool
}

// CreatePaymentParams carries the fields for a new payment record.
type CreatePaymentParams struct {
	OrderID     string
	Amount      int64
	Currency    string
	GatewayID   string
	RemoteID    string
	RemoteState string
	State       string
	Completed   bool
}

// UpdatePaymentParams carries the fields refreshed on redelivery.
type UpdatePaymentParams struct {
	RemoteID    string
	RemoteState string
	State       string
	Completed   bool
}

// Store is the order/payment storage collaborator. Implementations must
// provide read-then-write consistency per order; the engine additionally
// serialises notifications per order through OrderLocker.
type Store interface {
	FindOrderByExternalID(ctx context.Context, externalID string) (Order, error)
	// UpdateOrderState persists the order's new workflow state atomically.
	UpdateOrderState(ctx context.Context, orderID, state string) (Order, error)
	FindPaymentByOrderID(ctx context.Context, orderID string) (Payment, error)
	CreatePayment(ctx context.Context, params CreatePaymentParams) (Payment, error)
	UpdatePayment(ctx context.Context, paymentID string, params UpdatePaymentParams) (Payment, error)
}

// RemoteGateway issues calls back to the payment provider.
type RemoteGateway interface {
	CancelOrder(ctx context.Context, remoteOrderID string) error
}

// OrderLocker serialises work per lock key.
type OrderLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}
