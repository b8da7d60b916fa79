package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/payu-bridge/internal/events"
	"github.com/noah-isme/payu-bridge/internal/reconcile"
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PG implements the reconciliation store and the domain event store on top of
// PostgreSQL.
type PG struct {
	Pool *pgxpool.Pool
}

// NewPG wraps a pgx pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{Pool: pool}
}

// FindOrderByExternalID loads an order by the merchant-side identifier sent
// to the provider at checkout.
func (s *PG) FindOrderByExternalID(ctx context.Context, externalID string) (reconcile.Order, error) {
	query, args, err := qb.
		Select("id", "external_id", "workflow_id", "state", "total_amount", "currency").
		From("orders").
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return reconcile.Order{}, fmt.Errorf("store: build order query: %w", err)
	}
	var o reconcile.Order
	err = s.Pool.QueryRow(ctx, query, args...).
		Scan(&o.ID, &o.ExternalID, &o.WorkflowID, &o.State, &o.TotalAmount, &o.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconcile.Order{}, reconcile.ErrOrderNotFound
	}
	if err != nil {
		return reconcile.Order{}, fmt.Errorf("store: find order: %w", err)
	}
	return o, nil
}

// UpdateOrderState persists the new workflow state and returns the refreshed
// order.
func (s *PG) UpdateOrderState(ctx context.Context, orderID, state string) (reconcile.Order, error) {
	query, args, err := qb.
		Update("orders").
		Set("state", state).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": orderID}).
		Suffix("RETURNING id, external_id, workflow_id, state, total_amount, currency").
		ToSql()
	if err != nil {
		return reconcile.Order{}, fmt.Errorf("store: build order update: %w", err)
	}
	var o reconcile.Order
	err = s.Pool.QueryRow(ctx, query, args...).
		Scan(&o.ID, &o.ExternalID, &o.WorkflowID, &o.State, &o.TotalAmount, &o.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconcile.Order{}, reconcile.ErrOrderNotFound
	}
	if err != nil {
		return reconcile.Order{}, fmt.Errorf("store: update order state: %w", err)
	}
	return o, nil
}

// FindPaymentByOrderID returns the payment recorded for an order. Payments
// hold a unique index on order_id so at most one row exists.
func (s *PG) FindPaymentByOrderID(ctx context.Context, orderID string) (reconcile.Payment, error) {
	query, args, err := qb.
		Select("id", "order_id", "amount", "currency", "gateway_id", "remote_id", "remote_state", "state", "completed").
		From("payments").
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return reconcile.Payment{}, fmt.Errorf("store: build payment query: %w", err)
	}
	var p reconcile.Payment
	err = s.Pool.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.GatewayID, &p.RemoteID, &p.RemoteState, &p.State, &p.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconcile.Payment{}, reconcile.ErrPaymentNotFound
	}
	if err != nil {
		return reconcile.Payment{}, fmt.Errorf("store: find payment: %w", err)
	}
	return p, nil
}

// CreatePayment inserts the payment row for an order.
func (s *PG) CreatePayment(ctx context.Context, params reconcile.CreatePaymentParams) (reconcile.Payment, error) {
	query, args, err := qb.
		Insert("payments").
		Columns("order_id", "amount", "currency", "gateway_id", "remote_id", "remote_state", "state", "completed").
		Values(params.OrderID, params.Amount, params.Currency, params.GatewayID, params.RemoteID, params.RemoteState, params.State, params.Completed).
		Suffix("RETURNING id, order_id, amount, currency, gateway_id, remote_id, remote_state, state, completed").
		ToSql()
	if err != nil {
		return reconcile.Payment{}, fmt.Errorf("store: build payment insert: %w", err)
	}
	var p reconcile.Payment
	err = s.Pool.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.GatewayID, &p.RemoteID, &p.RemoteState, &p.State, &p.Completed)
	if err != nil {
		return reconcile.Payment{}, fmt.Errorf("store: create payment: %w", err)
	}
	return p, nil
}

// UpdatePayment refreshes the provider-facing fields of an existing payment.
func (s *PG) UpdatePayment(ctx context.Context, paymentID string, params reconcile.UpdatePaymentParams) (reconcile.Payment, error) {
	query, args, err := qb.
		Update("payments").
		Set("remote_id", params.RemoteID).
		Set("remote_state", params.RemoteState).
		Set("state", params.State).
		Set("completed", params.Completed).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": paymentID}).
		Suffix("RETURNING id, order_id, amount, currency, gateway_id, remote_id, remote_state, state, completed").
		ToSql()
	if err != nil {
		return reconcile.Payment{}, fmt.Errorf("store: build payment update: %w", err)
	}
	var p reconcile.Payment
	err = s.Pool.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.GatewayID, &p.RemoteID, &p.RemoteState, &p.State, &p.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconcile.Payment{}, reconcile.ErrPaymentNotFound
	}
	if err != nil {
		return reconcile.Payment{}, fmt.Errorf("store: update payment: %w", err)
	}
	return p, nil
}

// InsertDomainEvent appends an event to the outbox table.
func (s *PG) InsertDomainEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	query, args, err := qb.
		Insert("domain_events").
		Columns("topic", "aggregate_id", "payload").
		Values(topic, aggregateID, payload).
		Suffix("RETURNING id, topic, aggregate_id, payload, occurred_at").
		ToSql()
	if err != nil {
		return events.Event{}, fmt.Errorf("store: build event insert: %w", err)
	}
	var ev events.Event
	err = s.Pool.QueryRow(ctx, query, args...).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("store: insert domain event: %w", err)
	}
	return ev, nil
}

// PingDB probes database connectivity for readiness checks.
func (s *PG) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Pool.Ping(ctx)
}
