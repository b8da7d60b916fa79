package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/payu-bridge/internal/events"
	"github.com/noah-isme/payu-bridge/internal/lock"
	"github.com/noah-isme/payu-bridge/internal/obs"
	"github.com/noah-isme/payu-bridge/internal/payu"
	"github.com/noah-isme/payu-bridge/internal/workflow"
)

// OutcomeCode classifies how a notification was disposed of.
type OutcomeCode string

const (
	// OutcomeAccepted means the notification was fully reconciled, including
	// the no-op cases (no mapped transition, order already in target state).
	OutcomeAccepted OutcomeCode = "accepted"
	// OutcomeMalformedPayload means the body could not be decoded into a
	// provider notification.
	OutcomeMalformedPayload OutcomeCode = "malformed_payload"
	// OutcomeBadSignature means the signature header was absent, malformed or
	// did not verify against the POS signature key.
	OutcomeBadSignature OutcomeCode = "bad_signature"
	// OutcomeOrderNotFound means no local order matches the notification yet.
	OutcomeOrderNotFound OutcomeCode = "order_not_found"
	// OutcomeConflict means the mapped transition is illegal from the order's
	// current state and the order is not already at the transition target.
	OutcomeConflict OutcomeCode = "conflict"
)

// Outcome is the engine's verdict on a single notification.
type Outcome struct {
	Code   OutcomeCode
	Reason string
	// Transitioned is set when the order actually changed state.
	Transitioned bool
	// NewState holds the order state after reconciliation, when known.
	NewState string
}

// PaymentStateAuthorize is recorded on payment rows until the order reaches
// its terminal success state.
const PaymentStateAuthorize = "authorize"

// PaymentStateCompleted is recorded once the order is completed.
const PaymentStateCompleted = "completed"

// Engine reconciles provider notifications against the local order ledger.
// Handle is safe for concurrent use; notifications for the same order are
// serialised through Locks.
type Engine struct {
	Store     Store
	Workflows *workflow.Registry
	Remote    RemoteGateway
	Gateway   payu.GatewayConfig
	GatewayID string
	Locks     OrderLocker
	LockTTL   time.Duration
	// RemoteCancelTimeout bounds the best-effort cancel issued on signature
	// failure.
	RemoteCancelTimeout time.Duration
	Events              *events.Bus
	Logger              zerolog.Logger
}

// Handle runs the full reconciliation pipeline for one raw notification body.
// The returned error is non-nil only for infrastructure failures; all
// business rejections are expressed through the Outcome so the transport
// layer can map them to response codes.
func (e *Engine) Handle(ctx context.Context, body []byte, signatureHeader string) (Outcome, error) {
	ctx, span := otel.Tracer("reconcile.Engine").Start(ctx, "Engine.Handle")
	defer span.End()

	n, err := payu.ParseNotification(body)
	if err != nil {
		span.SetAttributes(attribute.String("reconcile.outcome", string(OutcomeMalformedPayload)))
		return Outcome{Code: OutcomeMalformedPayload, Reason: err.Error()}, nil
	}
	span.SetAttributes(
		attribute.String("order.external_id", n.Order.ExtOrderID),
		attribute.String("payu.status", n.Order.Status),
	)

	outcome := Outcome{Code: OutcomeAccepted}
	run := func(ctx context.Context) error {
		var runErr error
		outcome, runErr = e.reconcile(ctx, body, signatureHeader, n)
		return runErr
	}

	if e.Locks != nil {
		ttl := e.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		err = e.Locks.WithLock(ctx, lock.OrderKey(n.Order.ExtOrderID), ttl, run)
	} else {
		err = run(ctx)
	}
	span.SetAttributes(attribute.String("reconcile.outcome", string(outcome.Code)))
	if err != nil {
		span.RecordError(err)
	}
	return outcome, err
}

func (e *Engine) reconcile(ctx context.Context, body []byte, signatureHeader string, n payu.Notification) (Outcome, error) {
	order, err := e.Store.FindOrderByExternalID(ctx, n.Order.ExtOrderID)
	if errors.Is(err, ErrOrderNotFound) {
		// The checkout redirect may still be persisting the order. Signalling
		// a retryable failure lets the provider redeliver, so the order
		// lookup deliberately happens before signature verification.
		return Outcome{Code: OutcomeOrderNotFound, Reason: "order not created yet"}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	if !e.verifySignature(body, signatureHeader) {
		e.cancelRemote(ctx, n)
		return Outcome{Code: OutcomeBadSignature, Reason: "signature verification failed"}, nil
	}

	transitionName, ok := payu.TransitionFor(n.Order.Status, order.WorkflowID)
	if !ok {
		// Unmapped statuses are acknowledged without touching the order so
		// the provider stops redelivering them.
		e.Logger.Info().
			Str("order_id", order.ID).
			Str("payu_status", n.Order.Status).
			Msg("notification status has no mapped transition, ignoring")
		return Outcome{Code: OutcomeAccepted, NewState: order.State}, nil
	}

	transitioned := false
	next, err := e.Workflows.Apply(order.WorkflowID, order.State, transitionName)
	switch {
	case err == nil:
		order, err = e.Store.UpdateOrderState(ctx, order.ID, next)
		if err != nil {
			return Outcome{}, err
		}
		transitioned = true
		obs.ObserveOrderTransition(order.WorkflowID, transitionName)
		e.emitTransition(ctx, order, transitionName, n)
	case errors.Is(err, workflow.ErrTransitionNotAllowed):
		wf, wfErr := e.Workflows.Get(order.WorkflowID)
		if wfErr != nil {
			return Outcome{Code: OutcomeConflict, Reason: wfErr.Error()}, nil
		}
		target, has := wf.Target(transitionName)
		if !has || order.State != target {
			return Outcome{Code: OutcomeConflict, Reason: err.Error()}, nil
		}
		// Redelivery of an already applied notification: the order sits in
		// the transition's target state, so treat it as a success no-op and
		// still refresh the payment record below.
		e.Logger.Debug().
			Str("order_id", order.ID).
			Str("transition", transitionName).
			Str("state", order.State).
			Msg("transition already applied")
	default:
		return Outcome{Code: OutcomeConflict, Reason: err.Error()}, nil
	}

	if err := e.upsertPayment(ctx, order, n); err != nil {
		return Outcome{}, err
	}
	return Outcome{Code: OutcomeAccepted, Transitioned: transitioned, NewState: order.State}, nil
}

func (e *Engine) verifySignature(body []byte, rawHeader string) bool {
	header, err := payu.ParseSignatureHeader(rawHeader)
	if err != nil {
		return false
	}
	return payu.VerifySignature(body, header, e.Gateway.SignatureKey)
}

// cancelRemote asks the provider to cancel an order whose notification failed
// verification. Failures are logged and swallowed: the rejection response is
// what matters.
func (e *Engine) cancelRemote(ctx context.Context, n payu.Notification) {
	if e.Remote == nil {
		return
	}
	timeout := e.RemoteCancelTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Detached from request cancellation; the span is kept so the cancel call
	// stays attributed to this notification.
	cancelCtx, cancel := context.WithTimeout(
		trace.ContextWithSpan(context.WithoutCancel(ctx), trace.SpanFromContext(ctx)), timeout)
	defer cancel()
	if err := e.Remote.CancelOrder(cancelCtx, n.Order.OrderID); err != nil {
		obs.ObserveRemoteCancel("error")
		e.Logger.Error().Err(err).
			Str("remote_order_id", n.Order.OrderID).
			Str("external_order_id", n.Order.ExtOrderID).
			Msg("remote cancel after signature failure failed")
		return
	}
	obs.ObserveRemoteCancel("ok")
	e.Logger.Warn().
		Str("remote_order_id", n.Order.OrderID).
		Str("external_order_id", n.Order.ExtOrderID).
		Msg("remote order canceled after signature failure")
}

// upsertPayment records the provider transaction against the order. The
// payment row is created on first contact and refreshed on every subsequent
// notification, keeping redelivery idempotent.
func (e *Engine) upsertPayment(ctx context.Context, order Order, n payu.Notification) error {
	completed := order.State == workflow.StateCompleted
	state := PaymentStateAuthorize
	if completed {
		state = PaymentStateCompleted
	}

	existing, err := e.Store.FindPaymentByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		_, err = e.Store.UpdatePayment(ctx, existing.ID, UpdatePaymentParams{
			RemoteID:    n.Order.OrderID,
			RemoteState: n.Order.Status,
			State:       state,
			Completed:   completed,
		})
		if err != nil {
			return err
		}
	case errors.Is(err, ErrPaymentNotFound):
		_, err = e.Store.CreatePayment(ctx, CreatePaymentParams{
			OrderID:     order.ID,
			Amount:      order.TotalAmount,
			Currency:    order.Currency,
			GatewayID:   e.GatewayID,
			RemoteID:    n.Order.OrderID,
			RemoteState: n.Order.Status,
			State:       state,
			Completed:   completed,
		})
		if err != nil {
			return err
		}
	default:
		return err
	}

	e.emit(ctx, events.TopicPaymentRecorded, order.ID, map[string]any{
		"order_id":     order.ID,
		"remote_id":    n.Order.OrderID,
		"remote_state": n.Order.Status,
		"state":        state,
		"completed":    completed,
		"amount":       order.TotalAmount,
		"currency":     order.Currency,
	})
	return nil
}

func (e *Engine) emitTransition(ctx context.Context, order Order, transitionName string, n payu.Notification) {
	var topic string
	switch transitionName {
	case payu.TransitionPlace:
		topic = events.TopicOrderPlaced
	case payu.TransitionValidate:
		topic = events.TopicOrderValidated
	case payu.TransitionCancel:
		topic = events.TopicOrderCanceled
	default:
		return
	}
	e.emit(ctx, topic, order.ID, map[string]any{
		"order_id":    order.ID,
		"external_id": order.ExternalID,
		"state":       order.State,
		"payu_status": n.Order.Status,
	})
}

// emit is best effort: a failed event write must not fail an already durable
// reconciliation.
func (e *Engine) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if e.Events == nil {
		return
	}
	if _, err := e.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		e.Logger.Error().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID).
			Msg("emit domain event failed")
	}
}
