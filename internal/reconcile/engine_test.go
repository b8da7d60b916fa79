package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payu-bridge/internal/events"
	"github.com/noah-isme/payu-bridge/internal/payu"
	"github.com/noah-isme/payu-bridge/internal/workflow"
)

const testSignatureKey = "13a980d4f851f3d9a1cfc792fb1f5e50"

type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]Order   // keyed by order id
	payments map[string]Payment // keyed by payment id
	nextID   int

	findOrderErr error
}

func newFakeStore(orders ...Order) *fakeStore {
	s := &fakeStore{
		orders:   make(map[string]Order),
		payments: make(map[string]Payment),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) FindOrderByExternalID(_ context.Context, externalID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findOrderErr != nil {
		return Order{}, s.findOrderErr
	}
	for _, o := range s.orders {
		if o.ExternalID == externalID {
			return o, nil
		}
	}
	return Order{}, ErrOrderNotFound
}

func (s *fakeStore) UpdateOrderState(_ context.Context, orderID, state string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o.State = state
	s.orders[orderID] = o
	return o, nil
}

func (s *fakeStore) FindPaymentByOrderID(_ context.Context, orderID string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (s *fakeStore) CreatePayment(_ context.Context, params CreatePaymentParams) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := Payment{
		ID:          fmt.Sprintf("pay-%d", s.nextID),
		OrderID:     params.OrderID,
		Amount:      params.Amount,
		Currency:    params.Currency,
		GatewayID:   params.GatewayID,
		RemoteID:    params.RemoteID,
		RemoteState: params.RemoteState,
		State:       params.State,
		Completed:   params.Completed,
	}
	s.payments[p.ID] = p
	return p, nil
}

func (s *fakeStore) UpdatePayment(_ context.Context, paymentID string, params UpdatePaymentParams) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	p.RemoteID = params.RemoteID
	p.RemoteState = params.RemoteState
	p.State = params.State
	p.Completed = params.Completed
	s.payments[paymentID] = p
	return p, nil
}

func (s *fakeStore) order(t *testing.T, id string) Order {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	require.True(t, ok, "order %s missing", id)
	return o
}

func (s *fakeStore) paymentFor(t *testing.T, orderID string) Payment {
	t.Helper()
	p, err := s.FindPaymentByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return p
}

func (s *fakeStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

type fakeRemote struct {
	mu       sync.Mutex
	canceled []string
	err      error
}

func (r *fakeRemote) CancelOrder(_ context.Context, remoteOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, remoteOrderID)
	return r.err
}

func (r *fakeRemote) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.canceled...)
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *fakeEventStore) InsertDomainEvent(_ context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := events.Event{
		ID:          fmt.Sprintf("ev-%d", len(s.events)+1),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *fakeEventStore) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Topic)
	}
	return out
}

type fakeLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return fn(ctx)
}

func notificationBody(extOrderID, remoteOrderID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"order":{"extOrderId":%q,"orderId":%q,"status":%q}}`, extOrderID, remoteOrderID, status))
}

func signedHeader(body []byte) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(testSignatureKey))
	return "sender=checkout;signature=" + hex.EncodeToString(h.Sum(nil)) + ";algorithm=SHA-256"
}

func newTestEngine(store *fakeStore, remote *fakeRemote, eventStore *fakeEventStore) *Engine {
	var bus *events.Bus
	if eventStore != nil {
		bus = &events.Bus{Store: eventStore}
	}
	return &Engine{
		Store:     store,
		Workflows: workflow.DefaultRegistry(),
		Remote:    remote,
		Gateway: payu.GatewayConfig{
			PosID:        "145227",
			SignatureKey: testSignatureKey,
			Mode:         "test",
		},
		GatewayID: "payu",
		Events:    bus,
		Logger:    zerolog.Nop(),
	}
}

func TestEngineCompletedPlacesDefaultOrder(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-1", ExternalID: "ord-1", WorkflowID: "default",
		State: workflow.StateDraft, TotalAmount: 21000, Currency: "PLN",
	})
	remote := &fakeRemote{}
	eventStore := &fakeEventStore{}
	engine := newTestEngine(store, remote, eventStore)

	body := notificationBody("ord-1", "Z963", payu.StatusCompleted)
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome.Code)
	require.True(t, outcome.Transitioned)
	require.Equal(t, workflow.StateCompleted, outcome.NewState)

	require.Equal(t, workflow.StateCompleted, store.order(t, "o-1").State)
	payment := store.paymentFor(t, "o-1")
	require.True(t, payment.Completed)
	require.Equal(t, PaymentStateCompleted, payment.State)
	require.Equal(t, int64(21000), payment.Amount)
	require.Equal(t, "PLN", payment.Currency)
	require.Equal(t, "Z963", payment.RemoteID)
	require.Equal(t, payu.StatusCompleted, payment.RemoteState)
	require.Equal(t, "payu", payment.GatewayID)

	require.Equal(t, []string{events.TopicOrderPlaced, events.TopicPaymentRecorded}, eventStore.topics())
	require.Empty(t, remote.calls())
}

func TestEngineCompletedValidatesValidationOrder(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-2", ExternalID: "ord-2", WorkflowID: "default_validation",
		State: workflow.StateValidation, TotalAmount: 5000, Currency: "PLN",
	})
	eventStore := &fakeEventStore{}
	engine := newTestEngine(store, &fakeRemote{}, eventStore)

	body := notificationBody("ord-2", "Z100", payu.StatusCompleted)
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome.Code)

	require.Equal(t, workflow.StateCompleted, store.order(t, "o-2").State)
	require.True(t, store.paymentFor(t, "o-2").Completed)
	require.Equal(t, []string{events.TopicOrderValidated, events.TopicPaymentRecorded}, eventStore.topics())
}

func TestEnginePendingPlacesButValidationOrderStaysIncomplete(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-3", ExternalID: "ord-3", WorkflowID: "default_validation",
		State: workflow.StateDraft, TotalAmount: 900, Currency: "PLN",
	})
	engine := newTestEngine(store, &fakeRemote{}, nil)

	body := notificationBody("ord-3", "Z101", payu.StatusPending)
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome.Code)

	require.Equal(t, workflow.StateValidation, store.order(t, "o-3").State)
	payment := store.paymentFor(t, "o-3")
	require.False(t, payment.Completed)
	require.Equal(t, PaymentStateAuthorize, payment.State)
}

func TestEngineCanceledCancelsOrder(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-4", ExternalID: "ord-4", WorkflowID: "default",
		State: workflow.StateDraft, TotalAmount: 1200, Currency: "PLN",
	})
	eventStore := &fakeEventStore{}
	engine := newTestEngine(store, &fakeRemote{}, eventStore)

	body := notificationBody("ord-4", "Z102", payu.StatusCanceled)
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome.Code)

	require.Equal(t, workflow.StateCanceled, store.order(t, "o-4").State)
	require.False(t, store.paymentFor(t, "o-4").Completed)
	require.Equal(t, []string{events.TopicOrderCanceled, events.TopicPaymentRecorded}, eventStore.topics())
}

func TestEngineBadSignatureCancelsRemoteOrder(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-5", ExternalID: "ord-5", WorkflowID: "default",
		State: workflow.StateDraft, TotalAmount: 800, Currency: "PLN",
	})
	remote := &fakeRemote{}
	engine := newTestEngine(store, remote, nil)

	body := notificationBody("ord-5", "Z103", payu.StatusCompleted)
	header := "sender=checkout;signature=deadbeef;algorithm=SHA-256"
	outcome, err := engine.Handle(context.Background(), body, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeBadSignature, outcome.Code)

	// Local state is untouched, the provider-side transaction is cancelled.
	require.Equal(t, workflow.StateDraft, store.order(t, "o-5").State)
	require.Zero(t, store.paymentCount())
	require.Equal(t, []string{"Z103"}, remote.calls())
}

func TestEngineBadSignatureOutcomeSurvivesCancelFailure(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-6", ExternalID: "ord-6", WorkflowID: "default",
		State: workflow.StateDraft,
	})
	remote := &fakeRemote{err: errors.New("gateway unavailable")}
	engine := newTestEngine(store, remote, nil)

	body := notificationBody("ord-6", "Z104", payu.StatusCompleted)
	outcome, err := engine.Handle(context.Background(), body, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeBadSignature, outcome.Code)
	require.Equal(t, []string{"Z104"}, remote.calls())
}

func TestEngineOrderLookupPrecedesSignatureCheck(t *testing.T) {
	store := newFakeStore()
	remote := &fakeRemote{}
	engine := newTestEngine(store, remote, nil)

	// Even with a garbage signature the missing order wins: the provider must
	// redeliver once the order exists, at which point the signature is checked.
	body := notificationBody("ord-unknown", "Z105", payu.StatusCompleted)
	outcome, err := engine.Handle(context.Background(), body, "signature=bogus;algorithm=SHA-256")
	require.NoError(t, err)
	require.Equal(t, OutcomeOrderNotFound, outcome.Code)
	require.Empty(t, remote.calls())
}

func TestEngineIllegalTransitionConflicts(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-7", ExternalID: "ord-7", WorkflowID: "default",
		State: workflow.StateCompleted, TotalAmount: 100, Currency: "PLN",
	})
	engine := newTestEngine(store, &fakeRemote{}, nil)

	body := notificationBody("ord-7", "Z106", payu.StatusCanceled)
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, outcome.Code)

	require.Equal(t, workflow.StateCompleted, store.order(t, "o-7").State)
	require.Zero(t, store.paymentCount())
}

func TestEngineRedeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-8", ExternalID: "ord-8", WorkflowID: "default",
		State: workflow.StateDraft, TotalAmount: 1500, Currency: "PLN",
	})
	engine := newTestEngine(store, &fakeRemote{}, nil)

	body := notificationBody("ord-8", "Z107", payu.StatusCompleted)
	header := signedHeader(body)

	first, err := engine.Handle(context.Background(), body, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, first.Code)
	require.True(t, first.Transitioned)

	// Same notification again: the order already sits in the target state, so
	// the redelivery succeeds without a second transition or payment row.
	second, err := engine.Handle(context.Background(), body, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, second.Code)
	require.False(t, second.Transitioned)

	require.Equal(t, workflow.StateCompleted, store.order(t, "o-8").State)
	require.Equal(t, 1, store.paymentCount())
	require.True(t, store.paymentFor(t, "o-8").Completed)
}

func TestEngineUnmappedStatusIsAcceptedNoOp(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-9", ExternalID: "ord-9", WorkflowID: "default",
		State: workflow.StateDraft,
	})
	engine := newTestEngine(store, &fakeRemote{}, nil)

	body := notificationBody("ord-9", "Z108", "WAITING_FOR_CONFIRMATION")
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome.Code)
	require.False(t, outcome.Transitioned)

	require.Equal(t, workflow.StateDraft, store.order(t, "o-9").State)
	require.Zero(t, store.paymentCount())
}

func TestEngineMalformedPayload(t *testing.T) {
	engine := newTestEngine(newFakeStore(), &fakeRemote{}, nil)
	outcome, err := engine.Handle(context.Background(), []byte("not-json"), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeMalformedPayload, outcome.Code)
}

func TestEngineSurfacesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.findOrderErr = errors.New("connection refused")
	engine := newTestEngine(store, &fakeRemote{}, nil)

	body := notificationBody("ord-10", "Z109", payu.StatusCompleted)
	_, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.Error(t, err)
}

func TestEngineSerialisesPerOrder(t *testing.T) {
	store := newFakeStore(Order{
		ID: "o-11", ExternalID: "ord-11", WorkflowID: "default",
		State: workflow.StateDraft, TotalAmount: 400, Currency: "PLN",
	})
	locker := &fakeLocker{}
	engine := newTestEngine(store, &fakeRemote{}, nil)
	engine.Locks = locker

	body := notificationBody("ord-11", "Z110", payu.StatusCompleted)
	outcome, err := engine.Handle(context.Background(), body, signedHeader(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome.Code)
	require.Equal(t, []string{"payu:order:ord-11"}, locker.keys)
}
