package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	session     = "sess-1"
	returnURL   = "http://localhost:5000/payment-result?tx=1"
	unrelateURL = "https://pay.example.com/hosted/step-2"
)

type fixture struct {
	svc      *CheckoutService
	gw       *MockGateway
	journal  *MockJournal
	outcomes *MockOutcomes
}

func newFixture(t *testing.T, statuses ...string) *fixture {
	t.Helper()
	f := &fixture{
		gw:       &MockGateway{Statuses: statuses},
		journal:  &MockJournal{},
		outcomes: &MockOutcomes{},
	}
	cfg := Config{Payment: payment.Config{
		Detector: payment.RedirectDetector{
			PrimaryPrefix:  "https://api.example.com",
			FallbackPrefix: "http://localhost:5000",
			ResultMarker:   "/payment-result",
		},
		PollDelay: 10 * time.Millisecond,
	}}
	f.svc = NewCheckoutService(
		cart.NewRegistry(nil, nil),
		checkout.NewAssembler(checkout.DefaultTaxRate, checkout.DefaultDeliveryFee),
		f.gw.factory,
		f.journal,
		f.outcomes,
		cfg,
		nil,
	)
	t.Cleanup(func() { _ = f.svc.Shutdown(context.Background()) })
	return f
}

func (f *fixture) cart(t *testing.T) *cart.Store {
	t.Helper()
	store, err := f.svc.Cart(context.Background(), session)
	require.NoError(t, err)
	return store
}

func (f *fixture) fillCart() {
	store, _ := f.svc.Cart(context.Background(), session)
	store.Add(domain.LineItem{
		Identity:    "42-base",
		ProductID:   "42",
		UnitPrice:   decimal.RequireFromString("9.99"),
		DisplayName: "Margherita",
	})
	store.Add(domain.LineItem{
		Identity:    "42-base",
		ProductID:   "42",
		UnitPrice:   decimal.RequireFromString("9.99"),
		DisplayName: "Margherita",
	})
}

func request(method checkout.PaymentMethod) CheckoutRequest {
	return CheckoutRequest{
		SessionID:     session,
		Token:         "token-abc",
		Address:       &domain.Address{ID: 11, PhoneNumber: "+15550100", IsDeliverable: true},
		Store:         &domain.Store{ID: 3, Name: "Downtown"},
		Instructions:  "leave at the door",
		PaymentMethod: method,
	}
}

func (f *fixture) startOnline(t *testing.T) string {
	t.Helper()
	f.fillCart()
	res, err := f.svc.Checkout(context.Background(), request(checkout.PaymentMethodOnline))
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	require.Equal(t, domain.PaymentStateAwaitingRedirect, res.Payment.State)
	return res.Payment.TransactionID
}

func (f *fixture) waitState(t *testing.T, txID string, want domain.PaymentState) payment.Snapshot {
	t.Helper()
	var snap payment.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = f.svc.Payment(session, txID)
		return err == nil && snap.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestPlaceCashOrder_Success(t *testing.T) {
	f := newFixture(t)
	f.fillCart()

	res, err := f.svc.Checkout(context.Background(), request(checkout.PaymentMethodCOD))
	require.NoError(t, err)

	assert.Equal(t, "COD-1", res.Order.OrderNumber)
	assert.True(t, res.Pending.Subtotal.Equal(decimal.RequireFromString("19.98")), "subtotal %s", res.Pending.Subtotal)
	assert.True(t, res.Pending.Tax.Equal(decimal.RequireFromString("1.00")), "tax %s", res.Pending.Tax)
	assert.True(t, res.Pending.DeliveryFee.Equal(decimal.RequireFromString("2.99")), "fee %s", res.Pending.DeliveryFee)
	assert.True(t, res.Pending.Total.Equal(decimal.RequireFromString("23.97")), "total %s", res.Pending.Total)
	require.Len(t, f.gw.CashOrders, 1)
	assert.Equal(t, checkout.PaymentMethodCOD, f.gw.CashOrders[0].PaymentMethod)
	assert.Equal(t, []string{"token-abc"}, f.gw.Tokens)
	assert.True(t, f.cart(t).Snapshot().IsEmpty())
}

func TestPlaceCashOrder_BackendErrorKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.gw.CreateErr = errors.New("503")
	f.fillCart()

	_, err := f.svc.Checkout(context.Background(), request(checkout.PaymentMethodCOD))
	require.Error(t, err)
	assert.Equal(t, 2, f.cart(t).TotalQuantity())
}

func TestCheckout_ValidationBeforeAnyCall(t *testing.T) {
	f := newFixture(t)
	f.fillCart()

	req := request(checkout.PaymentMethodOnline)
	req.Address = nil
	_, err := f.svc.Checkout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, checkout.IsValidationError(err))
	assert.Empty(t, f.gw.PhoneHints)
	assert.Empty(t, f.gw.Tokens)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), request(checkout.PaymentMethodCOD))
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestCheckout_UnknownMethod(t *testing.T) {
	f := newFixture(t)
	f.fillCart()

	_, err := f.svc.Checkout(context.Background(), request("Crypto"))
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestOnlinePayment_SucceedsAndAcknowledgeClearsCart(t *testing.T) {
	f := newFixture(t, "PENDING", "SUCCESS")
	txID := f.startOnline(t)
	assert.Equal(t, []string{"+15550100"}, f.gw.PhoneHints)

	matched, _, err := f.svc.Navigate(session, txID, NavigationLoaded, unrelateURL)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, _, err = f.svc.Navigate(session, txID, NavigationError, returnURL)
	require.NoError(t, err)
	assert.True(t, matched)

	snap := f.waitState(t, txID, domain.PaymentStateSucceeded)
	assert.True(t, snap.OrderCreated)
	assert.Equal(t, 2, f.gw.verifyCalls())

	// the cart stays until the result is acknowledged
	assert.Equal(t, 2, f.cart(t).TotalQuantity())

	ack, err := f.svc.Acknowledge(context.Background(), session, txID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateSucceeded, ack.State)
	assert.True(t, f.cart(t).Snapshot().IsEmpty())

	_, err = f.svc.Payment(session, txID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{outbox.EventPaymentSucceeded}, f.outcomes.eventTypes())
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.journal.states(), domain.PaymentStateSucceeded)
}

func TestOnlinePayment_OrderCreationFailureQueuesReconciliation(t *testing.T) {
	f := newFixture(t, "SUCCESS")
	f.gw.OrderErr = errors.New("backend timeout")
	txID := f.startOnline(t)

	_, _, err := f.svc.Navigate(session, txID, NavigationLoaded, returnURL)
	require.NoError(t, err)

	snap := f.waitState(t, txID, domain.PaymentStateSucceeded)
	assert.False(t, snap.OrderCreated)

	require.Eventually(t, func() bool { return len(f.outcomes.eventTypes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{outbox.EventPaymentSucceeded, outbox.EventOrderCreationFailed}, f.outcomes.eventTypes())

	var payload outbox.OutcomePayload
	require.NoError(t, json.Unmarshal(f.outcomes.Events[1].Payload, &payload))
	require.NotNil(t, payload.OrderData)
	assert.Equal(t, int64(11), payload.OrderData.AddressID)
	assert.Equal(t, txID, payload.TransactionID)
	assert.NotEmpty(t, payload.AttemptID)
}

func TestOnlinePayment_FailedRetryAndDuplicateOutcome(t *testing.T) {
	f := newFixture(t, "FAILED", "FAILED")
	txID := f.startOnline(t)

	_, _, err := f.svc.Navigate(session, txID, NavigationHTTPError, returnURL)
	require.NoError(t, err)
	f.waitState(t, txID, domain.PaymentStateFailed)

	_, err = f.svc.RetryVerification(session, txID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.gw.verifyCalls() == 2 }, time.Second, 5*time.Millisecond)
	f.waitState(t, txID, domain.PaymentStateFailed)

	// the second failure hits the dedup key
	assert.Equal(t, []string{outbox.EventPaymentFailed}, f.outcomes.eventTypes())

	_, err = f.svc.Acknowledge(context.Background(), session, txID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.cart(t).TotalQuantity())
}

func TestOnlinePayment_InitiationFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.InitiateErr = errors.New("connection refused")
	f.fillCart()

	_, err := f.svc.Checkout(context.Background(), request(checkout.PaymentMethodOnline))
	var initErr *payment.SessionInitiationError
	assert.ErrorAs(t, err, &initErr)
}

func TestPayment_Ownership(t *testing.T) {
	f := newFixture(t)
	txID := f.startOnline(t)

	_, err := f.svc.Payment("someone-else", txID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Payment(session, "TX-missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, _, err = f.svc.Navigate(session, txID, "scroll", returnURL)
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestAcknowledge_NotSettled(t *testing.T) {
	f := newFixture(t)
	txID := f.startOnline(t)

	_, err := f.svc.Acknowledge(context.Background(), session, txID)
	assert.ErrorIs(t, err, ErrPaymentNotSettled)
}

func TestRetry_OnlyFromFailed(t *testing.T) {
	f := newFixture(t)
	txID := f.startOnline(t)

	_, err := f.svc.RetryVerification(session, txID)
	assert.ErrorIs(t, err, payment.ErrIllegalTransition)
}

func TestCheckout_ReplacesAbandonedPayment(t *testing.T) {
	f := newFixture(t)
	first := f.startOnline(t)

	res, err := f.svc.Checkout(context.Background(), request(checkout.PaymentMethodOnline))
	require.NoError(t, err)
	assert.NotEqual(t, first, res.Payment.TransactionID)

	_, err = f.svc.Payment(session, first)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestCheckout_RefusedWhileSucceededUnacknowledged(t *testing.T) {
	f := newFixture(t, "SUCCESS")
	txID := f.startOnline(t)
	_, _, err := f.svc.Navigate(session, txID, NavigationLoaded, returnURL)
	require.NoError(t, err)
	f.waitState(t, txID, domain.PaymentStateSucceeded)

	_, err = f.svc.Checkout(context.Background(), request(checkout.PaymentMethodOnline))
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	var blocking *PaymentInProgressError
	require.ErrorAs(t, err, &blocking)
	assert.Equal(t, txID, blocking.TransactionID)
}

func TestLeave_StopsVerification(t *testing.T) {
	f := newFixture(t, "PENDING")
	txID := f.startOnline(t)
	_, _, err := f.svc.Navigate(session, txID, NavigationLoaded, returnURL)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.gw.verifyCalls() >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.Leave(session, txID))
	calls := f.gw.verifyCalls()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, f.gw.verifyCalls(), calls+1)

	_, err = f.svc.Payment(session, txID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestLogout_DropsPaymentsAndCart(t *testing.T) {
	f := newFixture(t)
	txID := f.startOnline(t)

	f.svc.Logout(context.Background(), session)

	_, err := f.svc.Payment(session, txID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.True(t, f.cart(t).Snapshot().IsEmpty())
}

func TestShutdown_WaitsForOrderWrite(t *testing.T) {
	f := newFixture(t, "SUCCESS")
	f.gw.OrderGate = make(chan struct{})
	f.gw.OrderStarted = make(chan struct{}, 1)
	txID := f.startOnline(t)
	_, _, err := f.svc.Navigate(session, txID, NavigationLoaded, returnURL)
	require.NoError(t, err)

	select {
	case <-f.gw.OrderStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("order creation never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.svc.Shutdown(ctx) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while the order was still being written")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.gw.OrderGate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{outbox.EventPaymentSucceeded}, f.outcomes.eventTypes())
	states := f.journal.states()
	assert.Equal(t, domain.PaymentStateSucceeded, states[len(states)-1])
}

func TestShutdown_BoundedByContext(t *testing.T) {
	f := newFixture(t, "SUCCESS")
	gate := make(chan struct{})
	f.gw.OrderGate = gate
	f.gw.OrderStarted = make(chan struct{}, 1)
	t.Cleanup(func() { close(gate) })
	txID := f.startOnline(t)
	_, _, err := f.svc.Navigate(session, txID, NavigationLoaded, returnURL)
	require.NoError(t, err)
	<-f.gw.OrderStarted

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.svc.Shutdown(ctx), context.DeadlineExceeded)
}
