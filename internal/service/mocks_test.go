package service

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/shopspring/decimal"
)

// MockGateway implements OrderGateway for testing
type MockGateway struct {
	m            sync.Mutex
	Tokens       []string
	InitiateErr  error
	Statuses     []string // consumed one per verify call; the last one repeats
	OrderErr     error
	CreateErr    error
	PhoneHints   []string
	CashOrders   []checkout.CreateOrderRequest
	PaidOrders   []checkout.PendingOrderData
	VerifyCalls  int
	nextTxNumber int

	// OrderGate, when set, holds CreateOrderAfterPayment until it is closed.
	// OrderStarted is signalled as the call begins.
	OrderGate    chan struct{}
	OrderStarted chan struct{}
}

func (g *MockGateway) factory(token string) OrderGateway {
	g.m.Lock()
	g.Tokens = append(g.Tokens, token)
	g.m.Unlock()
	return g
}

func (g *MockGateway) InitiateSession(_ context.Context, _ decimal.Decimal, phoneHint string) (*payment.SessionGrant, error) {
	g.m.Lock()
	defer g.m.Unlock()
	g.PhoneHints = append(g.PhoneHints, phoneHint)
	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	g.nextTxNumber++
	txID := "TX-" + string(rune('0'+g.nextTxNumber))
	return &payment.SessionGrant{
		TransactionID: txID,
		SessionID:     "PS-" + txID,
		RedirectURL:   "https://pay.example.com/hosted/" + txID,
	}, nil
}

func (g *MockGateway) VerifyPayment(_ context.Context, txID string) (*payment.Verification, error) {
	g.m.Lock()
	defer g.m.Unlock()
	g.VerifyCalls++
	if len(g.Statuses) == 0 {
		return nil, errors.New("no status scripted")
	}
	status := g.Statuses[0]
	if len(g.Statuses) > 1 {
		g.Statuses = g.Statuses[1:]
	}
	return &payment.Verification{Status: status, TransactionID: txID}, nil
}

func (g *MockGateway) CreateOrderAfterPayment(_ context.Context, txID string, data checkout.PendingOrderData) (*domain.OrderRecord, error) {
	if g.OrderStarted != nil {
		g.OrderStarted <- struct{}{}
	}
	if g.OrderGate != nil {
		<-g.OrderGate
	}
	g.m.Lock()
	defer g.m.Unlock()
	g.PaidOrders = append(g.PaidOrders, data)
	if g.OrderErr != nil {
		return nil, g.OrderErr
	}
	return &domain.OrderRecord{ID: 1, OrderNumber: "ORD-" + txID, Total: decimal.NewFromFloat(data.Total)}, nil
}

func (g *MockGateway) CreateOrder(_ context.Context, req checkout.CreateOrderRequest) (*domain.OrderRecord, error) {
	g.m.Lock()
	defer g.m.Unlock()
	g.CashOrders = append(g.CashOrders, req)
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	return &domain.OrderRecord{ID: 2, OrderNumber: "COD-1", OrderStatus: "Placed"}, nil
}

func (g *MockGateway) verifyCalls() int {
	g.m.Lock()
	defer g.m.Unlock()
	return g.VerifyCalls
}

// MockJournal implements Journal for testing
type MockJournal struct {
	m        sync.Mutex
	Attempts []domain.PaymentAttempt
}

func (j *MockJournal) Upsert(_ context.Context, attempt *domain.PaymentAttempt) error {
	j.m.Lock()
	defer j.m.Unlock()
	j.Attempts = append(j.Attempts, *attempt)
	return nil
}

func (j *MockJournal) states() []domain.PaymentState {
	j.m.Lock()
	defer j.m.Unlock()
	out := make([]domain.PaymentState, 0, len(j.Attempts))
	for _, a := range j.Attempts {
		out = append(out, a.State)
	}
	return out
}

// MockOutcomes implements OutcomeWriter for testing
type MockOutcomes struct {
	m      sync.Mutex
	seen   map[string]bool
	Events []*outbox.Event
}

func (o *MockOutcomes) RecordOutcome(_ context.Context, outcome *outbox.Outcome, event *outbox.Event) error {
	o.m.Lock()
	defer o.m.Unlock()
	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	key := outcome.TransactionID + "/" + event.EventType
	if o.seen[key] {
		return outbox.ErrDuplicateOutcome
	}
	o.seen[key] = true
	o.Events = append(o.Events, event)
	return nil
}

func (o *MockOutcomes) eventTypes() []string {
	o.m.Lock()
	defer o.m.Unlock()
	out := make([]string, 0, len(o.Events))
	for _, e := range o.Events {
		out = append(out, e.EventType)
	}
	return out
}
