package service

import (
	"context"
	"sync"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/fjod/go_checkout/internal/payment"
	"go.uber.org/zap"
)

// OrderGateway is the backend as seen by one signed-in user.
type OrderGateway interface {
	payment.SessionGateway
	CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (*domain.OrderRecord, error)
}

// GatewayFactory binds the backend client to a user's bearer token.
type GatewayFactory func(token string) OrderGateway

type Journal interface {
	Upsert(ctx context.Context, attempt *domain.PaymentAttempt) error
}

type OutcomeWriter interface {
	RecordOutcome(ctx context.Context, outcome *outbox.Outcome, event *outbox.Event) error
}

type Config struct {
	Payment payment.Config
}

// CheckoutService is the per-session checkout flow: cart, cash orders and
// hosted online payments.
type CheckoutService struct {
	carts     *cart.Registry
	assembler *checkout.Assembler
	gateways  GatewayFactory
	journal   Journal       // optional
	outcomes  OutcomeWriter // optional
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	payments map[string]*paymentEntry // by transaction id
	active   map[string]string        // session id -> transaction id
	draining sync.WaitGroup           // closed payments with a gateway call still running
}

type paymentEntry struct {
	sessionID string
	attemptID string
	orch      *payment.Orchestrator
}

func NewCheckoutService(
	carts *cart.Registry,
	assembler *checkout.Assembler,
	gateways GatewayFactory,
	journal Journal,
	outcomes OutcomeWriter,
	cfg Config,
	logger *zap.Logger,
) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		carts:     carts,
		assembler: assembler,
		gateways:  gateways,
		journal:   journal,
		outcomes:  outcomes,
		cfg:       cfg,
		logger:    logger,
		payments:  make(map[string]*paymentEntry),
		active:    make(map[string]string),
	}
}

// Cart returns the session's cart store.
func (s *CheckoutService) Cart(ctx context.Context, sessionID string) (*cart.Store, error) {
	return s.carts.Get(ctx, sessionID)
}
