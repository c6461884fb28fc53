package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultPollDelay     = 3 * time.Second
	orderCreationTimeout = 15 * time.Second
	recordTimeout        = 2 * time.Second
)

type Config struct {
	Detector RedirectDetector
	// PollDelay is the wait before re-verifying a PENDING payment.
	PollDelay time.Duration
	// MaxPollAttempts bounds PENDING re-checks. Zero polls until the backend decides.
	MaxPollAttempts int
}

// Hooks are invoked after the session settles. The orchestrator never touches
// the cart; OnSucceeded is where callers may clear it.
type Hooks struct {
	OnSucceeded func(Snapshot)
	OnFailed    func(Snapshot)
}

// Recorder observes every state transition.
type Recorder interface {
	Record(ctx context.Context, snap Snapshot) error
}

// Snapshot is a copy of the session state at one transition.
type Snapshot struct {
	SessionID          string              `json:"session_id"`
	State              domain.PaymentState `json:"state"`
	TransactionID      string              `json:"transaction_id,omitempty"`
	RedirectURL        string              `json:"redirect_url,omitempty"`
	LastVerifiedStatus string              `json:"last_verified_status,omitempty"`
	PollAttempt        int                 `json:"poll_attempt"`
	OrderCreated       bool                `json:"order_created"`
	Order              *domain.OrderRecord `json:"order,omitempty"`
	Failure            string              `json:"failure,omitempty"`
	Err                error               `json:"-"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Orchestrator drives one hosted-payment attempt from session initiation to a
// verified result. State changes are serialized; gateway calls run outside the lock.
type Orchestrator struct {
	mu          sync.Mutex
	sessionID   string
	gateway     SessionGateway
	cfg         Config
	hooks       Hooks
	recorder    Recorder
	logger      *zap.Logger
	state       domain.PaymentState
	txID        string
	redirectURL string
	lastStatus  string
	pollAttempt int
	orderCreate bool
	order       *domain.OrderRecord
	pending     *domain.PendingOrder
	failure     error
	updatedAt   time.Time
	timer       *time.Timer
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	queued      []Snapshot     // transitions not yet delivered
	inflight    sync.WaitGroup // verify and order-creation goroutines

	notifyMu sync.Mutex // keeps delivery in transition order
}

func NewOrchestrator(sessionID string, gw SessionGateway, cfg Config, hooks Hooks, recorder Recorder, logger *zap.Logger) *Orchestrator {
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultPollDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		sessionID: sessionID,
		gateway:   gw,
		cfg:       cfg,
		hooks:     hooks,
		recorder:  recorder,
		logger:    logger.With(zap.String("session_id", sessionID)),
		state:     domain.PaymentStateIdle,
		updatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start opens a payment session for the order total. On success the session
// waits for the hosted page to redirect back; on failure it returns to Idle.
func (o *Orchestrator) Start(ctx context.Context, order *domain.PendingOrder, phoneHint string) error {
	if order == nil {
		return errors.New("payment needs a pending order")
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if err := o.transition(domain.PaymentStateInitiating); err != nil {
		o.mu.Unlock()
		return err
	}
	o.pending = clonePendingOrder(order)
	o.unlockAndNotify()

	grant, err := o.gateway.InitiateSession(ctx, order.Total, phoneHint)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		o.failure = &SessionInitiationError{Err: err}
		_ = o.transition(domain.PaymentStateIdle)
		o.unlockAndNotify()
		o.logger.Warn("payment session initiation failed", zap.Error(err))
		return &SessionInitiationError{Err: err}
	}

	o.txID = grant.TransactionID
	o.redirectURL = grant.RedirectURL
	o.failure = nil
	_ = o.transition(domain.PaymentStateAwaitingRedirect)
	o.unlockAndNotify()

	o.logger.Info("payment session initiated", zap.String("transaction_id", grant.TransactionID))
	return nil
}

// ObserveNavigation reports a page load in the hosted payment view.
// It returns true when the URL ended the hosted flow and verification started.
func (o *Orchestrator) ObserveNavigation(url string) bool {
	return o.observe(url)
}

// ObserveError reports a load failure; the redirect target is often an
// unreachable page, so it is checked like a navigation.
func (o *Orchestrator) ObserveError(url string) bool {
	return o.observe(url)
}

// ObserveHTTPError reports an HTTP error status on a page load.
func (o *Orchestrator) ObserveHTTPError(url string) bool {
	return o.observe(url)
}

func (o *Orchestrator) observe(url string) bool {
	o.mu.Lock()
	if o.closed || o.state != domain.PaymentStateAwaitingRedirect || !o.cfg.Detector.Matches(url) {
		o.mu.Unlock()
		return false
	}
	_ = o.transition(domain.PaymentStateVerifying)
	o.launchVerify()
	o.unlockAndNotify()
	return true
}

// RetryVerification re-checks a failed session with the same transaction id.
func (o *Orchestrator) RetryVerification() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if o.state != domain.PaymentStateFailed {
		o.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrIllegalTransition, o.state)
	}
	o.failure = nil
	o.pollAttempt = 0
	_ = o.transition(domain.PaymentStateVerifying)
	o.launchVerify()
	o.unlockAndNotify()
	return nil
}

// Close stops polling and drops any result that arrives afterwards.
// A payment already confirmed still gets its order written.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.cancel()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// PendingOrder returns a copy of the order this payment is for.
func (o *Orchestrator) PendingOrder() *domain.PendingOrder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return clonePendingOrder(o.pending)
}

func (o *Orchestrator) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Wait blocks until no verification or order write is running, or ctx ends.
// It is meant to follow Close; before Close a PENDING payment keeps
// scheduling new checks.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchVerify must be called with mu held and the state already Verifying.
func (o *Orchestrator) launchVerify() {
	txID := o.txID
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.verify(txID)
	}()
}

func (o *Orchestrator) verify(txID string) {
	result, err := o.gateway.VerifyPayment(o.ctx, txID)

	o.mu.Lock()
	if o.closed || o.state != domain.PaymentStateVerifying {
		o.mu.Unlock()
		return
	}

	if err != nil {
		o.failure = &VerificationTransportError{TransactionID: txID, Err: err}
		_ = o.transition(domain.PaymentStateFailed)
		o.unlockAndNotify()
		o.logger.Warn("payment verification failed", zap.String("transaction_id", txID), zap.Error(err))
		return
	}

	status := strings.ToUpper(strings.TrimSpace(result.Status))
	o.lastStatus = status

	switch {
	case IsSuccessStatus(status):
		pending := clonePendingOrder(o.pending)
		o.mu.Unlock()
		o.completeOrder(txID, pending)

	case status == statusPending:
		o.pollAttempt++
		if o.cfg.MaxPollAttempts > 0 && o.pollAttempt > o.cfg.MaxPollAttempts {
			o.failure = fmt.Errorf("payment still pending after %d checks", o.cfg.MaxPollAttempts)
			_ = o.transition(domain.PaymentStateFailed)
			o.unlockAndNotify()
			return
		}
		_ = o.transition(domain.PaymentStateVerifying)
		o.timer = time.AfterFunc(o.cfg.PollDelay, o.poll)
		o.unlockAndNotify()
		o.logger.Debug("payment pending, scheduled re-check",
			zap.String("transaction_id", txID),
			zap.Int("poll_attempt", o.pollAttempt))

	default:
		o.failure = fmt.Errorf("payment status %q", status)
		_ = o.transition(domain.PaymentStateFailed)
		o.unlockAndNotify()
		o.logger.Info("payment not successful", zap.String("transaction_id", txID), zap.String("status", status))
	}
}

func (o *Orchestrator) poll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer = nil
	if o.closed || o.state != domain.PaymentStateVerifying {
		return
	}
	o.launchVerify()
}

// completeOrder writes the order for a confirmed payment. The session ends in
// Succeeded whether or not the write works.
func (o *Orchestrator) completeOrder(txID string, pending *domain.PendingOrder) {
	var (
		record *domain.OrderRecord
		err    error
	)
	if pending == nil {
		err = errors.New("no pending order captured")
	} else {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), orderCreationTimeout)
		record, err = o.gateway.CreateOrderAfterPayment(ctx, txID, checkout.NewPendingOrderData(pending))
		cancel()
	}

	o.mu.Lock()
	if o.state != domain.PaymentStateVerifying {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failure = &OrderCreationError{TransactionID: txID, Err: err}
		o.orderCreate = false
		o.logger.Error("order creation after payment failed", zap.String("transaction_id", txID), zap.Error(err))
	} else {
		o.order = record
		o.orderCreate = true
		o.failure = nil
	}
	_ = o.transition(domain.PaymentStateSucceeded)
	o.unlockAndNotify()
}

// transition must be called with mu held.
func (o *Orchestrator) transition(to domain.PaymentState) error {
	if !domain.CanTransitionTo(o.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.state, to)
	}
	o.state = to
	o.updatedAt = time.Now()
	o.queued = append(o.queued, o.snapshotLocked())
	return nil
}

// unlockAndNotify releases mu and delivers queued transitions in order.
func (o *Orchestrator) unlockAndNotify() {
	queued := o.queued
	o.queued = nil
	o.notifyMu.Lock()
	o.mu.Unlock()
	defer o.notifyMu.Unlock()

	for _, snap := range queued {
		o.deliver(snap)
	}
}

func (o *Orchestrator) deliver(snap Snapshot) {
	if o.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := o.recorder.Record(ctx, snap); err != nil {
			o.logger.Warn("payment transition not recorded",
				zap.String("state", snap.State.String()),
				zap.Error(err))
		}
		cancel()
	}

	switch snap.State {
	case domain.PaymentStateSucceeded:
		if o.hooks.OnSucceeded != nil {
			o.hooks.OnSucceeded(snap)
		}
	case domain.PaymentStateFailed:
		if o.hooks.OnFailed != nil {
			o.hooks.OnFailed(snap)
		}
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:          o.sessionID,
		State:              o.state,
		TransactionID:      o.txID,
		RedirectURL:        o.redirectURL,
		LastVerifiedStatus: o.lastStatus,
		PollAttempt:        o.pollAttempt,
		OrderCreated:       o.orderCreate,
		Err:                o.failure,
		UpdatedAt:          o.updatedAt,
	}
	if o.order != nil {
		rec := *o.order
		snap.Order = &rec
	}
	if o.failure != nil {
		snap.Failure = o.failure.Error()
	}
	return snap
}

func clonePendingOrder(order *domain.PendingOrder) *domain.PendingOrder {
	if order == nil {
		return nil
	}
	cp := *order
	cp.Items = make([]domain.OrderLine, len(order.Items))
	for i, line := range order.Items {
		cp.Items[i] = line
		if line.IsVegetarian != nil {
			v := *line.IsVegetarian
			cp.Items[i].IsVegetarian = &v
		}
	}
	return &cp
}
