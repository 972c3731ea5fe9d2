package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"touradmin/pkg/backend"
	"touradmin/pkg/logging"
	"touradmin/pkg/razorpay"
)

const DefaultTimeout = 15 * time.Second

var (
	ErrClosed     = errors.New("checkout closed")
	ErrTerminal   = errors.New("checkout already finished, start a new one")
	ErrInProgress = errors.New("payment already in progress")
)

const (
	msgGatewayNotLoaded = "payment gateway not loaded, check your internet connection"
	msgKeyMissing       = "payment gateway key not configured: get a key from https://dashboard.razorpay.com/app/keys and set RAZORPAY_KEY_ID"
	msgBackendNotReady  = "backend payment system not ready"
	msgInvalidResponse  = "invalid gateway response"
)

// Verification is the body of the verify-payment call.
type Verification struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
	BookingID string `json:"bookingId"`
}

// Backend is the server side of a checkout.
type Backend interface {
	CreateOrder(ctx context.Context, bookingID string) (orderID string, err error)
	VerifyPayment(ctx context.Context, v Verification) error
}

// Confirmer asks the user a yes/no question. It blocks until answered.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

// Target is the booking being paid.
type Target struct {
	BookingID   string
	Amount      int64 // minor units
	Description string
	Guest       Contact
}

type Options struct {
	Backend   Backend
	Gateway   razorpay.Gateway
	Confirmer Confirmer

	KeyID        string
	Currency     string
	MerchantName string

	// DevMode enables the user-confirmed simulation bypass.
	DevMode bool
	Timeout time.Duration

	// OnConfirmed runs once when the checkout reaches Confirmed.
	OnConfirmed func(Result)
	Logger      *zap.Logger
}

type Result struct {
	BookingID string
	OrderID   string
	PaymentID string
	Simulated bool
}

type Snapshot struct {
	BookingID       string
	Amount          int64
	State           State
	ExternalOrderID string
	PaymentID       string
	LastError       string
	Simulated       bool
}

func (s Snapshot) Busy() bool { return s.State.Busy() }

// Checkout drives one payment attempt for one booking. A finished checkout is
// not reused; start a new one for another attempt.
type Checkout struct {
	target Target
	opts   Options
	log    *zap.Logger

	// ctx lives as long as the checkout; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	orderID   string
	paymentID string
	lastErr   string
	simulated bool
	closed    bool
	observers map[int]func(Snapshot)
	nextObs   int

	done     chan struct{}
	doneOnce sync.Once
}

func New(target Target, opts Options) (*Checkout, error) {
	if strings.TrimSpace(target.BookingID) == "" {
		return nil, fmt.Errorf("missing booking id")
	}
	if target.Amount <= 0 {
		return nil, fmt.Errorf("amount must be > 0")
	}
	if opts.Backend == nil || opts.Gateway == nil {
		return nil, fmt.Errorf("checkout needs a backend and a gateway")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Currency == "" {
		opts.Currency = razorpay.DefaultCurrency
	}
	if opts.MerchantName == "" {
		opts.MerchantName = razorpay.DefaultMerchantName
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Checkout{
		target:    target,
		opts:      opts,
		log:       logging.OrNop(opts.Logger).Named("checkout").With(zap.String("booking_id", target.BookingID)),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		observers: map[int]func(Snapshot){},
		done:      make(chan struct{}),
	}, nil
}

func (c *Checkout) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Checkout) snapshotLocked() Snapshot {
	return Snapshot{
		BookingID:       c.target.BookingID,
		Amount:          c.target.Amount,
		State:           c.state,
		ExternalOrderID: c.orderID,
		PaymentID:       c.paymentID,
		LastError:       c.lastErr,
		Simulated:       c.simulated,
	}
}

func (c *Checkout) State() State { return c.Snapshot().State }

// Subscribe registers fn to receive a snapshot after every transition.
func (c *Checkout) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Done is closed when the checkout reaches a terminal state or is closed.
func (c *Checkout) Done() <-chan struct{} { return c.done }

// Close abandons the checkout. Outstanding calls are canceled and any result
// that still arrives is dropped.
func (c *Checkout) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.finish()
}

// Pay starts an attempt from Idle. The outcome lands in the checkout state;
// the returned error only reports misuse.
func (c *Checkout) Pay(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state.Terminal():
		c.mu.Unlock()
		return ErrTerminal
	case c.state != StateIdle:
		c.mu.Unlock()
		return ErrInProgress
	}
	c.mu.Unlock()

	if err := c.opts.Gateway.Loaded(); err != nil {
		c.log.Error("gateway unavailable", zap.Error(err))
		c.fail(StateIdle, msgGatewayNotLoaded)
		return nil
	}

	if razorpay.IsPlaceholderKey(c.opts.KeyID) {
		c.log.Warn("gateway key not configured")
		if c.offerSimulation(ctx, StateIdle, "Payment gateway key not configured.\n\nSimulate a successful payment (development mode)?") {
			return nil
		}
		c.fail(StateIdle, msgKeyMissing)
		return nil
	}

	if !c.advance(StateIdle, StateOrderCreating, nil) {
		return nil
	}

	callCtx, cancel := c.callContext(ctx)
	orderID, err := c.opts.Backend.CreateOrder(callCtx, c.target.BookingID)
	cancel()

	if c.isClosed() {
		c.log.Debug("dropping create-order result after close")
		return nil
	}
	if err != nil {
		c.log.Warn("create order failed", zap.Error(err))
		if backend.IsNotReady(err) && c.opts.DevMode {
			if c.offerSimulation(ctx, StateOrderCreating, "Backend payment API not ready.\n\nSimulate a successful payment (development mode)?") {
				return nil
			}
			c.fail(StateOrderCreating, msgBackendNotReady)
			return nil
		}
		c.fail(StateOrderCreating, describe("create order", err))
		return nil
	}
	if strings.TrimSpace(orderID) == "" {
		c.fail(StateOrderCreating, "create order: backend returned no order id")
		return nil
	}

	if !c.advance(StateOrderCreating, StateOrderCreated, func() { c.orderID = orderID }) {
		return nil
	}
	c.log.Info("order created", zap.String("order_id", orderID))

	opts := c.gatewayOptions(orderID)

	// GatewayOpen is entered before Open because the widget may answer from
	// inside Open.
	if !c.advance(StateOrderCreated, StateGatewayOpen, nil) {
		return nil
	}
	if err := c.opts.Gateway.Open(c.ctx, opts); err != nil {
		c.log.Error("open gateway failed", zap.Error(err))
		c.fail(StateGatewayOpen, "open payment gateway: "+err.Error())
	}
	return nil
}

func (c *Checkout) gatewayOptions(orderID string) razorpay.CheckoutOptions {
	return razorpay.CheckoutOptions{
		Key:         c.opts.KeyID,
		Amount:      c.target.Amount,
		Currency:    c.opts.Currency,
		Name:        c.opts.MerchantName,
		Description: c.target.Description,
		OrderID:     orderID,
		Prefill: razorpay.Prefill{
			Name:    c.target.Guest.Name,
			Email:   c.target.Guest.Email,
			Contact: c.target.Guest.Phone,
		},
		Notes: map[string]string{
			"booking_id":  c.target.BookingID,
			"guest_name":  c.target.Guest.Name,
			"guest_email": c.target.Guest.Email,
		},
		Handler:   c.handlePayment,
		OnDismiss: c.handleDismiss,
	}
}

// handlePayment is the gateway success handler. Only the first callback while
// the gateway is open is acted on.
func (c *Checkout) handlePayment(resp razorpay.PaymentResponse) {
	c.mu.Lock()
	if c.closed || c.state != StateGatewayOpen {
		state := c.state
		c.mu.Unlock()
		c.log.Debug("ignoring gateway callback", zap.String("state", string(state)))
		return
	}
	orderID := c.orderID
	c.mu.Unlock()

	if !resp.Complete() {
		c.log.Warn("gateway callback without payment id or signature")
		c.fail(StateGatewayOpen, msgInvalidResponse)
		return
	}
	if resp.OrderID == "" {
		resp.OrderID = orderID
	}
	if resp.OrderID != orderID {
		c.log.Warn("gateway callback for another order", zap.String("got", resp.OrderID), zap.String("want", orderID))
		c.fail(StateGatewayOpen, msgInvalidResponse)
		return
	}

	if !c.advance(StateGatewayOpen, StateVerifying, func() { c.paymentID = resp.PaymentID }) {
		return
	}

	callCtx, cancel := c.callContext(c.ctx)
	err := c.opts.Backend.VerifyPayment(callCtx, Verification{
		PaymentID: resp.PaymentID,
		OrderID:   resp.OrderID,
		Signature: resp.Signature,
		BookingID: c.target.BookingID,
	})
	cancel()

	if c.isClosed() {
		c.log.Debug("dropping verify result after close")
		return
	}
	if err != nil {
		c.log.Warn("verify payment failed", zap.Error(err), zap.String("payment_id", resp.PaymentID))
		if backend.IsNotReady(err) && c.opts.DevMode {
			prompt := "Payment completed but verification failed due to backend issues.\n\nPayment ID: " + resp.PaymentID + "\n\nSimulate a successful payment (development mode)?"
			if c.offerSimulation(c.ctx, StateVerifying, prompt) {
				return
			}
		}
		c.fail(StateVerifying, describe("verify payment", err))
		return
	}

	c.confirm(StateVerifying, false)
}

func (c *Checkout) handleDismiss() {
	ok := c.advance(StateGatewayOpen, StateIdle, func() {
		c.orderID = ""
		c.lastErr = ""
	})
	if ok {
		c.log.Info("gateway dismissed by user")
	}
}

// offerSimulation asks the user to accept a simulated payment. It reports
// whether the checkout was confirmed.
func (c *Checkout) offerSimulation(ctx context.Context, from State, prompt string) bool {
	if !c.opts.DevMode || c.opts.Confirmer == nil {
		return false
	}
	if !c.opts.Confirmer.Confirm(ctx, prompt) {
		return false
	}
	if c.isClosed() {
		return true
	}
	c.mu.Lock()
	if c.paymentID == "" {
		c.paymentID = "pay_sim_" + uuid.NewString()
	}
	c.mu.Unlock()
	return c.confirm(from, true)
}

func (c *Checkout) confirm(from State, simulated bool) bool {
	ok := c.advance(from, StateConfirmed, func() {
		c.simulated = simulated
		c.lastErr = ""
	})
	if !ok {
		return false
	}
	s := c.Snapshot()
	c.log.Info("payment confirmed", zap.String("payment_id", s.PaymentID), zap.Bool("simulated", simulated))
	if c.opts.OnConfirmed != nil {
		c.opts.OnConfirmed(Result{BookingID: s.BookingID, OrderID: s.ExternalOrderID, PaymentID: s.PaymentID, Simulated: simulated})
	}
	return true
}

func (c *Checkout) fail(from State, msg string) {
	if c.advance(from, StateFailed, func() { c.lastErr = msg }) {
		c.log.Warn("payment failed", zap.String("reason", msg))
	}
}

// advance moves from -> to when the checkout is still in from and open. mutate
// runs under the lock. Observers are notified after the lock is released.
func (c *Checkout) advance(from, to State, mutate func()) bool {
	c.mu.Lock()
	if c.closed || c.state != from {
		c.mu.Unlock()
		return false
	}
	if !CanTransition(from, to) {
		c.mu.Unlock()
		c.log.Error("illegal checkout transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return false
	}
	c.state = to
	if mutate != nil {
		mutate()
	}
	s := c.snapshotLocked()
	obs := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	c.mu.Unlock()

	c.log.Debug("checkout transition", zap.String("from", string(from)), zap.String("to", string(to)))
	for _, fn := range obs {
		fn(s)
	}
	if to.Terminal() {
		c.finish()
	}
	return true
}

func (c *Checkout) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Checkout) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// callContext bounds a backend call by the checkout timeout and by Close.
func (c *Checkout) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, c.opts.Timeout)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func describe(op string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), backend.IsTimeout(err):
		return op + ": request timed out"
	case backend.IsNetwork(err):
		return op + ": cannot reach server"
	default:
		return op + ": " + err.Error()
	}
}
