package razorpay

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomePay     Outcome = "pay"
	OutcomeDismiss Outcome = "dismiss"
	// OutcomeUnsigned pays but drops the signature, like a tampered callback.
	OutcomeUnsigned Outcome = "unsigned"
)

// TestGateway stands in for the hosted widget in dev tools and tests. It
// answers synchronously from inside Open with a correctly signed payment, a
// dismissal or an unsigned payment depending on Outcome.
type TestGateway struct {
	Secret  string
	Outcome Outcome

	mu     sync.Mutex
	opened []CheckoutOptions
}

func NewTestGateway(secret string) *TestGateway {
	return &TestGateway{Secret: secret, Outcome: OutcomePay}
}

func (g *TestGateway) Loaded() error {
	if strings.TrimSpace(g.Secret) == "" {
		return ErrNotLoaded
	}
	return nil
}

func (g *TestGateway) Open(ctx context.Context, opts CheckoutOptions) error {
	if err := g.Loaded(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.OrderID == "" {
		return errors.New("missing order id")
	}

	g.mu.Lock()
	g.opened = append(g.opened, opts)
	g.mu.Unlock()

	switch g.Outcome {
	case OutcomeDismiss:
		if opts.OnDismiss != nil {
			opts.OnDismiss()
		}
	case OutcomeUnsigned:
		if opts.Handler != nil {
			opts.Handler(PaymentResponse{PaymentID: NewPaymentID(), OrderID: opts.OrderID})
		}
	default:
		if opts.Handler != nil {
			pid := NewPaymentID()
			opts.Handler(PaymentResponse{PaymentID: pid, OrderID: opts.OrderID, Signature: Sign(opts.OrderID, pid, g.Secret)})
		}
	}
	return nil
}

// Opened returns the options of every Open call so far.
func (g *TestGateway) Opened() []CheckoutOptions {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]CheckoutOptions(nil), g.opened...)
}

func NewPaymentID() string {
	return "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func NewOrderID() string {
	return "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
