package razorpay

import (
	"context"
	"errors"
	"strings"
)

const (
	DefaultCurrency     = "INR"
	DefaultMerchantName = "Gujarat Tourism"
)

// ErrNotLoaded is returned by Gateway.Loaded when the checkout library is unavailable.
var ErrNotLoaded = errors.New("payment gateway library not loaded")

type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// PaymentResponse is the payload the widget hands to the success handler.
type PaymentResponse struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

// Complete reports whether the fields required for verification are present.
func (p PaymentResponse) Complete() bool {
	return strings.TrimSpace(p.PaymentID) != "" && strings.TrimSpace(p.Signature) != ""
}

// CheckoutOptions mirrors the widget construction options.
type CheckoutOptions struct {
	Key         string            `json:"key"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	OrderID     string            `json:"order_id"`
	Prefill     Prefill           `json:"prefill"`
	Notes       map[string]string `json:"notes,omitempty"`

	// Handler runs on a successful payment. OnDismiss runs when the payer closes the widget.
	Handler   func(PaymentResponse) `json:"-"`
	OnDismiss func()                `json:"-"`
}

// Gateway is the external checkout widget. Open returns once the widget is
// shown; the outcome arrives later through Handler or OnDismiss, possibly on
// another goroutine and possibly before Open returns.
type Gateway interface {
	Loaded() error
	Open(ctx context.Context, opts CheckoutOptions) error
}

var placeholderKeys = map[string]bool{
	"rzp_test_your_key_id_here":     true,
	"rzp_test_your_actual_key_here": true,
}

// IsPlaceholderKey reports a key that was never configured.
func IsPlaceholderKey(key string) bool {
	key = strings.TrimSpace(key)
	return key == "" || placeholderKeys[key]
}

// IsTestKey reports a key from the gateway's test mode.
func IsTestKey(key string) bool {
	return strings.HasPrefix(strings.TrimSpace(key), "rzp_test_")
}
