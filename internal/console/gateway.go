package console

import (
	"context"
	"fmt"

	"touradmin/pkg/razorpay"
)

// PromptGateway is the checkout widget rendered as a prompt. The payer
// completes the payment elsewhere and pastes the ids back; a blank payment id
// closes the widget.
type PromptGateway struct {
	P *Prompter

	// Secret, when set, signs a pasted payment id that came without a
	// signature. Only meaningful against test keys.
	Secret string
}

func (g *PromptGateway) Loaded() error {
	if g.P == nil {
		return razorpay.ErrNotLoaded
	}
	return nil
}

func (g *PromptGateway) Open(ctx context.Context, opts razorpay.CheckoutOptions) error {
	if err := g.Loaded(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := g.P.out
	fmt.Fprintf(out, "\n== %s ==\n", opts.Name)
	if opts.Description != "" {
		fmt.Fprintln(out, opts.Description)
	}
	fmt.Fprintf(out, "amount:   %s %s\n", razorpay.FromMinorUnits(opts.Amount).StringFixed(2), opts.Currency)
	fmt.Fprintf(out, "order:    %s\n", opts.OrderID)
	fmt.Fprintf(out, "key:      %s\n", opts.Key)
	if opts.Prefill.Name != "" {
		fmt.Fprintf(out, "payer:    %s <%s> %s\n", opts.Prefill.Name, opts.Prefill.Email, opts.Prefill.Contact)
	}

	paymentID, err := g.P.Ask("payment id (blank to cancel)")
	if err != nil || paymentID == "" {
		if opts.OnDismiss != nil {
			opts.OnDismiss()
		}
		return nil
	}
	signature, err := g.P.Ask("signature")
	if err != nil {
		signature = ""
	}
	if signature == "" && g.Secret != "" {
		signature = razorpay.Sign(opts.OrderID, paymentID, g.Secret)
		fmt.Fprintln(out, "signed with the test secret")
	}
	if opts.Handler != nil {
		opts.Handler(razorpay.PaymentResponse{PaymentID: paymentID, OrderID: opts.OrderID, Signature: signature})
	}
	return nil
}
