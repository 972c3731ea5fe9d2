package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"touradmin/internal/checkout"
	"touradmin/internal/devbackend"
	"touradmin/pkg/config"
	"touradmin/pkg/razorpay"
)

// simpay posts a signed gateway callback to verify-payment, the way the
// hosted widget's success handler would after a real payment.
func main() {
	cfg := config.Load()

	var (
		url       = flag.String("url", "", "verify endpoint url (defaults to <TOURADMIN_API_URL>/bookings/verify-payment)")
		bookingID = flag.String("booking", "", "booking id")
		orderID   = flag.String("order", "", "gateway order id from create-order")
		paymentID = flag.String("payment", "", "gateway payment id (generated when empty)")
		secret    = flag.String("secret", devbackend.GatewaySecret(cfg), "RAZORPAY_KEY_SECRET")
		token     = flag.String("token", "", "bearer token of a signed-in user")
		tamper    = flag.Bool("tamper", false, "send a bad signature")
	)
	flag.Parse()

	if *url == "" {
		*url = cfg.API.BaseURL + "/bookings/verify-payment"
	}
	if *bookingID == "" || *orderID == "" {
		fmt.Fprintln(os.Stderr, "missing -booking or -order")
		os.Exit(2)
	}
	if *paymentID == "" {
		*paymentID = razorpay.NewPaymentID()
	}

	sig := razorpay.Sign(*orderID, *paymentID, *secret)
	if *tamper {
		sig = razorpay.Sign(*orderID, *paymentID, *secret+"x")
	}
	b, _ := json.Marshal(checkout.Verification{
		PaymentID: *paymentID,
		OrderID:   *orderID,
		Signature: sig,
		BookingID: *bookingID,
	})

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(b))
	if err != nil {
		fmt.Fprintf(os.Stderr, "new request: %v\n", err)
		os.Exit(2)
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	c := &http.Client{Timeout: 10 * time.Second}
	resp, err := c.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "post: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d\n%s\n", resp.StatusCode, string(body))
}
