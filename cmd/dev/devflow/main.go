package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"touradmin/internal/booking"
	"touradmin/internal/checkout"
	"touradmin/internal/devbackend"
	"touradmin/internal/session"
	"touradmin/pkg/backend"
	"touradmin/pkg/config"
	"touradmin/pkg/credstore"
	"touradmin/pkg/logging"
	"touradmin/pkg/razorpay"
)

// devflow runs one headless sign-in and checkout against a running backend
// (usually cmd/dev/mockbackend), paying with the test gateway.
func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup finishes before main exits:
// 0 when the booking ends up confirmed, 2 for bad flags, 1 otherwise.
func run() int {
	cfg := config.Load()

	var (
		apiURL    = flag.String("api", cfg.API.BaseURL, "backend base url")
		email     = flag.String("email", cfg.Dev.AdminEmail, "login email")
		password  = flag.String("password", cfg.Dev.AdminPassword, "login password")
		bookingID = flag.String("booking", "", "booking to pay (defaults to the first pending one)")
		outcome   = flag.String("outcome", string(razorpay.OutcomePay), "gateway outcome: pay, dismiss or unsigned")
		secret    = flag.String("secret", devbackend.GatewaySecret(cfg), "gateway secret used to sign the test payment")
		creds     = flag.String("credentials", cfg.API.Credentials, "credential variant: cookie or bearer")
	)
	flag.Parse()

	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	store := credstore.NewMemory()
	carrier, err := backend.NewCredentials(*creds, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "credentials: %v\n", err)
		return 2
	}
	client, err := backend.New(backend.Options{
		BaseURL:     *apiURL,
		Credentials: carrier,
		Store:       store,
		Timeout:     cfg.API.Timeout,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sess := session.NewManager(session.Options{Store: store, Client: client, Logger: logger})
	defer sess.Close()
	sess.Bootstrap(ctx)

	auth, err := session.SignIn(ctx, client, session.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		fmt.Fprintf(os.Stderr, "tip: is the backend running? api=%s\n", *apiURL)
		return 1
	}
	if err := sess.Login(auth.User); err != nil {
		fmt.Fprintf(os.Stderr, "cache user: %v\n", err)
		return 1
	}
	fmt.Printf("logged in as %s (%s)\n", auth.User.Name(), carrier.Kind())

	bookings := booking.NewService(client)
	b, err := pickBooking(ctx, bookings, *bookingID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "booking: %v\n", err)
		return 1
	}
	target, err := b.CheckoutTarget()
	if err != nil {
		fmt.Fprintf(os.Stderr, "booking %s: %v\n", b.ID, err)
		return 1
	}

	gw := razorpay.NewTestGateway(*secret)
	gw.Outcome = razorpay.Outcome(*outcome)

	keyID := cfg.Gateway.KeyID
	if razorpay.IsPlaceholderKey(keyID) {
		keyID = "rzp_test_devflow"
	}
	co, err := checkout.New(target, checkout.Options{
		Backend:      bookings,
		Gateway:      gw,
		KeyID:        keyID,
		Currency:     cfg.Gateway.Currency,
		MerchantName: cfg.Gateway.MerchantName,
		Timeout:      cfg.API.Timeout,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkout: %v\n", err)
		return 1
	}
	defer co.Close()
	co.Subscribe(func(s checkout.Snapshot) {
		fmt.Printf("  -> %s\n", s.State)
	})

	fmt.Printf("paying booking %s: %s %s\n", b.ID, razorpay.FromMinorUnits(target.Amount).StringFixed(2), cfg.Gateway.Currency)
	if err := co.Pay(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pay: %v\n", err)
		return 1
	}

	snap := co.Snapshot()
	fmt.Printf("state=%s order_id=%s payment_id=%s\n", snap.State, snap.ExternalOrderID, snap.PaymentID)
	if snap.LastError != "" {
		fmt.Printf("error=%s\n", snap.LastError)
	}

	after, err := bookings.Get(ctx, b.ID)
	if err == nil {
		fmt.Printf("booking payment_status=%s booking_status=%s\n", after.PaymentStatus, after.BookingStatus)
	}
	if snap.State != checkout.StateConfirmed {
		return 1
	}
	return 0
}

func pickBooking(ctx context.Context, svc *booking.Service, id string) (booking.Booking, error) {
	if id != "" {
		return svc.Get(ctx, id)
	}
	list, err := svc.List(ctx)
	if err != nil {
		return booking.Booking{}, err
	}
	for _, b := range list {
		if b.Payable() == nil {
			return b, nil
		}
	}
	return booking.Booking{}, fmt.Errorf("no pending bookings")
}
