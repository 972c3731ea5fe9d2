package console

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"touradmin/internal/booking"
	"touradmin/internal/devbackend"
	"touradmin/pkg/config"
	"touradmin/pkg/credstore"
	"touradmin/pkg/razorpay"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "secret123"
	gatewaySecret = "gw_console_secret"
)

func newBackend(t *testing.T) (*httptest.Server, *devbackend.Store, config.Config) {
	t.Helper()
	cfg := config.Config{
		AppEnv:    "dev",
		Reconcile: true,
		Gateway: config.GatewayConfig{
			KeyID:        "rzp_test_console",
			KeySecret:    gatewaySecret,
			Currency:     "INR",
			MerchantName: "Gujarat Tourism",
		},
		Dev: config.DevConfig{
			JWTSecret:       "jwt_console_secret",
			PaymentsEnabled: true,
		},
	}
	store := devbackend.NewStore()
	store.BcryptCost = bcrypt.MinCost
	_, _, err := store.Seed(adminEmail, adminPassword)
	require.NoError(t, err)

	srv := httptest.NewServer(devbackend.NewRouter(devbackend.Dependencies{Cfg: cfg, Store: store}))
	t.Cleanup(srv.Close)

	cfg.API = config.APIConfig{BaseURL: srv.URL + "/api", Credentials: config.CredentialsCookie, Timeout: 5 * time.Second}
	return srv, store, cfg
}

func runScript(t *testing.T, cfg config.Config, store credstore.Store, script ...string) string {
	t.Helper()
	var out bytes.Buffer
	app, err := New(Options{
		Config: cfg,
		Store:  store,
		In:     strings.NewReader(strings.Join(script, "\n") + "\n"),
		Out:    &out,
	})
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Run(ctx))
	return out.String()
}

func TestConsole_LoginPayLogout(t *testing.T) {
	_, backendStore, cfg := newBackend(t)
	creds := credstore.NewMemory()

	out := runScript(t, cfg, creds,
		"login", adminEmail, adminPassword,
		"bookings",
		"pay bk1", "pay_console1", "",
		"whoami",
		"logout",
		"quit",
	)

	assert.Contains(t, out, "welcome, Dev Admin")
	assert.Contains(t, out, "Hotel Booking - Taj Skyline Ahmedabad")
	assert.Contains(t, out, "66.00 INR")
	assert.Contains(t, out, "payment successful")
	assert.Contains(t, out, "admin: true")
	assert.Contains(t, out, "-> /login")

	b, err := backendStore.Booking("bk1")
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)

	_, cached := creds.Get(credstore.KeyUser)
	assert.False(t, cached)
}

func TestConsole_ProtectedCommandRedirectsToLogin(t *testing.T) {
	_, _, cfg := newBackend(t)

	out := runScript(t, cfg, credstore.NewMemory(), "bookings")

	assert.Contains(t, out, "please log in first")
	assert.Contains(t, out, "-> /login")
}

func TestConsole_DismissedPaymentLeavesBookingPending(t *testing.T) {
	_, backendStore, cfg := newBackend(t)

	out := runScript(t, cfg, credstore.NewMemory(),
		"login", adminEmail, adminPassword,
		"pay bk1", "",
	)
	assert.Contains(t, out, "payment cancelled")

	b, err := backendStore.Booking("bk1")
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus)
}

func TestConsole_UnknownCommand(t *testing.T) {
	_, _, cfg := newBackend(t)

	out := runScript(t, cfg, credstore.NewMemory(), "frobnicate", "help")
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, "pay <booking id>")
}

func TestPrompter_Confirm(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("y\nno\n"), &out)
	ctx := context.Background()

	assert.True(t, p.Confirm(ctx, "simulate?"))
	assert.False(t, p.Confirm(ctx, "simulate?"))
	assert.False(t, p.Confirm(ctx, "simulate?"), "EOF is a no")
}

func TestPromptGateway_SignsWithTestSecret(t *testing.T) {
	var out bytes.Buffer
	g := &PromptGateway{P: NewPrompter(strings.NewReader("pay_x\n\n"), &out), Secret: "s"}

	var got razorpay.PaymentResponse
	err := g.Open(context.Background(), razorpay.CheckoutOptions{
		OrderID: "order_1",
		Amount:  6600,
		Handler: func(r razorpay.PaymentResponse) { got = r },
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_x", got.PaymentID)
	assert.True(t, razorpay.VerifySignature("order_1", "pay_x", got.Signature, "s"))
}
