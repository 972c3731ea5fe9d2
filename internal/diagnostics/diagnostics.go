package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"touradmin/pkg/backend"
	"touradmin/pkg/config"
	"touradmin/pkg/credstore"
	"touradmin/pkg/logging"
	"touradmin/pkg/razorpay"
)

type Status string

const (
	StatusAvailable      Status = "available"
	StatusNotImplemented Status = "not-implemented"
	StatusError          Status = "error"
	StatusNetworkError   Status = "network-error"
)

type Endpoint struct {
	Name string
	Path string
}

var DefaultEndpoints = []Endpoint{
	{Name: "Hotels", Path: "/hotels"},
	{Name: "Bookings", Path: "/bookings"},
	{Name: "Auth Check", Path: "/auth/me"},
}

type ProbeResult struct {
	Endpoint
	Status     Status
	HTTPStatus int
	Error      string
}

type Getter interface {
	Get(ctx context.Context, path string, opts ...backend.RequestOption) (*backend.Response, error)
}

// ProbeBackend calls each endpoint once through the pipeline. A 401 here has
// the usual pipeline side effects.
func ProbeBackend(ctx context.Context, c Getter, endpoints ...Endpoint) []ProbeResult {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	out := make([]ProbeResult, 0, len(endpoints))
	for _, ep := range endpoints {
		res := ProbeResult{Endpoint: ep}
		_, err := c.Get(ctx, ep.Path)
		switch {
		case err == nil:
			res.Status = StatusAvailable
		case backend.StatusOf(err) == http.StatusNotFound:
			res.Status = StatusNotImplemented
			res.HTTPStatus = http.StatusNotFound
			res.Error = err.Error()
		case backend.StatusOf(err) != 0:
			res.Status = StatusError
			res.HTTPStatus = backend.StatusOf(err)
			res.Error = err.Error()
		default:
			res.Status = StatusNetworkError
			res.Error = "cannot connect to backend"
		}
		out = append(out, res)
	}
	return out
}

type AuthReport struct {
	Credentials string
	HasUser     bool
	UserID      string
	UserEmail   string
	UserRaw     string
	HasToken    bool
	TokenMasked string
}

// DescribeAuth reports what the credential cache currently holds.
func DescribeAuth(store credstore.Store, credentials string) AuthReport {
	rep := AuthReport{Credentials: credentials}
	if raw, ok := store.Get(credstore.KeyUser); ok && raw != "" {
		rep.HasUser = true
		rep.UserRaw = raw
		var u struct {
			ID    string `json:"_id"`
			AltID string `json:"id"`
			Email string `json:"email"`
		}
		if json.Unmarshal([]byte(raw), &u) == nil {
			rep.UserID = u.ID
			if rep.UserID == "" {
				rep.UserID = u.AltID
			}
			rep.UserEmail = u.Email
		}
	}
	if tok, ok := store.Get(credstore.KeyToken); ok && tok != "" {
		rep.HasToken = true
		rep.TokenMasked = logging.Mask(tok)
	}
	return rep
}

type GatewayReport struct {
	Loaded      bool
	LoadError   string
	KeyMasked   string
	KeyMissing  bool
	TestMode    bool
	APIBaseURL  string
	Currency    string
	Merchant    string
	Problems    []string
	DevMode     bool
	Simulatable bool
}

func (r GatewayReport) OK() bool { return len(r.Problems) == 0 }

// CheckGateway summarizes whether a checkout could reach the gateway.
func CheckGateway(cfg config.Config, gw razorpay.Gateway) GatewayReport {
	rep := GatewayReport{
		KeyMasked:  logging.Mask(cfg.Gateway.KeyID),
		KeyMissing: razorpay.IsPlaceholderKey(cfg.Gateway.KeyID),
		TestMode:   razorpay.IsTestKey(cfg.Gateway.KeyID),
		APIBaseURL: cfg.API.BaseURL,
		Currency:   cfg.Gateway.Currency,
		Merchant:   cfg.Gateway.MerchantName,
		DevMode:    cfg.IsDevelopment(),
	}
	if gw == nil {
		rep.LoadError = razorpay.ErrNotLoaded.Error()
	} else if err := gw.Loaded(); err != nil {
		rep.LoadError = err.Error()
	} else {
		rep.Loaded = true
	}

	if !rep.Loaded {
		rep.Problems = append(rep.Problems, "gateway library not loaded")
	}
	if rep.KeyMissing {
		rep.Problems = append(rep.Problems, "gateway key not configured (RAZORPAY_KEY_ID)")
	}
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		rep.Problems = append(rep.Problems, "API base URL not set")
	}
	rep.Simulatable = rep.DevMode
	return rep
}

func WriteProbe(w io.Writer, results []ProbeResult) {
	for _, r := range results {
		line := fmt.Sprintf("%-12s %-10s %s", r.Name, r.Path, r.Status)
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func WriteAuth(w io.Writer, r AuthReport) {
	fmt.Fprintf(w, "credentials: %s\n", r.Credentials)
	if r.HasUser {
		fmt.Fprintf(w, "cached user: %s %s\n", r.UserID, r.UserEmail)
	} else {
		fmt.Fprintln(w, "cached user: none")
	}
	if r.HasToken {
		fmt.Fprintf(w, "cached token: %s\n", r.TokenMasked)
	} else {
		fmt.Fprintln(w, "cached token: none")
	}
}

func WriteGateway(w io.Writer, r GatewayReport) {
	fmt.Fprintf(w, "gateway loaded: %t\n", r.Loaded)
	if r.KeyMissing {
		fmt.Fprintln(w, "gateway key: not set")
	} else {
		fmt.Fprintf(w, "gateway key: %s (test mode: %t)\n", r.KeyMasked, r.TestMode)
	}
	fmt.Fprintf(w, "api url: %s\n", r.APIBaseURL)
	if r.OK() {
		fmt.Fprintln(w, "gateway integration looks good")
		if r.TestMode {
			fmt.Fprintln(w, "test card: 4111 1111 1111 1111, any CVV, any future expiry")
		}
		return
	}
	fmt.Fprintln(w, "issues found:")
	for _, p := range r.Problems {
		fmt.Fprintf(w, "- %s\n", p)
	}
	if r.Simulatable {
		fmt.Fprintln(w, "development mode: checkouts will offer a simulated payment")
	}
}
