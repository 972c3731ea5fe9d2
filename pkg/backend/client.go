package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"touradmin/pkg/credstore"
	"touradmin/pkg/logging"
)

const (
	PathLogin    = "/login"
	PathRegister = "/register"
)

const defaultTimeout = 15 * time.Second

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 10 << 20

// Navigator is the UI location the pipeline may redirect on auth loss.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

type Options struct {
	BaseURL     string
	Credentials Credentials
	Store       credstore.Store
	Navigator   Navigator
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client is the single outbound path to the REST backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	creds   Credentials
	store   credstore.Store
	nav     Navigator
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	hooks  map[int]func()
	nextID int

	// authMu serializes 401 handling with credential changes. epoch counts
	// credential changes; a 401 only acts on the epoch its request was sent in.
	authMu sync.Mutex
	epoch  uint64
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("missing credential variant")
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		hc = &cp
	}
	opts.Credentials.Configure(hc)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base:    base,
		http:    hc,
		creds:   opts.Credentials,
		store:   opts.Store,
		nav:     opts.Navigator,
		timeout: timeout,
		log:     logging.OrNop(opts.Logger).Named("backend"),
		hooks:   map[int]func(){},
	}, nil
}

func (c *Client) Credentials() Credentials { return c.creds }

func (c *Client) BaseURL() string { return c.base.String() }

// Epoch identifies the credential requests are currently sent with.
func (c *Client) Epoch() uint64 {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.epoch
}

// AdvanceEpoch records a credential change (login, logout, token exchange).
// A 401 to a request dispatched before the change no longer clears anything.
func (c *Client) AdvanceEpoch() {
	c.authMu.Lock()
	c.epoch++
	c.authMu.Unlock()
}

// OnUnauthorized registers fn to run after the credential cache has been
// cleared for a 401 and before any redirect. The returned func unregisters it.
func (c *Client) OnUnauthorized(fn func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.hooks[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.hooks, id)
	}
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte

	method string
	path   string
}

// Decode unmarshals a single-object response.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return &Error{Kind: KindContract, Method: r.method, Path: r.path, Status: r.Status, Message: "empty body"}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{Kind: KindContract, Method: r.method, Path: r.path, Status: r.Status, Body: r.Body, Message: "malformed json", Err: err}
	}
	return nil
}

type requestOptions struct {
	query   url.Values
	header  http.Header
	timeout time.Duration
}

type RequestOption func(*requestOptions)

func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) { o.query = q }
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// Send dispatches one request. body may be nil.
//
// A 401 response clears the identity cache, runs OnUnauthorized hooks and
// redirects to the login entry point unless already on login or register.
// Every other non-2xx status is returned unmodified as a KindHTTP *Error.
func (c *Client) Send(ctx context.Context, method, path string, body Body, opts ...RequestOption) (*Response, error) {
	var ro requestOptions
	for _, o := range opts {
		o(&ro)
	}
	timeout := c.timeout
	if ro.timeout > 0 {
		timeout = ro.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	var contentType string
	if body != nil {
		r, ct, err := body.Encode()
		if err != nil {
			return nil, err
		}
		reader, contentType = r, ct
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, ro.query), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, vs := range ro.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	epoch := c.Epoch()
	c.creds.Attach(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		be := &Error{Kind: transportKind(ctx, err), Method: method, Path: path, Err: err}
		c.log.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("kind", string(be.Kind)),
			zap.Error(err),
		)
		return nil, be
	}
	defer resp.Body.Close()

	b, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if readErr != nil {
		return nil, &Error{Kind: transportKind(ctx, readErr), Method: method, Path: path, Status: resp.StatusCode, Err: readErr}
	}
	if len(b) > MaxResponseBytes {
		be := &Error{Kind: KindContract, Method: method, Path: path, Status: resp.StatusCode, Message: "response body too large"}
		c.contractViolation(be)
		return nil, be
	}

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
	)

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: b, method: method, path: path}

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(epoch, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &Error{
			Kind:    KindHTTP,
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Body:    b,
			Message: messageFrom(b, resp.StatusCode),
		}
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, http.MethodGet, path, nil, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body Body, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, body, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body Body, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, http.MethodPut, path, body, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, path, nil, opts...)
}

// SendJSON encodes in (when non-nil) and decodes the response into out (when non-nil).
func (c *Client) SendJSON(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	var body Body
	if in != nil {
		body = JSON(in)
	}
	resp, err := c.Send(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		c.contractViolation(err)
		return err
	}
	return nil
}

// GetList fetches a collection endpoint. out must point to a slice.
func (c *Client) GetList(ctx context.Context, path string, out any, opts ...RequestOption) error {
	resp, err := c.Get(ctx, path, opts...)
	if err != nil {
		return err
	}
	if err := DecodeList(resp, out); err != nil {
		c.contractViolation(err)
		return err
	}
	return nil
}

// DecodeList accepts exactly one shape for collection responses: a top-level
// JSON array. Wrapped payloads ({"data": [...]}, {"packages": [...]}, ...) are
// contract errors, not something to guess around.
func DecodeList(resp *Response, out any) error {
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return &Error{
			Kind:    KindContract,
			Method:  resp.method,
			Path:    resp.path,
			Status:  resp.Status,
			Body:    resp.Body,
			Message: "expected a JSON array",
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &Error{Kind: KindContract, Method: resp.method, Path: resp.path, Status: resp.Status, Body: resp.Body, Message: "malformed json array", Err: err}
	}
	return nil
}

func (c *Client) contractViolation(err error) {
	if be, ok := AsError(err); ok {
		c.log.Error("backend contract violation", zap.String("detail", be.Detail()), zap.String("reason", be.Message))
	}
}

// handleUnauthorized runs the 401 side effects at most once per epoch. A 401
// from a request sent before the latest credential change is stale and left
// alone. Hooks run under authMu and must not issue requests.
func (c *Client) handleUnauthorized(epoch uint64, path string) {
	c.authMu.Lock()
	if c.epoch != epoch {
		c.authMu.Unlock()
		c.log.Debug("ignoring 401 for a superseded credential", zap.String("path", path))
		return
	}
	c.epoch++

	if err := c.store.Clear(credstore.IdentityKeys...); err != nil {
		c.log.Error("clear credential cache failed", zap.Error(err))
	}

	c.mu.Lock()
	hooks := make([]func(), 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h)
	}
	c.mu.Unlock()
	for _, h := range hooks {
		h()
	}
	c.authMu.Unlock()

	if c.nav == nil {
		return
	}
	if cur := c.nav.CurrentPath(); !IsPublicPath(cur) {
		c.log.Info("session rejected by server, redirecting to login", zap.String("from", cur))
		c.nav.Navigate(PathLogin)
	}
}

// IsPublicPath reports the unauthenticated entry points.
func IsPublicPath(p string) bool {
	p = strings.TrimRight(p, "/")
	return p == PathLogin || p == PathRegister
}

func (c *Client) resolve(path string, q url.Values) string {
	u := *c.base
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func transportKind(ctx context.Context, err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindNetwork
	}
}
