package session

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"touradmin/pkg/backend"
	"touradmin/pkg/credstore"
	"touradmin/pkg/logging"
)

type Phase string

const (
	PhaseUnknown         Phase = "Unknown"
	PhaseBootstrapping   Phase = "Bootstrapping"
	PhaseAuthenticated   Phase = "Authenticated"
	PhaseUnauthenticated Phase = "Unauthenticated"
)

const (
	PathMe     = "/auth/me"
	PathLogout = "/auth/logout"
)

// Snapshot is what subscribers see. Authentication is derived from User.
type Snapshot struct {
	User          *User
	Bootstrapping bool
	started       bool
}

func (s Snapshot) Authenticated() bool { return s.User != nil && !s.Bootstrapping }

func (s Snapshot) Phase() Phase {
	switch {
	case !s.started:
		return PhaseUnknown
	case s.Bootstrapping:
		return PhaseBootstrapping
	case s.User != nil:
		return PhaseAuthenticated
	default:
		return PhaseUnauthenticated
	}
}

// Requester is the slice of the request pipeline the manager needs.
type Requester interface {
	Get(ctx context.Context, path string, opts ...backend.RequestOption) (*backend.Response, error)
}

type unauthorizedSource interface {
	OnUnauthorized(fn func()) (cancel func())
}

// epochAdvancer is implemented by a pipeline that must forget 401s from
// requests sent under an older credential.
type epochAdvancer interface {
	AdvanceEpoch()
}

func advanceEpoch(c any) {
	if a, ok := c.(epochAdvancer); ok {
		a.AdvanceEpoch()
	}
}

type Options struct {
	Store     credstore.Store
	Client    Requester
	Navigator backend.Navigator

	// Reconcile verifies a cached user with the server at bootstrap.
	Reconcile bool

	Logger *zap.Logger
}

// Manager owns the process-wide answer to "who is logged in".
type Manager struct {
	store     credstore.Store
	client    Requester
	nav       backend.Navigator
	reconcile bool
	log       *zap.Logger

	mu            sync.Mutex
	user          *User
	started       bool
	bootstrapping bool
	// gen increments on every login/logout/expiry so a late reconciliation
	// result can tell it has been superseded.
	gen    uint64
	subs   map[int]func(Snapshot)
	nextID int

	ready     chan struct{}
	readyOnce sync.Once
	unhook    func()
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		store:     opts.Store,
		client:    opts.Client,
		nav:       opts.Navigator,
		reconcile: opts.Reconcile,
		log:       logging.OrNop(opts.Logger).Named("session"),
		subs:      map[int]func(Snapshot){},
		ready:     make(chan struct{}),
	}
	if src, ok := opts.Client.(unauthorizedSource); ok {
		m.unhook = src.OnUnauthorized(m.expire)
	}
	return m
}

// Close detaches the manager from the request pipeline.
func (m *Manager) Close() {
	if m.unhook != nil {
		m.unhook()
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{Bootstrapping: m.bootstrapping, started: m.started}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// Ready is closed once the bootstrap outcome is known.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Subscribe registers fn to be called synchronously after every change.
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Bootstrap reads the cached user and, when reconciliation is enabled, checks
// it against the server in the background. Only the first call does work.
func (m *Manager) Bootstrap(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.started {
		s := m.snapshotLocked()
		m.mu.Unlock()
		return s
	}
	m.started = true

	cached, ok := m.cachedUser()
	switch {
	case !ok:
		m.user = nil
	case !m.reconcile || m.client == nil:
		m.user = cached
	default:
		m.user = cached
		m.bootstrapping = true
	}
	gen := m.gen
	reconcile := m.bootstrapping
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(s)
	if reconcile {
		m.log.Debug("verifying cached session", zap.String("user_id", cached.ID))
		go m.reconcileSession(ctx, gen)
	} else {
		m.markReady()
	}
	return s
}

func (m *Manager) reconcileSession(ctx context.Context, gen uint64) {
	defer m.markReady()

	user, err := m.fetchMe(ctx)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.log.Debug("dropping superseded session check")
		return
	}
	m.bootstrapping = false
	if err != nil {
		m.log.Info("cached session rejected", zap.Error(err))
		m.user = nil
		m.clearCache()
	} else {
		m.user = user
		m.writeCache(user)
	}
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(s)
}

func (m *Manager) fetchMe(ctx context.Context) (*User, error) {
	resp, err := m.client.Get(ctx, PathMe)
	if err != nil {
		return nil, err
	}
	var me meResponse
	if err := resp.Decode(&me); err != nil {
		return nil, err
	}
	if me.User == nil || !me.User.Valid() {
		return nil, &backend.Error{Kind: backend.KindContract, Method: "GET", Path: PathMe, Status: resp.Status, Body: resp.Body, Message: "missing user"}
	}
	return me.User, nil
}

// Login adopts user as the session identity and writes it through to the
// cache. The credential exchange itself is the caller's job.
func (m *Manager) Login(user User) error {
	// Before m.mu: the pipeline may be inside expire holding its own lock.
	advanceEpoch(m.client)

	m.mu.Lock()
	m.started = true
	m.bootstrapping = false
	m.gen++
	u := user
	m.user = &u
	err := m.writeCache(&u)
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.markReady()
	m.log.Info("logged in", zap.String("user_id", user.ID), zap.Bool("admin", user.IsAdmin))
	m.publish(s)
	return err
}

// Logout invalidates the server credential and always ends Unauthenticated
// on the login page, whatever the server said. Calling it twice is harmless.
func (m *Manager) Logout(ctx context.Context) {
	if m.client != nil {
		if _, err := m.client.Get(ctx, PathLogout); err != nil {
			m.log.Warn("server logout failed, clearing local session anyway", zap.Error(err))
		}
	}
	advanceEpoch(m.client)

	m.mu.Lock()
	m.started = true
	m.bootstrapping = false
	m.gen++
	m.user = nil
	m.clearCache()
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.markReady()
	m.publish(s)

	if m.nav != nil && !backend.IsPublicPath(m.nav.CurrentPath()) {
		m.nav.Navigate(backend.PathLogin)
	}
}

// expire runs when the pipeline sees a 401. The pipeline has already cleared
// the cache and owns the redirect. During bootstrap the reconciliation result
// covers it.
func (m *Manager) expire() {
	m.mu.Lock()
	if m.bootstrapping || m.user == nil {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.user = nil
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info("session expired")
	m.publish(s)
}

func (m *Manager) cachedUser() (*User, bool) {
	if m.store == nil {
		return nil, false
	}
	raw, ok := m.store.Get(credstore.KeyUser)
	if !ok || raw == "" {
		return nil, false
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || !u.Valid() {
		m.log.Warn("discarding unreadable cached user", zap.Error(err))
		m.clearCache()
		return nil, false
	}
	return &u, true
}

func (m *Manager) writeCache(u *User) error {
	if m.store == nil {
		return nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := m.store.Set(credstore.KeyUser, string(b)); err != nil {
		m.log.Error("write session cache failed", zap.Error(err))
		return err
	}
	return nil
}

func (m *Manager) clearCache() {
	if m.store == nil {
		return
	}
	if err := m.store.Clear(credstore.IdentityKeys...); err != nil {
		m.log.Error("clear session cache failed", zap.Error(err))
	}
}

func (m *Manager) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Manager) publish(s Snapshot) {
	m.mu.Lock()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}
