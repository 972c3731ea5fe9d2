package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touradmin/pkg/backend"
	"touradmin/pkg/credstore"
)

type recordingNav struct {
	mu      sync.Mutex
	current string
	visits  []string
}

func (n *recordingNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *recordingNav) Navigate(p string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = p
	n.visits = append(n.visits, p)
}

func (n *recordingNav) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

type fixture struct {
	store  *credstore.Memory
	nav    *recordingNav
	client *backend.Client
	mgr    *Manager
}

func newFixture(t *testing.T, h http.Handler, reconcile bool) *fixture {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := credstore.NewMemory()
	nav := &recordingNav{current: "/dashboard"}
	client, err := backend.New(backend.Options{
		BaseURL:     srv.URL + "/api",
		Credentials: backend.BearerToken{Store: store},
		Store:       store,
		Navigator:   nav,
		Timeout:     2 * time.Second,
	})
	require.NoError(t, err)

	mgr := NewManager(Options{Store: store, Client: client, Navigator: nav, Reconcile: reconcile})
	t.Cleanup(mgr.Close)
	return &fixture{store: store, nav: nav, client: client, mgr: mgr}
}

func cacheUser(t *testing.T, store credstore.Store, u User) {
	t.Helper()
	b, err := json.Marshal(u)
	require.NoError(t, err)
	require.NoError(t, store.Set(credstore.KeyUser, string(b)))
}

func waitReady(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bootstrap did not settle")
	}
}

func TestBootstrap_NoCacheIsImmediatelyUnauthenticated(t *testing.T) {
	var hits int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), true)

	s := f.mgr.Bootstrap(context.Background())
	assert.False(t, s.Bootstrapping)
	assert.Nil(t, s.User)
	assert.Equal(t, PhaseUnauthenticated, s.Phase())

	select {
	case <-f.mgr.Ready():
	default:
		t.Fatal("ready should be closed without a cached user")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestSnapshot_UnknownBeforeBootstrap(t *testing.T) {
	m := NewManager(Options{Store: credstore.NewMemory()})
	assert.Equal(t, PhaseUnknown, m.Snapshot().Phase())
}

func TestBootstrap_ReconcileReplacesCachedUser(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		_, _ = w.Write([]byte(`{"user":{"id":"u1","firstName":"Asha","isAdmin":true}}`))
	}), true)
	cacheUser(t, f.store, User{ID: "u1", FirstName: "Old name"})

	var phases []Phase
	f.mgr.Subscribe(func(s Snapshot) { phases = append(phases, s.Phase()) })

	s := f.mgr.Bootstrap(context.Background())
	assert.True(t, s.Bootstrapping)
	assert.Equal(t, PhaseBootstrapping, s.Phase())
	assert.False(t, s.Authenticated())

	waitReady(t, f.mgr)

	got := f.mgr.Snapshot()
	require.NotNil(t, got.User)
	want := User{ID: "u1", FirstName: "Asha", IsAdmin: true}
	assert.Equal(t, want, *got.User)
	assert.Equal(t, PhaseAuthenticated, got.Phase())

	raw, ok := f.store.Get(credstore.KeyUser)
	require.True(t, ok)
	var cached User
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, want, cached)

	assert.Equal(t, []Phase{PhaseBootstrapping, PhaseAuthenticated}, phases)
}

func TestBootstrap_ReconcileRejectedClearsEverything(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), true)
	cacheUser(t, f.store, User{ID: "u1", FirstName: "Asha"})
	require.NoError(t, f.store.Set(credstore.KeyToken, "stale"))

	f.mgr.Bootstrap(context.Background())
	waitReady(t, f.mgr)

	s := f.mgr.Snapshot()
	assert.Nil(t, s.User)
	assert.False(t, s.Bootstrapping)
	assert.Equal(t, PhaseUnauthenticated, s.Phase())
	_, ok := f.store.Get(credstore.KeyUser)
	assert.False(t, ok)
	_, ok = f.store.Get(credstore.KeyToken)
	assert.False(t, ok)
}

func TestBootstrap_ReconcileNetworkFailureAlsoClears(t *testing.T) {
	store := credstore.NewMemory()
	cacheUser(t, store, User{ID: "u1"})
	client, err := backend.New(backend.Options{
		BaseURL:     "http://127.0.0.1:1/api",
		Credentials: &backend.CookieSession{},
		Store:       store,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	m := NewManager(Options{Store: store, Client: client, Reconcile: true})

	m.Bootstrap(context.Background())
	waitReady(t, m)

	assert.Equal(t, PhaseUnauthenticated, m.Snapshot().Phase())
	_, ok := store.Get(credstore.KeyUser)
	assert.False(t, ok)
}

func TestBootstrap_WithoutReconcileAdoptsCache(t *testing.T) {
	var hits int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), false)
	cacheUser(t, f.store, User{ID: "u9", FirstName: "Ravi"})

	s := f.mgr.Bootstrap(context.Background())
	require.NotNil(t, s.User)
	assert.Equal(t, "u9", s.User.ID)
	assert.Equal(t, PhaseAuthenticated, s.Phase())
	waitReady(t, f.mgr)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestBootstrap_CorruptCacheIsDiscarded(t *testing.T) {
	f := newFixture(t, http.NotFoundHandler(), true)
	require.NoError(t, f.store.Set(credstore.KeyUser, "{not json"))

	s := f.mgr.Bootstrap(context.Background())
	assert.Equal(t, PhaseUnauthenticated, s.Phase())
	_, ok := f.store.Get(credstore.KeyUser)
	assert.False(t, ok)
}

func TestLogin_WritesThroughAndNotifies(t *testing.T) {
	f := newFixture(t, http.NotFoundHandler(), true)
	f.mgr.Bootstrap(context.Background())

	var seen []Snapshot
	cancel := f.mgr.Subscribe(func(s Snapshot) { seen = append(seen, s) })

	require.NoError(t, f.mgr.Login(User{ID: "u2", FirstName: "Meera", IsAdmin: true}))

	require.Len(t, seen, 1, "subscribers run before Login returns")
	assert.Equal(t, PhaseAuthenticated, seen[0].Phase())
	raw, ok := f.store.Get(credstore.KeyUser)
	require.True(t, ok)
	assert.Contains(t, raw, `"_id":"u2"`)

	cancel()
	require.NoError(t, f.mgr.Login(User{ID: "u3"}))
	assert.Len(t, seen, 1)
}

func TestLogout_IsIdempotentAndIgnoresServerFailure(t *testing.T) {
	var logoutCalls int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/logout" {
			atomic.AddInt32(&logoutCalls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}), true)
	require.NoError(t, f.mgr.Login(User{ID: "u1"}))
	require.NoError(t, f.store.Set(credstore.KeyToken, "tok"))

	f.mgr.Logout(context.Background())
	first := f.mgr.Snapshot()
	f.mgr.Logout(context.Background())
	second := f.mgr.Snapshot()

	assert.Equal(t, PhaseUnauthenticated, first.Phase())
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&logoutCalls))
	assert.Equal(t, []string{backend.PathLogin}, f.nav.Visits())
	_, ok := f.store.Get(credstore.KeyToken)
	assert.False(t, ok)
	_, ok = f.store.Get(credstore.KeyUser)
	assert.False(t, ok)
}

func TestLogout_ServerUnreachable(t *testing.T) {
	store := credstore.NewMemory()
	nav := &recordingNav{current: "/bookings"}
	client, err := backend.New(backend.Options{
		BaseURL:     "http://127.0.0.1:1/api",
		Credentials: &backend.CookieSession{},
		Store:       store,
		Navigator:   nav,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	m := NewManager(Options{Store: store, Client: client, Navigator: nav})
	require.NoError(t, m.Login(User{ID: "u1"}))

	m.Logout(context.Background())
	assert.Equal(t, PhaseUnauthenticated, m.Snapshot().Phase())
	assert.Equal(t, []string{backend.PathLogin}, nav.Visits())
}

func TestUnauthorizedFromPipelineEndsSession(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), true)
	require.NoError(t, f.mgr.Login(User{ID: "u1"}))

	var last Snapshot
	f.mgr.Subscribe(func(s Snapshot) { last = s })

	_, err := f.client.Get(context.Background(), "/bookings")
	require.Error(t, err)

	assert.Equal(t, PhaseUnauthenticated, f.mgr.Snapshot().Phase())
	assert.Equal(t, PhaseUnauthenticated, last.Phase())
	assert.Equal(t, []string{backend.PathLogin}, f.nav.Visits())
}

type blockingRequester struct {
	release chan struct{}
	body    string
}

func (b *blockingRequester) Get(ctx context.Context, path string, _ ...backend.RequestOption) (*backend.Response, error) {
	<-b.release
	return &backend.Response{Status: http.StatusOK, Body: []byte(b.body)}, nil
}

func TestBootstrap_LoginDuringReconcileWins(t *testing.T) {
	store := credstore.NewMemory()
	cacheUser(t, store, User{ID: "cached"})
	req := &blockingRequester{release: make(chan struct{}), body: `{"user":{"_id":"cached","firstName":"Server"}}`}
	m := NewManager(Options{Store: store, Client: req, Reconcile: true})

	m.Bootstrap(context.Background())
	require.NoError(t, m.Login(User{ID: "fresh"}))
	waitReady(t, m)
	close(req.release)

	require.Never(t, func() bool {
		s := m.Snapshot()
		return s.User == nil || s.User.ID != "fresh"
	}, 150*time.Millisecond, 10*time.Millisecond)

	raw, _ := store.Get(credstore.KeyUser)
	assert.Contains(t, raw, `"fresh"`)
}

func TestBootstrap_LoginDuringRejectedReconcileWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	served := make(chan struct{})
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/me" {
			return
		}
		close(started)
		<-release
		w.WriteHeader(http.StatusUnauthorized)
		close(served)
	}), true)
	cacheUser(t, f.store, User{ID: "u1"})

	f.mgr.Bootstrap(context.Background())
	<-started
	require.NoError(t, f.mgr.Login(User{ID: "u2", FirstName: "Fresh"}))
	close(release)
	<-served

	require.Never(t, func() bool {
		s := f.mgr.Snapshot()
		return s.User == nil || s.User.ID != "u2"
	}, 150*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, PhaseAuthenticated, f.mgr.Snapshot().Phase())
	raw, ok := f.store.Get(credstore.KeyUser)
	require.True(t, ok)
	assert.Contains(t, raw, `"u2"`)
	assert.Empty(t, f.nav.Visits())
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	m := NewManager(Options{Store: credstore.NewMemory()})
	m.Bootstrap(context.Background())
	require.NoError(t, m.Login(User{ID: "u1"}))
	s := m.Bootstrap(context.Background())
	assert.Equal(t, PhaseAuthenticated, s.Phase())
}

func TestUserAcceptsBothIDForms(t *testing.T) {
	var a, b User
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"x1","firstName":"A"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x2","lastName":"B"}`), &b))
	assert.Equal(t, "x1", a.ID)
	assert.Equal(t, "x2", b.ID)
	assert.Equal(t, "B", b.Name())
}
