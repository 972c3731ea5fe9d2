package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touradmin/pkg/credstore"
)

type fakeNav struct {
	mu      sync.Mutex
	current string
	visits  []string
}

func (n *fakeNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *fakeNav) Navigate(p string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = p
	n.visits = append(n.visits, p)
}

func newTestClient(t *testing.T, srv *httptest.Server, creds Credentials, store credstore.Store, nav Navigator) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:     srv.URL + "/api",
		Credentials: creds,
		Store:       store,
		Navigator:   nav,
		Timeout:     2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestSend_AttachesBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	require.NoError(t, store.Set(credstore.KeyToken, "tok-123"))

	c := newTestClient(t, srv, BearerToken{Store: store}, store, &fakeNav{current: "/dashboard"})
	_, err := c.Get(context.Background(), "/hotels")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/api/hotels", gotPath)
}

func TestSend_BearerWithoutTokenSendsNoHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	c := newTestClient(t, srv, BearerToken{Store: store}, store, nil)
	_, err := c.Get(context.Background(), "/hotels")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestSend_CookieVariantRoundTripsServerCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "cookie-abc", Path: "/", HttpOnly: true})
		case "/api/auth/me":
			ck, err := r.Cookie("token")
			if err != nil || ck.Value != "cookie-abc" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"user":{"id":"u1"}}`))
		}
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	c := newTestClient(t, srv, &CookieSession{}, store, nil)

	_, err := c.Post(context.Background(), "/auth/login", JSON(map[string]string{"email": "a@b.c"}))
	require.NoError(t, err)
	resp, err := c.Get(context.Background(), "/auth/me")
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "u1")

	_, ok := store.Get(credstore.KeyToken)
	assert.False(t, ok, "cookie variant must not touch the token cache")
}

func TestSend_MultipartKeepsBoundaryContentType(t *testing.T) {
	var gotType string
	var gotTitle, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotTitle = r.FormValue("title")
		f, _, err := r.FormFile("images")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		gotFile = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	c := newTestClient(t, srv, &CookieSession{}, store, nil)

	form := NewForm().Field("title", "Lovely stay").File("images", "a.jpg", strings.NewReader("jpegbytes"))
	_, err := c.Post(context.Background(), "/ratings", form)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotType, "multipart/form-data; boundary="), gotType)
	assert.NotContains(t, gotType, "application/json")
	assert.Equal(t, "Lovely stay", gotTitle)
	assert.Equal(t, "jpegbytes", gotFile)
}

func TestSend_JSONBodyAndNoBody(t *testing.T) {
	var types []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types = append(types, r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	c := newTestClient(t, srv, &CookieSession{}, store, nil)
	_, err := c.Post(context.Background(), "/bookings/bk1/create-order", nil)
	require.NoError(t, err)
	_, err = c.Post(context.Background(), "/bookings", JSON(map[string]int{"rooms": 1}))
	require.NoError(t, err)

	assert.Equal(t, []string{"", "application/json"}, types)
}

func TestSend_UnauthorizedClearsCacheAndRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	require.NoError(t, store.Set(credstore.KeyToken, "stale"))
	require.NoError(t, store.Set(credstore.KeyUser, `{"id":"u1"}`))
	nav := &fakeNav{current: "/dashboard/bookings"}

	c := newTestClient(t, srv, BearerToken{Store: store}, store, nav)
	hookCalls := 0
	c.OnUnauthorized(func() {
		hookCalls++
		_, ok := store.Get(credstore.KeyUser)
		assert.False(t, ok, "cache is cleared before hooks run")
	})

	_, err := c.Get(context.Background(), "/bookings")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "token expired", err.Error())

	_, ok := store.Get(credstore.KeyToken)
	assert.False(t, ok)
	_, ok = store.Get(credstore.KeyUser)
	assert.False(t, ok)
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, []string{PathLogin}, nav.visits)
}

func TestSend_UnauthorizedAfterCredentialChangeIsIgnored(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	nav := &fakeNav{current: "/dashboard"}
	c := newTestClient(t, srv, BearerToken{Store: store}, store, nav)
	hookCalls := 0
	c.OnUnauthorized(func() { hookCalls++ })

	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "/auth/me")
		errc <- err
	}()
	<-started

	c.AdvanceEpoch()
	require.NoError(t, store.Set(credstore.KeyUser, `{"id":"fresh"}`))
	require.NoError(t, store.Set(credstore.KeyToken, "fresh-token"))
	close(release)

	err := <-errc
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	raw, ok := store.Get(credstore.KeyUser)
	assert.True(t, ok)
	assert.Contains(t, raw, "fresh")
	_, ok = store.Get(credstore.KeyToken)
	assert.True(t, ok)
	assert.Equal(t, 0, hookCalls)
	assert.Empty(t, nav.visits)
}

func TestSend_ConcurrentUnauthorizedActsOnce(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wg.Done()
		wg.Wait()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	nav := &fakeNav{current: "/dashboard"}
	c := newTestClient(t, srv, BearerToken{Store: store}, store, nav)
	var mu sync.Mutex
	hookCalls := 0
	c.OnUnauthorized(func() {
		mu.Lock()
		hookCalls++
		mu.Unlock()
	})

	var done sync.WaitGroup
	for i := 0; i < 2; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			_, _ = c.Get(context.Background(), "/bookings")
		}()
	}
	done.Wait()

	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, []string{PathLogin}, nav.visits)
}

func TestSend_OversizedBodyIsContractError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", MaxResponseBytes+1)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &CookieSession{}, credstore.NewMemory(), nil)
	_, err := c.Get(context.Background(), "/hotels")
	require.Error(t, err)
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindContract, be.Kind)
}

func TestSend_UnauthorizedOnPublicPageDoesNotRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	for _, page := range []string{PathLogin, PathRegister} {
		store := credstore.NewMemory()
		require.NoError(t, store.Set(credstore.KeyToken, "stale"))
		nav := &fakeNav{current: page}
		c := newTestClient(t, srv, BearerToken{Store: store}, store, nav)

		_, err := c.Post(context.Background(), "/auth/login", JSON(map[string]string{}))
		require.Error(t, err)
		assert.Empty(t, nav.visits, page)
		_, ok := store.Get(credstore.KeyToken)
		assert.False(t, ok)
	}
}

func TestSend_OtherStatusesPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bookings":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"check-out must be after check-in"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	require.NoError(t, store.Set(credstore.KeyUser, `{"id":"u1"}`))
	nav := &fakeNav{current: "/dashboard"}
	c := newTestClient(t, srv, &CookieSession{}, store, nav)

	resp, err := c.Post(context.Background(), "/bookings", JSON(map[string]string{}))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "check-out must be after check-in", err.Error())
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	_, err = c.Post(context.Background(), "/bookings/x/create-order", nil)
	assert.True(t, IsNotReady(err))

	_, ok := store.Get(credstore.KeyUser)
	assert.True(t, ok, "non-401 errors leave the cache alone")
	assert.Empty(t, nav.visits)
}

func TestSend_NetworkErrorIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	store := credstore.NewMemory()
	c, err := New(Options{BaseURL: base, Credentials: &CookieSession{}, Store: store})
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/hotels")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, IsNetwork(err))
	assert.Equal(t, 0, StatusOf(err))
	assert.Equal(t, "cannot reach server", err.Error())
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	store := credstore.NewMemory()
	c := newTestClient(t, srv, &CookieSession{}, store, nil)

	_, err := c.Get(context.Background(), "/slow", WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestGetList_AcceptsOnlyTopLevelArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/hotels":
			_, _ = w.Write([]byte(` [{"_id":"h1","name":"Taj"}]`))
		case "/api/packages":
			_, _ = w.Write([]byte(`{"packages":[{"_id":"p1"}]}`))
		}
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	c := newTestClient(t, srv, &CookieSession{}, store, nil)

	var hotels []map[string]any
	require.NoError(t, c.GetList(context.Background(), "/hotels", &hotels))
	require.Len(t, hotels, 1)
	assert.Equal(t, "Taj", hotels[0]["name"])

	var pkgs []map[string]any
	err := c.GetList(context.Background(), "/packages", &pkgs)
	require.Error(t, err)
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindContract, be.Kind)
	assert.Empty(t, pkgs)
}

func TestSendJSON_Decodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"orderId": "order_" + in["id"]})
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	c := newTestClient(t, srv, &CookieSession{}, store, nil)

	var out struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, c.SendJSON(context.Background(), http.MethodPost, "/x", map[string]string{"id": "abc"}, &out))
	assert.Equal(t, "order_abc", out.OrderID)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{BaseURL: "/api", Credentials: &CookieSession{}, Store: credstore.NewMemory()})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost", Credentials: &CookieSession{}})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost", Store: credstore.NewMemory()})
	require.Error(t, err)
}

func TestNewCredentials(t *testing.T) {
	store := credstore.NewMemory()
	c, err := NewCredentials("bearer", store)
	require.NoError(t, err)
	assert.Equal(t, "bearer", c.Kind())
	require.NoError(t, c.Save("t1"))
	v, _ := store.Get(credstore.KeyToken)
	assert.Equal(t, "t1", v)

	c, err = NewCredentials("cookie", store)
	require.NoError(t, err)
	assert.Equal(t, "cookie", c.Kind())

	_, err = NewCredentials("kerberos", store)
	require.Error(t, err)
}

func TestCookieSession_ConfigureSharesJar(t *testing.T) {
	s := &CookieSession{}
	hc := &http.Client{}
	s.Configure(hc)
	require.NotNil(t, s.Jar)
	assert.Same(t, s.Jar, hc.Jar)

	other := &http.Client{}
	s.Configure(other)
	assert.Same(t, s.Jar, other.Jar, "a second client reuses the session's jar")
}
