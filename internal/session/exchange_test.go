package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touradmin/pkg/backend"
	"touradmin/pkg/credstore"
)

func TestSignIn_BearerSavesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var in LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Password != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok","token":"jwt-1","user":{"_id":"u1","email":"asha@example.com"}}`))
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	client, err := backend.New(backend.Options{BaseURL: srv.URL + "/api", Credentials: backend.BearerToken{Store: store}, Store: store})
	require.NoError(t, err)

	_, err = SignIn(context.Background(), client, LoginRequest{Email: "asha@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	res, err := SignIn(context.Background(), client, LoginRequest{Email: " asha@example.com ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	tok, ok := store.Get(credstore.KeyToken)
	require.True(t, ok)
	assert.Equal(t, "jwt-1", tok)
}

func TestSignUp_ValidatesAndRejectsMissingUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"created"}`))
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	client, err := backend.New(backend.Options{BaseURL: srv.URL, Credentials: &backend.CookieSession{}, Store: store})
	require.NoError(t, err)

	_, err = SignUp(context.Background(), client, RegisterRequest{Email: "a@b.c"})
	require.Error(t, err)

	_, err = SignUp(context.Background(), client, RegisterRequest{FirstName: "A", Email: "a@b.c", Password: "x"})
	be, ok := backend.AsError(err)
	require.True(t, ok)
	assert.Equal(t, backend.KindContract, be.Kind)
}
