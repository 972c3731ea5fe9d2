package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"touradmin/pkg/backend"
)

const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	ContactNo string `json:"contactNo,omitempty"`
	Address   string `json:"address,omitempty"`
}

// Exchanger is the slice of the pipeline a credential exchange needs.
type Exchanger interface {
	SendJSON(ctx context.Context, method, path string, in, out any, opts ...backend.RequestOption) error
	Credentials() backend.Credentials
}

// SignIn trades an email and password for a credential. The returned user is
// meant for Manager.Login.
func SignIn(ctx context.Context, c Exchanger, req LoginRequest) (AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return AuthResponse{}, fmt.Errorf("email and password are required")
	}
	return exchange(ctx, c, PathLogin, req)
}

func SignUp(ctx context.Context, c Exchanger, req RegisterRequest) (AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" {
		return AuthResponse{}, fmt.Errorf("missing required registration fields")
	}
	return exchange(ctx, c, PathRegister, req)
}

func exchange(ctx context.Context, c Exchanger, path string, payload any) (AuthResponse, error) {
	var out AuthResponse
	if err := c.SendJSON(ctx, http.MethodPost, path, payload, &out); err != nil {
		return AuthResponse{}, err
	}
	if !out.User.Valid() {
		return AuthResponse{}, &backend.Error{Kind: backend.KindContract, Method: http.MethodPost, Path: path, Message: "missing user"}
	}
	// A 401 still in flight from the previous credential must not clear the new one.
	advanceEpoch(c)
	if out.Token != "" {
		if err := c.Credentials().Save(out.Token); err != nil {
			return AuthResponse{}, fmt.Errorf("save credential: %w", err)
		}
	}
	return out, nil
}
