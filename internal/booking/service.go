package booking

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"touradmin/internal/checkout"
	"touradmin/pkg/backend"
)

const (
	pathBookings      = "/bookings"
	pathVerifyPayment = "/bookings/verify-payment"
)

// API is the slice of the request pipeline the booking service uses.
type API interface {
	SendJSON(ctx context.Context, method, path string, in, out any, opts ...backend.RequestOption) error
	GetList(ctx context.Context, path string, out any, opts ...backend.RequestOption) error
}

// Service talks to the booking endpoints. It is the checkout's Backend.
type Service struct {
	api API
}

var _ checkout.Backend = (*Service)(nil)

func NewService(api API) *Service {
	return &Service{api: api}
}

func (s *Service) List(ctx context.Context) ([]Booking, error) {
	var out []Booking
	if err := s.api.GetList(ctx, pathBookings, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	var b Booking
	if err := s.api.SendJSON(ctx, http.MethodGet, bookingPath(id), nil, &b); err != nil {
		return Booking{}, err
	}
	return b, nil
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
}

func (s *Service) CreateOrder(ctx context.Context, bookingID string) (string, error) {
	var out createOrderResponse
	if err := s.api.SendJSON(ctx, http.MethodPost, bookingPath(bookingID)+"/create-order", nil, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.OrderID) == "" {
		return "", &backend.Error{Kind: backend.KindContract, Method: http.MethodPost, Path: bookingPath(bookingID) + "/create-order", Message: "missing orderId"}
	}
	return out.OrderID, nil
}

func (s *Service) VerifyPayment(ctx context.Context, v checkout.Verification) error {
	return s.api.SendJSON(ctx, http.MethodPost, pathVerifyPayment, v, nil)
}

func bookingPath(id string) string {
	return pathBookings + "/" + url.PathEscape(id)
}
