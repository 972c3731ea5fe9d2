package devbackend

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"touradmin/internal/booking"
	"touradmin/internal/checkout"
	"touradmin/pkg/razorpay"
)

type BookingHandlers struct {
	Store         *Store
	GatewaySecret string
	Currency      string
	Log           *zap.Logger
}

func (h BookingHandlers) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Bookings())
}

func (h BookingHandlers) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.Booking(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Booking not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h BookingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var in booking.Booking
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	if strings.TrimSpace(in.GuestName) == "" || !in.FinalAmount.IsPositive() {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "guestName and a positive finalAmount are required")
		return
	}
	in.ID = ""
	in.RazorpayOrderID = ""
	in.PaymentStatus = booking.PaymentPending
	writeJSON(w, http.StatusCreated, h.Store.PutBooking(in))
}

func (h BookingHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteBooking(chi.URLParam(r, "id")); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Booking not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking deleted"})
}

type createOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h BookingHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Store.CreateOrder(id, h.Currency)
	switch {
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Booking not found")
		return
	case errors.Is(err, ErrConflict):
		WriteError(w, http.StatusConflict, "NOT_PAYABLE", strings.TrimPrefix(err.Error(), ErrConflict.Error()+": "))
		return
	case err != nil:
		h.Log.Error("create order failed", zap.String("booking_id", id), zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to create payment order")
		return
	}
	h.Log.Info("order created", zap.String("booking_id", id), zap.String("order_id", o.ID), zap.Int64("amount", o.Amount))
	writeJSON(w, http.StatusOK, createOrderResponse{OrderID: o.ID, Amount: o.Amount, Currency: o.Currency})
}

func (h BookingHandlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var v checkout.Verification
	if err := decodeJSON(w, r, &v); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	if v.OrderID == "" || v.PaymentID == "" || v.Signature == "" || v.BookingID == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "Missing payment verification fields")
		return
	}
	if !razorpay.VerifySignature(v.OrderID, v.PaymentID, v.Signature, h.GatewaySecret) {
		h.Log.Warn("payment signature mismatch", zap.String("booking_id", v.BookingID), zap.String("order_id", v.OrderID))
		WriteError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid payment signature")
		return
	}

	b, err := h.Store.MarkPaid(v.BookingID, v.OrderID, v.PaymentID)
	switch {
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Booking not found")
		return
	case err != nil:
		WriteError(w, http.StatusConflict, "ORDER_MISMATCH", "Payment does not match this booking")
		return
	}
	h.Log.Info("payment verified", zap.String("booking_id", b.ID), zap.String("payment_id", v.PaymentID))
	writeJSON(w, http.StatusOK, map[string]any{"message": "Payment verified successfully", "booking": b})
}
