package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"touradmin/internal/checkout"
	"touradmin/pkg/razorpay"
)

const (
	PaymentPending = "Pending"
	PaymentPaid    = "Paid"
)

var (
	ErrAlreadyPaid        = errors.New("this booking has already been paid for")
	ErrPaymentNotRequired = errors.New("payment is not required for this booking")
)

// HotelRef is either a bare id or a populated hotel document.
type HotelRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

func (h *HotelRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*h = HotelRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*h = HotelRef{ID: id}
		return nil
	}
	type plain HotelRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*h = HotelRef(p)
	return nil
}

type Booking struct {
	ID                 string          `json:"_id"`
	Hotel              HotelRef        `json:"hotel"`
	GuestName          string          `json:"guestName"`
	GuestEmail         string          `json:"guestEmail"`
	GuestPhone         string          `json:"guestPhone"`
	CheckInDate        string          `json:"checkInDate,omitempty"`
	CheckOutDate       string          `json:"checkOutDate,omitempty"`
	NumberOfRooms      int             `json:"numberOfRooms,omitempty"`
	NumberOfGuests     int             `json:"numberOfGuests,omitempty"`
	NumberOfNights     int             `json:"numberOfNights,omitempty"`
	RoomType           string          `json:"roomType,omitempty"`
	PricePerNight      decimal.Decimal `json:"pricePerNight"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	FinalAmount        decimal.Decimal `json:"finalAmount"`
	PaymentStatus      string          `json:"paymentStatus"`
	BookingStatus      string          `json:"bookingStatus,omitempty"`
	SpecialRequests    string          `json:"specialRequests,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	RazorpayOrderID    string          `json:"razorpayOrderId,omitempty"`
}

// Payable reports whether the booking may enter checkout.
func (b Booking) Payable() error {
	switch b.PaymentStatus {
	case PaymentPending:
		return nil
	case PaymentPaid:
		return ErrAlreadyPaid
	default:
		return ErrPaymentNotRequired
	}
}

func (b Booking) Description() string {
	name := strings.TrimSpace(b.Hotel.Name)
	if name == "" {
		name = "Hotel"
	}
	return "Hotel Booking - " + name
}

// CheckoutTarget converts a pending booking into checkout input with the
// amount in paise.
func (b Booking) CheckoutTarget() (checkout.Target, error) {
	if err := b.Payable(); err != nil {
		return checkout.Target{}, err
	}
	amount, err := razorpay.ToMinorUnits(b.FinalAmount)
	if err != nil {
		return checkout.Target{}, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	return checkout.Target{
		BookingID:   b.ID,
		Amount:      amount,
		Description: b.Description(),
		Guest: checkout.Contact{
			Name:  b.GuestName,
			Email: b.GuestEmail,
			Phone: b.GuestPhone,
		},
	}, nil
}
