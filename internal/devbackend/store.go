package devbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"touradmin/internal/booking"
	"touradmin/internal/resource"
	"touradmin/internal/session"
	"touradmin/pkg/razorpay"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type account struct {
	user session.User
	hash []byte
}

type Order struct {
	ID        string
	BookingID string
	Amount    int64
	Currency  string
	CreatedAt time.Time
	PaymentID string
}

// Store keeps everything the mock backend serves in memory.
type Store struct {
	// BcryptCost is used for new passwords.
	BcryptCost int

	mu          sync.RWMutex
	accounts    map[string]*account
	byEmail     map[string]string
	bookings    map[string]*booking.Booking
	orders      map[string]*Order
	collections map[resource.Name]map[string]resource.Record
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		BcryptCost:  bcrypt.DefaultCost,
		accounts:    map[string]*account{},
		byEmail:     map[string]string{},
		bookings:    map[string]*booking.Booking{},
		orders:      map[string]*Order{},
		collections: map[resource.Name]map[string]resource.Record{},
		now:         time.Now,
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *Store) CreateUser(u session.User, password string) (session.User, error) {
	email := normEmail(u.Email)
	if email == "" || password == "" {
		return session.User{}, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return session.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return session.User{}, ErrConflict
	}
	u.Email = email
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = s.now().UTC().Format(time.RFC3339)
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Store) Authenticate(email, password string) (session.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normEmail(email)]
	var acc *account
	if ok {
		acc = s.accounts[id]
	}
	s.mu.RUnlock()
	if acc == nil {
		return session.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return session.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

func (s *Store) User(id string) (session.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return session.User{}, ErrNotFound
	}
	return acc.user, nil
}

func (s *Store) Users() []session.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt+out[i].ID < out[j].CreatedAt+out[j].ID })
	return out
}

func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, acc.user.Email)
	delete(s.accounts, id)
	return nil
}

func (s *Store) PutBooking(b booking.Booking) booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = booking.PaymentPending
	}
	if b.BookingStatus == "" {
		b.BookingStatus = "Pending"
	}
	s.bookings[b.ID] = &b
	return b
}

func (s *Store) Booking(id string) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, ErrNotFound
	}
	return *b, nil
}

func (s *Store) Bookings() []booking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]booking.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) DeleteBooking(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

// CreateOrder opens a gateway order for a pending booking.
func (s *Store) CreateOrder(bookingID, currency string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if err := b.Payable(); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	amount, err := razorpay.ToMinorUnits(b.FinalAmount)
	if err != nil {
		return Order{}, err
	}
	o := &Order{ID: razorpay.NewOrderID(), BookingID: bookingID, Amount: amount, Currency: currency, CreatedAt: s.now()}
	s.orders[o.ID] = o
	b.RazorpayOrderID = o.ID
	return *o, nil
}

// MarkPaid settles a verified payment. Settling the same payment twice is a no-op.
func (s *Store) MarkPaid(bookingID, orderID, paymentID string) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return booking.Booking{}, ErrNotFound
	}
	o, ok := s.orders[orderID]
	if !ok || o.BookingID != bookingID {
		return booking.Booking{}, fmt.Errorf("%w: order does not belong to booking", ErrConflict)
	}
	if o.PaymentID != "" && o.PaymentID != paymentID {
		return booking.Booking{}, fmt.Errorf("%w: order already paid", ErrConflict)
	}
	o.PaymentID = paymentID
	b.PaymentStatus = booking.PaymentPaid
	b.BookingStatus = "Confirmed"
	return *b, nil
}

func (s *Store) List(name resource.Name) []resource.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resource.Record, 0, len(s.collections[name]))
	for _, r := range s.collections[name] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *Store) Get(name resource.Name, id string) (resource.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.collections[name][id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Store) Put(name resource.Name, rec resource.Record) resource.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.ID()
	if id == "" {
		id = newID()
		rec["_id"] = mustRaw(id)
	}
	if _, ok := rec["createdAt"]; !ok {
		rec["createdAt"] = mustRaw(s.now().UTC().Format(time.RFC3339))
	}
	if s.collections[name] == nil {
		s.collections[name] = map[string]resource.Record{}
	}
	s.collections[name][id] = rec
	return rec
}

func (s *Store) Update(name resource.Name, id string, patch resource.Record) (resource.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.collections[name][id]
	if !ok {
		return nil, ErrNotFound
	}
	next := resource.Record{}
	for k, v := range cur {
		next[k] = v
	}
	for k, v := range patch {
		if k == "_id" {
			continue
		}
		next[k] = v
	}
	s.collections[name][id] = next
	return next, nil
}

func (s *Store) Delete(name resource.Name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[name], id)
	return nil
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Seed loads an admin account, one hotel and one pending booking so the
// checkout can be exercised end to end.
func (s *Store) Seed(adminEmail, adminPassword string) (session.User, booking.Booking, error) {
	admin, err := s.CreateUser(session.User{FirstName: "Dev", LastName: "Admin", Email: adminEmail, IsAdmin: true}, adminPassword)
	if err != nil {
		return session.User{}, booking.Booking{}, err
	}
	hotel := s.Put(resource.Hotels, resource.Record{
		"_id":  mustRaw("h1"),
		"name": mustRaw("Taj Skyline Ahmedabad"),
		"city": mustRaw("Ahmedabad"),
	})
	s.Put(resource.Places, resource.Record{"_id": mustRaw("p1"), "name": mustRaw("Rann of Kutch")})
	b := s.PutBooking(booking.Booking{
		ID:            "bk1",
		Hotel:         booking.HotelRef{ID: hotel.ID(), Name: hotel.String("name")},
		GuestName:     "Asha Patel",
		GuestEmail:    "asha@example.com",
		GuestPhone:    "9876543210",
		NumberOfRooms: 1,
		FinalAmount:   decimal.RequireFromString("66.00"),
		PaymentStatus: booking.PaymentPending,
	})
	return admin, b, nil
}
