package session

import (
	"encoding/json"
	"strings"
)

// User is the identity snapshot the backend returns and the cache keeps.
type User struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	ContactNo string `json:"contactNo,omitempty"`
	Address   string `json:"address,omitempty"`
	IsAdmin   bool   `json:"isAdmin"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// UnmarshalJSON accepts either "_id" (document store ids) or "id".
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.AltID
	}
	return nil
}

func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) Valid() bool {
	return strings.TrimSpace(u.ID) != ""
}

// AuthResponse is returned by the credential exchange endpoints.
type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
	User    User   `json:"user"`
}

type meResponse struct {
	User *User `json:"user"`
}
