package delivery

import (
	"context"
	"net/mail"
)

// Info is a shipping profile captured once per checkout attempt. It is
// immutable after creation. UserID is zero for anonymous checkouts; Email
// is then the correlation key.
type Info struct {
	ID           int64
	UserID       int64
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	Address      string
	City         string
	Country      string
	PostCode     string
	DeliveryType string
}

// Validate reports missing or malformed fields as a field -> reason map.
// An empty map means the profile is valid.
func (i *Info) Validate() map[string]string {
	problems := make(map[string]string)

	required := []struct {
		field string
		value string
	}{
		{"first_name", i.FirstName},
		{"last_name", i.LastName},
		{"email", i.Email},
		{"phone_number", i.PhoneNumber},
		{"address", i.Address},
		{"city", i.City},
		{"country", i.Country},
		{"post_code", i.PostCode},
		{"delivery_type", i.DeliveryType},
	}
	for _, r := range required {
		if r.value == "" {
			problems[r.field] = "this field is required"
		}
	}

	if i.Email != "" {
		if _, err := mail.ParseAddress(i.Email); err != nil {
			problems["email"] = "enter a valid email address"
		}
	}

	return problems
}

// Repository persists delivery profiles. Creation happens inside the
// checkout transaction; this standalone method serves reads.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Info, error)
}
