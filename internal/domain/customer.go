package domain

import "time"

// Customer is a registered account; its ID is the authenticated owner id.
type Customer struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	DefaultShipping *Address  `json:"defaultShippingAddress,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (c Customer) DisplayName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	}
	return c.Email
}
