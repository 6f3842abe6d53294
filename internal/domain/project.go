package domain

import "time"

// Project is a storefront tenant; every route and owner is scoped by it.
type Project struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
