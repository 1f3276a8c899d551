package models

import "time"

// Key is a user-owned upstream credential. Value is the secret and only
// crosses into the generation task; it is never returned by list endpoints.
type Key struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Provider  string    `json:"provider"`
	Title     string    `json:"title"`
	Value     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
