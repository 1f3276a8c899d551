package models

// Space is a named workspace grouping chats for one user.
type Space struct {
	ID     int64   `json:"id"`
	UserID int64   `json:"user_id"`
	Title  string  `json:"title"`
	Order  float64 `json:"order"`
	Color  string  `json:"color,omitempty"`
}
