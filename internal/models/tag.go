package models

// Tag is a reference-counted usage index entry. ChatNum is at least 1 while
// the entry exists; the row is deleted when its count would drop to 0.
type Tag struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	SpaceID int64  `json:"space_id"`
	Title   string `json:"title"`
	ChatNum int64  `json:"chat_num"`
}
