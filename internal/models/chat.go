package models

// Chat is one conversation thread inside a space. Tags are denormalized onto
// the chat for display; the tags table keeps the per-user usage counts.
type Chat struct {
	ID      int64    `json:"id"`
	UserID  int64    `json:"user_id"`
	SpaceID int64    `json:"space_id"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Created int64    `json:"created"` // unix microseconds
}

// HasTag reports whether the chat's tag set already contains title.
func (c *Chat) HasTag(title string) bool {
	for _, t := range c.Tags {
		if t == title {
			return true
		}
	}
	return false
}
