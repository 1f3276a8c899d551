package models

// Settings stores the per-space picker state (model + key) for a user.
type Settings struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	SpaceID       int64  `json:"space_id"`
	SelectedModel string `json:"selected_model,omitempty"`
	SelectedKey   int64  `json:"selected_key,omitempty"`
}

// CatalogModel is one entry of the synced upstream model catalog.
type CatalogModel struct {
	ID         int64  `json:"id"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Details    string `json:"details,omitempty"`
}
