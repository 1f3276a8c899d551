package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spacechat/internal/models"
)

// SettingsEdit carries the optional fields of an edit; nil means unchanged.
// SelectedKey of 0 clears the selection.
type SettingsEdit struct {
	SelectedModel *string
	SelectedKey   *int64
}

// GetSettings returns the per-space settings, or nil when none are stored.
func (s *Service) GetSettings(ctx context.Context, userID, spaceID int64) (*models.Settings, error) {
	var st models.Settings
	var model sql.NullString
	var key sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, space_id, selected_model, selected_key FROM settings WHERE user_id = ? AND space_id = ?`,
		userID, spaceID,
	).Scan(&st.ID, &st.UserID, &st.SpaceID, &model, &key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	st.SelectedModel = model.String
	st.SelectedKey = key.Int64
	return &st, nil
}

// EditSettings upserts the per-space settings. An empty change-set is an error.
func (s *Service) EditSettings(ctx context.Context, userID, spaceID int64, edit SettingsEdit) error {
	if edit.SelectedModel == nil && edit.SelectedKey == nil {
		return errors.New("no changes")
	}
	existing, err := s.GetSettings(ctx, userID, spaceID)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := s.getOwnedSpace(ctx, userID, spaceID); err != nil {
			return err
		}
		var model interface{}
		if edit.SelectedModel != nil {
			model = *edit.SelectedModel
		}
		var key interface{}
		if edit.SelectedKey != nil && *edit.SelectedKey > 0 {
			key = *edit.SelectedKey
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (user_id, space_id, selected_model, selected_key) VALUES (?, ?, ?, ?)`,
			userID, spaceID, model, key,
		); err != nil {
			return fmt.Errorf("create settings: %w", err)
		}
		return nil
	}

	if edit.SelectedModel != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE settings SET selected_model = ? WHERE id = ?`, *edit.SelectedModel, existing.ID,
		); err != nil {
			return fmt.Errorf("update settings model: %w", err)
		}
	}
	if edit.SelectedKey != nil {
		var key interface{}
		if *edit.SelectedKey > 0 {
			key = *edit.SelectedKey
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE settings SET selected_key = ? WHERE id = ?`, key, existing.ID,
		); err != nil {
			return fmt.Errorf("update settings key: %w", err)
		}
	}
	return nil
}
