package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spacechat/internal/models"
)

// SpaceEdit carries the optional fields of an edit; nil means unchanged.
type SpaceEdit struct {
	Title *string
	Order *float64
	Color *string
}

// AddSpace creates a workspace for the user.
func (s *Service) AddSpace(ctx context.Context, userID int64, title string, order float64, color string) (*models.Space, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO spaces (user_id, title, ord, color) VALUES (?, ?, ?, ?)`,
		userID, title, order, nullableString(color),
	)
	if err != nil {
		return nil, fmt.Errorf("create space: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("space id: %w", err)
	}
	return &models.Space{ID: id, UserID: userID, Title: title, Order: order, Color: color}, nil
}

// EditSpace applies a partial update. An empty change-set is an error.
func (s *Service) EditSpace(ctx context.Context, userID, spaceID int64, edit SpaceEdit) error {
	if edit.Title == nil && edit.Order == nil && edit.Color == nil {
		return errors.New("no changes")
	}
	if _, err := s.getOwnedSpace(ctx, userID, spaceID); err != nil {
		return err
	}

	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		if title == "" {
			return errors.New("title cannot be empty")
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if edit.Order != nil {
		sets = append(sets, "ord = ?")
		args = append(args, *edit.Order)
	}
	if edit.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, nullableString(*edit.Color))
	}
	args = append(args, spaceID, userID)
	query := fmt.Sprintf(`UPDATE spaces SET %s WHERE id = ? AND user_id = ?`, strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update space: %w", err)
	}
	return nil
}

// ListSpaces returns the user's spaces sorted by display order.
func (s *Service) ListSpaces(ctx context.Context, userID int64) ([]models.Space, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, ord, color FROM spaces WHERE user_id = ? ORDER BY ord ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []models.Space
	for rows.Next() {
		var sp models.Space
		var color sql.NullString
		if err := rows.Scan(&sp.ID, &sp.UserID, &sp.Title, &sp.Order, &color); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		sp.Color = color.String
		spaces = append(spaces, sp)
	}
	return spaces, rows.Err()
}

func (s *Service) getOwnedSpace(ctx context.Context, userID, spaceID int64) (*models.Space, error) {
	var sp models.Space
	var color sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, ord, color FROM spaces WHERE id = ? AND user_id = ?`,
		spaceID, userID,
	).Scan(&sp.ID, &sp.UserID, &sp.Title, &sp.Order, &color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("space not found: %w", sql.ErrNoRows)
		}
		return nil, fmt.Errorf("get space: %w", err)
	}
	sp.Color = color.String
	return &sp, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
