package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"spacechat/internal/models"
)

// AttachTag increments the usage count of (user, title), creating the entry
// with count 1 when absent. Conditional single-statement updates keep
// concurrent attach/detach for the same tag from losing counts. Callers must
// invoke attach exactly once per chat-tag association.
func (s *Service) AttachTag(ctx context.Context, userID, spaceID int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("tag title is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET chat_num = chat_num + 1 WHERE user_id = ? AND title = ?`,
		userID, title,
	)
	if err != nil {
		return fmt.Errorf("increment tag: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (user_id, space_id, title, chat_num) VALUES (?, ?, ?, 1)`,
		userID, spaceID, title,
	); err == nil {
		return nil
	}
	// Lost the insert race; the entry exists now, so increment it.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tags SET chat_num = chat_num + 1 WHERE user_id = ? AND title = ?`,
		userID, title,
	); err != nil {
		return fmt.Errorf("increment tag after insert conflict: %w", err)
	}
	return nil
}

// DetachTag decrements the usage count of (user, title), deleting the entry
// when its count would drop to 0. Detaching an absent tag is a no-op.
func (s *Service) DetachTag(ctx context.Context, userID int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("tag title is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET chat_num = chat_num - 1 WHERE user_id = ? AND title = ? AND chat_num > 1`,
		userID, title,
	)
	if err != nil {
		return fmt.Errorf("decrement tag: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE user_id = ? AND title = ? AND chat_num <= 1`,
		userID, title,
	); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// GetTag looks up a usage index entry by exact case-sensitive title.
func (s *Service) GetTag(ctx context.Context, userID int64, title string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, space_id, title, chat_num FROM tags WHERE user_id = ? AND title = ?`,
		userID, title,
	).Scan(&tag.ID, &tag.UserID, &tag.SpaceID, &tag.Title, &tag.ChatNum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &tag, nil
}

// ListTags returns the user's usage index entries sorted by title.
func (s *Service) ListTags(ctx context.Context, userID int64) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, space_id, title, chat_num FROM tags WHERE user_id = ? ORDER BY title ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.SpaceID, &tag.Title, &tag.ChatNum); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AddChatTag attaches a tag to a chat's denormalized set and the usage index.
// Adding a tag the chat already carries is a no-op, which keeps the index
// attach exactly-once per chat-tag association.
func (s *Service) AddChatTag(ctx context.Context, userID, chatID int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("tag title is required")
	}
	chat, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if chat.HasTag(title) {
		return nil
	}
	if err := s.AttachTag(ctx, userID, chat.SpaceID, title); err != nil {
		return err
	}
	chat.Tags = append(chat.Tags, title)
	return s.saveChatTags(ctx, chatID, chat.Tags)
}

// RemoveChatTag detaches a tag from a chat's set and the usage index.
func (s *Service) RemoveChatTag(ctx context.Context, userID, chatID int64, title string) error {
	chat, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if !chat.HasTag(title) {
		return nil
	}
	remaining := make([]string, 0, len(chat.Tags))
	for _, t := range chat.Tags {
		if t != title {
			remaining = append(remaining, t)
		}
	}
	if err := s.saveChatTags(ctx, chatID, remaining); err != nil {
		return err
	}
	return s.DetachTag(ctx, userID, title)
}

func (s *Service) saveChatTags(ctx context.Context, chatID int64, tags []string) error {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET tags = ? WHERE id = ?`, string(encoded), chatID); err != nil {
		return fmt.Errorf("save chat tags: %w", err)
	}
	return nil
}
