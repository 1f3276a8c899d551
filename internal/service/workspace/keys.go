package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spacechat/internal/models"
)

const defaultProvider = "openrouter"

// AddKey stores an upstream credential for the user.
func (s *Service) AddKey(ctx context.Context, userID int64, title, value string) (*models.Key, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	title = strings.TrimSpace(title)
	value = strings.TrimSpace(value)
	if title == "" || value == "" {
		return nil, errors.New("title and value are required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keys (user_id, provider, title, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, defaultProvider, title, value, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("key id: %w", err)
	}
	return &models.Key{ID: id, UserID: userID, Provider: defaultProvider, Title: title, Value: value, CreatedAt: now}, nil
}

// ListKeys lists the user's credentials. Secret values are not populated.
func (s *Service) ListKeys(ctx context.Context, userID int64) ([]models.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, provider, title, created_at FROM keys WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []models.Key
	for rows.Next() {
		var k models.Key
		if err := rows.Scan(&k.ID, &k.UserID, &k.Provider, &k.Title, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteKey removes a credential owned by the user.
func (s *Service) DeleteKey(ctx context.Context, userID, keyID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM keys WHERE id = ? AND user_id = ?`, keyID, userID)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// VerifyKeyOwner checks that the key exists and belongs to the user.
func (s *Service) VerifyKeyOwner(ctx context.Context, userID, keyID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM keys WHERE id = ? AND user_id = ?)`,
		keyID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("verify key: %w", err)
	}
	if !exists {
		return fmt.Errorf("key not found: %w", sql.ErrNoRows)
	}
	return nil
}

// GetKeySecret fetches the credential secret just-in-time for a generation
// task. Missing records fail the whole task.
func (s *Service) GetKeySecret(ctx context.Context, keyID int64) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM keys WHERE id = ?`, keyID).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("key not found: %w", sql.ErrNoRows)
		}
		return "", fmt.Errorf("get key secret: %w", err)
	}
	return value, nil
}
