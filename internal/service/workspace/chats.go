package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"spacechat/internal/models"
)

// GenerateRequest is the payload of one scheduled response-generation task.
// The producer (exchange workflow) and consumer (generation task) agree on
// this schema independently of how the task is transported.
type GenerateRequest struct {
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	KeyID     int64  `json:"key_id"`
	Model     string `json:"model"`
	IsNew     bool   `json:"is_new"`
}

// Scheduler enqueues a generation task to run asynchronously, fire-and-forget.
type Scheduler interface {
	ScheduleGeneration(req GenerateRequest) error
}

// CreateChat inserts a chat with a timestamp-derived default title.
func (s *Service) CreateChat(ctx context.Context, userID, spaceID int64) (*models.Chat, error) {
	if _, err := s.getOwnedSpace(ctx, userID, spaceID); err != nil {
		return nil, err
	}
	now := time.Now()
	chat := &models.Chat{
		UserID:  userID,
		SpaceID: spaceID,
		Title:   "Chat at " + now.Format("2 Jan 15:04"),
		Tags:    []string{},
		Created: now.UnixMicro(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, space_id, title, tags, created) VALUES (?, ?, ?, '[]', ?)`,
		userID, spaceID, chat.Title, chat.Created,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	chat.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat id: %w", err)
	}
	return chat, nil
}

// GetChat returns a chat owned by the user.
func (s *Service) GetChat(ctx context.Context, userID, chatID int64) (*models.Chat, error) {
	var chat models.Chat
	var tags string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, space_id, title, tags, created FROM chats WHERE id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&chat.ID, &chat.UserID, &chat.SpaceID, &chat.Title, &tags, &chat.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat not found: %w", sql.ErrNoRows)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &chat.Tags); err != nil {
		chat.Tags = []string{}
	}
	return &chat, nil
}

// ListChats returns the chats of one space, newest first.
func (s *Service) ListChats(ctx context.Context, userID, spaceID int64) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, space_id, title, tags, created FROM chats WHERE user_id = ? AND space_id = ? ORDER BY created DESC`,
		userID, spaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat := new(models.Chat)
		var tags string
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.SpaceID, &chat.Title, &tags, &chat.Created); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &chat.Tags); err != nil {
			chat.Tags = []string{}
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// ListMessages returns every message of a chat in insertion order.
func (s *Service) ListMessages(ctx context.Context, userID, chatID int64) ([]*models.Message, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.queryMessages(ctx,
		`SELECT id, user_id, chat_id, type, body, created, reply_msg_id, model, stream_id
		 FROM messages WHERE chat_id = ? ORDER BY id ASC`, chatID)
}

// ExchangeMessages runs the synchronous half of a send: it persists the user
// turn, a placeholder assistant turn replying to it, and schedules exactly one
// generation task. It returns without waiting for generation.
func (s *Service) ExchangeMessages(ctx context.Context, sched Scheduler, userID, chatID, keyID int64, model, text string, isNew bool) (*models.Message, *models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, errors.New("message text is required")
	}
	if model == "" {
		return nil, nil, errors.New("model is required")
	}

	userMsg := &models.Message{
		UserID:  userID,
		ChatID:  chatID,
		Type:    models.TypeOutgoing,
		Body:    text,
		Created: time.Now().UnixMicro(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, chat_id, type, body, created) VALUES (?, ?, ?, ?, ?)`,
		userMsg.UserID, userMsg.ChatID, userMsg.Type, userMsg.Body, userMsg.Created,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert user message: %w", err)
	}
	if userMsg.ID, err = res.LastInsertId(); err != nil {
		return nil, nil, fmt.Errorf("user message id: %w", err)
	}

	modelMsg := &models.Message{
		UserID:     userID,
		ChatID:     chatID,
		Type:       models.TypeLoading,
		Body:       "",
		Created:    time.Now().UnixMicro(),
		ReplyMsgID: userMsg.ID,
		Model:      model,
	}
	res, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, chat_id, type, body, created, reply_msg_id, model) VALUES (?, ?, ?, '', ?, ?, ?)`,
		modelMsg.UserID, modelMsg.ChatID, modelMsg.Type, modelMsg.Created, modelMsg.ReplyMsgID, modelMsg.Model,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert model message: %w", err)
	}
	if modelMsg.ID, err = res.LastInsertId(); err != nil {
		return nil, nil, fmt.Errorf("model message id: %w", err)
	}

	if err := sched.ScheduleGeneration(GenerateRequest{
		UserID:    userID,
		ChatID:    chatID,
		MessageID: modelMsg.ID,
		KeyID:     keyID,
		Model:     model,
		IsNew:     isNew,
	}); err != nil {
		return nil, nil, err
	}
	return userMsg, modelMsg, nil
}

// LoadChatContext loads the chat's valid conversational turns in insertion
// order: outgoing user turns and completed assistant turns only.
func (s *Service) LoadChatContext(ctx context.Context, chatID int64) ([]*models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, user_id, chat_id, type, body, created, reply_msg_id, model, stream_id
		 FROM messages WHERE chat_id = ? AND type IN (?, ?) ORDER BY id ASC`,
		chatID, models.TypeOutgoing, models.TypeComplete)
}

// BeginStreaming stamps the message with its generation stream id.
func (s *Service) BeginStreaming(ctx context.Context, messageID int64, streamID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET stream_id = ? WHERE id = ?`, streamID, messageID,
	); err != nil {
		return fmt.Errorf("set stream id: %w", err)
	}
	return nil
}

// StreamMessageText replaces the message body with the accumulated text so
// far. Full replacement keeps every reader on a complete prefix of the final
// output, at the cost of write amplification.
func (s *Service) StreamMessageText(ctx context.Context, messageID int64, text string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET type = ?, body = ? WHERE id = ?`,
		models.TypeStreaming, text, messageID,
	); err != nil {
		return fmt.Errorf("stream message text: %w", err)
	}
	return nil
}

// MarkMessageDone finalizes the assistant message, leaving the body as its
// last accumulated value.
func (s *Service) MarkMessageDone(ctx context.Context, messageID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET type = ? WHERE id = ?`, models.TypeComplete, messageID,
	); err != nil {
		return fmt.Errorf("mark message done: %w", err)
	}
	return nil
}

// MarkMessageFailed parks the assistant message in its terminal failure state.
func (s *Service) MarkMessageFailed(ctx context.Context, messageID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET type = ? WHERE id = ?`, models.TypeFailed, messageID,
	); err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	return nil
}

// ApplyChatMetadata patches the chat's title and tag set from generated
// metadata, attaching each newly introduced tag to the usage index. Tags
// already on the chat are not attached again.
func (s *Service) ApplyChatMetadata(ctx context.Context, userID, chatID int64, title string, tags []string) error {
	chat, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || chat.HasTag(tag) {
			continue
		}
		if err := s.AttachTag(ctx, userID, chat.SpaceID, tag); err != nil {
			return err
		}
		chat.Tags = append(chat.Tags, tag)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = chat.Title
	}
	encoded, err := json.Marshal(chat.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, tags = ? WHERE id = ?`,
		title, string(encoded), chatID,
	); err != nil {
		return fmt.Errorf("update chat info: %w", err)
	}
	return nil
}

func (s *Service) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		var reply sql.NullInt64
		var model, streamID sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.ChatID, &m.Type, &m.Body, &m.Created, &reply, &model, &streamID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ReplyMsgID = reply.Int64
		m.Model = model.String
		m.StreamID = streamID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
