package worker

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"spacechat/internal/llm"
	"spacechat/internal/models"
	"spacechat/internal/service/workspace"
)

// handleGenerate runs one response generation end to end: load the chat
// context, relay the upstream stream into the assistant message, then
// finalize. Any failure parks the message in its failed state.
func (m *Manager) handleGenerate(req workspace.GenerateRequest) {
	ctx := context.Background()

	secret, err := m.store.GetKeySecret(ctx, req.KeyID)
	if err != nil {
		m.failGeneration(ctx, req, "", err)
		return
	}

	history, err := m.store.LoadChatContext(ctx, req.ChatID)
	if err != nil {
		m.failGeneration(ctx, req, "", err)
		return
	}
	if len(history) == 0 {
		m.failGeneration(ctx, req, "", errors.New("chat has no sendable messages"))
		return
	}

	turns := make([]llm.ContextMessage, 0, len(history))
	for _, msg := range history {
		role := "assistant"
		if msg.Type == models.TypeOutgoing {
			role = "user"
		}
		turns = append(turns, llm.ContextMessage{Role: role, Content: msg.Body})
	}

	streamID := uuid.NewString()
	if err := m.store.BeginStreaming(ctx, req.MessageID, streamID); err != nil {
		m.failGeneration(ctx, req, streamID, err)
		return
	}

	client := clientFactory(m.upstream, secret)
	var acc strings.Builder
	err = client.StreamChat(ctx, req.Model, turns, func(delta string) error {
		acc.WriteString(delta)
		if err := m.store.StreamMessageText(ctx, req.MessageID, acc.String()); err != nil {
			return err
		}
		m.streams.publish(ctx, StreamEvent{
			ChatID:    req.ChatID,
			MessageID: req.MessageID,
			StreamID:  streamID,
			Type:      EventDelta,
			Body:      acc.String(),
		})
		return nil
	})
	if err != nil {
		m.failGeneration(ctx, req, streamID, err)
		return
	}

	if err := m.store.MarkMessageDone(ctx, req.MessageID); err != nil {
		log.Printf("finalize message %d failed: %v", req.MessageID, err)
		return
	}
	m.streams.publish(ctx, StreamEvent{
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		StreamID:  streamID,
		Type:      EventDone,
		Body:      acc.String(),
	})

	if req.IsNew {
		m.generateMetadata(ctx, client, req, history, acc.String())
	}
}

// generateMetadata names a fresh chat from its first exchange. Metadata is
// decoration: failures are logged and the finished generation stands.
func (m *Manager) generateMetadata(ctx context.Context, client Generator, req workspace.GenerateRequest, history []*models.Message, reply string) {
	var firstTurn string
	for _, msg := range history {
		if msg.Type == models.TypeOutgoing {
			firstTurn = msg.Body
			break
		}
	}

	meta, err := client.GenerateChatMetadata(ctx,
		llm.ContextMessage{Role: "user", Content: firstTurn},
		llm.ContextMessage{Role: "assistant", Content: reply},
	)
	if err != nil {
		log.Printf("chat %d metadata generation failed: %v", req.ChatID, err)
		return
	}
	if meta == nil {
		return
	}
	if err := m.store.ApplyChatMetadata(ctx, req.UserID, req.ChatID, meta.Title, meta.Tags); err != nil {
		log.Printf("chat %d metadata apply failed: %v", req.ChatID, err)
	}
}

func (m *Manager) failGeneration(ctx context.Context, req workspace.GenerateRequest, streamID string, cause error) {
	log.Printf("generation for message %d failed: %v", req.MessageID, cause)
	if err := m.store.MarkMessageFailed(ctx, req.MessageID); err != nil {
		log.Printf("mark message %d failed errored: %v", req.MessageID, err)
	}
	m.streams.publish(ctx, StreamEvent{
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		StreamID:  streamID,
		Type:      EventFailed,
	})
}

// handleSyncModels refreshes the local model catalog from the upstream list.
// The catalog listing is public upstream, no user key involved.
func (m *Manager) handleSyncModels() {
	ctx := context.Background()
	client := clientFactory(m.upstream, "")
	entries, err := client.ListModels(ctx)
	if err != nil {
		log.Printf("model catalog sync failed: %v", err)
		return
	}
	if err := m.store.SaveModels(ctx, "openrouter", entries); err != nil {
		log.Printf("model catalog save failed: %v", err)
		return
	}
	debugLog("[worker] model catalog synced, %d entries", len(entries))
}
