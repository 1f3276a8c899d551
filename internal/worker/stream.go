package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"spacechat/internal/redis"
)

const (
	EventDelta  = "delta"
	EventDone   = "done"
	EventFailed = "failed"
)

// StreamEvent is one chat fan-out message. Body carries the full accumulated
// text so far, so late subscribers always see a complete prefix.
type StreamEvent struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	StreamID  string `json:"stream_id"`
	Type      string `json:"type"`
	Body      string `json:"body"`
}

// ChatEventChannel names the pubsub channel carrying one chat's events.
func ChatEventChannel(chatID int64) string {
	return fmt.Sprintf("chat:events:%d", chatID)
}

type streamPublisher struct {
	client *redis.Client
}

func newStreamPublisher(client *redis.Client) *streamPublisher {
	return &streamPublisher{client: client}
}

// publish broadcast one chat event, best effort
func (p *streamPublisher) publish(ctx context.Context, event StreamEvent) {
	if p == nil || p.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("chat event marshal failed: %v", err)
		return
	}
	if err := p.client.Publish(ctx, ChatEventChannel(event.ChatID), payload); err != nil {
		log.Printf("chat event publish failed: %v", err)
	}
}
