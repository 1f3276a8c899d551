package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

const metadataInstruction = "Please generate chat info based on our conversation above"

// chatInfoSchema constrains metadata generation to exactly a title and 1-3
// single word tags.
var chatInfoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {
			"type": "string",
			"description": "Very short chat title"
		},
		"tags": {
			"type": "array",
			"description": "Between 1 and 3 relevant single word tags",
			"items": {
				"type": "string"
			}
		}
	},
	"required": ["title", "tags"],
	"additionalProperties": false
}`)

// GenerateChatMetadata derives a title and tag list from the first exchange
// of a new chat. Malformed upstream output is logged and reported as an
// absent result, never as an error; only transport failures return one.
func (c *Client) GenerateChatMetadata(ctx context.Context, userMsg, modelMsg ContextMessage) (*ChatMetadata, error) {
	messages := []ContextMessage{
		c.truncateForMetadata(userMsg),
		c.truncateForMetadata(modelMsg),
		{Role: "user", Content: metadataInstruction},
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.utilityModel,
		Messages: messages,
		Provider: &providerOptions{RequireParameters: true},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "chat_info",
				Strict: true,
				Schema: chatInfoSchema,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("metadata endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		log.Printf("metadata response has no choices")
		return nil, nil
	}

	content := parsed.Choices[0].Message.Content
	var meta ChatMetadata
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		log.Printf("got bad json when generating chat info, content: %q, error: %v", content, err)
		return nil, nil
	}
	if meta.Title == "" && len(meta.Tags) == 0 {
		log.Printf("generated chat info is empty, content: %q", content)
		return nil, nil
	}
	return &meta, nil
}

func (c *Client) truncateForMetadata(msg ContextMessage) ContextMessage {
	if len(msg.Content) > c.maxMsgLen {
		msg.Content = msg.Content[:c.maxMsgLen] + "..."
	}
	return msg
}
