package llm

import "encoding/json"

// ContextMessage is one conversational turn sent to the upstream API.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatMetadata is the structured title/tags result generated for a new chat.
type ChatMetadata struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []ContextMessage `json:"messages"`
	Stream         bool             `json:"stream,omitempty"`
	Provider       *providerOptions `json:"provider,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type providerOptions struct {
	RequireParameters bool `json:"require_parameters"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// streamChunk is one decoded "data:" event payload of a streamed completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// completionResponse is the non-streamed completion shape.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CatalogEntry is one model of the upstream /models listing.
type CatalogEntry struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Details json.RawMessage `json:"-"`
}
