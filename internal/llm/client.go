package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"spacechat/internal/config"
)

// Client talks to an OpenAI-compatible completions API on behalf of one
// credential. The secret is held only for the lifetime of a generation task
// and never logged.
type Client struct {
	baseURL      string
	secret       string
	utilityModel string
	maxMsgLen    int
	httpClient   *http.Client
}

// NewClient builds a client for the configured upstream using the given
// credential secret.
func NewClient(upstream config.UpstreamConfig, secret string) *Client {
	maxLen := upstream.MetadataMaxMsgLength
	if maxLen <= 0 {
		maxLen = config.DefaultMetadataMaxMsgLength
	}
	utilityModel := upstream.UtilityModel
	if utilityModel == "" {
		utilityModel = config.DefaultUtilityModel
	}
	baseURL := upstream.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultUpstreamBaseURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		secret:       secret,
		utilityModel: utilityModel,
		maxMsgLen:    maxLen,
		httpClient:   &http.Client{},
	}
}

// StreamChat opens a streamed completion and calls onDelta for every text
// fragment, in order. It returns once the connection closes, or early when
// onDelta reports an error. The response body is released on every path.
func (c *Client) StreamChat(ctx context.Context, model string, messages []ContextMessage, onDelta func(string) error) error {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("marshal stream request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(respBody))
	}

	var decoder StreamDecoder
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, delta := range decoder.Feed(string(buf[:n])) {
				if err := onDelta(delta); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}

// ListModels fetches the upstream model catalog.
func (c *Client) ListModels(ctx context.Context) ([]CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models endpoint returned %d", resp.StatusCode)
	}
	var parsed struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("data is missing in models api response")
	}
	entries := make([]CatalogEntry, 0, len(parsed.Data))
	for _, raw := range parsed.Data {
		var entry CatalogEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.ID == "" {
			continue
		}
		entry.Details = raw
		entries = append(entries, entry)
	}
	return entries, nil
}
