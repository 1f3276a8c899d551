package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spacechat/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.UpstreamConfig{BaseURL: baseURL}, "test-secret")
}

func TestStreamChatRelaysDeltas(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{
			`data: {"choices":[{"delta":{"content":"Hi"}}]}` + "\n\n",
			"data: {broken\n\n",
			`data: {"choices":[{"delta":{"content":" there"}}]}` + "\n\n",
			"data: [DONE]\n\n",
		} {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	var got []string
	err := client.StreamChat(context.Background(), "test/model", []ContextMessage{{Role: "user", Content: "hello"}}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if strings.Join(got, "") != "Hi there" {
		t.Fatalf("accumulated %q, want %q", strings.Join(got, ""), "Hi there")
	}
	if gotAuth != "Bearer test-secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if !gotReq.Stream || gotReq.Model != "test/model" {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestStreamChatStopsOnCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n" +
			`data: {"choices":[{"delta":{"content":"b"}}]}` + "\n"))
	}))
	defer server.Close()

	sentinel := errors.New("stop")
	calls := 0
	err := newTestClient(server.URL).StreamChat(context.Background(), "m", nil, func(string) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Fatalf("callback ran %d times, want 1", calls)
	}
}

func TestStreamChatReportsUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	err := newTestClient(server.URL).StreamChat(context.Background(), "m", nil, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":[
			{"id":"a/model-1","name":"Model One","context_length":8192},
			{"name":"missing id"},
			{"id":"b/model-2","name":"Model Two"}
		]}`))
	}))
	defer server.Close()

	entries, err := newTestClient(server.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != "a/model-1" || entries[0].Name != "Model One" {
		t.Fatalf("entry = %+v", entries[0])
	}
	if !strings.Contains(string(entries[0].Details), "context_length") {
		t.Fatalf("details not preserved: %s", entries[0].Details)
	}
}

func TestListModelsRejectsMissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).ListModels(context.Background()); err == nil {
		t.Fatalf("expected error for missing data field")
	}
}
