package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"spacechat/internal/auth"
	"spacechat/internal/config"
	"spacechat/internal/service/workspace"
	"spacechat/internal/storage"
	"spacechat/internal/worker"
)

type mockScheduler struct {
	reqs []workspace.GenerateRequest
	err  error
}

func (m *mockScheduler) ScheduleGeneration(req workspace.GenerateRequest) error {
	if m.err != nil {
		return m.err
	}
	m.reqs = append(m.reqs, req)
	return nil
}

func (m *mockScheduler) CancelUser(int64) {}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *mockScheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	svc := workspace.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	sched := &mockScheduler{}
	handler := NewHandler(svc, authSvc, sched, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, sched
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

var userSeq atomic.Int64

func registerAndLogin(t *testing.T, router *gin.Engine) (int64, map[string]string) {
	t.Helper()
	username := fmt.Sprintf("tester_%d", userSeq.Add(1))
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token after login")
	}
	authHeader := map[string]string{"Authorization": "Bearer " + loginBody.AuthToken}
	return regBody.ID, authHeader
}

func TestHandlersEndToEndFlow(t *testing.T) {
	router, _, sched := newTestServer(t)
	userID, authHeader := registerAndLogin(t, router)
	base := fmt.Sprintf("/api/users/%d", userID)

	// Create a space.
	spaceResp := doJSONRequest(t, router, http.MethodPost, base+"/spaces",
		map[string]any{"title": "Work", "order": 1.0}, authHeader)
	assertStatus(t, spaceResp, http.StatusCreated)
	var space struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, spaceResp.Body.Bytes(), &space)

	// Store a credential.
	keyResp := doJSONRequest(t, router, http.MethodPost, base+"/keys",
		map[string]string{"title": "my key", "value": "sk-or-secret"}, authHeader)
	assertStatus(t, keyResp, http.StatusCreated)
	var key struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, keyResp.Body.Bytes(), &key)
	if strings.Contains(keyResp.Body.String(), "sk-or-secret") {
		t.Fatalf("secret leaked in key response: %s", keyResp.Body.String())
	}

	// Pick model and key for the space.
	setResp := doJSONRequest(t, router, http.MethodPatch,
		fmt.Sprintf("%s/spaces/%d/settings", base, space.ID),
		map[string]any{"SelectedModel": "a/model", "SelectedKey": key.ID}, authHeader)
	assertStatus(t, setResp, http.StatusNoContent)

	// Start a chat; model and key come from the space settings.
	startResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("%s/spaces/%d/chats", base, space.ID),
		map[string]string{"text": "hello there"}, authHeader)
	assertStatus(t, startResp, http.StatusAccepted)
	var startBody struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		UserMessage struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
		} `json:"user_message"`
		ModelMessage struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"model_message"`
	}
	decodeJSON(t, startResp.Body.Bytes(), &startBody)
	if startBody.Chat.ID <= 0 || startBody.UserMessage.Body != "hello there" {
		t.Fatalf("start response = %s", startResp.Body.String())
	}
	if startBody.ModelMessage.Type != "loading" {
		t.Fatalf("model message type = %q", startBody.ModelMessage.Type)
	}
	if len(sched.reqs) != 1 || !sched.reqs[0].IsNew || sched.reqs[0].Model != "a/model" || sched.reqs[0].KeyID != key.ID {
		t.Fatalf("scheduled = %+v", sched.reqs)
	}

	// Follow-up turn on the same chat.
	sendResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("%s/chats/%d/messages", base, startBody.Chat.ID),
		map[string]string{"text": "and another thing"}, authHeader)
	assertStatus(t, sendResp, http.StatusAccepted)
	if len(sched.reqs) != 2 || sched.reqs[1].IsNew {
		t.Fatalf("scheduled = %+v", sched.reqs)
	}

	msgResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("%s/chats/%d/messages", base, startBody.Chat.ID), nil, authHeader)
	assertStatus(t, msgResp, http.StatusOK)
	var msgBody struct {
		Messages []struct {
			ID int64 `json:"id"`
		} `json:"messages"`
	}
	decodeJSON(t, msgResp.Body.Bytes(), &msgBody)
	if len(msgBody.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgBody.Messages))
	}

	// Manual tag management.
	tagResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("%s/chats/%d/tags", base, startBody.Chat.ID),
		map[string]string{"title": "followups"}, authHeader)
	assertStatus(t, tagResp, http.StatusNoContent)
	listTagsResp := doJSONRequest(t, router, http.MethodGet, base+"/tags", nil, authHeader)
	assertStatus(t, listTagsResp, http.StatusOK)
	if !strings.Contains(listTagsResp.Body.String(), "followups") {
		t.Fatalf("tags = %s", listTagsResp.Body.String())
	}

	// Logout, then the token is gone.
	logoutResp := doJSONRequest(t, router, http.MethodPost, base+"/logout", nil, authHeader)
	assertStatus(t, logoutResp, http.StatusNoContent)
	deniedResp := doJSONRequest(t, router, http.MethodGet, base+"/spaces", nil, authHeader)
	assertStatus(t, deniedResp, http.StatusUnauthorized)
}

func TestStartChatWithoutModelFails(t *testing.T) {
	router, _, sched := newTestServer(t)
	userID, authHeader := registerAndLogin(t, router)
	base := fmt.Sprintf("/api/users/%d", userID)

	spaceResp := doJSONRequest(t, router, http.MethodPost, base+"/spaces",
		map[string]any{"title": "Empty", "order": 1.0}, authHeader)
	assertStatus(t, spaceResp, http.StatusCreated)
	var space struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, spaceResp.Body.Bytes(), &space)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("%s/spaces/%d/chats", base, space.ID),
		map[string]string{"text": "hi"}, authHeader)
	assertStatus(t, resp, http.StatusBadRequest)
	if !strings.Contains(resp.Body.String(), "model is required") {
		t.Fatalf("body = %s", resp.Body.String())
	}
	if len(sched.reqs) != 0 {
		t.Fatalf("nothing should be scheduled")
	}
}

func TestSendMessageBusyDispatcher(t *testing.T) {
	router, _, sched := newTestServer(t)
	userID, authHeader := registerAndLogin(t, router)
	base := fmt.Sprintf("/api/users/%d", userID)

	spaceResp := doJSONRequest(t, router, http.MethodPost, base+"/spaces",
		map[string]any{"title": "Busy", "order": 1.0}, authHeader)
	var space struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, spaceResp.Body.Bytes(), &space)
	keyResp := doJSONRequest(t, router, http.MethodPost, base+"/keys",
		map[string]string{"title": "k", "value": "sk"}, authHeader)
	var key struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, keyResp.Body.Bytes(), &key)

	sched.err = worker.ErrDispatcherBusy
	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("%s/spaces/%d/chats", base, space.ID),
		map[string]any{"text": "hi", "model": "a/model", "key_id": key.ID}, authHeader)
	assertStatus(t, resp, http.StatusTooManyRequests)
}

func TestRequirePathUserMismatch(t *testing.T) {
	router, _, _ := newTestServer(t)
	_, authHeader := registerAndLogin(t, router)
	otherID, _ := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/spaces", otherID), nil, authHeader)
	assertStatus(t, resp, http.StatusForbidden)
}

func TestForeignKeyRejected(t *testing.T) {
	router, _, _ := newTestServer(t)
	ownerID, ownerHeader := registerAndLogin(t, router)
	thiefID, thiefHeader := registerAndLogin(t, router)

	keyResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/keys", ownerID),
		map[string]string{"title": "owner key", "value": "sk-owner"}, ownerHeader)
	assertStatus(t, keyResp, http.StatusCreated)
	var key struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, keyResp.Body.Bytes(), &key)

	thiefBase := fmt.Sprintf("/api/users/%d", thiefID)
	spaceResp := doJSONRequest(t, router, http.MethodPost, thiefBase+"/spaces",
		map[string]any{"title": "Theft", "order": 1.0}, thiefHeader)
	var space struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, spaceResp.Body.Bytes(), &space)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("%s/spaces/%d/chats", thiefBase, space.ID),
		map[string]any{"text": "hi", "model": "a/model", "key_id": key.ID}, thiefHeader)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCookieAuthRequiresCSRF(t *testing.T) {
	router, _, _ := newTestServer(t)

	username := fmt.Sprintf("cookie_%d", time.Now().UnixNano())
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register",
		map[string]string{"username": username, "password": "pass123"}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login",
		map[string]string{"username": username, "password": "pass123"}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	cookies := loginResp.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("login set no cookies")
	}

	// Mutating request with cookie auth but no CSRF header is rejected.
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]any{"title": "Nope", "order": 1.0})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/users/%d/spaces", regBody.ID), &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusForbidden)

	// Reads stay allowed without the header.
	readReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/spaces", regBody.ID), nil)
	for _, ck := range cookies {
		readReq.AddCookie(ck)
	}
	readRec := httptest.NewRecorder()
	router.ServeHTTP(readRec, readReq)
	assertStatus(t, readRec, http.StatusOK)
}
