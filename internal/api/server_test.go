package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/llm"
	"github.com/resumind/resumind/internal/logging"
	"github.com/resumind/resumind/internal/run"
	"github.com/resumind/resumind/internal/store"
	"github.com/resumind/resumind/internal/testutil"
	"github.com/resumind/resumind/internal/workflow"
)

const (
	testEmail    = "test@resumind.dev"
	testPassword = "test-pass-123"
)

// testServer wires a full Server against a temporary SQLite database,
// a real uploads directory, and a swappable scripted streamer.
type testServer struct {
	*httptest.Server
	store    *store.Store
	uploads  *Uploads
	registry *run.Registry

	mu       sync.Mutex
	streamer llm.Streamer
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerMaxConcurrent(t, 3)
}

func newTestServerMaxConcurrent(t *testing.T, maxConcurrent int) *testServer {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "resumind.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	uploads, err := NewUploads(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("creating uploads store: %v", err)
	}
	prompts, err := workflow.NewPrompts("", logging.NewNop())
	if err != nil {
		t.Fatalf("loading prompts: %v", err)
	}

	registry := run.NewRegistry(run.Options{
		MaxConcurrent: maxConcurrent,
		QueueSize:     64,
		SendTimeout:   time.Second,
		Store:         st,
		Logger:        logging.NewNop(),
	})

	baseCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ts := &testServer{
		store:    st,
		uploads:  uploads,
		registry: registry,
		streamer: testutil.NewMockStreamer("mock"),
	}

	srv, err := NewServer(Options{
		Store:    st,
		Registry: registry,
		Issuer:   auth.NewTokenIssuer("test-secret", time.Hour),
		Uploads:  uploads,
		Prompts:  prompts,
		NewStreamer: func(context.Context, *core.LLMConfig) (llm.Streamer, error) {
			return ts.currentStreamer(), nil
		},
		BaseContext: baseCtx,
		Settings: Settings{
			TestEmail:         testEmail,
			TestPassword:      testPassword,
			KeepConversations: 10,
			MaxResumes:        5,
			MaxUploadBytes:    1 << 20,
			Temperature:       0.7,
		},
		Logger:  logging.NewNop(),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}

	ts.Server = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Server.Close)
	return ts
}

func (ts *testServer) setStreamer(s llm.Streamer) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.streamer = s
}

func (ts *testServer) currentStreamer() llm.Streamer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.streamer
}

// request performs one HTTP call against the test server.
func (ts *testServer) request(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// jsonRequest performs one HTTP call with a JSON body.
func (ts *testServer) jsonRequest(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshaling payload: %v", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return ts.request(t, method, path, token, body, contentType)
}

// login authenticates as the built-in test account.
func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	resp := ts.jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	requireStatus(t, resp, http.StatusOK)

	var out loginResponse
	decodeBody(t, resp, &out)
	if out.AccessToken == "" {
		t.Fatal("login returned an empty token")
	}
	return out.AccessToken
}

// seedConfig creates an LLM config through the API.
func (ts *testServer) seedConfig(t *testing.T, token string) configDTO {
	t.Helper()
	resp := ts.jsonRequest(t, http.MethodPost, "/api/llm/configs", token, map[string]string{
		"provider":   "deepseek",
		"name":       "Primary",
		"api_key":    "sk-test",
		"model_name": "deepseek-chat",
	})
	requireStatus(t, resp, http.StatusCreated)

	var cfg configDTO
	decodeBody(t, resp, &cfg)
	return cfg
}

// uploadResume stores a resume through the API and returns its record.
func (ts *testServer) uploadResume(t *testing.T, token, filename string, content []byte) resumeDTO {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, content, nil)
	resp := ts.request(t, http.MethodPost, "/api/resume", token, body, contentType)
	requireStatus(t, resp, http.StatusOK)

	var out resumeDTO
	decodeBody(t, resp, &out)
	return out
}

// multipartBody builds a multipart form with an optional file part.
func multipartBody(t *testing.T, fileField, filename string, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("writing form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing form field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, data)
	}
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out map[string]string
	decodeBody(t, resp, &out)
	return out["error"]
}

// sseReader consumes data-only SSE frames from a streaming response.
type sseReader struct {
	t    *testing.T
	body io.ReadCloser
	sc   *bufio.Scanner
}

func newSSEReader(t *testing.T, resp *http.Response) *sseReader {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected streaming status 200, got %d: %s", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected content type text/event-stream, got %q", ct)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &sseReader{t: t, body: resp.Body, sc: sc}
}

func (r *sseReader) close() { r.body.Close() }

// next returns the next decoded event.
func (r *sseReader) next() map[string]any {
	r.t.Helper()
	for r.sc.Scan() {
		line := r.sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			r.t.Fatalf("decoding event %q: %v", line, err)
		}
		return ev
	}
	if err := r.sc.Err(); err != nil {
		r.t.Fatalf("reading stream: %v", err)
	}
	r.t.Fatal("stream ended before the expected event")
	return nil
}

// expect asserts the next event's type and returns the event.
func (r *sseReader) expect(eventType string) map[string]any {
	r.t.Helper()
	ev := r.next()
	if ev["type"] != eventType {
		r.t.Fatalf("expected event type %q, got %v", eventType, ev)
	}
	return ev
}

// until reads and returns events through the first one of the given
// type, failing on any terminal event before it.
func (r *sseReader) until(eventType string) []map[string]any {
	r.t.Helper()
	var seen []map[string]any
	for {
		ev := r.next()
		seen = append(seen, ev)
		if ev["type"] == eventType {
			return seen
		}
		switch ev["type"] {
		case "complete", "stopped", "error":
			r.t.Fatalf("stream terminated with %v before %q", ev["type"], eventType)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/health", "", nil, "")
	requireStatus(t, resp, http.StatusOK)

	var out map[string]string
	decodeBody(t, resp, &out)
	if out["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %q", out["status"])
	}
}

func TestRootEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/", "", nil, "")
	requireStatus(t, resp, http.StatusOK)

	var out map[string]string
	decodeBody(t, resp, &out)
	if out["name"] != "Resumind" {
		t.Errorf("expected name 'Resumind', got %q", out["name"])
	}
	if out["version"] != "test" {
		t.Errorf("expected version 'test', got %q", out["version"])
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/llm/configs"},
		{http.MethodGet, "/api/resume/list"},
		{http.MethodGet, "/api/chat/history"},
	}
	for _, p := range paths {
		resp := ts.request(t, p.method, p.path, "", nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestLoginTestAccount(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	requireStatus(t, resp, http.StatusOK)

	var first loginResponse
	decodeBody(t, resp, &first)
	if first.TokenType != "bearer" {
		t.Errorf("expected token type 'bearer', got %q", first.TokenType)
	}
	if first.User.Email != testEmail {
		t.Errorf("expected user email %q, got %q", testEmail, first.User.Email)
	}
	if first.User.Name != "Test User" {
		t.Errorf("expected user name 'Test User', got %q", first.User.Name)
	}

	// A second login reuses the account created by the first.
	resp = ts.jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	requireStatus(t, resp, http.StatusOK)

	var second loginResponse
	decodeBody(t, resp, &second)
	if second.User.ID != first.User.ID {
		t.Errorf("expected the same user id on repeat login, got %d and %d", first.User.ID, second.User.ID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	hashed, err := auth.HashPassword("right-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	if _, err := ts.store.CreateUser(context.Background(), "jane@example.com", hashed, "Jane"); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "jane@example.com", "wrong-password"},
		{"unknown email", "nobody@example.com", "whatever"},
		{"test email with wrong password", testEmail, "not-the-test-password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
				"email":    tc.email,
				"password": tc.password,
			})
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			if msg := errorMessage(t, resp); msg != "Invalid email or password" {
				t.Errorf("expected 'Invalid email or password', got %q", msg)
			}
		})
	}
}

func TestLoginRegisteredUser(t *testing.T) {
	ts := newTestServer(t)

	hashed, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	seeded, err := ts.store.CreateUser(context.Background(), "jane@example.com", hashed, "Jane")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	resp := ts.jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "jane@example.com",
		"password": "s3cret",
	})
	requireStatus(t, resp, http.StatusOK)

	var out loginResponse
	decodeBody(t, resp, &out)
	if out.User.ID != seeded.ID {
		t.Errorf("expected user id %d, got %d", seeded.ID, out.User.ID)
	}

	me := ts.request(t, http.MethodGet, "/api/auth/me", out.AccessToken, nil, "")
	requireStatus(t, me, http.StatusOK)

	var profile userDTO
	decodeBody(t, me, &profile)
	if profile.Email != "jane@example.com" || profile.Name != "Jane" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestLoginValidatesBody(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/auth/login", "",
		strings.NewReader("{not json"), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": testEmail})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
