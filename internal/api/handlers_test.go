package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/SolarScholar/internal/config"
	"github.com/katakuxiko/SolarScholar/internal/layout"
	"github.com/katakuxiko/SolarScholar/internal/model"
	"github.com/katakuxiko/SolarScholar/internal/service"
	"github.com/katakuxiko/SolarScholar/internal/store"
)

const defaultChat = "Hi, I'm Solar"

type sliceStream struct{ frags []string }

func (s *sliceStream) Next() (string, error) {
	if len(s.frags) == 0 {
		return "", io.EOF
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, nil
}

func (s *sliceStream) Close() error { return nil }

type echoCompleter struct{ fail bool }

func (e echoCompleter) Stream(ctx context.Context, req service.CompletionRequest) (service.FragmentStream, error) {
	if e.fail {
		return nil, fmt.Errorf("boom")
	}
	q := req.Messages[len(req.Messages)-1].Content
	return &sliceStream{frags: []string{"echo: ", q}}, nil
}

type stubParser struct{ err error }

func (stubParser) Name() string { return "stub" }

func (p stubParser) Parse(ctx context.Context, req layout.Request) (string, error) {
	return "<p>parsed</p>", p.err
}

type testEnv struct {
	app     *fiber.App
	session *store.Session
}

func newEnv(t *testing.T, completer service.Completer, parser layout.Parser) testEnv {
	t.Helper()
	models := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"solar-1-mini-chat","object":"model"}]}`)
	}))
	t.Cleanup(models.Close)

	cfg := config.Default()
	cfg.LLMBaseURL = models.URL
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploads")

	sess := store.NewSession(cfg.DefaultChat, model.Settings{APIKey: "up_secret_key", Prompt: cfg.Prompt, Model: cfg.ChatModel}, nil)
	h := NewHandler(sess,
		service.NewChatService(sess, completer),
		service.NewIngestService(sess, parser, cfg.UploadDir, cfg.LayoutFormat),
		service.NewLLMClient(cfg),
	)
	return testEnv{app: NewApp(h, cfg.BodyLimitMB), session: sess}
}

func (e testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})
	resp, _ := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatsCRUD(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})

	resp, out := env.do(t, http.MethodPost, "/api/chats", map[string]string{"name": "papers"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "papers", out["current"])
	require.Len(t, out["titles"], 2)

	resp, _ = env.do(t, http.MethodPost, "/api/chats", map[string]string{"name": "papers"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, out = env.do(t, http.MethodGet, "/api/chats", nil)
	require.Len(t, out["titles"], 2, "no duplicate key")

	resp, _ = env.do(t, http.MethodPost, "/api/chats", map[string]string{"name": " "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPut, "/api/chats/current", map[string]string{"name": "nope"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = env.do(t, http.MethodPut, "/api/chats/current", map[string]string{"name": defaultChat})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, defaultChat, out["current"])

	_, out = env.do(t, http.MethodDelete, "/api/chats/current", nil)
	require.Equal(t, "papers", out["current"])
	_, out = env.do(t, http.MethodDelete, "/api/chats/current", nil)
	require.Equal(t, defaultChat, out["current"])
	require.Equal(t, []interface{}{defaultChat}, out["titles"])
}

func TestAskAndHistory(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})

	resp, out := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answer := out["answer"].(map[string]interface{})
	require.Equal(t, "hello", answer["question"])
	require.Equal(t, "echo: hello", answer["answer"])

	resp, out = env.do(t, http.MethodGet, "/api/chats/"+url.PathEscape(defaultChat), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["turns"], 1)

	resp, _ = env.do(t, http.MethodGet, "/api/chats/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAskForm(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("question=from+form"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h, _ := env.session.Conversations().History(defaultChat)
	require.Equal(t, "from form", h[0].Question)
}

func TestAskEmpty(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})
	resp, _ := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": ""})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 0, len(env.session.Snapshot().Chats[defaultChat]))
}

func TestAskFailureFallback(t *testing.T) {
	env := newEnv(t, echoCompleter{fail: true}, stubParser{})
	resp, out := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, service.FallbackAnswerEN, out["answer"].(map[string]interface{})["answer"])

	_, state := env.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, false, state["processing"])
}

func TestSettings(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})

	_, out := env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, "*********_key", out["api_key"])
	require.Equal(t, true, out["valid"])

	resp, out := env.do(t, http.MethodPut, "/api/settings", map[string]string{"model": "solar-pro"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "solar-pro", out["model"])

	resp, _ = env.do(t, http.MethodPut, "/api/settings", map[string]string{"api_key": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "up_secret_key", env.session.Settings().APIKey)
}

func TestModels(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var models []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&models))
	require.Equal(t, "solar-1-mini-chat", models[0]["id"])
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadAndLearn(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})

	resp, out := env.do(t, http.MethodPost, "/api/learn", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, out["error"], "upload")

	resp, err := env.app.Test(uploadRequest(t, "paper.pdf", "%PDF-1.5 body"), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = env.do(t, http.MethodPost, "/api/learn", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "paper.pdf", out["source"])

	_, out = env.do(t, http.MethodGet, "/api/document", nil)
	require.Equal(t, true, out["pdf_uploaded"])
	require.Equal(t, true, out["document_ready"])
	require.Equal(t, "<p>parsed</p>", out["document"].(map[string]interface{})["content"])
}

func TestUploadRejectsNonPDF(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{})
	resp, err := env.app.Test(uploadRequest(t, "notes.txt", "hello"), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/upload", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLearnFailure(t *testing.T) {
	env := newEnv(t, echoCompleter{}, stubParser{err: fmt.Errorf("layout analysis returned status 500")})
	resp, err := env.app.Test(uploadRequest(t, "paper.pdf", "%PDF-1.5"), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := env.do(t, http.MethodPost, "/api/learn", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, out["error"], "status 500")
}
