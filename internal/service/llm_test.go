package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/SolarScholar/internal/config"
)

func sseChunk(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "solar-1-mini-chat",
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	})
	return "data: " + string(b) + "\n\n"
}

func newLLMTest(t *testing.T, h http.HandlerFunc) *LLMClient {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.LLMBaseURL = server.URL
	return NewLLMClient(cfg)
}

func TestLLMClient_Stream(t *testing.T) {
	var got openai.ChatCompletionRequest
	llm := newLLMTest(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer up_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk(""))
		fmt.Fprint(w, sseChunk("Hel"))
		fmt.Fprint(w, sseChunk("lo"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	st, err := llm.Stream(context.Background(), CompletionRequest{
		APIKey: "up_key",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "sys"},
			{Role: openai.ChatMessageRoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	defer st.Close()

	var frags []string
	for {
		f, err := st.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frags = append(frags, f)
	}
	require.Equal(t, []string{"Hel", "lo"}, frags)
	require.True(t, got.Stream)
	require.Equal(t, "solar-1-mini-chat", got.Model, "falls back to configured model")
	require.Len(t, got.Messages, 2)
}

func TestLLMClient_StreamAuthError(t *testing.T) {
	llm := newLLMTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	})

	_, err := llm.Stream(context.Background(), CompletionRequest{APIKey: "bad", Model: "solar-pro"})
	require.Error(t, err)
}

func TestLLMClient_MissingKey(t *testing.T) {
	llm := NewLLMClient(config.Default())
	_, err := llm.Stream(context.Background(), CompletionRequest{})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = llm.ListModels(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLLMClient_ListModels(t *testing.T) {
	llm := newLLMTest(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"solar-1-mini-chat","object":"model"},{"id":"solar-pro","object":"model"}]}`)
	})

	models, err := llm.ListModels(context.Background(), "up_key")
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "solar-pro", models[1].ID)
}

// ChatService поверх настоящего клиента: ошибка API превращается в fallback
func TestChatService_WithLLMClientFailure(t *testing.T) {
	llm := newLLMTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	svc, sess := newChatTest(nil)
	svc.llm = llm

	qa, ok := svc.Ask(context.Background(), "hello")
	require.True(t, ok)
	require.Equal(t, FallbackAnswerEN, qa.Answer)
	require.False(t, sess.Processing())
}
