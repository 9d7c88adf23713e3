package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/SolarScholar/internal/config"
)

var ErrMissingAPIKey = errors.New("api key is not set")

// CompletionRequest — один потоковый запрос к chat completion API
type CompletionRequest struct {
	APIKey   string
	Model    string
	Messages []openai.ChatCompletionMessage
}

// FragmentStream — ленивая, конечная, одноразовая последовательность фрагментов.
// Next возвращает io.EOF после последнего фрагмента.
type FragmentStream interface {
	Next() (string, error)
	Close() error
}

// Completer — то, что нужно оркестратору от LLM
type Completer interface {
	Stream(ctx context.Context, req CompletionRequest) (FragmentStream, error)
}

// LLMClient — клиент для Upstage Solar (OpenAI совместимый API).
// Ключ приходит из настроек сессии, поэтому go-openai клиент собирается на каждый запрос.
type LLMClient struct {
	baseURL    string
	chatName   string
	httpClient *http.Client
}

// NewLLMClient создаёт новый клиент с настройками из config
func NewLLMClient(cfg *config.Config) *LLMClient {
	return &LLMClient{
		baseURL:  cfg.LLMBaseURL,
		chatName: cfg.ChatModel,
	}
}

// WithHTTPClient — для тестов и прокси
func (l *LLMClient) WithHTTPClient(c *http.Client) *LLMClient {
	l.httpClient = c
	return l
}

func (l *LLMClient) client(apiKey string) *openai.Client {
	oaiCfg := openai.DefaultConfig(apiKey)
	oaiCfg.BaseURL = l.baseURL
	if l.httpClient != nil {
		oaiCfg.HTTPClient = l.httpClient
	}
	return openai.NewClientWithConfig(oaiCfg)
}

// Stream открывает потоковую генерацию
func (l *LLMClient) Stream(ctx context.Context, req CompletionRequest) (FragmentStream, error) {
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := req.Model
	if model == "" {
		model = l.chatName
	}

	stream, err := l.client(req.APIKey).CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

// ListModels возвращает список моделей
func (l *LLMClient) ListModels(ctx context.Context, apiKey string) ([]openai.Model, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	resp, err := l.client(apiKey).ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Models, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Next пропускает чанки без текста (role, finish_reason)
func (s *openAIStream) Next() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if d := resp.Choices[0].Delta.Content; d != "" {
			return d, nil
		}
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
