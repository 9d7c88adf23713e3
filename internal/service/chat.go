package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/SolarScholar/internal/model"
	"github.com/katakuxiko/SolarScholar/internal/store"
	"github.com/katakuxiko/SolarScholar/internal/util"
)

const (
	FallbackAnswerEN = "Sorry, I couldn't get an answer from the model. Please check your API key and network connection, then try again."
	FallbackAnswerKO = "죄송합니다. 모델로부터 답변을 받지 못했습니다. API 키와 네트워크 연결을 확인한 후 다시 시도해 주세요."
)

// FallbackAnswer — текст вместо ответа при любой ошибке API, язык по вопросу
func FallbackAnswer(question string) string {
	if util.ContainsHangul(question) {
		return FallbackAnswerKO
	}
	return FallbackAnswerEN
}

// ChatService — оркестратор одного хода: вопрос -> поток фрагментов -> ответ
type ChatService struct {
	session *store.Session
	llm     Completer
}

func NewChatService(session *store.Session, llm Completer) *ChatService {
	return &ChatService{session: session, llm: llm}
}

// Ask выполняет ход в текущем чате. Только "" считается пустым вопросом: no-op, ok=false.
// Ошибки API не возвращаются: вместо ответа подставляется FallbackAnswer.
func (s *ChatService) Ask(ctx context.Context, question string) (model.QA, bool) {
	question = util.NormalizeText(question)
	if question == "" {
		return model.QA{}, false
	}

	ref, history := s.session.BeginTurn(question)
	settings := s.session.Settings()

	var docContext string
	if doc := s.session.Document(); doc != nil {
		docContext = doc.Content
	}

	req := CompletionRequest{
		APIKey:   settings.APIKey,
		Model:    settings.Model,
		Messages: BuildMessages(RenderPrompt(settings.Prompt, question, docContext), history),
	}

	if err := s.stream(ctx, ref, req); err != nil {
		log.Errorf("completion failed (chat=%q, q=%q): %v", ref.Chat, util.TruncateRunes(question, 40), err)
		// частичный ответ отбрасывается
		s.session.ResetAnswer(ref, FallbackAnswer(question))
	}

	return s.session.FinishTurn(ref), true
}

func (s *ChatService) stream(ctx context.Context, ref store.TurnRef, req CompletionRequest) error {
	st, err := s.llm.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer st.Close()

	for {
		frag, err := st.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		s.session.AppendAnswer(ref, frag)
	}
}

// RenderPrompt подставляет {question} и {Context} в шаблон
func RenderPrompt(tmpl, question, docContext string) string {
	return strings.NewReplacer("{question}", question, "{Context}", docContext).Replace(tmpl)
}

// BuildMessages: system, затем пары user/assistant по истории.
// Последний assistant (пустая заглушка текущего хода) отбрасывается.
func BuildMessages(system string, history []model.QA) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 1+2*len(history))
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, qa := range history {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: qa.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: qa.Answer},
		)
	}
	if n := len(msgs); n > 1 && msgs[n-1].Role == openai.ChatMessageRoleAssistant {
		msgs = msgs[:n-1]
	}
	return msgs
}
