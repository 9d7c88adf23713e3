package store

import (
	"errors"
	"strings"
	"sync"

	"github.com/katakuxiko/SolarScholar/internal/events"
	"github.com/katakuxiko/SolarScholar/internal/model"
)

var ErrInvalidSettings = errors.New("settings values must not be empty")

// Session — единственная сессия процесса: чаты, настройки, документ и флаги.
// Все мутации идут через неё и публикуются в broker.
type Session struct {
	mu       sync.RWMutex
	convs    Conversations
	settings model.Settings
	doc      *model.Document

	processing    bool
	pdfUploaded   bool
	documentReady bool

	broker *events.Broker
}

func NewSession(defaultChat string, settings model.Settings, broker *events.Broker) *Session {
	if broker == nil {
		broker = events.NewBroker()
	}
	return &Session{
		convs:    NewConversations(defaultChat),
		settings: settings,
		broker:   broker,
	}
}

func (s *Session) Broker() *events.Broker { return s.broker }

// apply публикует события после снятия блокировки
func (s *Session) apply(fn func() []events.Event) {
	s.mu.Lock()
	evs := fn()
	s.mu.Unlock()
	if len(evs) > 0 {
		s.broker.Publish(evs...)
	}
}

func (s *Session) Conversations() Conversations {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convs
}

func (s *Session) CreateChat(name string) {
	s.apply(func() []events.Event {
		var evs []events.Event
		s.convs, evs = s.convs.Create(name)
		return evs
	})
}

func (s *Session) DeleteChat() {
	s.apply(func() []events.Event {
		var evs []events.Event
		s.convs, evs = s.convs.Delete()
		return evs
	})
}

func (s *Session) SelectChat(name string) error {
	var err error
	s.apply(func() []events.Event {
		var evs []events.Event
		s.convs, evs, err = s.convs.Select(name)
		return evs
	})
	return err
}

// BeginTurn добавляет ход в текущий чат, включает processing и
// возвращает ссылку на ход и историю чата вместе с новым ходом
func (s *Session) BeginTurn(question string) (TurnRef, []model.QA) {
	var (
		ref     TurnRef
		history []model.QA
	)
	s.apply(func() []events.Event {
		var evs []events.Event
		s.convs, ref, evs = s.convs.AppendTurn(question)
		history, _ = s.convs.History(ref.Chat)
		s.processing = true
		return append(evs, events.Toggle(events.Processing, true))
	})
	return ref, history
}

func (s *Session) AppendAnswer(ref TurnRef, fragment string) bool {
	var ok bool
	s.apply(func() []events.Event {
		var evs []events.Event
		s.convs, evs, ok = s.convs.AppendAnswer(ref, fragment)
		return evs
	})
	return ok
}

func (s *Session) ResetAnswer(ref TurnRef, answer string) bool {
	var ok bool
	s.apply(func() []events.Event {
		var evs []events.Event
		s.convs, evs, ok = s.convs.ResetAnswer(ref, answer)
		return evs
	})
	return ok
}

// FinishTurn выключает processing и возвращает итоговый ход
func (s *Session) FinishTurn(ref TurnRef) model.QA {
	var qa model.QA
	s.apply(func() []events.Event {
		if h, ok := s.convs.History(ref.Chat); ok && ref.Index < len(h) {
			qa = h[ref.Index]
		}
		s.processing = false
		done := events.New(events.TurnFinished)
		done.Chat = ref.Chat
		done.Index = ref.Index
		return []events.Event{done, events.Toggle(events.Processing, false)}
	})
	return qa
}

func (s *Session) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}

func (s *Session) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings применяет только заданные поля; пустые значения отклоняются целиком
func (s *Session) UpdateSettings(p model.SettingsPatch) (model.Settings, error) {
	for _, v := range []*string{p.APIKey, p.Prompt, p.Model} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return s.Settings(), ErrInvalidSettings
		}
	}
	var out model.Settings
	s.apply(func() []events.Event {
		if p.APIKey != nil {
			s.settings.APIKey = strings.TrimSpace(*p.APIKey)
		}
		if p.Prompt != nil {
			s.settings.Prompt = *p.Prompt
		}
		if p.Model != nil {
			s.settings.Model = strings.TrimSpace(*p.Model)
		}
		out = s.settings
		return []events.Event{events.New(events.SettingsUpdated)}
	})
	return out, nil
}

// Document — текущий контекст документа, nil если Learn ещё не выполнялся
func (s *Session) Document() *model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil
	}
	d := *s.doc
	return &d
}

func (s *Session) SetPDFUploaded(v bool) {
	s.apply(func() []events.Event {
		s.pdfUploaded = v
		return []events.Event{events.Toggle(events.PDFUploaded, v)}
	})
}

func (s *Session) SetDocumentReady(v bool) {
	s.apply(func() []events.Event {
		s.documentReady = v
		return []events.Event{events.Toggle(events.DocumentReady, v)}
	})
}

// StoreDocument перезаписывает контекст документа; document_ready выставляет вызывающий
func (s *Session) StoreDocument(doc model.Document) {
	s.mu.Lock()
	s.doc = &doc
	s.mu.Unlock()
}

func (s *Session) Flags() (pdfUploaded, documentReady bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pdfUploaded, s.documentReady
}

func (s *Session) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Snapshot{
		Chats:         s.convs.All(),
		Titles:        s.convs.Titles(),
		Current:       s.convs.Current(),
		Processing:    s.processing,
		PDFUploaded:   s.pdfUploaded,
		DocumentReady: s.documentReady,
		Model:         s.settings.Model,
		SettingsValid: s.settings.Valid(),
	}
}
