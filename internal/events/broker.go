// Package events разносит изменения состояния сессии подписчикам (SSE и т.п.)
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	ChatCreated     Kind = "chat_created"
	ChatDeleted     Kind = "chat_deleted"
	ChatSelected    Kind = "chat_selected"
	TurnStarted     Kind = "turn_started"
	AnswerDelta     Kind = "answer_delta"
	AnswerReset     Kind = "answer_reset"
	TurnFinished    Kind = "turn_finished"
	Processing      Kind = "processing"
	SettingsUpdated Kind = "settings_updated"
	PDFUploaded     Kind = "pdf_uploaded"
	DocumentReady   Kind = "document_ready"
)

// Event — дельта состояния. Поля заполняются по смыслу Kind
type Event struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	At    time.Time `json:"at"`
	Chat  string    `json:"chat,omitempty"`
	Index int       `json:"index,omitempty"`
	Text  string    `json:"text,omitempty"`
	Flag  *bool     `json:"flag,omitempty"`
}

func New(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, At: time.Now()}
}

// Toggle — событие с булевым флагом (processing, pdf_uploaded, document_ready)
func Toggle(kind Kind, v bool) Event {
	e := New(kind)
	e.Flag = &v
	return e
}

const defaultBuffer = 256

// Broker — fan-out без блокировок на медленных подписчиках
type Broker struct {
	mu   sync.RWMutex
	subs map[string]chan Event
	buf  int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]chan Event), buf: defaultBuffer}
}

// Subscribe возвращает id, канал и функцию отписки (идемпотентна)
func (b *Broker) Subscribe() (string, <-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, b.buf)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return id, ch, cancel
}

// Publish не блокирует: если буфер подписчика полон, событие для него теряется
func (b *Broker) Publish(evs ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range evs {
		for _, ch := range b.subs {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
