package store

import (
	"errors"
	"strings"

	"github.com/katakuxiko/SolarScholar/internal/events"
	"github.com/katakuxiko/SolarScholar/internal/model"
)

var ErrChatNotFound = errors.New("chat not found")

// Conversations — неизменяемое состояние чатов. Каждый переход возвращает
// новое значение и события, которые нужно опубликовать.
// Инвариант: current всегда есть среди ключей chats.
type Conversations struct {
	chats       map[string][]model.QA
	order       []string
	current     string
	defaultName string
}

// TurnRef указывает на ход, ответ которого ещё дописывается
type TurnRef struct {
	Chat  string
	Index int
}

func NewConversations(defaultName string) Conversations {
	return Conversations{
		chats:       map[string][]model.QA{defaultName: {}},
		order:       []string{defaultName},
		current:     defaultName,
		defaultName: defaultName,
	}
}

func (c Conversations) clone() Conversations {
	chats := make(map[string][]model.QA, len(c.chats))
	for k, v := range c.chats {
		chats[k] = append(make([]model.QA, 0, len(v)), v...)
	}
	return Conversations{
		chats:       chats,
		order:       append([]string(nil), c.order...),
		current:     c.current,
		defaultName: c.defaultName,
	}
}

func (c Conversations) Current() string { return c.current }

// Titles — имена чатов в порядке создания
func (c Conversations) Titles() []string {
	return append([]string(nil), c.order...)
}

func (c Conversations) Len() int { return len(c.chats) }

// History — копия истории чата, nil если чата нет
func (c Conversations) History(name string) ([]model.QA, bool) {
	h, ok := c.chats[name]
	if !ok {
		return nil, false
	}
	return append([]model.QA{}, h...), true
}

// All — глубокая копия всех чатов
func (c Conversations) All() map[string][]model.QA {
	return c.clone().chats
}

// Create заводит пустой чат и делает его текущим.
// Существующее имя перезаписывается (last write wins), позиция сохраняется.
func (c Conversations) Create(name string) (Conversations, []events.Event) {
	name = strings.TrimSpace(name)
	if name == "" {
		return c, nil
	}
	next := c.clone()
	if _, ok := next.chats[name]; !ok {
		next.order = append(next.order, name)
	}
	next.chats[name] = []model.QA{}
	next.current = name

	e := events.New(events.ChatCreated)
	e.Chat = name
	return next, []events.Event{e}
}

// Delete удаляет текущий чат. Если чатов не осталось, возвращает дефолтный.
func (c Conversations) Delete() (Conversations, []events.Event) {
	next := c.clone()
	removed := next.current
	delete(next.chats, removed)
	for i, name := range next.order {
		if name == removed {
			next.order = append(next.order[:i], next.order[i+1:]...)
			break
		}
	}
	if len(next.chats) == 0 {
		next.chats = map[string][]model.QA{next.defaultName: {}}
		next.order = []string{next.defaultName}
	}
	next.current = next.order[0]

	del := events.New(events.ChatDeleted)
	del.Chat = removed
	sel := events.New(events.ChatSelected)
	sel.Chat = next.current
	return next, []events.Event{del, sel}
}

// Select переключает текущий чат
func (c Conversations) Select(name string) (Conversations, []events.Event, error) {
	if _, ok := c.chats[name]; !ok {
		return c, nil, ErrChatNotFound
	}
	next := c.clone()
	next.current = name

	e := events.New(events.ChatSelected)
	e.Chat = name
	return next, []events.Event{e}, nil
}

// AppendTurn добавляет в текущий чат ход с пустым ответом
func (c Conversations) AppendTurn(question string) (Conversations, TurnRef, []events.Event) {
	next := c.clone()
	name := next.current
	next.chats[name] = append(next.chats[name], model.QA{Question: question})
	ref := TurnRef{Chat: name, Index: len(next.chats[name]) - 1}

	e := events.New(events.TurnStarted)
	e.Chat = ref.Chat
	e.Index = ref.Index
	e.Text = question
	return next, ref, []events.Event{e}
}

// ResetAnswer заменяет ответ целиком (например, на текст ошибки)
func (c Conversations) ResetAnswer(ref TurnRef, answer string) (Conversations, []events.Event, bool) {
	h, ok := c.chats[ref.Chat]
	if !ok || ref.Index < 0 || ref.Index >= len(h) {
		return c, nil, false
	}
	next := c.clone()
	next.chats[ref.Chat][ref.Index].Answer = answer

	e := events.New(events.AnswerReset)
	e.Chat = ref.Chat
	e.Index = ref.Index
	e.Text = answer
	return next, []events.Event{e}, true
}

// AppendAnswer дописывает фрагмент к ответу. Если чат удалён или
// пересоздан во время генерации, фрагмент отбрасывается.
func (c Conversations) AppendAnswer(ref TurnRef, fragment string) (Conversations, []events.Event, bool) {
	h, ok := c.chats[ref.Chat]
	if !ok || ref.Index < 0 || ref.Index >= len(h) {
		return c, nil, false
	}
	next := c.clone()
	next.chats[ref.Chat][ref.Index].Answer += fragment

	e := events.New(events.AnswerDelta)
	e.Chat = ref.Chat
	e.Index = ref.Index
	e.Text = fragment
	return next, []events.Event{e}, true
}
